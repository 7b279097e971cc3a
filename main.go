package main

import "helincat/cmd"

func main() {
	cmd.Execute()
}
