package common

import "fmt"

// Assert panics with a formatted message when cond does not hold. It is only meant for programmer errors, never for
// conditions caused by user input or disk contents.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}

// OneOf tells whether x equals any of the given values.
func OneOf[T comparable](x T, values ...T) bool {
	for _, v := range values {
		if x == v {
			return true
		}
	}
	return false
}

func Ternary[T any](cond bool, a, b T) T {
	if cond {
		return a
	}
	return b
}
