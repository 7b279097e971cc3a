package common

import "os"

const (
	// TableMetaSuffix is appended to a table name to get the name of its meta file in the database directory.
	TableMetaSuffix = ".table"

	// TableDataSuffix is appended to a table name to get the name of its data file.
	TableDataSuffix = ".data"

	// TempSuffix marks files that are being written and are not visible under their canonical name yet.
	TempSuffix = ".tmp"

	// DDLLogFileName is the name of the recovery log inside the database directory.
	DDLLogFileName = "ddl.wal"

	DirPerms  os.FileMode = 0750
	FilePerms os.FileMode = 0640
)
