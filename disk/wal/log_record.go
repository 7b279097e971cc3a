package wal

import "fmt"

type LogRecordType uint8

const (
	TypeInvalid LogRecordType = iota
	TypeCreateTable
	TypeDropTable
	TypeAlterTable
	TypeCheckpoint
)

func (t LogRecordType) String() string {
	switch t {
	case TypeCreateTable:
		return "create_table"
	case TypeDropTable:
		return "drop_table"
	case TypeAlterTable:
		return "alter_table"
	case TypeCheckpoint:
		return "checkpoint"
	default:
		return fmt.Sprintf("invalid(%d)", uint8(t))
	}
}

// LSN is the sequence number of a record in the log. The first appended record gets 1.
type LSN uint64

const ZeroLSN LSN = 0

type LogRecord struct {
	T   LogRecordType
	Lsn LSN

	// for create, drop and alter
	TableID   uint32
	TableName string

	// Version is the schema version a create or alter record produces.
	Version uint64

	// Payload carries the encoded alter operations. The log does not interpret it.
	Payload []byte

	// for checkpoint
	NextTableID uint32
}

func (l *LogRecord) Type() LogRecordType {
	return l.T
}

func (l *LogRecord) String() string {
	switch l.T {
	case TypeCheckpoint:
		return fmt.Sprintf("lsn=%d %s next_table_id=%d", l.Lsn, l.T, l.NextTableID)
	default:
		return fmt.Sprintf("lsn=%d %s table=%s(%d) version=%d payload=%dB", l.Lsn, l.T, l.TableName, l.TableID, l.Version, len(l.Payload))
	}
}

func NewCreateTableLogRecord(tableID uint32, name string, version uint64) *LogRecord {
	return &LogRecord{T: TypeCreateTable, TableID: tableID, TableName: name, Version: version}
}

func NewDropTableLogRecord(tableID uint32, name string) *LogRecord {
	return &LogRecord{T: TypeDropTable, TableID: tableID, TableName: name}
}

func NewAlterTableLogRecord(tableID uint32, name string, version uint64, ops []byte) *LogRecord {
	return &LogRecord{T: TypeAlterTable, TableID: tableID, TableName: name, Version: version, Payload: ops}
}

func NewCheckpointLogRecord(nextTableID uint32) *LogRecord {
	return &LogRecord{T: TypeCheckpoint, NextTableID: nextTableID}
}
