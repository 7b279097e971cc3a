package disk

import (
	"errors"
)

const PageSize int = 4096

var (
	ErrBadHeader      = errors.New("table file header is corrupt or belongs to another table")
	ErrNotExist       = errors.New("table file does not exist")
	ErrPageOutOfRange = errors.New("page is out of range")
	ErrClosed         = errors.New("table file is closed")
)

// TableFile is the physical storage of a single table. Records, heap layout and indexes live on top of it and are
// not the concern of this package; the catalog only needs to create, open, flush and destroy it.
type TableFile interface {
	ReadPage(pageId uint64) ([]byte, error)
	WritePage(data []byte, pageId uint64) error
	NewPage() (pageId uint64, err error)
	NumPages() uint64
	OID() uint32

	// Sync flushes every written page to durable media.
	Sync() error
	Close() error
}

// Storage materializes table files. Names are table names, never paths.
type Storage interface {
	// Create creates an empty table file for the table with given oid, replacing any orphan file of the same name.
	Create(name string, oid uint32) (TableFile, error)
	// Open opens an existing table file and validates that it belongs to the table with given oid.
	Open(name string, oid uint32) (TableFile, error)
	// Destroy removes the table file. The file must be closed before.
	Destroy(name string) error
}
