package catalog

import (
	"helincat/common"
	"helincat/disk"
	"sync"
	"sync/atomic"
)

// Table is the open table handle owned by the catalog. The current descriptor can be read by any number of
// goroutines without locking; alter and drop replace it under mu.
type Table struct {
	oid  TableOID
	name string
	file disk.TableFile

	desc atomic.Pointer[TableDescriptor]

	// mu serializes alterations and drop of this table.
	mu      sync.Mutex
	dropped bool
}

func newTable(d *TableDescriptor, file disk.TableFile) *Table {
	common.Assert(d != nil && file != nil, "table handle needs a descriptor and a file")
	t := &Table{
		oid:  d.OID(),
		name: d.Name(),
		file: file,
	}
	t.desc.Store(d)
	return t
}

func (t *Table) OID() TableOID {
	return t.oid
}

func (t *Table) Name() string {
	return t.name
}

// Descriptor returns the schema as of now. The returned value stays valid and unchanged for as long as the caller
// holds it, even if the table is altered meanwhile.
func (t *Table) Descriptor() *TableDescriptor {
	return t.desc.Load()
}

// File is the physical storage of the table. Row layout inside it is up to the caller.
func (t *Table) File() disk.TableFile {
	return t.file
}

func (t *Table) swap(d *TableDescriptor) {
	common.Assert(d.OID() == t.oid && d.Name() == t.name, "descriptor of %s(%d) swapped into %s(%d)", d.Name(), d.OID(), t.name, t.oid)
	t.desc.Store(d)
}
