package catalog

import (
	"fmt"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
)

type TableOID uint32

const NullTableOID TableOID = 0

// TableDescriptor is an immutable snapshot of a table's schema. Alterations build a new descriptor with a higher
// version instead of changing an existing one, so a reader holding a descriptor keeps seeing the schema it started
// with.
type TableDescriptor struct {
	oid     TableOID
	name    string
	version uint64
	fields  []FieldDescriptor

	// dropped keeps the layout of columns removed by DROP_COLUMN. Their bytes are still present in stored rows.
	dropped []FieldDescriptor

	// recordSize is the end of the fixed length region. It only grows, new columns are appended after it.
	recordSize uint32
}

// NewTableDescriptor packs fields one after another starting at offset 0 and returns the first version of the
// schema.
func NewTableDescriptor(oid TableOID, name string, fields []FieldDescriptor) (*TableDescriptor, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: table %s needs at least one field", ErrInvalidArgument, name)
	}

	packed := make([]FieldDescriptor, len(fields))
	var offset uint32
	for i, f := range fields {
		f.Offset = offset
		offset += f.Length()
		packed[i] = f
	}

	d := &TableDescriptor{
		oid:        oid,
		name:       name,
		version:    1,
		fields:     packed,
		recordSize: offset,
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *TableDescriptor) validate() error {
	names := mapset.NewThreadUnsafeSet[string]()
	for _, f := range d.fields {
		if err := f.validate(); err != nil {
			return err
		}
		if !names.Add(f.Name) {
			return fmt.Errorf("%w: %s appears more than once in table %s", ErrDuplicateField, f.Name, d.name)
		}
		if f.Offset+f.Length() > d.recordSize {
			return fmt.Errorf("%w: field %s at %d overflows record size %d", ErrInvalidArgument, f.Name, f.Offset, d.recordSize)
		}
	}
	for _, f := range d.dropped {
		if f.Offset+f.Length() > d.recordSize {
			return fmt.Errorf("%w: dropped field %s at %d overflows record size %d", ErrInvalidArgument, f.Name, f.Offset, d.recordSize)
		}
	}
	return nil
}

func (d *TableDescriptor) OID() TableOID {
	return d.oid
}

func (d *TableDescriptor) Name() string {
	return d.name
}

func (d *TableDescriptor) Version() uint64 {
	return d.version
}

func (d *TableDescriptor) RecordSize() uint32 {
	return d.recordSize
}

func (d *TableDescriptor) FieldCount() int {
	return len(d.fields)
}

// Fields returns a copy of the ordered column list.
func (d *TableDescriptor) Fields() []FieldDescriptor {
	return slices.Clone(d.fields)
}

func (d *TableDescriptor) Field(idx int) FieldDescriptor {
	return d.fields[idx]
}

func (d *TableDescriptor) FieldNames() []string {
	res := make([]string, len(d.fields))
	for i, f := range d.fields {
		res[i] = f.Name
	}
	return res
}

func (d *TableDescriptor) FieldIdx(name string) (int, error) {
	for i, f := range d.fields {
		if f.Name == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %s in table %s", ErrFieldNotFound, name, d.name)
}

func (d *TableDescriptor) FieldByName(name string) (FieldDescriptor, bool) {
	idx, err := d.FieldIdx(name)
	if err != nil {
		return FieldDescriptor{}, false
	}
	return d.fields[idx], true
}

func (d *TableDescriptor) DroppedFields() []FieldDescriptor {
	return slices.Clone(d.dropped)
}

func (d *TableDescriptor) String() string {
	return fmt.Sprintf("%s(%d) v%d %v", d.name, d.oid, d.version, d.FieldNames())
}
