package catalog

import (
	"fmt"
	"helincat/catalog/db_types"
)

// FieldDescriptor describes a single column of a table. Offset is the byte position of the column inside the fixed
// length row layout and is assigned by the table descriptor that holds the field.
type FieldDescriptor struct {
	Name     string
	Type     db_types.TypeID
	Offset   uint32
	Nullable bool
}

func NewField(name string, typ db_types.TypeID, nullable bool) FieldDescriptor {
	return FieldDescriptor{Name: name, Type: typ, Nullable: nullable}
}

// Length is the number of bytes the column takes in a row.
func (f FieldDescriptor) Length() uint32 {
	return f.Type.Length()
}

func (f FieldDescriptor) String() string {
	s := fmt.Sprintf("%s %s @%d", f.Name, f.Type, f.Offset)
	if f.Nullable {
		s += " null"
	}
	return s
}

func (f FieldDescriptor) validate() error {
	if f.Name == "" {
		return fmt.Errorf("%w: field name is empty", ErrInvalidArgument)
	}
	if !f.Type.Valid() {
		return fmt.Errorf("%w: field %s has invalid type %v", ErrInvalidArgument, f.Name, f.Type)
	}
	return nil
}
