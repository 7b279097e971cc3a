package catalog

import (
	"encoding/json"
	"fmt"
	"slices"
)

type AlterKind uint8

const (
	InvalidAlter AlterKind = iota
	AddColumn
	DropColumn
)

func (k AlterKind) String() string {
	switch k {
	case AddColumn:
		return "ADD_COLUMN"
	case DropColumn:
		return "DROP_COLUMN"
	default:
		return fmt.Sprintf("AlterKind(%d)", uint8(k))
	}
}

// AlterOperation is one requested change of a table schema. Field is used by AddColumn and FieldName by DropColumn.
type AlterOperation struct {
	Kind      AlterKind
	Field     FieldDescriptor
	FieldName string
}

func AddColumnOp(f FieldDescriptor) AlterOperation {
	return AlterOperation{Kind: AddColumn, Field: f}
}

func DropColumnOp(name string) AlterOperation {
	return AlterOperation{Kind: DropColumn, FieldName: name}
}

// Validate checks that the payload of the operation matches its kind.
func (o AlterOperation) Validate() error {
	switch o.Kind {
	case AddColumn:
		if o.FieldName != "" {
			return fmt.Errorf("%w: %s carries a field name", ErrInvalidArgument, o.Kind)
		}
		return o.Field.validate()
	case DropColumn:
		if o.FieldName == "" {
			return fmt.Errorf("%w: %s without a field name", ErrInvalidArgument, o.Kind)
		}
		if o.Field != (FieldDescriptor{}) {
			return fmt.Errorf("%w: %s carries a field descriptor", ErrInvalidArgument, o.Kind)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown alter kind %d", ErrInvalidArgument, o.Kind)
	}
}

func (o AlterOperation) String() string {
	if o.Kind == AddColumn {
		return fmt.Sprintf("%s %s %s", o.Kind, o.Field.Name, o.Field.Type)
	}
	return fmt.Sprintf("%s %s", o.Kind, o.FieldName)
}

// Apply folds ops left to right over a private copy of the schema and returns the next version. d itself is never
// changed, so any failure leaves the table exactly as it was.
func (d *TableDescriptor) Apply(ops []AlterOperation) (*TableDescriptor, error) {
	if len(ops) == 0 {
		return nil, fmt.Errorf("%w: empty alter operation list for table %s", ErrInvalidArgument, d.name)
	}

	fields := slices.Clone(d.fields)
	dropped := slices.Clone(d.dropped)
	recordSize := d.recordSize

	indexOf := func(name string) int {
		return slices.IndexFunc(fields, func(f FieldDescriptor) bool { return f.Name == name })
	}

	for i, op := range ops {
		if err := op.Validate(); err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}

		switch op.Kind {
		case AddColumn:
			if indexOf(op.Field.Name) >= 0 {
				return nil, fmt.Errorf("%w: %s already exists in table %s", ErrDuplicateField, op.Field.Name, d.name)
			}
			f := op.Field
			f.Offset = recordSize
			recordSize += f.Length()
			fields = append(fields, f)
		case DropColumn:
			idx := indexOf(op.FieldName)
			if idx < 0 {
				return nil, fmt.Errorf("%w: %s in table %s", ErrFieldNotFound, op.FieldName, d.name)
			}
			dropped = append(dropped, fields[idx])
			fields = slices.Delete(fields, idx, idx+1)
		}
	}

	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: alter would leave table %s without fields", ErrInvalidArgument, d.name)
	}

	nd := &TableDescriptor{
		oid:        d.oid,
		name:       d.name,
		version:    d.version + 1,
		fields:     fields,
		dropped:    dropped,
		recordSize: recordSize,
	}
	if err := nd.validate(); err != nil {
		return nil, err
	}
	return nd, nil
}

type alterOpRecord struct {
	Kind  string     `json:"kind"`
	Field *fieldMeta `json:"field,omitempty"`
	Name  string     `json:"name,omitempty"`
}

// encodeAlterOps produces the operations part of an alter log record.
func encodeAlterOps(ops []AlterOperation) ([]byte, error) {
	records := make([]alterOpRecord, len(ops))
	for i, op := range ops {
		switch op.Kind {
		case AddColumn:
			fm := toFieldMeta(op.Field)
			records[i] = alterOpRecord{Kind: "ADD", Field: &fm}
		case DropColumn:
			records[i] = alterOpRecord{Kind: "DROP", Name: op.FieldName}
		default:
			return nil, fmt.Errorf("%w: unknown alter kind %d", ErrInvalidArgument, op.Kind)
		}
	}
	return json.Marshal(records)
}

func decodeAlterOps(data []byte) ([]AlterOperation, error) {
	records := make([]alterOpRecord, 0)
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}

	ops := make([]AlterOperation, len(records))
	for i, r := range records {
		switch r.Kind {
		case "ADD":
			if r.Field == nil {
				return nil, fmt.Errorf("ADD operation %d has no field", i)
			}
			f, err := r.Field.toField()
			if err != nil {
				return nil, err
			}
			ops[i] = AddColumnOp(f)
		case "DROP":
			ops[i] = DropColumnOp(r.Name)
		default:
			return nil, fmt.Errorf("unknown alter kind %q", r.Kind)
		}
	}
	return ops, nil
}
