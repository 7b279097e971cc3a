package stmt

import (
	"fmt"
	"helincat/catalog"
	"helincat/catalog/db_types"
	"strconv"
	"strings"
)

// Statement is a parsed ddl statement ready to be dispatched to the catalog.
type Statement interface {
	TableName() string
	stmt()
}

// AttrInfo is a column as written by the user, before its type is resolved.
type AttrInfo struct {
	Name     string
	Type     string
	Length   uint32
	Nullable bool
}

// ParseAttr parses a column spec of the form name:type, name:type(length) or either of those followed by ? for a
// nullable column, e.g. "b:varchar(10)" or "c:int?".
func ParseAttr(spec string) (AttrInfo, error) {
	name, typ, ok := strings.Cut(strings.TrimSpace(spec), ":")
	if !ok || name == "" || typ == "" {
		return AttrInfo{}, fmt.Errorf("%w: column spec %q must look like name:type", catalog.ErrInvalidArgument, spec)
	}

	a := AttrInfo{Name: strings.TrimSpace(name)}
	typ = strings.TrimSpace(typ)
	if strings.HasSuffix(typ, "?") {
		a.Nullable = true
		typ = strings.TrimSuffix(typ, "?")
	}

	if open := strings.IndexByte(typ, '('); open >= 0 {
		if !strings.HasSuffix(typ, ")") {
			return AttrInfo{}, fmt.Errorf("%w: unterminated length in %q", catalog.ErrInvalidArgument, spec)
		}
		n, err := strconv.ParseUint(typ[open+1:len(typ)-1], 10, 32)
		if err != nil {
			return AttrInfo{}, fmt.Errorf("%w: bad length in %q", catalog.ErrInvalidArgument, spec)
		}
		a.Length = uint32(n)
		typ = typ[:open]
	}
	a.Type = typ
	return a, nil
}

// Field resolves the type of the attribute.
func (a AttrInfo) Field() (catalog.FieldDescriptor, error) {
	typ, err := db_types.ParseType(a.Type, a.Length)
	if err != nil {
		return catalog.FieldDescriptor{}, fmt.Errorf("%w: column %s: %v", catalog.ErrInvalidArgument, a.Name, err)
	}
	return catalog.NewField(a.Name, typ, a.Nullable), nil
}

func (a AttrInfo) String() string {
	s := a.Name + ":" + a.Type
	if a.Length > 0 {
		s += fmt.Sprintf("(%d)", a.Length)
	}
	if a.Nullable {
		s += "?"
	}
	return s
}

func fieldsOf(attrs []AttrInfo) ([]catalog.FieldDescriptor, error) {
	fields := make([]catalog.FieldDescriptor, 0, len(attrs))
	for _, a := range attrs {
		f, err := a.Field()
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}

type CreateTableStmt struct {
	Table string
	Attrs []AttrInfo
}

func (s *CreateTableStmt) TableName() string { return s.Table }
func (s *CreateTableStmt) stmt()             {}

func (s *CreateTableStmt) Fields() ([]catalog.FieldDescriptor, error) {
	return fieldsOf(s.Attrs)
}

type DropTableStmt struct {
	Table string
}

func (s *DropTableStmt) TableName() string { return s.Table }
func (s *DropTableStmt) stmt()             {}

// AlterStmt carries an ordered list of schema changes for one table. A single change is a list of length one.
type AlterStmt struct {
	Table string
	Ops   []catalog.AlterOperation
}

func (s *AlterStmt) TableName() string { return s.Table }
func (s *AlterStmt) stmt()             {}

// NewAlterStmt builds an alter statement from the object/operation/field shape, e.g. ALTER TABLE t ADD COLUMN a
// int, b int. Every attribute becomes one operation of the given kind, in order.
func NewAlterStmt(table, object, operation string, attrs []AttrInfo) (*AlterStmt, error) {
	if !strings.EqualFold(object, "COLUMN") {
		return nil, fmt.Errorf("%w: alter of %q is not supported", catalog.ErrInvalidArgument, object)
	}
	if len(attrs) == 0 {
		return nil, fmt.Errorf("%w: alter without columns", catalog.ErrInvalidArgument)
	}

	ops := make([]catalog.AlterOperation, 0, len(attrs))
	switch strings.ToUpper(operation) {
	case "ADD":
		fields, err := fieldsOf(attrs)
		if err != nil {
			return nil, err
		}
		for _, f := range fields {
			ops = append(ops, catalog.AddColumnOp(f))
		}
	case "DROP":
		for _, a := range attrs {
			ops = append(ops, catalog.DropColumnOp(a.Name))
		}
	default:
		return nil, fmt.Errorf("%w: unknown alter operation %q", catalog.ErrInvalidArgument, operation)
	}

	return &AlterStmt{Table: table, Ops: ops}, nil
}

// ParseAlterOps parses a list of "add:name:type" and "drop:name" items into operations, keeping their order.
func ParseAlterOps(items []string) ([]catalog.AlterOperation, error) {
	ops := make([]catalog.AlterOperation, 0, len(items))
	for _, item := range items {
		kind, rest, ok := strings.Cut(strings.TrimSpace(item), ":")
		if !ok || rest == "" {
			return nil, fmt.Errorf("%w: alter item %q must be add:COLUMN or drop:NAME", catalog.ErrInvalidArgument, item)
		}

		switch strings.ToLower(kind) {
		case "add":
			a, err := ParseAttr(rest)
			if err != nil {
				return nil, err
			}
			f, err := a.Field()
			if err != nil {
				return nil, err
			}
			ops = append(ops, catalog.AddColumnOp(f))
		case "drop":
			ops = append(ops, catalog.DropColumnOp(strings.TrimSpace(rest)))
		default:
			return nil, fmt.Errorf("%w: unknown alter operation %q", catalog.ErrInvalidArgument, kind)
		}
	}
	return ops, nil
}
