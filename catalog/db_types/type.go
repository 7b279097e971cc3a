package db_types

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownType = errors.New("unknown type")
var ErrBadLength = errors.New("invalid type length")

const (
	InvalidKind uint8 = iota
	IntegerKind
	CharKind
	FixedLenCharKind
	FloatKind
	BoolKind
)

// MaxCharLength is the largest length accepted for char and varchar columns.
const MaxCharLength = 4096

// TypeID identifies a column type. Size is the number of bytes the type occupies in the fixed-length region of a
// row, for char like types it is the declared length.
type TypeID struct {
	KindID uint8
	Size   uint32
}

var (
	IntegerTypeID = TypeID{KindID: IntegerKind, Size: 4}
	FloatTypeID   = TypeID{KindID: FloatKind, Size: 8}
	BoolTypeID    = TypeID{KindID: BoolKind, Size: 1}
)

// CharTypeID returns a varchar type that can hold up to n bytes. It is stored inline with a fixed width of n.
func CharTypeID(n uint32) TypeID {
	return TypeID{KindID: CharKind, Size: n}
}

func FixedLenCharTypeID(n uint32) TypeID {
	return TypeID{KindID: FixedLenCharKind, Size: n}
}

var kindNames = map[uint8]string{
	IntegerKind:      "int",
	CharKind:         "varchar",
	FixedLenCharKind: "char",
	FloatKind:        "float",
	BoolKind:         "bool",
}

var kindAliases = map[string]uint8{
	"int":     IntegerKind,
	"integer": IntegerKind,
	"varchar": CharKind,
	"text":    CharKind,
	"char":    FixedLenCharKind,
	"float":   FloatKind,
	"double":  FloatKind,
	"bool":    BoolKind,
	"boolean": BoolKind,
}

// ParseType resolves a type tag and a declared length into a TypeID. Length may be zero for the types whose width
// is implied by the kind; if it is given it has to match.
func ParseType(name string, length uint32) (TypeID, error) {
	kind, ok := kindAliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return TypeID{}, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}

	switch kind {
	case CharKind, FixedLenCharKind:
		if length == 0 || length > MaxCharLength {
			return TypeID{}, fmt.Errorf("%w: %s(%d), must be in [1, %d]", ErrBadLength, kindNames[kind], length, MaxCharLength)
		}
		return TypeID{KindID: kind, Size: length}, nil
	}

	t := fixedWidth(kind)
	if length != 0 && length != t.Size {
		return TypeID{}, fmt.Errorf("%w: %s has fixed length %d, got %d", ErrBadLength, kindNames[kind], t.Size, length)
	}
	return t, nil
}

func fixedWidth(kind uint8) TypeID {
	switch kind {
	case IntegerKind:
		return IntegerTypeID
	case FloatKind:
		return FloatTypeID
	case BoolKind:
		return BoolTypeID
	default:
		return TypeID{}
	}
}

// Valid reports whether t is a known kind with a size that is legal for it.
func (t TypeID) Valid() bool {
	_, err := ParseType(t.Name(), t.Size)
	return t.KindID != InvalidKind && err == nil
}

// Length is the number of bytes a value of this type occupies in a row.
func (t TypeID) Length() uint32 {
	return t.Size
}

// Name returns the type tag without length, e.g. "varchar".
func (t TypeID) Name() string {
	if n, ok := kindNames[t.KindID]; ok {
		return n
	}
	return "invalid"
}

func (t TypeID) String() string {
	switch t.KindID {
	case CharKind, FixedLenCharKind:
		return fmt.Sprintf("%s(%d)", t.Name(), t.Size)
	default:
		return t.Name()
	}
}
