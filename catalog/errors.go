package catalog

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrDuplicateField  = errors.New("duplicate field")
	ErrFieldNotFound   = errors.New("field not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrIO              = errors.New("io error")
	ErrInternal        = errors.New("internal error")
)

// RC is the result code of a catalog operation as seen by the executor layer.
type RC int

const (
	RCSuccess RC = iota
	RCNotFound
	RCAlreadyExists
	RCDuplicateField
	RCFieldNotFound
	RCInvalidArgument
	RCIOError
	RCInternal
)

var rcNames = [...]string{
	RCSuccess:         "SUCCESS",
	RCNotFound:        "NOT_FOUND",
	RCAlreadyExists:   "ALREADY_EXISTS",
	RCDuplicateField:  "DUPLICATE_FIELD",
	RCFieldNotFound:   "FIELD_NOT_FOUND",
	RCInvalidArgument: "INVALID_ARGUMENT",
	RCIOError:         "IOERR",
	RCInternal:        "INTERNAL",
}

func (rc RC) String() string {
	if rc < 0 || int(rc) >= len(rcNames) {
		return fmt.Sprintf("RC(%d)", int(rc))
	}
	return rcNames[rc]
}

// RCOf maps an error returned by the catalog to its result code. Errors that do not wrap one of the sentinels of
// this package are reported as RCInternal.
func RCOf(err error) RC {
	switch {
	case err == nil:
		return RCSuccess
	case errors.Is(err, ErrNotFound):
		return RCNotFound
	case errors.Is(err, ErrAlreadyExists):
		return RCAlreadyExists
	case errors.Is(err, ErrDuplicateField):
		return RCDuplicateField
	case errors.Is(err, ErrFieldNotFound):
		return RCFieldNotFound
	case errors.Is(err, ErrInvalidArgument):
		return RCInvalidArgument
	case errors.Is(err, ErrIO):
		return RCIOError
	default:
		return RCInternal
	}
}

// ioErr wraps a failure of the file system or the log so that it satisfies errors.Is(err, ErrIO) while keeping
// the cause reachable.
func ioErr(err error, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %w", ErrIO, fmt.Sprintf(format, args...), err)
}

func internalErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInternal, fmt.Sprintf(format, args...))
}
