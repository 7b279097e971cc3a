package wal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/twmb/murmur3"
)

// frameHeaderSize is the size of the [size u32][checksum u32] prefix in front of each serialized record.
const frameHeaderSize = 8

// maxFrameSize bounds a single record so that a corrupt size field cannot make the reader allocate gigabytes.
const maxFrameSize = 64 << 20

var (
	ErrIteratorAtLast = errors.New("log iterator is at its last record")
	ErrShortRead      = errors.New("log ends in the middle of a record")
	ErrCorruptRecord  = errors.New("corrupt log record")
)

type LogIterator interface {
	// Next returns ErrIteratorAtLast when there are no more records. Any other error means the frame at Offset is
	// unreadable and everything after it should be discarded.
	Next() (*LogRecord, error)

	// Offset is the byte position of the next frame that will be read.
	Offset() int64
}

type logIter struct {
	r      io.ReaderAt
	size   int64
	offset int64
	serde  LogRecordSerDe
	header [frameHeaderSize]byte
}

var _ LogIterator = &logIter{}

func newLogIter(r io.ReaderAt, size int64, serde LogRecordSerDe) *logIter {
	return &logIter{r: r, size: size, serde: serde}
}

func (l *logIter) Next() (*LogRecord, error) {
	if l.offset == l.size {
		return nil, ErrIteratorAtLast
	}
	if l.size-l.offset < frameHeaderSize {
		return nil, ErrShortRead
	}

	if _, err := l.r.ReadAt(l.header[:], l.offset); err != nil {
		return nil, fmt.Errorf("reading frame header at %d: %w", l.offset, err)
	}

	size := binary.BigEndian.Uint32(l.header[:4])
	checksum := binary.BigEndian.Uint32(l.header[4:])
	if size == 0 || size > maxFrameSize {
		return nil, fmt.Errorf("%w: frame size %d at %d", ErrCorruptRecord, size, l.offset)
	}
	if l.size-l.offset-frameHeaderSize < int64(size) {
		return nil, ErrShortRead
	}

	payload := make([]byte, size)
	if _, err := l.r.ReadAt(payload, l.offset+frameHeaderSize); err != nil {
		return nil, fmt.Errorf("reading frame at %d: %w", l.offset, err)
	}
	if murmur3.Sum32(payload) != checksum {
		return nil, fmt.Errorf("%w: checksum mismatch at %d", ErrCorruptRecord, l.offset)
	}

	lr := LogRecord{}
	if err := l.serde.Deserialize(payload, &lr); err != nil {
		return nil, err
	}

	l.offset += frameHeaderSize + int64(size)
	return &lr, nil
}

func (l *logIter) Offset() int64 {
	return l.offset
}

// appendFrame frames an already serialized record and appends it to dst.
func appendFrame(dst, payload []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(payload)))
	dst = binary.BigEndian.AppendUint32(dst, murmur3.Sum32(payload))
	return append(dst, payload...)
}
