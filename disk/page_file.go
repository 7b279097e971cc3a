package disk

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
)

const (
	headerMagic   uint32 = 0x484c4354 // "HLCT"
	formatVersion uint16 = 1
)

// blockFile is the minimal file surface a pageFile needs. *os.File satisfies it through osFile, in memory files
// through memFile.
type blockFile interface {
	io.ReaderAt
	io.WriterAt
	Sync() error
	Close() error
	Size() (int64, error)
}

// pageFile lays a table out as fixed size pages. Page 0 is the header page, data pages start from 1.
type pageFile struct {
	file       blockFile
	oid        uint32
	lastPageId uint64
	mu         sync.Mutex
	closed     bool
}

var _ TableFile = &pageFile{}

func createPageFile(f blockFile, oid uint32) (*pageFile, error) {
	p := &pageFile{file: f, oid: oid}
	page := make([]byte, PageSize)
	writeHeader(header{magic: headerMagic, version: formatVersion, oid: oid}, page)
	if _, err := f.WriteAt(page, 0); err != nil {
		return nil, err
	}

	return p, nil
}

func openPageFile(f blockFile, oid uint32) (*pageFile, error) {
	size, err := f.Size()
	if err != nil {
		return nil, err
	}
	if size < int64(PageSize) || size%int64(PageSize) != 0 {
		return nil, fmt.Errorf("%w: file size %d is not a multiple of page size", ErrBadHeader, size)
	}

	page := make([]byte, PageSize)
	if _, err := f.ReadAt(page, 0); err != nil {
		return nil, err
	}

	h := readHeader(page)
	if h.magic != headerMagic || h.version != formatVersion {
		return nil, fmt.Errorf("%w: magic %x version %d", ErrBadHeader, h.magic, h.version)
	}
	if h.oid != oid {
		return nil, fmt.Errorf("%w: file belongs to table %d, expected %d", ErrBadHeader, h.oid, oid)
	}

	return &pageFile{file: f, oid: oid, lastPageId: uint64(size/int64(PageSize)) - 1}, nil
}

func (p *pageFile) ReadPage(pageId uint64) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	if pageId == 0 || pageId > p.lastPageId {
		return nil, fmt.Errorf("%w: %d", ErrPageOutOfRange, pageId)
	}

	data := make([]byte, PageSize)
	n, err := p.file.ReadAt(data, int64(PageSize)*int64(pageId))
	if err != nil && err != io.EOF {
		return nil, err
	}
	if n != PageSize {
		return nil, fmt.Errorf("partial page encountered, page id: %d, read: %d", pageId, n)
	}

	return data, nil
}

func (p *pageFile) WritePage(data []byte, pageId uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if len(data) != PageSize {
		return fmt.Errorf("page must be %d bytes, got %d", PageSize, len(data))
	}
	if pageId == 0 || pageId > p.lastPageId {
		return fmt.Errorf("%w: %d", ErrPageOutOfRange, pageId)
	}

	_, err := p.file.WriteAt(data, int64(PageSize)*int64(pageId))
	return err
}

// NewPage appends a zeroed page and returns its id.
func (p *pageFile) NewPage() (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, ErrClosed
	}

	pageId := p.lastPageId + 1
	if _, err := p.file.WriteAt(make([]byte, PageSize), int64(PageSize)*int64(pageId)); err != nil {
		return 0, err
	}

	p.lastPageId = pageId
	return pageId, nil
}

// NumPages returns the number of data pages, header page excluded.
func (p *pageFile) NumPages() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.lastPageId
}

func (p *pageFile) OID() uint32 {
	return p.oid
}

func (p *pageFile) Sync() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	return p.file.Sync()
}

func (p *pageFile) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if err := p.file.Sync(); err != nil {
		p.file.Close()
		return err
	}
	return p.file.Close()
}

type header struct {
	magic   uint32
	version uint16
	oid     uint32
}

func readHeader(data []byte) header {
	return header{
		magic:   binary.BigEndian.Uint32(data),
		version: binary.BigEndian.Uint16(data[4:]),
		oid:     binary.BigEndian.Uint32(data[6:]),
	}
}

func writeHeader(h header, dest []byte) {
	binary.BigEndian.PutUint32(dest, h.magic)
	binary.BigEndian.PutUint16(dest[4:], h.version)
	binary.BigEndian.PutUint32(dest[6:], h.oid)
}
