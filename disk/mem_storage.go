package disk

import (
	"sync"

	"github.com/dsnet/golib/memfile"
)

// MemStorage keeps table files in memory. Files survive Close and can be reopened until they are destroyed, which
// makes it usable for tests that restart a catalog over the same storage.
type MemStorage struct {
	mu    sync.Mutex
	files map[string]*memfile.File
}

var _ Storage = &MemStorage{}

func NewMemStorage() *MemStorage {
	return &MemStorage{files: map[string]*memfile.File{}}
}

func (s *MemStorage) Create(name string, oid uint32) (TableFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := memfile.New(make([]byte, 0, PageSize))
	p, err := createPageFile(memFile{f}, oid)
	if err != nil {
		return nil, err
	}

	s.files[name] = f
	return p, nil
}

func (s *MemStorage) Open(name string, oid uint32) (TableFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[name]
	if !ok {
		return nil, ErrNotExist
	}

	return openPageFile(memFile{f}, oid)
}

func (s *MemStorage) Destroy(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.files, name)
	return nil
}

// Names returns the names of all files currently held.
func (s *MemStorage) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.files))
	for name := range s.files {
		names = append(names, name)
	}
	return names
}

type memFile struct {
	*memfile.File
}

func (f memFile) Sync() error {
	return nil
}

func (f memFile) Close() error {
	return nil
}

func (f memFile) Size() (int64, error) {
	return int64(len(f.Bytes())), nil
}
