package disk

import (
	"errors"
	"helincat/common"
	"os"
	"path/filepath"
)

// FileStorage keeps each table in <dir>/<table>.data.
type FileStorage struct {
	dir string
}

var _ Storage = &FileStorage{}

func NewFileStorage(dir string) *FileStorage {
	return &FileStorage{dir: dir}
}

func (s *FileStorage) path(name string) string {
	return filepath.Join(s.dir, name+common.TableDataSuffix)
}

func (s *FileStorage) Create(name string, oid uint32) (TableFile, error) {
	f, err := os.OpenFile(s.path(name), os.O_CREATE|os.O_RDWR|os.O_TRUNC, common.FilePerms)
	if err != nil {
		return nil, err
	}

	p, err := createPageFile(osFile{f}, oid)
	if err != nil {
		f.Close()
		return nil, err
	}

	return p, nil
}

func (s *FileStorage) Open(name string, oid uint32) (TableFile, error) {
	f, err := os.OpenFile(s.path(name), os.O_RDWR, common.FilePerms)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotExist
		}
		return nil, err
	}

	p, err := openPageFile(osFile{f}, oid)
	if err != nil {
		f.Close()
		return nil, err
	}

	return p, nil
}

func (s *FileStorage) Destroy(name string) error {
	if err := os.Remove(s.path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

type osFile struct {
	*os.File
}

func (f osFile) Size() (int64, error) {
	stat, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return stat.Size(), nil
}
