package catalog

import (
	"errors"
	"helincat/catalog/db_types"
	"helincat/common"
	"helincat/disk"
	"helincat/disk/wal"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func intField(name string) FieldDescriptor {
	return NewField(name, db_types.IntegerTypeID, false)
}

func varcharField(name string, n uint32) FieldDescriptor {
	return NewField(name, db_types.CharTypeID(n), false)
}

func openLog(t *testing.T, dir string) *wal.FileLogManager {
	lm, err := wal.OpenFileLogManager(filepath.Join(dir, common.DDLLogFileName), &wal.Options{NoSync: true})
	require.NoError(t, err)
	return lm
}

// openCatalog opens a catalog over dir the way a database start does and registers cleanup for it.
func openCatalog(t *testing.T, dir string) (*DiskCatalog, *wal.FileLogManager) {
	lm := openLog(t, dir)
	c, err := NewDiskCatalog(Options{Dir: dir, Log: lm})
	require.NoError(t, err)
	require.NoError(t, c.OpenAllTables())
	require.NoError(t, c.Recover())

	t.Cleanup(func() {
		_ = c.Close()
		_ = lm.Close()
	})
	return c, lm
}

func closeCatalog(t *testing.T, c *DiskCatalog, lm wal.LogManager) {
	require.NoError(t, c.Close())
	require.NoError(t, lm.Close())
}

func openMemCatalog(t *testing.T, opts Options) *DiskCatalog {
	c, err := NewDiskCatalog(opts)
	require.NoError(t, err)
	require.NoError(t, c.OpenAllTables())
	require.NoError(t, c.Recover())
	t.Cleanup(func() { _ = c.Close() })
	return c
}

var errInjected = errors.New("injected failure")

// failingLog fails appends while fail is set.
type failingLog struct {
	wal.NoopLM
	mu   sync.Mutex
	fail bool
}

func (f *failingLog) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

func (f *failingLog) AppendLog(lr *wal.LogRecord) (wal.LSN, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return wal.ZeroLSN, errInjected
	}
	return f.NoopLM.AppendLog(lr)
}

// failingMetas fails the given number of upcoming writes, after skip successful ones.
type failingMetas struct {
	metaStore
	skip   int
	fail   int
	writes int
}

func (f *failingMetas) Write(d *TableDescriptor) error {
	f.writes++
	if f.skip > 0 {
		f.skip--
		return f.metaStore.Write(d)
	}
	if f.fail > 0 {
		f.fail--
		return errInjected
	}
	return f.metaStore.Write(d)
}

// flakyStorage hands out files whose Sync fails for the listed table names.
type flakyStorage struct {
	disk.Storage
	failSync map[string]bool
	mu       sync.Mutex
	synced   []string
}

type flakyFile struct {
	disk.TableFile
	name string
	s    *flakyStorage
}

func (f *flakyFile) Sync() error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.failSync[f.name] {
		return errInjected
	}
	f.s.synced = append(f.s.synced, f.name)
	return f.TableFile.Sync()
}

func (s *flakyStorage) Create(name string, oid uint32) (disk.TableFile, error) {
	tf, err := s.Storage.Create(name, oid)
	if err != nil {
		return nil, err
	}
	return &flakyFile{TableFile: tf, name: name, s: s}, nil
}
