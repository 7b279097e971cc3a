package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"helincat/catalog/db_types"
	"helincat/common"
	"helincat/disk/wal"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

type fieldMeta struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Length   uint32 `json:"length"`
	Offset   uint32 `json:"offset"`
	Nullable bool   `json:"nullable"`
}

func toFieldMeta(f FieldDescriptor) fieldMeta {
	return fieldMeta{
		Name:     f.Name,
		Type:     f.Type.Name(),
		Length:   f.Length(),
		Offset:   f.Offset,
		Nullable: f.Nullable,
	}
}

func (m fieldMeta) toField() (FieldDescriptor, error) {
	typ, err := db_types.ParseType(m.Type, m.Length)
	if err != nil {
		return FieldDescriptor{}, fmt.Errorf("field %s: %w", m.Name, err)
	}
	return FieldDescriptor{Name: m.Name, Type: typ, Offset: m.Offset, Nullable: m.Nullable}, nil
}

// tableMeta is the json document stored in a table's meta file.
type tableMeta struct {
	TableID       uint32      `json:"table_id"`
	TableName     string      `json:"table_name"`
	SchemaVersion uint64      `json:"schema_version"`
	RecordSize    uint32      `json:"record_size"`
	FieldCount    int         `json:"field_count"`
	Fields        []fieldMeta `json:"fields"`
	DroppedFields []fieldMeta `json:"dropped_fields,omitempty"`
}

func encodeMeta(d *TableDescriptor) ([]byte, error) {
	m := tableMeta{
		TableID:       uint32(d.oid),
		TableName:     d.name,
		SchemaVersion: d.version,
		RecordSize:    d.recordSize,
		FieldCount:    len(d.fields),
		Fields:        make([]fieldMeta, len(d.fields)),
	}
	for i, f := range d.fields {
		m.Fields[i] = toFieldMeta(f)
	}
	for _, f := range d.dropped {
		m.DroppedFields = append(m.DroppedFields, toFieldMeta(f))
	}
	return json.MarshalIndent(&m, "", "  ")
}

// decodeMeta parses and validates a meta document. Every problem is reported as ErrInternal since a meta file is
// only ever written by the catalog itself.
func decodeMeta(data []byte) (*TableDescriptor, error) {
	m := tableMeta{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, internalErr("malformed meta file: %v", err)
	}
	if m.TableID == uint32(NullTableOID) || m.TableName == "" || m.SchemaVersion == 0 {
		return nil, internalErr("meta file is missing table identity")
	}
	if m.FieldCount != len(m.Fields) {
		return nil, internalErr("meta of %s declares %d fields but has %d", m.TableName, m.FieldCount, len(m.Fields))
	}

	d := &TableDescriptor{
		oid:        TableOID(m.TableID),
		name:       m.TableName,
		version:    m.SchemaVersion,
		recordSize: m.RecordSize,
		fields:     make([]FieldDescriptor, len(m.Fields)),
	}
	for i, fm := range m.Fields {
		f, err := fm.toField()
		if err != nil {
			return nil, internalErr("meta of %s: %v", m.TableName, err)
		}
		d.fields[i] = f
	}
	for _, fm := range m.DroppedFields {
		f, err := fm.toField()
		if err != nil {
			return nil, internalErr("meta of %s: %v", m.TableName, err)
		}
		d.dropped = append(d.dropped, f)
	}
	if len(d.fields) == 0 {
		return nil, internalErr("meta of %s has no fields", m.TableName)
	}
	if err := d.validate(); err != nil {
		return nil, internalErr("meta of %s: %v", m.TableName, err)
	}
	return d, nil
}

// metaStore persists table descriptors. Write must replace the stored descriptor atomically.
type metaStore interface {
	Write(d *TableDescriptor) error
	Read(file string) (*TableDescriptor, error)
	Remove(table string) error
	// List returns meta file names and leftovers of interrupted writes.
	List() (metas []string, temps []string, err error)
	RemoveTemp(file string) error
}

type dirMetaStore struct {
	dir string
}

var _ metaStore = &dirMetaStore{}

func metaFileName(table string) string {
	return table + common.TableMetaSuffix
}

func (s *dirMetaStore) Write(d *TableDescriptor) error {
	data, err := encodeMeta(d)
	if err != nil {
		return err
	}

	name := metaFileName(d.name)
	tmpPath := filepath.Join(s.dir, fmt.Sprintf(".%s.%s%s", name, uuid.NewString(), common.TempSuffix))
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, common.FilePerms)
	if err != nil {
		return err
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, filepath.Join(s.dir, name)); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return wal.SyncDir(s.dir)
}

func (s *dirMetaStore) Read(file string) (*TableDescriptor, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, file))
	if err != nil {
		return nil, err
	}
	return decodeMeta(data)
}

func (s *dirMetaStore) Remove(table string) error {
	if err := os.Remove(filepath.Join(s.dir, metaFileName(table))); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return wal.SyncDir(s.dir)
}

func (s *dirMetaStore) List() ([]string, []string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, nil, err
	}

	metas, temps := make([]string, 0), make([]string, 0)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		switch {
		case strings.HasPrefix(name, ".") && strings.HasSuffix(name, common.TempSuffix) && strings.Contains(name, common.TableMetaSuffix+"."):
			temps = append(temps, name)
		case !strings.HasPrefix(name, ".") && strings.HasSuffix(name, common.TableMetaSuffix):
			metas = append(metas, name)
		}
	}
	return metas, temps, nil
}

func (s *dirMetaStore) RemoveTemp(file string) error {
	return os.Remove(filepath.Join(s.dir, file))
}

// memMetaStore keeps encoded meta documents in memory. It is used when the database has no directory.
type memMetaStore struct {
	mu    sync.Mutex
	files map[string][]byte
}

var _ metaStore = &memMetaStore{}

func newMemMetaStore() *memMetaStore {
	return &memMetaStore{files: map[string][]byte{}}
}

func (s *memMetaStore) Write(d *TableDescriptor) error {
	data, err := encodeMeta(d)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[metaFileName(d.name)] = data
	return nil
}

func (s *memMetaStore) Read(file string) (*TableDescriptor, error) {
	s.mu.Lock()
	data, ok := s.files[file]
	s.mu.Unlock()
	if !ok {
		return nil, os.ErrNotExist
	}
	return decodeMeta(data)
}

func (s *memMetaStore) Remove(table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, metaFileName(table))
	return nil
}

func (s *memMetaStore) List() ([]string, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	metas := make([]string, 0, len(s.files))
	for name := range s.files {
		metas = append(metas, name)
	}
	sort.Strings(metas)
	return metas, nil, nil
}

func (s *memMetaStore) RemoveTemp(string) error {
	return nil
}
