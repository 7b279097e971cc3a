package catalog

import (
	"helincat/catalog/db_types"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDescriptor(t *testing.T) *TableDescriptor {
	d, err := NewTableDescriptor(3, "people", []FieldDescriptor{
		intField("id"),
		varcharField("name", 20),
		NewField("code", db_types.FixedLenCharTypeID(2), true),
		NewField("score", db_types.FloatTypeID, false),
	})
	require.NoError(t, err)
	d, err = d.Apply([]AlterOperation{DropColumnOp("name"), AddColumnOp(NewField("active", db_types.BoolTypeID, false))})
	require.NoError(t, err)
	return d
}

func TestMeta_Should_Round_Trip(t *testing.T) {
	d := sampleDescriptor(t)
	store := &dirMetaStore{dir: t.TempDir()}
	require.NoError(t, store.Write(d))

	got, err := store.Read("people.table")
	require.NoError(t, err)
	assert.Equal(t, d, got)
	assert.Equal(t, d.Fields(), got.Fields())
	assert.Equal(t, uint64(2), got.Version())
}

func TestMeta_Write_Should_Replace_Atomically(t *testing.T) {
	dir := t.TempDir()
	store := &dirMetaStore{dir: dir}
	d := sampleDescriptor(t)
	require.NoError(t, store.Write(d))

	nd, err := d.Apply([]AlterOperation{AddColumnOp(intField("x"))})
	require.NoError(t, err)
	require.NoError(t, store.Write(nd))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "people.table", entries[0].Name())

	got, err := store.Read("people.table")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), got.Version())
}

func TestMeta_Document_Layout(t *testing.T) {
	data, err := encodeMeta(sampleDescriptor(t))
	require.NoError(t, err)

	for _, key := range []string{`"table_id": 3`, `"table_name": "people"`, `"schema_version": 2`, `"record_size"`, `"field_count": 4`, `"dropped_fields"`, `"nullable": true`} {
		assert.True(t, strings.Contains(string(data), key), key)
	}
}

func TestDecodeMeta_Should_Reject_Inconsistent_Documents(t *testing.T) {
	cases := map[string]string{
		"not json":       `{`,
		"no identity":    `{"fields":[{"name":"a","type":"int","length":4}],"field_count":1,"record_size":4}`,
		"count mismatch": `{"table_id":1,"table_name":"t","schema_version":1,"record_size":4,"field_count":2,"fields":[{"name":"a","type":"int","length":4}]}`,
		"unknown type":   `{"table_id":1,"table_name":"t","schema_version":1,"record_size":4,"field_count":1,"fields":[{"name":"a","type":"blob","length":4}]}`,
		"duplicate name": `{"table_id":1,"table_name":"t","schema_version":1,"record_size":8,"field_count":2,"fields":[{"name":"a","type":"int","length":4},{"name":"a","type":"int","length":4,"offset":4}]}`,
		"overflow":       `{"table_id":1,"table_name":"t","schema_version":1,"record_size":4,"field_count":1,"fields":[{"name":"a","type":"int","length":4,"offset":2}]}`,
		"no fields":      `{"table_id":1,"table_name":"t","schema_version":1,"record_size":0,"field_count":0,"fields":[]}`,
	}
	for name, doc := range cases {
		_, err := decodeMeta([]byte(doc))
		assert.ErrorIs(t, err, ErrInternal, name)
	}
}

func TestDirMetaStore_List_And_Remove(t *testing.T) {
	dir := t.TempDir()
	store := &dirMetaStore{dir: dir}
	d := sampleDescriptor(t)
	require.NoError(t, store.Write(d))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".people.table.abc.tmp"), nil, 0640))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "people.data"), nil, 0640))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.table"), 0750))

	metas, temps, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"people.table"}, metas)
	assert.Equal(t, []string{".people.table.abc.tmp"}, temps)

	require.NoError(t, store.Remove("people"))
	require.NoError(t, store.Remove("people"), "removing a missing meta is not an error")
	assert.NoFileExists(t, filepath.Join(dir, "people.table"))
}

func TestMemMetaStore(t *testing.T) {
	store := newMemMetaStore()
	d := sampleDescriptor(t)
	require.NoError(t, store.Write(d))

	metas, temps, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"people.table"}, metas)
	assert.Empty(t, temps)

	got, err := store.Read("people.table")
	require.NoError(t, err)
	assert.Equal(t, d, got)

	require.NoError(t, store.Remove("people"))
	_, err = store.Read("people.table")
	assert.ErrorIs(t, err, os.ErrNotExist)
}
