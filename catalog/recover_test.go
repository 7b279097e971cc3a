package catalog

import (
	"helincat/disk/wal"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecover_Should_Restore_Catalog_After_Reopen(t *testing.T) {
	dir := t.TempDir()
	c, lm := openCatalog(t, dir)
	_, err := c.CreateTable("users", []FieldDescriptor{intField("id"), varcharField("name", 32)})
	require.NoError(t, err)
	require.NoError(t, c.AlterTable("users", []AlterOperation{AddColumnOp(intField("age")), DropColumnOp("name")}))
	_, err = c.CreateTable("orders", []FieldDescriptor{intField("id")})
	require.NoError(t, err)
	want := c.GetTable("users").Descriptor()
	closeCatalog(t, c, lm)

	c, _ = openCatalog(t, dir)
	assert.Equal(t, []string{"orders", "users"}, c.ListTables())
	got := c.GetTable("users").Descriptor()
	assert.Equal(t, want, got)
	assert.Equal(t, uint64(2), got.Version())
	assert.Equal(t, TableOID(3), c.NextTableOID())
}

func TestRecover_Should_Be_Idempotent(t *testing.T) {
	dir := t.TempDir()
	c, lm := openCatalog(t, dir)
	_, err := c.CreateTable("T", []FieldDescriptor{intField("a")})
	require.NoError(t, err)
	require.NoError(t, c.AlterTable("T", []AlterOperation{AddColumnOp(intField("b"))}))
	require.NoError(t, c.AlterTable("T", []AlterOperation{AddColumnOp(intField("c"))}))
	want := c.GetTable("T").Descriptor()
	metaBefore, err := os.ReadFile(filepath.Join(dir, "T.table"))
	require.NoError(t, err)
	closeCatalog(t, c, lm)

	// every alter record in the log is already reflected by the meta file, replaying them twice changes nothing.
	for i := 0; i < 2; i++ {
		c, lm = openCatalog(t, dir)
		assert.Equal(t, want, c.GetTable("T").Descriptor())
		closeCatalog(t, c, lm)
	}

	metaAfter, err := os.ReadFile(filepath.Join(dir, "T.table"))
	require.NoError(t, err)
	assert.Equal(t, metaBefore, metaAfter)
}

func TestRecover_Should_Apply_Alter_Missing_From_Meta(t *testing.T) {
	dir := t.TempDir()
	c, lm := openCatalog(t, dir)
	tbl, err := c.CreateTable("T", []FieldDescriptor{intField("a")})
	require.NoError(t, err)
	oid := tbl.OID()
	closeCatalog(t, c, lm)

	// the record made it to the log but the meta file still has the previous version
	payload, err := encodeAlterOps([]AlterOperation{AddColumnOp(intField("b"))})
	require.NoError(t, err)
	lm = openLog(t, dir)
	_, err = lm.AppendLog(wal.NewAlterTableLogRecord(uint32(oid), "T", 2, payload))
	require.NoError(t, err)
	require.NoError(t, lm.Close())

	c, _ = openCatalog(t, dir)
	d := c.GetTable("T").Descriptor()
	assert.Equal(t, uint64(2), d.Version())
	assert.Equal(t, []string{"a", "b"}, d.FieldNames())

	onDisk, err := c.metas.Read("T.table")
	require.NoError(t, err)
	assert.Equal(t, d, onDisk)
}

func TestRecover_Should_Fail_On_Version_Gap(t *testing.T) {
	dir := t.TempDir()
	c, lm := openCatalog(t, dir)
	tbl, err := c.CreateTable("T", []FieldDescriptor{intField("a")})
	require.NoError(t, err)
	oid := tbl.OID()
	closeCatalog(t, c, lm)

	payload, err := encodeAlterOps([]AlterOperation{AddColumnOp(intField("b"))})
	require.NoError(t, err)
	lm = openLog(t, dir)
	_, err = lm.AppendLog(wal.NewAlterTableLogRecord(uint32(oid), "T", 4, payload))
	require.NoError(t, err)

	c, err = NewDiskCatalog(Options{Dir: dir, Log: lm})
	require.NoError(t, err)
	defer c.Close()
	defer lm.Close()
	require.NoError(t, c.OpenAllTables())

	err = c.Recover()
	require.ErrorIs(t, err, ErrInternal)
	assert.Equal(t, RCInternal, RCOf(err))

	_, err = c.CreateTable("other", []FieldDescriptor{intField("a")})
	require.ErrorIs(t, err, ErrInternal, "ddl is rejected when recovery failed")
}

func TestRecover_Should_Finish_Interrupted_Drop(t *testing.T) {
	dir := t.TempDir()
	c, lm := openCatalog(t, dir)
	tbl, err := c.CreateTable("T", []FieldDescriptor{intField("a")})
	require.NoError(t, err)
	oid := tbl.OID()
	closeCatalog(t, c, lm)

	// crashed right after the drop record was appended
	lm = openLog(t, dir)
	_, err = lm.AppendLog(wal.NewDropTableLogRecord(uint32(oid), "T"))
	require.NoError(t, err)
	require.NoError(t, lm.Close())

	c, _ = openCatalog(t, dir)
	assert.Nil(t, c.GetTable("T"))
	assert.NoFileExists(t, filepath.Join(dir, "T.table"))
	assert.NoFileExists(t, filepath.Join(dir, "T.data"))
}

func TestRecover_Should_Not_Reuse_Ids_Of_Dropped_Tables(t *testing.T) {
	dir := t.TempDir()
	c, lm := openCatalog(t, dir)
	_, err := c.CreateTable("a", []FieldDescriptor{intField("id")})
	require.NoError(t, err)
	_, err = c.CreateTable("b", []FieldDescriptor{intField("id")})
	require.NoError(t, err)
	_, err = c.CreateTable("c", []FieldDescriptor{intField("id")})
	require.NoError(t, err)
	require.NoError(t, c.DropTable("c"))
	require.NoError(t, c.DropTable("b"))
	closeCatalog(t, c, lm)

	c, _ = openCatalog(t, dir)
	assert.Equal(t, []string{"a"}, c.ListTables())
	tbl, err := c.CreateTable("d", []FieldDescriptor{intField("id")})
	require.NoError(t, err)
	assert.Equal(t, TableOID(4), tbl.OID())
}

func TestRecover_Should_Use_Checkpoint_Next_Id(t *testing.T) {
	dir := t.TempDir()
	lm := openLog(t, dir)
	require.NoError(t, lm.Rewrite([]*wal.LogRecord{wal.NewCheckpointLogRecord(42)}))
	require.NoError(t, lm.Close())

	c, _ := openCatalog(t, dir)
	assert.Equal(t, TableOID(42), c.NextTableOID())
}

func TestRecover_Should_Skip_Alters_Of_Dropped_Tables(t *testing.T) {
	dir := t.TempDir()
	c, lm := openCatalog(t, dir)
	_, err := c.CreateTable("T", []FieldDescriptor{intField("a")})
	require.NoError(t, err)
	require.NoError(t, c.AlterTable("T", []AlterOperation{AddColumnOp(intField("b"))}))
	require.NoError(t, c.DropTable("T"))
	_, err = c.CreateTable("T", []FieldDescriptor{intField("x")})
	require.NoError(t, err)
	closeCatalog(t, c, lm)

	c, _ = openCatalog(t, dir)
	d := c.GetTable("T").Descriptor()
	assert.Equal(t, TableOID(2), d.OID())
	assert.Equal(t, []string{"x"}, d.FieldNames())
	assert.Equal(t, uint64(1), d.Version())
}

func TestApplyLogRecord_Should_Be_Rejected_Outside_Recovery(t *testing.T) {
	c := openMemCatalog(t, Options{})
	err := c.ApplyLogRecord(wal.NewCheckpointLogRecord(100))
	require.ErrorIs(t, err, ErrInternal)
	assert.Equal(t, TableOID(1), c.NextTableOID())
}

func TestOpenAllTables_Should_Reject_Duplicate_Names(t *testing.T) {
	dir := t.TempDir()
	c, lm := openCatalog(t, dir)
	_, err := c.CreateTable("x", []FieldDescriptor{intField("a")})
	require.NoError(t, err)
	closeCatalog(t, c, lm)

	// a second meta file that claims to describe x
	data, err := os.ReadFile(filepath.Join(dir, "x.table"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "y.table"), data, 0640))

	c, err = NewDiskCatalog(Options{Dir: dir})
	require.NoError(t, err)
	err = c.OpenAllTables()
	require.ErrorIs(t, err, ErrInternal)
	assert.Empty(t, c.ListTables())
}

func TestOpenAllTables_Should_Reject_Corrupt_Meta(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.table"), []byte("{not json"), 0640))

	c, err := NewDiskCatalog(Options{Dir: dir})
	require.NoError(t, err)
	require.ErrorIs(t, c.OpenAllTables(), ErrInternal)
}

func TestOpenAllTables_Should_Reject_Meta_Without_Data(t *testing.T) {
	dir := t.TempDir()
	c, lm := openCatalog(t, dir)
	_, err := c.CreateTable("T", []FieldDescriptor{intField("a")})
	require.NoError(t, err)
	closeCatalog(t, c, lm)
	require.NoError(t, os.Remove(filepath.Join(dir, "T.data")))

	c, err = NewDiskCatalog(Options{Dir: dir})
	require.NoError(t, err)
	require.ErrorIs(t, c.OpenAllTables(), ErrInternal)
}

func TestOpenAllTables_Should_Remove_Leftover_Temp_Files(t *testing.T) {
	dir := t.TempDir()
	tmp := filepath.Join(dir, ".T.table.0b1c.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("partial"), 0640))

	c, _ := openCatalog(t, dir)
	assert.Empty(t, c.ListTables())
	assert.NoFileExists(t, tmp)
}
