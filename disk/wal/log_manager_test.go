package wal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestLog(t *testing.T, path string) *FileLogManager {
	lm, err := OpenFileLogManager(path, nil)
	require.NoError(t, err)
	return lm
}

func TestFileLogManager_Should_Replay_Appended_Records_After_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ddl.wal")
	lm := openTestLog(t, path)

	for i := 0; i < 10; i++ {
		lsn, err := lm.AppendLog(NewAlterTableLogRecord(1, "t", uint64(i+2), []byte{byte(i)}))
		require.NoError(t, err)
		require.Equal(t, LSN(i+1), lsn)
	}
	require.NoError(t, lm.Close())

	lm = openTestLog(t, path)
	defer lm.Close()
	require.Equal(t, LSN(10), lm.GetFlushedLSN())

	records, err := lm.Records()
	require.NoError(t, err)
	require.Len(t, records, 10)
	for i, lr := range records {
		require.Equal(t, LSN(i+1), lr.Lsn)
		require.Equal(t, uint64(i+2), lr.Version)
		require.Equal(t, []byte{byte(i)}, lr.Payload)
	}

	lsn, err := lm.AppendLog(NewDropTableLogRecord(1, "t"))
	require.NoError(t, err)
	require.Equal(t, LSN(11), lsn)
}

func TestFileLogManager_Should_Checksum_Frames_Of_Every_Length(t *testing.T) {
	for _, serde := range []LogRecordSerDe{NewBinarySerDe(), NewJsonSerDe()} {
		path := filepath.Join(t.TempDir(), "ddl.wal")
		lm, err := OpenFileLogManager(path, &Options{NoSync: true, SerDe: serde})
		require.NoError(t, err)

		// table names of growing length move the frame payload through every tail size of the hash blocks
		n := 33
		for i := 1; i <= n; i++ {
			name := strings.Repeat("x", i)
			if i%2 == 0 {
				_, err = lm.AppendLog(NewDropTableLogRecord(uint32(i), name))
			} else {
				_, err = lm.AppendLog(NewAlterTableLogRecord(uint32(i), name, 2, make([]byte, i)))
			}
			require.NoError(t, err)
		}
		require.NoError(t, lm.Close())

		lm, err = OpenFileLogManager(path, &Options{NoSync: true, SerDe: serde})
		require.NoError(t, err)
		records, err := lm.Records()
		require.NoError(t, err)
		require.Len(t, records, n)
		for i, lr := range records {
			require.Len(t, lr.TableName, i+1)
			require.Equal(t, uint32(i+1), lr.TableID)
		}
		require.NoError(t, lm.Close())
	}
}

func TestFileLogManager_Should_Truncate_Torn_Tail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ddl.wal")
	lm := openTestLog(t, path)
	_, err := lm.AppendLog(NewCreateTableLogRecord(1, "a", 1))
	require.NoError(t, err)
	_, err = lm.AppendLog(NewCreateTableLogRecord(2, "b", 1))
	require.NoError(t, err)
	require.NoError(t, lm.Close())

	stat, err := os.Stat(path)
	require.NoError(t, err)

	// simulate a crash in the middle of writing the second frame
	require.NoError(t, os.Truncate(path, stat.Size()-3))

	lm = openTestLog(t, path)
	records, err := lm.Records()
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "a", records[0].TableName)

	// appends continue from the last intact record
	lsn, err := lm.AppendLog(NewCreateTableLogRecord(2, "b", 1))
	require.NoError(t, err)
	require.Equal(t, LSN(2), lsn)
	require.NoError(t, lm.Close())

	lm = openTestLog(t, path)
	defer lm.Close()
	records, err = lm.Records()
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestFileLogManager_Should_Drop_Frames_With_Bad_Checksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ddl.wal")
	lm := openTestLog(t, path)
	_, err := lm.AppendLog(NewCreateTableLogRecord(1, "a", 1))
	require.NoError(t, err)
	require.NoError(t, lm.Close())

	d, err := os.ReadFile(path)
	require.NoError(t, err)
	d[len(d)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, d, 0640))

	lm = openTestLog(t, path)
	defer lm.Close()
	records, err := lm.Records()
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestFileLogManager_Rewrite_Should_Replace_Log(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ddl.wal")
	lm := openTestLog(t, path)
	for i := 0; i < 5; i++ {
		_, err := lm.AppendLog(NewCreateTableLogRecord(uint32(i+1), "t", 1))
		require.NoError(t, err)
	}

	require.NoError(t, lm.Rewrite([]*LogRecord{NewCheckpointLogRecord(6)}))
	require.Equal(t, LSN(6), lm.GetFlushedLSN())

	_, err := lm.AppendLog(NewDropTableLogRecord(2, "t"))
	require.NoError(t, err)
	require.NoError(t, lm.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file should not be left behind")

	lm = openTestLog(t, path)
	defer lm.Close()
	records, err := lm.Records()
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, TypeCheckpoint, records[0].T)
	require.Equal(t, uint32(6), records[0].NextTableID)
	require.Equal(t, LSN(7), records[1].Lsn)
}

func TestFileLogManager_Should_Fail_After_Close(t *testing.T) {
	lm := openTestLog(t, filepath.Join(t.TempDir(), "ddl.wal"))
	require.NoError(t, lm.Close())
	require.NoError(t, lm.Close())

	_, err := lm.AppendLog(NewCheckpointLogRecord(1))
	require.ErrorIs(t, err, ErrClosed)
}

type stopReplayer struct {
	seen int
}

func (s *stopReplayer) ApplyLogRecord(lr *LogRecord) error {
	s.seen++
	if lr.T == TypeDropTable {
		return os.ErrInvalid
	}
	return nil
}

func TestFileLogManager_Replay_Should_Stop_At_First_Error(t *testing.T) {
	lm := openTestLog(t, filepath.Join(t.TempDir(), "ddl.wal"))
	defer lm.Close()
	_, _ = lm.AppendLog(NewCreateTableLogRecord(1, "a", 1))
	_, _ = lm.AppendLog(NewDropTableLogRecord(1, "a"))
	_, _ = lm.AppendLog(NewCreateTableLogRecord(2, "b", 1))

	r := &stopReplayer{}
	err := lm.Replay(r)
	require.ErrorIs(t, err, os.ErrInvalid)
	require.Equal(t, 2, r.seen)
}
