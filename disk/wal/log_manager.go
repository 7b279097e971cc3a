package wal

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

var ErrClosed = errors.New("log manager is closed")

type Replayer interface {
	ApplyLogRecord(lr *LogRecord) error
}

// LogManager is the recovery log of ddl operations. AppendLog returns only after the record is durable unless the
// log is opened with NoSync.
type LogManager interface {
	AppendLog(lr *LogRecord) (LSN, error)
	// Replay feeds every record in the log to r in append order and stops at the first error r returns.
	Replay(r Replayer) error
	// Rewrite atomically replaces the whole log with records. It is used to compact the log at checkpoints.
	Rewrite(records []*LogRecord) error
	Records() ([]*LogRecord, error)
	GetFlushedLSN() LSN
	Flush() error
	Close() error
}

type Options struct {
	// NoSync skips the fsync after each append. Records survive a process crash but not an os crash.
	NoSync    bool
	SerDe     LogRecordSerDe
	FilePerms os.FileMode
	Logger    *slog.Logger
}

var DefaultOptions = Options{
	NoSync:    false,
	SerDe:     &BinarySerDe{},
	FilePerms: 0640,
}

// FileLogManager keeps the log in a single append only file. Every record is framed with its size and checksum
// so that a torn write at the tail can be detected and cut off when the log is opened again.
type FileLogManager struct {
	mu      sync.Mutex
	path    string
	f       *os.File
	size    int64
	lastLsn LSN
	opts    Options
	logger  *slog.Logger
	buf     []byte
	closed  bool
}

var _ LogManager = &FileLogManager{}

func OpenFileLogManager(path string, opts *Options) (*FileLogManager, error) {
	o := DefaultOptions
	if opts != nil {
		o = *opts
	}
	if o.SerDe == nil {
		o.SerDe = DefaultOptions.SerDe
	}
	if o.FilePerms == 0 {
		o.FilePerms = DefaultOptions.FilePerms
	}
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, o.FilePerms)
	if err != nil {
		return nil, err
	}

	l := &FileLogManager{
		path:   path,
		f:      f,
		opts:   o,
		logger: logger.With("component", "ddl_log"),
	}
	if err := l.repair(); err != nil {
		_ = f.Close()
		return nil, err
	}

	return l, nil
}

// repair scans the log, remembers the last lsn and truncates everything after the last intact frame.
func (l *FileLogManager) repair() error {
	stat, err := l.f.Stat()
	if err != nil {
		return err
	}

	it := newLogIter(l.f, stat.Size(), l.opts.SerDe)
	for {
		lr, err := it.Next()
		if err == ErrIteratorAtLast {
			break
		}
		if err != nil {
			l.logger.Warn("truncating log tail", "path", l.path, "offset", it.Offset(), "dropped_bytes", stat.Size()-it.Offset(), "reason", err)
			if err := l.f.Truncate(it.Offset()); err != nil {
				return err
			}
			if err := l.f.Sync(); err != nil {
				return err
			}
			break
		}
		l.lastLsn = lr.Lsn
	}

	l.size = it.Offset()
	return nil
}

func (l *FileLogManager) AppendLog(lr *LogRecord) (LSN, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ZeroLSN, ErrClosed
	}

	lr.Lsn = l.lastLsn + 1
	payload, err := l.opts.SerDe.Serialize(lr)
	if err != nil {
		lr.Lsn = ZeroLSN
		return ZeroLSN, err
	}

	l.buf = appendFrame(l.buf[:0], payload)
	if _, err := l.f.WriteAt(l.buf, l.size); err != nil {
		// a partial frame may be on disk; cut it so the next append starts on a frame boundary.
		_ = l.f.Truncate(l.size)
		lr.Lsn = ZeroLSN
		return ZeroLSN, err
	}
	if !l.opts.NoSync {
		if err := l.f.Sync(); err != nil {
			_ = l.f.Truncate(l.size)
			lr.Lsn = ZeroLSN
			return ZeroLSN, err
		}
	}

	l.size += int64(len(l.buf))
	l.lastLsn = lr.Lsn
	return lr.Lsn, nil
}

func (l *FileLogManager) Replay(r Replayer) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}

	it := newLogIter(l.f, l.size, l.opts.SerDe)
	for {
		lr, err := it.Next()
		if err == ErrIteratorAtLast {
			return nil
		}
		if err != nil {
			return err
		}
		if err := r.ApplyLogRecord(lr); err != nil {
			return fmt.Errorf("replaying lsn %d: %w", lr.Lsn, err)
		}
	}
}

func (l *FileLogManager) Records() ([]*LogRecord, error) {
	res := make([]*LogRecord, 0)
	err := l.Replay(replayerFunc(func(lr *LogRecord) error {
		res = append(res, lr)
		return nil
	}))
	return res, err
}

func (l *FileLogManager) Rewrite(records []*LogRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}

	dir := filepath.Dir(l.path)
	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(l.path), uuid.NewString()))
	tmp, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, l.opts.FilePerms)
	if err != nil {
		return err
	}
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	lsn := l.lastLsn
	var buf []byte
	for _, lr := range records {
		lsn++
		lr.Lsn = lsn
		payload, err := l.opts.SerDe.Serialize(lr)
		if err != nil {
			cleanup()
			return err
		}
		buf = appendFrame(buf, payload)
	}

	if _, err := tmp.Write(buf); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		cleanup()
		return err
	}
	if err := SyncDir(dir); err != nil {
		l.logger.Warn("could not sync log directory after rewrite", "dir", dir, "err", err)
	}

	_ = l.f.Close()
	l.f = tmp
	l.size = int64(len(buf))
	l.lastLsn = lsn
	return nil
}

func (l *FileLogManager) GetFlushedLSN() LSN {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastLsn
}

func (l *FileLogManager) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	return l.f.Sync()
}

func (l *FileLogManager) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if err := l.f.Sync(); err != nil {
		_ = l.f.Close()
		return err
	}
	return l.f.Close()
}

type replayerFunc func(lr *LogRecord) error

func (f replayerFunc) ApplyLogRecord(lr *LogRecord) error {
	return f(lr)
}

// SyncDir fsyncs a directory so that a rename or create inside it is durable.
func SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
