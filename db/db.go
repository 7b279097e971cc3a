package db

import (
	"errors"
	"fmt"
	"helincat/catalog"
	"helincat/common"
	"helincat/disk"
	"helincat/disk/wal"
	"helincat/metrics"
	"helincat/stmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Options struct {
	// Name of the database. Its files live in Dir/Name.
	Name string

	// Dir must be an existing directory.
	Dir string

	NoSync bool

	// InMemory keeps tables, meta documents and nothing of the log. Dir is ignored.
	InMemory bool

	// SyncInterval is the period of the background sync routine. Zero disables it.
	SyncInterval time.Duration

	SerDe  wal.LogRecordSerDe
	Logger *slog.Logger

	// Metrics defaults to metrics.Default.
	Metrics *metrics.Metrics
}

func DefaultOptions() Options {
	return Options{
		Dir:          ".",
		SyncInterval: 10 * time.Second,
		SerDe:        wal.NewBinarySerDe(),
	}
}

type DB struct {
	name   string
	dir    string
	ctl    *catalog.DiskCatalog
	lm     wal.LogManager
	logger  *slog.Logger
	metrics *metrics.Metrics

	// ddl is held shared by ddl calls and exclusively by Checkpoint, which rewrites the log.
	ddl sync.RWMutex

	syncInterval time.Duration
	syncDone     chan struct{}
	syncStopped  chan struct{}

	closed atomic.Bool
}

func OpenDB(opts Options) (*DB, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return nil, fmt.Errorf("%w: database name is empty", catalog.ErrInvalidArgument)
	}
	if strings.ContainsRune(opts.Name, filepath.Separator) || strings.HasPrefix(opts.Name, ".") {
		return nil, fmt.Errorf("%w: database name %q is not allowed", catalog.ErrInvalidArgument, opts.Name)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("db", opts.Name)

	d := &DB{
		name:         opts.Name,
		logger:       logger,
		metrics:      common.Ternary(opts.Metrics == nil, metrics.Default, opts.Metrics),
		syncInterval: opts.SyncInterval,
	}

	catalogOpts := catalog.Options{Logger: logger, Metrics: d.metrics}
	if opts.InMemory {
		d.lm = &wal.NoopLM{}
		catalogOpts.Storage = disk.NewMemStorage()
	} else {
		stat, err := os.Stat(opts.Dir)
		if err != nil || !stat.IsDir() {
			return nil, fmt.Errorf("%w: %s is not a directory", catalog.ErrInternal, opts.Dir)
		}

		d.dir = filepath.Join(opts.Dir, opts.Name)
		if err := os.MkdirAll(d.dir, common.DirPerms); err != nil {
			return nil, fmt.Errorf("%w: create database dir: %w", catalog.ErrIO, err)
		}

		lm, err := wal.OpenFileLogManager(filepath.Join(d.dir, common.DDLLogFileName), &wal.Options{
			NoSync: opts.NoSync,
			SerDe:  opts.SerDe,
			Logger: logger,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: open recovery log: %w", catalog.ErrIO, err)
		}
		d.lm = lm
		catalogOpts.Dir = d.dir
		catalogOpts.Storage = disk.NewFileStorage(d.dir)
	}
	catalogOpts.Log = d.lm

	ctl, err := catalog.NewDiskCatalog(catalogOpts)
	if err != nil {
		_ = d.lm.Close()
		return nil, err
	}
	if err := ctl.OpenAllTables(); err != nil {
		_ = d.lm.Close()
		return nil, err
	}
	if err := ctl.Recover(); err != nil {
		_ = ctl.Close()
		_ = d.lm.Close()
		return nil, err
	}
	d.ctl = ctl

	if d.syncInterval > 0 {
		d.startSyncRoutine()
	}

	logger.Info("opened database", "dir", d.dir, "tables", len(ctl.ListTables()))
	return d, nil
}

func (d *DB) startSyncRoutine() {
	d.syncDone = make(chan struct{})
	d.syncStopped = make(chan struct{})

	go func() {
		defer close(d.syncStopped)
		ticker := time.NewTicker(d.syncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := d.ctl.Sync(); err != nil {
					d.logger.Warn("periodic sync failed", "err", err)
				}
			case <-d.syncDone:
				d.logger.Debug("stopped sync routine")
				return
			}
		}
	}()
}

func (d *DB) Name() string {
	return d.name
}

// Dir is the directory of the database files, empty for in memory databases.
func (d *DB) Dir() string {
	return d.dir
}

// Catalog gives read access to the tables. Ddl should go through the methods of DB so it is not interleaved with
// a checkpoint.
func (d *DB) Catalog() catalog.Catalog {
	return d.ctl
}

func (d *DB) checkOpen() error {
	if d.closed.Load() {
		return fmt.Errorf("%w: database %s is closed", catalog.ErrInternal, d.name)
	}
	return nil
}

func (d *DB) CreateTable(name string, fields []catalog.FieldDescriptor) (*catalog.Table, error) {
	d.ddl.RLock()
	defer d.ddl.RUnlock()
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	return d.ctl.CreateTable(name, fields)
}

func (d *DB) DropTable(name string) error {
	d.ddl.RLock()
	defer d.ddl.RUnlock()
	if err := d.checkOpen(); err != nil {
		return err
	}
	return d.ctl.DropTable(name)
}

func (d *DB) AlterTable(name string, ops []catalog.AlterOperation) error {
	d.ddl.RLock()
	defer d.ddl.RUnlock()
	if err := d.checkOpen(); err != nil {
		return err
	}
	return d.ctl.AlterTable(name, ops)
}

// Execute runs a ddl statement. The result code of the call is catalog.RCOf of the returned error.
func (d *DB) Execute(s stmt.Statement) error {
	switch s := s.(type) {
	case *stmt.CreateTableStmt:
		fields, err := s.Fields()
		if err != nil {
			return err
		}
		_, err = d.CreateTable(s.Table, fields)
		return err
	case *stmt.DropTableStmt:
		return d.DropTable(s.Table)
	case *stmt.AlterStmt:
		return d.AlterTable(s.Table, s.Ops)
	default:
		return fmt.Errorf("%w: unsupported statement %T", catalog.ErrInvalidArgument, s)
	}
}

func (d *DB) Sync() error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	return d.ctl.Sync()
}

// Checkpoint flushes all tables and compacts the recovery log to a single record that keeps table ids from being
// reused. All ddl is blocked while it runs.
func (d *DB) Checkpoint() error {
	d.ddl.Lock()
	defer d.ddl.Unlock()
	if err := d.checkOpen(); err != nil {
		return err
	}

	if err := d.ctl.Sync(); err != nil {
		return err
	}

	next := d.ctl.NextTableOID()
	if err := d.lm.Rewrite([]*wal.LogRecord{wal.NewCheckpointLogRecord(uint32(next))}); err != nil {
		return fmt.Errorf("%w: rewrite recovery log: %w", catalog.ErrIO, err)
	}

	d.metrics.Checkpoints.Inc()
	d.logger.Info("checkpoint taken", "next_table_id", next, "lsn", d.lm.GetFlushedLSN())
	return nil
}

// LogRecords returns the content of the recovery log.
func (d *DB) LogRecords() ([]*wal.LogRecord, error) {
	d.ddl.RLock()
	defer d.ddl.RUnlock()
	return d.lm.Records()
}

func (d *DB) Close() error {
	if d.closed.Swap(true) {
		return nil
	}

	// stop sync routine and wait for it to stop
	if d.syncDone != nil {
		close(d.syncDone)
		<-d.syncStopped
	}

	// wait for in flight ddl
	d.ddl.Lock()
	defer d.ddl.Unlock()

	var errs []error
	if err := d.ctl.Sync(); err != nil {
		errs = append(errs, err)
	}
	if err := d.ctl.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := d.lm.Close(); err != nil {
		errs = append(errs, fmt.Errorf("%w: close recovery log: %w", catalog.ErrIO, err))
	}

	d.logger.Info("closed database")
	return errors.Join(errs...)
}
