package catalog

import (
	"errors"
	"fmt"
	"helincat/common"
	"helincat/disk"
	"helincat/disk/wal"
	"helincat/metrics"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/sync/errgroup"
)

type Catalog interface {
	CreateTable(name string, fields []FieldDescriptor) (*Table, error)
	DropTable(name string) error
	AlterTable(name string, ops []AlterOperation) error
	GetTable(name string) *Table
	GetTableByOID(oid TableOID) *Table
	ListTables() []string
	Sync() error
}

type Options struct {
	// Dir holds the table meta files. When empty, meta documents are kept in memory.
	Dir string

	// Storage materializes table files. Defaults to a FileStorage on Dir, or a MemStorage when Dir is empty.
	Storage disk.Storage

	// Log is the recovery log ddl records are appended to. Defaults to a log that discards everything.
	Log wal.LogManager

	Logger *slog.Logger

	// SyncParallelism bounds the number of table files synced at the same time. Zero means no limit.
	SyncParallelism int

	// Metrics receives ddl, replay and sync counters. Defaults to metrics.Default.
	Metrics *metrics.Metrics
}

const (
	stateNew int32 = iota
	stateOpened
	stateRecovering
	stateReady
	stateClosed
)

var _ Catalog = &DiskCatalog{}

// DiskCatalog is the registry of open tables of one database. The catalog-wide lock guards only the name map,
// every I/O step of a ddl call runs under the per-name or per-table locks.
type DiskCatalog struct {
	mu     sync.RWMutex
	tables map[string]*Table

	// nameLocks serializes create and drop calls on the same name.
	nameLocks *common.KeyMutex[string]

	nextOID atomic.Uint32
	state   atomic.Int32

	metas   metaStore
	storage disk.Storage
	log     wal.LogManager
	logger  *slog.Logger
	metrics *metrics.Metrics
	opts    Options
}

func NewDiskCatalog(opts Options) (*DiskCatalog, error) {
	c := &DiskCatalog{
		tables:    map[string]*Table{},
		nameLocks: common.NewKeyMutex[string](),
		storage:   opts.Storage,
		log:       opts.Log,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		opts:      opts,
	}
	c.nextOID.Store(1)

	if opts.Dir != "" {
		stat, err := os.Stat(opts.Dir)
		if err != nil {
			return nil, ioErr(err, "catalog dir %s", opts.Dir)
		}
		if !stat.IsDir() {
			return nil, internalErr("%s is not a directory", opts.Dir)
		}
		c.metas = &dirMetaStore{dir: opts.Dir}
	} else {
		c.metas = newMemMetaStore()
	}

	if c.storage == nil {
		c.storage = common.Ternary[disk.Storage](opts.Dir == "", disk.NewMemStorage(), disk.NewFileStorage(opts.Dir))
	}
	if c.log == nil {
		c.log = &wal.NoopLM{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.metrics == nil {
		c.metrics = metrics.Default
	}
	c.logger = c.logger.With("component", "catalog")

	return c, nil
}

func (c *DiskCatalog) checkReady() error {
	switch c.state.Load() {
	case stateReady:
		return nil
	case stateClosed:
		return internalErr("catalog is closed")
	default:
		return internalErr("catalog is not recovered yet")
	}
}

func validateTableName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: table name is empty", ErrInvalidArgument)
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, filepath.Separator) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: table name %q is not allowed", ErrInvalidArgument, name)
	}
	return nil
}

func (c *DiskCatalog) CreateTable(name string, fields []FieldDescriptor) (t *Table, err error) {
	defer func() { c.metrics.DDLTotal.WithLabelValues("create", RCOf(err).String()).Inc() }()

	if err := c.checkReady(); err != nil {
		return nil, err
	}
	if err := validateTableName(name); err != nil {
		return nil, err
	}

	release := c.nameLocks.Lock(name)
	defer release()

	if c.GetTable(name) != nil {
		return nil, fmt.Errorf("%w: table %s", ErrAlreadyExists, name)
	}

	// ids are taken before anything can fail so that a failed create never hands out an id twice.
	oid := TableOID(c.nextOID.Add(1) - 1)
	desc, err := NewTableDescriptor(oid, name, fields)
	if err != nil {
		return nil, err
	}

	logger := c.logger.With("table", name, "oid", oid)

	file, err := c.storage.Create(name, uint32(oid))
	if err != nil {
		return nil, ioErr(err, "create storage of %s", name)
	}
	undoFile := func() {
		_ = file.Close()
		if err := c.storage.Destroy(name); err != nil {
			logger.Warn("could not remove table file of failed create", "err", err)
		}
	}

	if err := c.metas.Write(desc); err != nil {
		undoFile()
		logger.Error("could not persist table meta", "err", err)
		return nil, ioErr(err, "write meta of %s", name)
	}

	if _, err := c.log.AppendLog(wal.NewCreateTableLogRecord(uint32(oid), name, desc.Version())); err != nil {
		if rerr := c.metas.Remove(name); rerr != nil {
			logger.Warn("could not remove meta of failed create", "err", rerr)
		}
		undoFile()
		logger.Error("could not append create record", "err", err)
		return nil, ioErr(err, "log create of %s", name)
	}

	t = newTable(desc, file)
	if err := c.register(t); err != nil {
		return nil, err
	}

	logger.Info("created table", "fields", desc.FieldNames())
	return t, nil
}

func (c *DiskCatalog) register(t *Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.tables[t.name]; ok {
		return internalErr("table %s is registered twice", t.name)
	}
	for _, other := range c.tables {
		if other.oid == t.oid {
			return internalErr("table id %d of %s is already used by %s", t.oid, t.name, other.name)
		}
	}
	c.tables[t.name] = t
	c.metrics.OpenTables.Inc()
	return nil
}

func (c *DiskCatalog) unregister(t *Table) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tables[t.name] == t {
		delete(c.tables, t.name)
		c.metrics.OpenTables.Dec()
	}
}

func (c *DiskCatalog) DropTable(name string) (err error) {
	defer func() { c.metrics.DDLTotal.WithLabelValues("drop", RCOf(err).String()).Inc() }()

	if err := c.checkReady(); err != nil {
		return err
	}

	release := c.nameLocks.Lock(name)
	defer release()

	t := c.GetTable(name)
	if t == nil {
		return fmt.Errorf("%w: table %s", ErrNotFound, name)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dropped {
		return fmt.Errorf("%w: table %s", ErrNotFound, name)
	}

	if _, err := c.log.AppendLog(wal.NewDropTableLogRecord(uint32(t.oid), name)); err != nil {
		c.logger.Error("could not append drop record", "table", name, "err", err)
		return ioErr(err, "log drop of %s", name)
	}

	if err := c.destroy(t); err != nil {
		return err
	}

	c.logger.Info("dropped table", "table", name, "oid", t.oid)
	return nil
}

// destroy unregisters t and removes its files. Caller must hold t.mu. The drop is already durable in the log when
// this is called, a failure here is repaired by replaying the drop record on the next start.
func (c *DiskCatalog) destroy(t *Table) error {
	c.unregister(t)
	t.dropped = true

	if err := t.file.Close(); err != nil {
		c.logger.Warn("could not close table file", "table", t.name, "err", err)
	}
	if err := c.metas.Remove(t.name); err != nil {
		c.logger.Error("could not remove table meta", "table", t.name, "err", err)
		return ioErr(err, "remove meta of %s", t.name)
	}
	if err := c.storage.Destroy(t.name); err != nil {
		c.logger.Warn("could not remove table file", "table", t.name, "err", err)
	}
	return nil
}

func (c *DiskCatalog) AlterTable(name string, ops []AlterOperation) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.DDLTotal.WithLabelValues("alter", RCOf(err).String()).Inc()
		c.metrics.AlterDuration.Observe(time.Since(start).Seconds())
	}()

	if err := c.checkReady(); err != nil {
		return err
	}

	t := c.GetTable(name)
	if t == nil {
		return fmt.Errorf("%w: table %s", ErrNotFound, name)
	}

	if len(ops) == 0 {
		return fmt.Errorf("%w: empty alter operation list", ErrInvalidArgument)
	}
	for i, op := range ops {
		if err := op.Validate(); err != nil {
			return fmt.Errorf("operation %d: %w", i, err)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dropped {
		return fmt.Errorf("%w: table %s", ErrNotFound, name)
	}

	old := t.Descriptor()
	nd, err := old.Apply(ops)
	if err != nil {
		return err
	}

	payload, err := encodeAlterOps(ops)
	if err != nil {
		return err
	}

	logger := c.logger.With("table", name, "version", nd.Version())
	if err := c.metas.Write(nd); err != nil {
		logger.Error("could not persist table meta", "err", err)
		return ioErr(err, "write meta of %s", name)
	}

	if _, err := c.log.AppendLog(wal.NewAlterTableLogRecord(uint32(t.oid), name, nd.Version(), payload)); err != nil {
		logger.Error("could not append alter record", "err", err)
		if rerr := c.metas.Write(old); rerr != nil {
			// the new schema is the durable one now, memory has to agree with it.
			logger.Error("could not restore previous table meta", "err", rerr)
			t.swap(nd)
		}
		return ioErr(err, "log alter of %s", name)
	}

	t.swap(nd)
	logger.Info("altered table", "ops", len(ops), "fields", nd.FieldNames())
	return nil
}

func (c *DiskCatalog) GetTable(name string) *Table {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tables[name]
}

func (c *DiskCatalog) GetTableByOID(oid TableOID) *Table {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, t := range c.tables {
		if t.oid == oid {
			return t
		}
	}
	return nil
}

func (c *DiskCatalog) ListTables() []string {
	c.mu.RLock()
	res := make([]string, 0, len(c.tables))
	for name := range c.tables {
		res = append(res, name)
	}
	c.mu.RUnlock()

	sort.Strings(res)
	return res
}

// NextTableOID is the id the next created table will get.
func (c *DiskCatalog) NextTableOID() TableOID {
	return TableOID(c.nextOID.Load())
}

func (c *DiskCatalog) raiseNextOID(atLeast uint32) {
	for {
		cur := c.nextOID.Load()
		if cur >= atLeast || c.nextOID.CompareAndSwap(cur, atLeast) {
			return
		}
	}
}

func (c *DiskCatalog) snapshot() []*Table {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res := make([]*Table, 0, len(c.tables))
	for _, t := range c.tables {
		res = append(res, t)
	}
	return res
}

// Sync flushes every table file. It keeps going after a failure and returns the first one.
func (c *DiskCatalog) Sync() error {
	g := errgroup.Group{}
	if c.opts.SyncParallelism > 0 {
		g.SetLimit(c.opts.SyncParallelism)
	}

	for _, t := range c.snapshot() {
		t := t
		g.Go(func() error {
			if err := t.file.Sync(); err != nil {
				if errors.Is(err, disk.ErrClosed) {
					// dropped after the snapshot was taken
					return nil
				}
				c.metrics.SyncFailures.Inc()
				c.logger.Warn("could not sync table", "table", t.name, "err", err)
				return ioErr(err, "sync %s", t.name)
			}
			return nil
		})
	}

	err := g.Wait()
	if ferr := c.log.Flush(); ferr != nil && err == nil {
		err = ioErr(ferr, "flush recovery log")
	}
	return err
}

// OpenAllTables loads every meta file in the catalog directory and opens the table files. It must be called once,
// before Recover.
func (c *DiskCatalog) OpenAllTables() error {
	if !c.state.CompareAndSwap(stateNew, stateOpened) {
		return internalErr("tables are already opened")
	}

	files, temps, err := c.metas.List()
	if err != nil {
		c.state.Store(stateNew)
		return ioErr(err, "list meta files")
	}

	for _, tmp := range temps {
		if err := c.metas.RemoveTemp(tmp); err != nil {
			c.logger.Warn("could not remove leftover temp meta file", "file", tmp, "err", err)
		}
	}

	opened := make([]*Table, 0, len(files))
	fail := func(err error) error {
		for _, t := range opened {
			_ = t.file.Close()
		}
		c.state.Store(stateNew)
		return err
	}

	names := mapset.NewThreadUnsafeSet[string]()
	oids := mapset.NewThreadUnsafeSet[TableOID]()
	var maxOID TableOID
	for _, file := range files {
		desc, err := c.metas.Read(file)
		if err != nil {
			if errors.Is(err, ErrInternal) {
				return fail(fmt.Errorf("%s: %w", file, err))
			}
			return fail(ioErr(err, "read %s", file))
		}
		if !names.Add(desc.Name()) {
			return fail(internalErr("more than one meta file describes table %s", desc.Name()))
		}
		if !oids.Add(desc.OID()) {
			return fail(internalErr("more than one meta file uses table id %d", desc.OID()))
		}

		tf, err := c.storage.Open(desc.Name(), uint32(desc.OID()))
		if err != nil {
			return fail(internalErr("open storage of %s: %v", desc.Name(), err))
		}

		opened = append(opened, newTable(desc, tf))
		maxOID = max(maxOID, desc.OID())
	}

	for _, t := range opened {
		if err := c.register(t); err != nil {
			return fail(err)
		}
	}
	c.raiseNextOID(uint32(maxOID) + 1)

	c.logger.Info("opened tables", "count", len(opened), "next_table_id", c.NextTableOID())
	return nil
}

// Recover replays the recovery log against the opened tables. Ddl calls are rejected until it returns successfully.
func (c *DiskCatalog) Recover() error {
	if !c.state.CompareAndSwap(stateOpened, stateRecovering) {
		switch c.state.Load() {
		case stateNew:
			return internalErr("recover called before tables are opened")
		default:
			return internalErr("catalog is already recovered")
		}
	}

	if err := c.log.Replay(c); err != nil {
		c.state.Store(stateOpened)
		c.logger.Error("recovery failed", "err", err)
		if RCOf(err) == RCInternal && !errors.Is(err, ErrInternal) {
			// not raised by ApplyLogRecord, so the log itself could not be read
			return ioErr(err, "replay recovery log")
		}
		return err
	}

	c.state.Store(stateReady)
	c.logger.Info("recovery finished", "tables", len(c.ListTables()), "next_table_id", c.NextTableOID())
	return nil
}

// Close releases every table handle. The recovery log is owned by the caller and stays open.
func (c *DiskCatalog) Close() error {
	if c.state.Swap(stateClosed) == stateClosed {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	for name, t := range c.tables {
		if cerr := t.file.Close(); cerr != nil && err == nil {
			err = ioErr(cerr, "close %s", name)
		}
		c.metrics.OpenTables.Dec()
	}
	c.tables = map[string]*Table{}
	return err
}
