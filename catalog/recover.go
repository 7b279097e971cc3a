package catalog

import (
	"helincat/disk/wal"
)

var _ wal.Replayer = &DiskCatalog{}

// ApplyLogRecord applies one recovery log record. It is only accepted while Recover is running; records are fed
// single threaded and in log order.
func (c *DiskCatalog) ApplyLogRecord(lr *wal.LogRecord) error {
	if c.state.Load() != stateRecovering {
		return internalErr("log record applied outside of recovery")
	}

	outcome, err := c.applyLogRecord(lr)
	if err != nil {
		outcome = "failed"
	}
	c.metrics.ReplayedRecords.WithLabelValues(lr.T.String(), outcome).Inc()
	c.logger.Debug("replayed log record", "lsn", lr.Lsn, "type", lr.T.String(), "table", lr.TableName, "outcome", outcome)
	return err
}

func (c *DiskCatalog) applyLogRecord(lr *wal.LogRecord) (string, error) {
	switch lr.T {
	case wal.TypeCreateTable:
		// the meta file is durable before the record is appended, so there is nothing to redo. The id must stay
		// taken even if the table was dropped later.
		c.raiseNextOID(lr.TableID + 1)
		return "skipped", nil
	case wal.TypeCheckpoint:
		c.raiseNextOID(lr.NextTableID)
		return "applied", nil
	case wal.TypeDropTable:
		c.raiseNextOID(lr.TableID + 1)
		return c.replayDrop(lr)
	case wal.TypeAlterTable:
		c.raiseNextOID(lr.TableID + 1)
		return c.replayAlter(lr)
	default:
		return "", internalErr("unknown log record type %v at lsn %d", lr.T, lr.Lsn)
	}
}

func (c *DiskCatalog) replayDrop(lr *wal.LogRecord) (string, error) {
	t := c.GetTableByOID(TableOID(lr.TableID))
	if t == nil {
		return "skipped", nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := c.destroy(t); err != nil {
		return "", err
	}
	return "applied", nil
}

func (c *DiskCatalog) replayAlter(lr *wal.LogRecord) (string, error) {
	t := c.GetTableByOID(TableOID(lr.TableID))
	if t == nil {
		// dropped later in the log
		return "skipped", nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.Descriptor()
	switch {
	case cur.Version() >= lr.Version:
		return "skipped", nil
	case cur.Version()+1 < lr.Version:
		return "", internalErr("table %s is at schema version %d but lsn %d produces version %d", t.name, cur.Version(), lr.Lsn, lr.Version)
	}

	ops, err := decodeAlterOps(lr.Payload)
	if err != nil {
		return "", internalErr("decode operations at lsn %d: %v", lr.Lsn, err)
	}
	nd, err := cur.Apply(ops)
	if err != nil {
		return "", internalErr("apply lsn %d to %s: %v", lr.Lsn, t.name, err)
	}
	if err := c.metas.Write(nd); err != nil {
		return "", ioErr(err, "write meta of %s", t.name)
	}

	t.swap(nd)
	return "applied", nil
}
