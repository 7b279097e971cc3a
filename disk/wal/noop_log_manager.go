package wal

import "sync/atomic"

// NoopLM is used for in memory databases and in tests where durability of ddl is not needed.
type NoopLM struct {
	lsn atomic.Uint64
}

var _ LogManager = &NoopLM{}

func (n *NoopLM) AppendLog(lr *LogRecord) (LSN, error) {
	lr.Lsn = LSN(n.lsn.Add(1))
	return lr.Lsn, nil
}

func (n *NoopLM) Replay(Replayer) error { return nil }

func (n *NoopLM) Rewrite([]*LogRecord) error { return nil }

func (n *NoopLM) Records() ([]*LogRecord, error) { return nil, nil }

func (n *NoopLM) GetFlushedLSN() LSN { return LSN(n.lsn.Load()) }

func (n *NoopLM) Flush() error { return nil }

func (n *NoopLM) Close() error { return nil }
