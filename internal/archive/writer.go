// Package archive persists raw trades and dispatched alerts as JSON
// lines for offline analysis. Writes happen off the hot path on a
// non-blocking worker pool; when the pool is saturated records are
// dropped and counted, never queued against the receive loop.
package archive

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"whale_watcher/internal/core"
	"whale_watcher/pkg/concurrency"
)

const (
	dateLayout  = "2006-01-02"
	alertsDir   = "alerts"
	alertsFile  = "alerts.jsonl"
	fileMode    = 0o644
	dirMode     = 0o755
	poolWorkers = 2
	poolBacklog = 4096
)

// Config parameterises the writer.
type Config struct {
	BaseDir string
	// RetentionDays bounds how many daily directories CleanupOld
	// keeps. Zero keeps everything.
	RetentionDays int
}

// Stats is a point-in-time snapshot of archival counters.
type Stats struct {
	Trades  uint64 `json:"trades"`
	Alerts  uint64 `json:"alerts"`
	Dropped uint64 `json:"dropped"`
	Errors  uint64 `json:"errors"`
}

// Writer appends trades to <base>/<YYYY-MM-DD>/<SYMBOL>.jsonl and
// alerts to <base>/alerts/alerts.jsonl.
type Writer struct {
	baseDir       string
	retentionDays int
	pool          *concurrency.WorkerPool
	logger        core.ILogger

	trades   atomic.Uint64
	alerts   atomic.Uint64
	dropped  atomic.Uint64
	writeErr atomic.Uint64

	// now is a test hook
	now func() time.Time
}

type alertRecord struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Symbol     string          `json:"symbol"`
	Side       string          `json:"side"`
	TotalUsd   decimal.Decimal `json:"total_usd"`
	TradeCount int             `json:"trade_count,omitempty"`
	Message    string          `json:"message"`
	At         time.Time       `json:"at"`
}

func NewWriter(cfg Config, logger core.ILogger) *Writer {
	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "archive",
		MaxWorkers:  poolWorkers,
		MaxCapacity: poolBacklog,
		NonBlocking: true,
	}, logger)

	return &Writer{
		baseDir:       cfg.BaseDir,
		retentionDays: cfg.RetentionDays,
		pool:          pool,
		logger:        logger.WithField("component", "archive"),
		now:           time.Now,
	}
}

// RecordTrade schedules one trade for archival. Never blocks.
func (w *Writer) RecordTrade(trade core.TradeEvent) {
	path := filepath.Join(w.baseDir, dayDirName(trade.TradeTime), trade.Symbol+".jsonl")
	if err := w.pool.Submit(func() { w.appendJSON(path, trade, &w.trades) }); err != nil {
		w.dropped.Add(1)
	}
}

// RecordAlert schedules one dispatched alert for archival. Never blocks.
func (w *Writer) RecordAlert(a core.Alert) {
	rec := alertRecord{
		ID:         a.ID,
		Kind:       string(a.Event.Kind),
		Symbol:     a.Event.Symbol,
		Side:       string(a.Event.Side),
		TotalUsd:   a.Event.TotalUsd,
		TradeCount: a.Event.TradeCount,
		Message:    a.RenderedMessage,
		At:         a.CreatedAt,
	}
	path := filepath.Join(w.baseDir, alertsDir, alertsFile)
	if err := w.pool.Submit(func() { w.appendJSON(path, rec, &w.alerts) }); err != nil {
		w.dropped.Add(1)
	}
}

func (w *Writer) appendJSON(path string, v interface{}, counter *atomic.Uint64) {
	line, err := json.Marshal(v)
	if err != nil {
		w.writeErr.Add(1)
		w.logger.Error("Archive marshal failed", "path", path, "error", err)
		return
	}

	if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		w.writeErr.Add(1)
		w.logger.Error("Archive mkdir failed", "path", path, "error", err)
		return
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, fileMode)
	if err != nil {
		w.writeErr.Add(1)
		w.logger.Error("Archive open failed", "path", path, "error", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		w.writeErr.Add(1)
		w.logger.Error("Archive write failed", "path", path, "error", err)
		return
	}
	counter.Add(1)
}

// CleanupOld removes daily directories older than the retention
// horizon and returns how many were removed. The alerts directory is
// never touched.
func (w *Writer) CleanupOld() int {
	if w.retentionDays <= 0 {
		return 0
	}
	entries, err := os.ReadDir(w.baseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Warn("Archive cleanup scan failed", "dir", w.baseDir, "error", err)
		}
		return 0
	}

	cutoff := w.now().UTC().AddDate(0, 0, -w.retentionDays)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || e.Name() == alertsDir {
			continue
		}
		day, err := time.Parse(dateLayout, e.Name())
		if err != nil {
			continue
		}
		if day.Before(cutoff) {
			if err := os.RemoveAll(filepath.Join(w.baseDir, e.Name())); err != nil {
				w.logger.Warn("Archive cleanup failed", "dir", e.Name(), "error", err)
				continue
			}
			removed++
		}
	}
	if removed > 0 {
		w.logger.Info("Archive cleanup removed old data",
			"removed_dirs", removed,
			"retention_days", w.retentionDays)
	}
	return removed
}

// Stop flushes pending writes and releases the pool.
func (w *Writer) Stop() {
	w.pool.Stop()
}

func (w *Writer) Stats() Stats {
	return Stats{
		Trades:  w.trades.Load(),
		Alerts:  w.alerts.Load(),
		Dropped: w.dropped.Load(),
		Errors:  w.writeErr.Load(),
	}
}

// BaseDir reports where archives land, mainly for status output.
func (w *Writer) BaseDir() string {
	return w.baseDir
}

func dayDirName(t time.Time) string {
	return t.UTC().Format(dateLayout)
}
