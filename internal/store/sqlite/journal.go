// Package sqlite keeps an append-only audit journal of emitted signals and
// their order outcomes. It is not bar-history persistence: nothing here is
// read back at startup, the journal exists for post-hoc analysis.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"okxsignal/internal/execution"
	"okxsignal/internal/model"
)

const (
	defaultBatchSize  = 50
	defaultFlushDelay = 500 * time.Millisecond
)

// JournalConfig configures the SQLite journal.
type JournalConfig struct {
	DBPath string // path to the database file, e.g. "data/signals.db"
}

// Journal is a single-goroutine SQLite writer with transaction batching.
type Journal struct {
	db *sql.DB

	// OnCommit observes batch commit latency (optional, set externally).
	OnCommit func(d time.Duration)
}

// DB returns the underlying sql.DB for health checks.
func (j *Journal) DB() *sql.DB { return j.db }

// New opens (or creates) the journal database with WAL mode and schema.
func New(cfg JournalConfig) (*Journal, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single-writer connection pool
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened journal at %s", cfg.DBPath)
	return &Journal{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS signals (
			id         TEXT    PRIMARY KEY,
			action     TEXT    NOT NULL,
			price      REAL    NOT NULL,
			ts         INTEGER NOT NULL,
			strategy   TEXT    NOT NULL,
			payload    TEXT    NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_signals_ts ON signals(ts);

		CREATE TABLE IF NOT EXISTS order_results (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			order_id   TEXT,
			signal_id  TEXT    NOT NULL,
			status     TEXT    NOT NULL,
			message    TEXT,
			action     TEXT    NOT NULL,
			price      REAL    NOT NULL,
			ts         INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_order_results_signal ON order_results(signal_id);
	`)
	return err
}

// RunSignals reads emitted signals from sigCh and inserts them in batched
// transactions. Flushes every batchSize signals OR every flushDelay,
// whichever comes first. Blocks until ctx is cancelled or sigCh is closed.
func (j *Journal) RunSignals(ctx context.Context, sigCh <-chan model.Signal) {
	batch := make([]model.Signal, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := j.insertSignals(batch); err != nil {
			log.Printf("[sqlite] signal batch insert error: %v", err)
		} else if j.OnCommit != nil {
			j.OnCommit(time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case sig, ok := <-sigCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, sig)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// insertSignals inserts a batch of signals in a single transaction.
func (j *Journal) insertSignals(signals []model.Signal) error {
	tx, err := j.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO signals (id, action, price, ts, strategy, payload)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range signals {
		s := &signals[i]
		_, err := stmt.Exec(s.ID, string(s.Action), s.Price, s.Timestamp.UnixMilli(), s.StrategyTag, string(s.JSON()))
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// RunOrderResults reads executor outcomes from resCh and appends them.
// Results are rare, so they are written one row at a time.
func (j *Journal) RunOrderResults(ctx context.Context, resCh <-chan execution.OrderResult) {
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-resCh:
			if !ok {
				return
			}
			_, err := j.db.Exec(
				`INSERT INTO order_results (order_id, signal_id, status, message, action, price, ts)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				res.OrderID, res.SignalID, res.Status, res.Message,
				string(res.Action), res.Price, res.TS.UnixMilli(),
			)
			if err != nil {
				log.Printf("[sqlite] order result insert error: %v", err)
			}
		}
	}
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
