// Package storage implements the audit store (C12, SPEC_FULL.md §4.13): an
// append-only record of every signal ingested and every trade attempted, for
// operator forensics. Grounded on the teacher's internal/storage/db.go
// (sqlite, WAL pragmas). The positions table is dropped: the registry (C5)
// is the sole source of truth for open positions and is never restored from
// disk (spec.md Non-goals).
package storage

import (
	"database/sql"
	"strings"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"memecoin-agent/internal/model"
)

// DB wraps the sqlite connection backing the audit trail.
type DB struct {
	db *sql.DB
}

// Trade is one logged buy or sell attempt, successful or not.
type Trade struct {
	ID          int64
	TokenMint   string
	TokenSymbol string
	Action      string // "buy" or "sell"
	Success     bool
	BaseAmount  uint64
	TokenAmount uint64
	VenueTxID   string
	Error       string
	LatencyMs   int64
	Attempt     int
	RealizedPnL float64
	Timestamp   int64
}

// Signal is one ingested signal, logged regardless of whether it resulted
// in a trade.
type Signal struct {
	ID          int64
	TokenMint   string
	TokenSymbol string
	Class       string
	Strength    string
	Timestamp   int64
}

// New opens (creating if absent) the sqlite database at path with the same
// WAL pragmas the teacher's NewDB applies, and ensures the schema exists.
func New(path string) (*DB, error) {
	dsn := path
	if !strings.Contains(path, "?") {
		dsn += "?"
	} else {
		dsn += "&"
	}
	dsn += "_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := createTables(db); err != nil {
		return nil, err
	}

	log.Info().Str("path", path).Msg("storage: audit database initialized")
	return &DB{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		token_mint TEXT NOT NULL,
		token_symbol TEXT NOT NULL,
		action TEXT NOT NULL,
		success INTEGER NOT NULL,
		base_amount INTEGER NOT NULL DEFAULT 0,
		token_amount INTEGER NOT NULL DEFAULT 0,
		venue_tx_id TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		latency_ms INTEGER NOT NULL DEFAULT 0,
		attempt INTEGER NOT NULL DEFAULT 0,
		realized_pnl REAL NOT NULL DEFAULT 0,
		timestamp INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS signals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		token_mint TEXT NOT NULL,
		token_symbol TEXT NOT NULL,
		class TEXT NOT NULL,
		strength TEXT NOT NULL,
		timestamp INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_trades_timestamp ON trades(timestamp);
	CREATE INDEX IF NOT EXISTS idx_signals_timestamp ON signals(timestamp);
	`
	_, err := db.Exec(schema)
	return err
}

// InsertTrade appends one trade result to the audit log.
func (d *DB) InsertTrade(r model.TradeResult) error {
	var symbol string
	if r.Signal != nil {
		symbol = r.Signal.TokenSymbol
	}
	_, err := d.db.Exec(`
		INSERT INTO trades
		(token_mint, token_symbol, action, success, base_amount, token_amount, venue_tx_id, error, latency_ms, attempt, realized_pnl, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.TokenMint, symbol, string(r.Action), r.Success, r.BaseAmount, r.TokenAmount, r.VenueTxID, r.Error, r.LatencyMs, r.Attempt, r.RealizedPnL, r.Timestamp)
	return err
}

// RecentTrades returns the most recently logged trades, newest first.
func (d *DB) RecentTrades(limit int) ([]Trade, error) {
	rows, err := d.db.Query(`
		SELECT id, token_mint, token_symbol, action, success, base_amount, token_amount, venue_tx_id, error, latency_ms, attempt, realized_pnl, timestamp
		FROM trades ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []Trade
	for rows.Next() {
		var t Trade
		if err := rows.Scan(&t.ID, &t.TokenMint, &t.TokenSymbol, &t.Action, &t.Success, &t.BaseAmount, &t.TokenAmount, &t.VenueTxID, &t.Error, &t.LatencyMs, &t.Attempt, &t.RealizedPnL, &t.Timestamp); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// InsertSignal appends one ingested signal to the audit log.
func (d *DB) InsertSignal(sig model.Signal) error {
	_, err := d.db.Exec(`
		INSERT INTO signals (token_mint, token_symbol, class, strength, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		sig.TokenMint, sig.TokenSymbol, string(sig.Class), sig.Strength, sig.Timestamp)
	return err
}

// RecentSignals returns the most recently logged signals, newest first.
func (d *DB) RecentSignals(limit int) ([]Signal, error) {
	rows, err := d.db.Query(`
		SELECT id, token_mint, token_symbol, class, strength, timestamp
		FROM signals ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var signals []Signal
	for rows.Next() {
		var s Signal
		if err := rows.Scan(&s.ID, &s.TokenMint, &s.TokenSymbol, &s.Class, &s.Strength, &s.Timestamp); err != nil {
			return nil, err
		}
		signals = append(signals, s)
	}
	return signals, rows.Err()
}

// Stats returns the aggregate completed-sell count, win rate (percent with
// positive realized PnL), and total realized PnL.
func (d *DB) Stats() (totalTrades int, winRate float64, totalPnL float64, err error) {
	var wins int
	err = d.db.QueryRow(`
		SELECT
			COUNT(*),
			SUM(CASE WHEN realized_pnl > 0 THEN 1 ELSE 0 END),
			COALESCE(SUM(realized_pnl), 0)
		FROM trades WHERE action = 'sell' AND success = 1`).Scan(&totalTrades, &wins, &totalPnL)
	if err != nil {
		return
	}
	if totalTrades > 0 {
		winRate = float64(wins) / float64(totalTrades) * 100
	}
	return
}

// Close closes the underlying sqlite connection.
func (d *DB) Close() error {
	return d.db.Close()
}
