// Package trades keeps the history of closed positions in SQLite and
// aggregates per-strategy performance from it.
package trades

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/ccc1236/coinsph-trading-bot/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS closed_trades (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	position_id TEXT NOT NULL,
	pair TEXT NOT NULL,
	direction TEXT NOT NULL,
	reason TEXT NOT NULL,
	entry_price TEXT NOT NULL,
	exit_price TEXT NOT NULL,
	amount TEXT NOT NULL,
	pnl TEXT NOT NULL,
	entry_quality REAL NOT NULL,
	final_quality REAL NOT NULL,
	sized_by TEXT NOT NULL,
	opened_at TIMESTAMP NOT NULL,
	closed_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_closed_trades_closed_at ON closed_trades(closed_at);
CREATE INDEX IF NOT EXISTS idx_closed_trades_sized_by ON closed_trades(sized_by);
`

// StrategyPerformance aggregates closed trades sized by one strategy.
type StrategyPerformance struct {
	Strategy  string          `json:"strategy"`
	Trades    int             `json:"trades"`
	Wins      int             `json:"wins"`
	WinRate   float64         `json:"win_rate"`
	AvgAmount decimal.Decimal `json:"avg_amount"`
	TotalPnL  decimal.Decimal `json:"total_pnl"`
}

// Repository stores closed positions in SQLite.
type Repository struct {
	db *sql.DB
}

// NewRepository opens (or creates) the trade history database at dbPath.
func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, errors.Wrap(err, "create database directory")
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "open trade database")
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping trade database")
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "initialize trade schema")
	}

	return &Repository{db: db}, nil
}

// RecordClose persists one closed position.
func (r *Repository) RecordClose(event domain.ClosedPositionEvent) error {
	_, err := r.db.Exec(
		`INSERT INTO closed_trades
		(position_id, pair, direction, reason, entry_price, exit_price, amount, pnl,
		 entry_quality, final_quality, sized_by, opened_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.PositionID,
		event.Pair,
		event.Direction,
		event.Reason,
		event.EntryPrice.String(),
		event.ExitPrice.String(),
		event.Amount.String(),
		event.PnL.String(),
		event.EntryQuality,
		event.FinalQuality,
		event.SizedBy,
		event.OpenedAt,
		event.ClosedAt,
	)
	return errors.Wrap(err, "insert closed trade")
}

// Recent returns the most recently closed trades, newest first.
func (r *Repository) Recent(limit int) ([]domain.ClosedPositionEvent, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Query(
		`SELECT position_id, pair, direction, reason, entry_price, exit_price, amount, pnl,
		        entry_quality, final_quality, sized_by, opened_at, closed_at
		 FROM closed_trades ORDER BY closed_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query closed trades")
	}
	defer rows.Close()

	var events []domain.ClosedPositionEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	return events, errors.Wrap(rows.Err(), "iterate closed trades")
}

// PerformanceByStrategy aggregates win rate, average size and total PnL per
// sizing strategy across the whole history.
func (r *Repository) PerformanceByStrategy() ([]StrategyPerformance, error) {
	rows, err := r.db.Query(
		`SELECT sized_by, COUNT(*),
		        SUM(CASE WHEN CAST(pnl AS REAL) > 0 THEN 1 ELSE 0 END),
		        AVG(CAST(amount AS REAL)),
		        SUM(CAST(pnl AS REAL))
		 FROM closed_trades GROUP BY sized_by ORDER BY sized_by`)
	if err != nil {
		return nil, errors.Wrap(err, "query strategy performance")
	}
	defer rows.Close()

	var stats []StrategyPerformance
	for rows.Next() {
		var (
			perf      StrategyPerformance
			avgAmount float64
			totalPnL  float64
		)
		if err := rows.Scan(&perf.Strategy, &perf.Trades, &perf.Wins, &avgAmount, &totalPnL); err != nil {
			return nil, errors.Wrap(err, "scan strategy performance")
		}
		if perf.Trades > 0 {
			perf.WinRate = float64(perf.Wins) / float64(perf.Trades)
		}
		perf.AvgAmount = decimal.NewFromFloat(avgAmount)
		perf.TotalPnL = decimal.NewFromFloat(totalPnL)
		stats = append(stats, perf)
	}

	return stats, errors.Wrap(rows.Err(), "iterate strategy performance")
}

// Close closes the database.
func (r *Repository) Close() error {
	return r.db.Close()
}

func scanEvent(rows *sql.Rows) (domain.ClosedPositionEvent, error) {
	var (
		event                              domain.ClosedPositionEvent
		entryPrice, exitPrice, amount, pnl string
	)

	err := rows.Scan(
		&event.PositionID,
		&event.Pair,
		&event.Direction,
		&event.Reason,
		&entryPrice,
		&exitPrice,
		&amount,
		&pnl,
		&event.EntryQuality,
		&event.FinalQuality,
		&event.SizedBy,
		&event.OpenedAt,
		&event.ClosedAt,
	)
	if err != nil {
		return domain.ClosedPositionEvent{}, errors.Wrap(err, "scan closed trade")
	}

	if event.EntryPrice, err = decimal.NewFromString(entryPrice); err != nil {
		return domain.ClosedPositionEvent{}, errors.Wrap(err, "parse entry price")
	}
	if event.ExitPrice, err = decimal.NewFromString(exitPrice); err != nil {
		return domain.ClosedPositionEvent{}, errors.Wrap(err, "parse exit price")
	}
	if event.Amount, err = decimal.NewFromString(amount); err != nil {
		return domain.ClosedPositionEvent{}, errors.Wrap(err, "parse amount")
	}
	if event.PnL, err = decimal.NewFromString(pnl); err != nil {
		return domain.ClosedPositionEvent{}, errors.Wrap(err, "parse pnl")
	}

	return event, nil
}
