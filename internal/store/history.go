package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"crypto-monitor/internal/history"
)

// HistoryStore adapts Store to history.Store. Each Save replaces the
// symbol's rows inside one transaction. Timestamps are kept in nanoseconds
// so a saved series loads back unchanged.
type HistoryStore struct {
	s *Store
}

func (s *Store) History() *HistoryStore {
	return &HistoryStore{s: s}
}

func (h *HistoryStore) Load(ctx context.Context, symbol string) (history.Series, error) {
	if !h.s.ready() {
		return nil, ErrNotInitialized
	}
	rows, err := h.s.db.QueryContext(ctx,
		`SELECT ts_ns, price FROM price_history WHERE symbol = ? ORDER BY seq ASC`, symbol)
	if err != nil {
		return nil, fmt.Errorf("query price history: %w", err)
	}
	defer rows.Close()

	out := history.Series{}
	for rows.Next() {
		var ts int64
		var price sql.NullFloat64
		if err := rows.Scan(&ts, &price); err != nil {
			return nil, fmt.Errorf("%w: scan price history: %v", history.ErrCorrupt, err)
		}
		if !price.Valid || math.IsNaN(price.Float64) || math.IsInf(price.Float64, 0) {
			return nil, fmt.Errorf("%w: %s has an invalid price at %d", history.ErrCorrupt, symbol, ts)
		}
		out = append(out, history.Sample{Time: time.Unix(0, ts).UTC(), Price: price.Float64})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows price history: %w", err)
	}
	return out, nil
}

func (h *HistoryStore) Save(ctx context.Context, symbol string, series history.Series) error {
	if !h.s.ready() {
		return ErrNotInitialized
	}
	tx, err := h.s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin price history: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM price_history WHERE symbol = ?`, symbol); err != nil {
		return fmt.Errorf("clear price history: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO price_history (symbol, ts_ns, seq, price) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare price history: %w", err)
	}
	defer stmt.Close()
	for i, smp := range series {
		if _, err := stmt.ExecContext(ctx, symbol, smp.Time.UnixNano(), i, smp.Price); err != nil {
			return fmt.Errorf("insert price history: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit price history: %w", err)
	}
	return nil
}
