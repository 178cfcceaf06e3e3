package store

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// QuoteRecord is one successful source quote from one cycle.
type QuoteRecord struct {
	CycleID   string          `json:"cycle_id"`
	TS        int64           `json:"ts"`
	Symbol    string          `json:"symbol"`
	Source    string          `json:"source"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	CreatedAt string          `json:"created_at"`
}

func (s *Store) InsertQuotes(ctx context.Context, recs []QuoteRecord) error {
	if !s.ready() || len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin quote snapshot: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	created := nowRFC3339()
	for _, r := range recs {
		if r.CreatedAt == "" {
			r.CreatedAt = created
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO quote_snapshot (cycle_id, ts, symbol, source, bid, ask, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.CycleID, r.TS, r.Symbol, r.Source, r.Bid, r.Ask, r.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert quote snapshot: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit quote snapshot: %w", err)
	}
	return nil
}

// QueryQuotes returns the newest quotes for symbol first.
func (s *Store) QueryQuotes(ctx context.Context, symbol string, limit, offset int) ([]QuoteRecord, error) {
	if !s.ready() {
		return nil, ErrNotInitialized
	}
	limit, offset = clampPage(limit, offset)
	rows, err := s.db.QueryContext(ctx,
		`SELECT cycle_id, ts, symbol, source, bid, ask, created_at
		FROM quote_snapshot WHERE symbol = ?
		ORDER BY ts DESC, id DESC LIMIT ? OFFSET ?`,
		symbol, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("query quote snapshot: %w", err)
	}
	defer rows.Close()

	var out []QuoteRecord
	for rows.Next() {
		var r QuoteRecord
		if err := rows.Scan(&r.CycleID, &r.TS, &r.Symbol, &r.Source, &r.Bid, &r.Ask, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan quote snapshot: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows quote snapshot: %w", err)
	}
	return out, nil
}
