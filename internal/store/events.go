package store

import (
	"fmt"
)

type EventRecord struct {
	ID           int64  `json:"id"`
	TS           int64  `json:"ts"`
	Type         string `json:"type"`
	Severity     string `json:"severity"`
	Symbol       string `json:"symbol"`
	Title        string `json:"title"`
	DedupKey     string `json:"dedup_key"`
	EvidenceJSON string `json:"evidence_json"`
	CreatedAt    string `json:"created_at"`
}

func (s *Store) InsertEvent(e EventRecord) (int64, error) {
	if !s.ready() {
		return 0, nil
	}
	if e.CreatedAt == "" {
		e.CreatedAt = nowRFC3339()
	}
	res, err := s.db.Exec(
		`INSERT INTO events (ts, type, severity, symbol, title, dedup_key, evidence_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.TS, e.Type, e.Severity, e.Symbol, e.Title, e.DedupKey, e.EvidenceJSON, e.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

func (s *Store) QueryEventsByDate(date, eventType string, limit, offset int) ([]EventRecord, error) {
	if !s.ready() {
		return nil, ErrNotInitialized
	}
	start, end, err := dateRange(date)
	if err != nil {
		return nil, err
	}
	limit, offset = clampPage(limit, offset)
	query := `SELECT id, ts, type, severity, symbol, title, dedup_key, evidence_json, created_at
		FROM events WHERE ts >= ? AND ts < ?`
	args := []any{start, end}
	if eventType != "" {
		query += " AND type = ?"
		args = append(args, eventType)
	}
	query += " ORDER BY ts DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var e EventRecord
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.Severity, &e.Symbol, &e.Title, &e.DedupKey, &e.EvidenceJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows event: %w", err)
	}
	return out, nil
}
