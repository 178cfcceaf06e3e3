package store

import (
	"fmt"
)

type AlertRecord struct {
	TS        int64  `json:"ts"`
	Priority  string `json:"priority"`
	Symbol    string `json:"symbol"`
	Title     string `json:"title"`
	DedupKey  string `json:"dedup_key"`
	Status    string `json:"status"`
	Channel   string `json:"channel"`
	ErrCode   int    `json:"err_code"`
	ErrMsg    string `json:"err_msg"`
	PayloadMD string `json:"payload_md"`
	CreatedAt string `json:"created_at"`
}

func (s *Store) InsertAlert(a AlertRecord) error {
	if !s.ready() {
		return nil
	}
	if a.CreatedAt == "" {
		a.CreatedAt = nowRFC3339()
	}
	_, err := s.db.Exec(
		`INSERT INTO alerts (ts, priority, symbol, title, dedup_key, status, channel, err_code, err_msg, payload_md, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.TS, a.Priority, a.Symbol, a.Title, a.DedupKey, a.Status, a.Channel, a.ErrCode, a.ErrMsg, a.PayloadMD, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (s *Store) QueryAlertsByDate(date, status string, limit, offset int) ([]AlertRecord, error) {
	if !s.ready() {
		return nil, ErrNotInitialized
	}
	start, end, err := dateRange(date)
	if err != nil {
		return nil, err
	}
	limit, offset = clampPage(limit, offset)
	query := `SELECT ts, priority, symbol, title, dedup_key, status, channel, err_code, err_msg, payload_md, created_at
		FROM alerts WHERE ts >= ? AND ts < ?`
	args := []any{start, end}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY ts DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []AlertRecord
	for rows.Next() {
		var a AlertRecord
		if err := rows.Scan(&a.TS, &a.Priority, &a.Symbol, &a.Title, &a.DedupKey, &a.Status, &a.Channel, &a.ErrCode, &a.ErrMsg, &a.PayloadMD, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows alert: %w", err)
	}
	return out, nil
}
