// CLAUDE:SUMMARY SQLite journal of delivery requests and every strategy attempt, queried by the relay for status and history.
// Package journal persists delivery results for later diagnosis.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/sosrelay/dbopen"
	"github.com/hazyhaar/sosrelay/delivery"
)

// ErrNotFound is returned by Get for an unknown request ID.
var ErrNotFound = errors.New("journal: not found")

// StatusPending marks a request accepted but not yet run.
const StatusPending = "pending"

// Entry is one journalled request. Result is nil while pending.
type Entry struct {
	Request    delivery.Request `json:"request"`
	Status     string           `json:"status"`
	Result     *delivery.Result `json:"result,omitempty"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
}

// Store is the journal database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the journal at path and applies Schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	all := append([]dbopen.Option{dbopen.WithMkdirAll(), dbopen.WithSchema(Schema)}, opts...)
	db, err := dbopen.Open(path, all...)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// New wraps an open database, applying Schema.
func New(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("journal: schema: %w", err)
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error { return s.DB.Close() }

// Enqueued records req as pending. Recording the same request twice is a no-op.
func (s *Store) Enqueued(ctx context.Context, req delivery.Request) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO deliveries (request_id, phone, message, requested_at, status)
		VALUES (?,?,?,?,?)
		ON CONFLICT(request_id) DO NOTHING`,
		req.ID, req.Phone, req.Message, req.RequestedAt.UnixMilli(), StatusPending)
	if err != nil {
		return fmt.Errorf("journal: enqueue %s: %w", req.ID, err)
	}
	return nil
}

// Record stores the final result of req, replacing any earlier attempts.
func (s *Store) Record(ctx context.Context, req delivery.Request, res delivery.Result) error {
	now := time.Now().UnixMilli()
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO deliveries (request_id, phone, message, requested_at, status, strategy, finished_at)
			VALUES (?,?,?,?,?,?,?)
			ON CONFLICT(request_id) DO UPDATE SET
				status = excluded.status,
				strategy = excluded.strategy,
				finished_at = excluded.finished_at`,
			req.ID, req.Phone, req.Message, req.RequestedAt.UnixMilli(),
			string(res.Outcome), res.Strategy, now)
		if err != nil {
			return fmt.Errorf("journal: record %s: %w", req.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM delivery_attempts WHERE request_id = ?`, req.ID); err != nil {
			return fmt.Errorf("journal: clear attempts: %w", err)
		}
		for i, a := range res.Attempts {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO delivery_attempts (request_id, seq, strategy, outcome, kind, detail, started_at, ended_at)
				VALUES (?,?,?,?,?,?,?,?)`,
				req.ID, i, a.Strategy, string(a.Outcome), string(a.Kind), a.Detail,
				a.StartedAt.UnixMilli(), a.EndedAt.UnixMilli())
			if err != nil {
				return fmt.Errorf("journal: attempt %d: %w", i, err)
			}
		}
		return nil
	})
}

// Get returns the entry for a request ID, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT request_id, phone, message, requested_at, status, strategy, finished_at
		FROM deliveries WHERE request_id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("journal: get %s: %w", id, err)
	}
	if err := s.loadAttempts(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Recent returns up to limit entries, newest first. limit <= 0 means 50.
func (s *Store) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT request_id, phone, message, requested_at, status, strategy, finished_at
		FROM deliveries ORDER BY requested_at DESC, request_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: recent: %w", err)
	}
	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		out = append(out, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, e := range out {
		if err := s.loadAttempts(ctx, e); err != nil {
			return nil, err
		}
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (*Entry, error) {
	var (
		e           Entry
		requestedAt int64
		strategy    string
		finishedAt  sql.NullInt64
	)
	if err := sc.Scan(&e.Request.ID, &e.Request.Phone, &e.Request.Message, &requestedAt,
		&e.Status, &strategy, &finishedAt); err != nil {
		return nil, err
	}
	e.Request.RequestedAt = time.UnixMilli(requestedAt).UTC()
	if e.Status != StatusPending {
		e.Result = &delivery.Result{
			RequestID: e.Request.ID,
			Outcome:   delivery.FinalOutcome(e.Status),
			Strategy:  strategy,
			Attempts:  []delivery.Attempt{},
		}
	}
	if finishedAt.Valid {
		t := time.UnixMilli(finishedAt.Int64).UTC()
		e.FinishedAt = &t
	}
	return &e, nil
}

func (s *Store) loadAttempts(ctx context.Context, e *Entry) error {
	if e.Result == nil {
		return nil
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT strategy, outcome, kind, detail, started_at, ended_at
		FROM delivery_attempts WHERE request_id = ? ORDER BY seq`, e.Request.ID)
	if err != nil {
		return fmt.Errorf("journal: attempts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			a                 delivery.Attempt
			outcome, kind     string
			started, finished int64
		)
		if err := rows.Scan(&a.Strategy, &outcome, &kind, &a.Detail, &started, &finished); err != nil {
			return fmt.Errorf("journal: scan attempt: %w", err)
		}
		a.Outcome = delivery.Outcome(outcome)
		a.Kind = delivery.Kind(kind)
		a.StartedAt = time.UnixMilli(started).UTC()
		a.EndedAt = time.UnixMilli(finished).UTC()
		e.Result.Attempts = append(e.Result.Attempts, a)
	}
	return rows.Err()
}
