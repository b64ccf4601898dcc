// Package ledger records every attempt of a glitch run in an in-memory
// SQLite database and summarizes outcomes per pulse width.
//
// The ledger lives only as long as the run. It is a controller Observer;
// nothing is written to disk.
package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/glitchctl/internal/glitch"
	"github.com/roach88/glitchctl/internal/pulse"
)

//go:embed schema.sql
var schemaSQL string

// Ledger is an attempt log for one run.
//
// Thread-safety: Observe may be called from the controller goroutine while
// Summary runs elsewhere; database/sql serializes access over the single
// connection, and the first write error is guarded by a mutex.
type Ledger struct {
	db    *sql.DB
	runID string

	mu  sync.Mutex
	err error
}

// WidthStat counts outcomes for one pulse width.
type WidthStat struct {
	Width    pulse.Width `json:"width"`
	Attempts int         `json:"attempts"`
	Empty    int         `json:"empty"`
	Data     int         `json:"data"`
	Success  int         `json:"success"`
}

// Summary aggregates a run.
type Summary struct {
	RunID       string      `json:"run_id"`
	Attempts    int         `json:"attempts"`
	Resets      int         `json:"resets"`
	ReadErrors  int         `json:"read_errors"`
	ResetErrors int         `json:"reset_errors"`
	Widths      []WidthStat `json:"widths"`
}

// Open creates an empty in-memory ledger for runID.
func Open(runID string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	// Every connection to :memory: is a separate database, so the pool must
	// hold exactly one.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to ledger: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply ledger schema: %w", err)
	}

	return &Ledger{db: db, runID: runID}, nil
}

// Close discards the ledger.
func (l *Ledger) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Err returns the first error hit while recording events.
func (l *Ledger) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Observe implements glitch.Observer. Pulse events are not stored; the
// observation that follows carries the same width.
func (l *Ledger) Observe(e glitch.Event) {
	ctx := context.Background()

	var err error
	switch e.Type {
	case glitch.EventObservation:
		_, err = l.db.ExecContext(ctx,
			`INSERT INTO observations (seq, run_id, attempt, width, class, size, silence, read_error)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.Seq, l.runID, e.Attempt, uint32(e.Width), e.Class.String(), len(e.Data), e.Silence, errText(e.Err))
	case glitch.EventReset:
		_, err = l.db.ExecContext(ctx,
			`INSERT INTO resets (seq, run_id, attempt, error) VALUES (?, ?, ?, ?)`,
			e.Seq, l.runID, e.Attempt, errText(e.Err))
	case glitch.EventTransition:
		_, err = l.db.ExecContext(ctx,
			`INSERT INTO transitions (seq, run_id, attempt, from_state, to_state) VALUES (?, ?, ?, ?, ?)`,
			e.Seq, l.runID, e.Attempt, e.From.String(), e.To.String())
	}
	if err != nil {
		l.mu.Lock()
		if l.err == nil {
			l.err = fmt.Errorf("record %s event %d: %w", e.Type, e.Seq, err)
		}
		l.mu.Unlock()
	}
}

// Summary aggregates the run so far. Widths are ordered ascending.
func (l *Ledger) Summary(ctx context.Context) (*Summary, error) {
	s := &Summary{RunID: l.runID, Widths: []WidthStat{}}

	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(read_error) FROM observations`,
	).Scan(&s.Attempts, &s.ReadErrors)
	if err != nil {
		return nil, fmt.Errorf("count observations: %w", err)
	}

	err = l.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(error) FROM resets`,
	).Scan(&s.Resets, &s.ResetErrors)
	if err != nil {
		return nil, fmt.Errorf("count resets: %w", err)
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT width,
		       COUNT(*),
		       SUM(CASE WHEN class = ? THEN 1 ELSE 0 END),
		       SUM(CASE WHEN class = ? THEN 1 ELSE 0 END),
		       SUM(CASE WHEN class = ? THEN 1 ELSE 0 END)
		FROM observations
		GROUP BY width
		ORDER BY width ASC`,
		glitch.ClassEmpty.String(), glitch.ClassData.String(), glitch.ClassSuccess.String())
	if err != nil {
		return nil, fmt.Errorf("summarize widths: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ws WidthStat
		var w uint32
		if err := rows.Scan(&w, &ws.Attempts, &ws.Empty, &ws.Data, &ws.Success); err != nil {
			return nil, fmt.Errorf("scan width row: %w", err)
		}
		ws.Width = pulse.Width(w)
		s.Widths = append(s.Widths, ws)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate width rows: %w", err)
	}
	return s, nil
}

// Transitions returns the recorded state changes as "from->to" strings in
// event order.
func (l *Ledger) Transitions(ctx context.Context) ([]string, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT from_state, to_state FROM transitions ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("read transitions: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var from, to string
		if err := rows.Scan(&from, &to); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		out = append(out, from+"->"+to)
	}
	return out, rows.Err()
}

func errText(err error) sql.NullString {
	if err == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: err.Error(), Valid: true}
}
