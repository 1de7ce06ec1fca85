package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/aaronzipp/avalon-moderator/internal/models"
)

//go:embed schema.sql
var schema string

var (
	// ErrAlreadyArchived is returned when a match ID was archived before
	ErrAlreadyArchived = errors.New("match already archived")
	// ErrMatchNotFound is returned for an unknown archived match
	ErrMatchNotFound = errors.New("archived match not found")
)

// ArchivedMatch is one row of the archive
type ArchivedMatch struct {
	MatchID     string          `json:"match_id"`
	Room        string          `json:"room"`
	Outcome     models.Outcome  `json:"outcome"`
	Winner      models.Team     `json:"winner,omitempty"`
	Steps       int             `json:"steps"`
	StartedAt   time.Time       `json:"started_at"`
	EndedAt     time.Time       `json:"ended_at"`
	Divergences []string        `json:"divergences"`
	Events      json.RawMessage `json:"events"`
}

// Archive persists finished match summaries in SQLite
type Archive struct {
	db *sql.DB
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// OpenArchive opens the archive at path and creates its schema
func OpenArchive(path string) (*Archive, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("archive path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Archive{db: db}, nil
}

// Close closes the SQLite handle
func (a *Archive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

// RecordMatch stores the summary of a finished match
func (a *Archive) RecordMatch(ctx context.Context, s models.MatchSummary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(s.MatchID) == "" {
		return fmt.Errorf("match id is required")
	}
	divergences, err := json.Marshal(nonNil(s.Divergences))
	if err != nil {
		return fmt.Errorf("encode divergences: %w", err)
	}
	events, err := json.Marshal(nonNilEvents(s.Events))
	if err != nil {
		return fmt.Errorf("encode events: %w", err)
	}
	_, err = a.db.ExecContext(ctx,
		`INSERT INTO matches (match_id, room, outcome, winner, steps, started_at, ended_at, divergences, events)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.MatchID,
		s.Room,
		string(s.Outcome),
		string(s.Winner),
		s.Steps,
		toMillis(s.StartedAt),
		toMillis(s.EndedAt),
		string(divergences),
		string(events),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyArchived
		}
		return fmt.Errorf("record match: %w", err)
	}
	return nil
}

// Get returns one archived match
func (a *Archive) Get(ctx context.Context, matchID string) (ArchivedMatch, error) {
	row := a.db.QueryRowContext(ctx,
		`SELECT match_id, room, outcome, winner, steps, started_at, ended_at, divergences, events
		 FROM matches WHERE match_id = ?`, matchID)
	m, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ArchivedMatch{}, ErrMatchNotFound
	}
	return m, err
}

// ListByRoom returns the archived matches of a room, newest first
func (a *Archive) ListByRoom(ctx context.Context, room string) ([]ArchivedMatch, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT match_id, room, outcome, winner, steps, started_at, ended_at, divergences, events
		 FROM matches WHERE room = ? ORDER BY ended_at DESC`, room)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer rows.Close()
	var out []ArchivedMatch
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMatch(row scanner) (ArchivedMatch, error) {
	var (
		m                     ArchivedMatch
		outcome, winner       string
		started, ended        int64
		divergences, eventsJS string
	)
	if err := row.Scan(&m.MatchID, &m.Room, &outcome, &winner, &m.Steps, &started, &ended, &divergences, &eventsJS); err != nil {
		return ArchivedMatch{}, err
	}
	m.Outcome = models.Outcome(outcome)
	m.Winner = models.Team(winner)
	m.StartedAt = fromMillis(started)
	m.EndedAt = fromMillis(ended)
	if err := json.Unmarshal([]byte(divergences), &m.Divergences); err != nil {
		return ArchivedMatch{}, fmt.Errorf("decode divergences: %w", err)
	}
	m.Events = json.RawMessage(eventsJS)
	return m, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilEvents(e []models.Event) []models.Event {
	if e == nil {
		return []models.Event{}
	}
	return e
}
