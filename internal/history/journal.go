// Package history keeps an append-only SQLite journal of the states the
// bridge pushes to Home Assistant.
//
// The journal is an audit trail only. It is never read back into the
// bridge's device registry, so a restart always begins from the static
// device list.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	defaultLimit = 50
	maxLimit     = 500

	// timeLayout is fixed-width so observed_at sorts lexically.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// ErrEntityRequired is returned when an entity id is empty.
var ErrEntityRequired = errors.New("history: entity id is required")

// Entry is one journal row.
type Entry struct {
	ID         int64     `json:"id"`
	Kind       string    `json:"kind"`
	EntityID   string    `json:"entity_id"`
	On         bool      `json:"on"`
	ObservedAt time.Time `json:"observed_at"`
}

// Logger is the subset of the structured logger used by the pruner.
type Logger interface {
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
}

// Journal stores state pushes in the state_journal table.
//
// Thread Safety: safe for concurrent use; serialisation is left to the
// database connection pool.
type Journal struct {
	db *sql.DB
}

// NewJournal creates a journal over an open database whose migrations
// have been applied.
func NewJournal(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// RecordState appends one state push.
//
// Parameters:
//   - kind: "binary_sensor" or "switch"
//   - entityID: external id or switch unique id
//   - on: pushed state
//   - at: observation time (stored as UTC)
func (j *Journal) RecordState(ctx context.Context, kind, entityID string, on bool, at time.Time) error {
	if entityID == "" {
		return ErrEntityRequired
	}

	_, err := j.db.ExecContext(ctx,
		"INSERT INTO state_journal (kind, entity_id, is_on, observed_at) VALUES (?, ?, ?, ?)",
		kind,
		entityID,
		boolToInt(on),
		at.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting journal entry: %w", err)
	}
	return nil
}

// History returns the most recent entries for an entity, newest first.
// limit defaults to 50 and is capped at 500.
func (j *Journal) History(ctx context.Context, entityID string, limit int) ([]Entry, error) {
	if entityID == "" {
		return nil, ErrEntityRequired
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, kind, entity_id, is_on, observed_at
		 FROM state_journal
		 WHERE entity_id = ?
		 ORDER BY observed_at DESC, id DESC
		 LIMIT ?`,
		entityID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var isOn int
		var observed string
		if err := rows.Scan(&e.ID, &e.Kind, &e.EntityID, &isOn, &observed); err != nil {
			return nil, fmt.Errorf("scanning journal entry: %w", err)
		}
		e.On = isOn != 0
		e.ObservedAt, err = time.Parse(timeLayout, observed)
		if err != nil {
			return nil, fmt.Errorf("parsing observed_at %q: %w", observed, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal: %w", err)
	}
	return entries, nil
}

// Prune deletes entries observed before now-olderThan and returns how many
// rows were removed.
func (j *Journal) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(timeLayout)
	result, err := j.db.ExecContext(ctx, "DELETE FROM state_journal WHERE observed_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning journal: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// RunPruner prunes the journal every interval until ctx is cancelled.
// A retention of zero or less disables pruning.
func (j *Journal) RunPruner(ctx context.Context, interval, retention time.Duration, logger Logger) {
	if retention <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := j.Prune(ctx, retention)
			if err != nil {
				logger.Warn("journal prune failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("journal pruned", "rows", n, "retention", retention.String())
			}
		}
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
