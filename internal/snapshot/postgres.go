package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const schema = `
CREATE TABLE IF NOT EXISTS opportunity_snapshots (
	id            UUID PRIMARY KEY,
	taken_at      TIMESTAMPTZ NOT NULL,
	opportunities JSONB NOT NULL
)`

// PostgresSink stores each snapshot as one row and prunes all but the newest keep.
type PostgresSink struct {
	db   *sqlx.DB
	keep int
}

type snapshotRow struct {
	ID            uuid.UUID `db:"id"`
	TakenAt       time.Time `db:"taken_at"`
	Opportunities []byte    `db:"opportunities"`
}

func NewPostgresSink(db *sqlx.DB, keep int) *PostgresSink {
	if keep <= 0 {
		keep = DefaultKeep
	}
	return &PostgresSink{db: db, keep: keep}
}

// EnsureSchema creates the snapshot table if it is missing.
func (p *PostgresSink) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create snapshot table: %w", err)
	}
	return nil
}

func (p *PostgresSink) Save(ctx context.Context, s Snapshot) error {
	data, err := json.Marshal(s.Opportunities)
	if err != nil {
		return fmt.Errorf("failed to marshal opportunities: %w", err)
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO opportunity_snapshots (id, taken_at, opportunities) VALUES ($1, $2, $3)`,
		s.ID, s.Timestamp, data); err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM opportunity_snapshots WHERE id NOT IN (
			SELECT id FROM opportunity_snapshots ORDER BY taken_at DESC LIMIT $1)`,
		p.keep); err != nil {
		return fmt.Errorf("failed to prune snapshots: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

func (p *PostgresSink) Latest(ctx context.Context) (*Snapshot, error) {
	var row snapshotRow
	err := p.db.GetContext(ctx, &row,
		`SELECT id, taken_at, opportunities FROM opportunity_snapshots ORDER BY taken_at DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest snapshot: %w", err)
	}

	s := &Snapshot{ID: row.ID, Timestamp: row.TakenAt.UTC()}
	if err := json.Unmarshal(row.Opportunities, &s.Opportunities); err != nil {
		return nil, fmt.Errorf("failed to unmarshal opportunities: %w", err)
	}
	return s, nil
}

func (p *PostgresSink) Close() error {
	return p.db.Close()
}
