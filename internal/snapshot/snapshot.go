package snapshot

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/suwandre/fundingarb/internal/models"
)

// ErrNoSnapshot means nothing has been saved yet.
var ErrNoSnapshot = errors.New("no data yet")

const DefaultKeep = 10

// Snapshot is one saved, ranked opportunity list.
type Snapshot struct {
	ID            uuid.UUID                   `json:"id"`
	Timestamp     time.Time                   `json:"timestamp"`
	Opportunities []models.FundingOpportunity `json:"opportunities"`
}

func New(opps []models.FundingOpportunity, at time.Time) Snapshot {
	return Snapshot{
		ID:            uuid.New(),
		Timestamp:     at.UTC(),
		Opportunities: opps,
	}
}

// Sink stores snapshots and keeps only the most recent few.
type Sink interface {
	Save(ctx context.Context, s Snapshot) error
	// Latest returns ErrNoSnapshot when nothing has been saved.
	Latest(ctx context.Context) (*Snapshot, error)
	Close() error
}
