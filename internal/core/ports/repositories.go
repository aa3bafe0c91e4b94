package ports

import (
	"context"
	"time"

	"github.com/hive-corporation/iocscope/internal/core/domain"
)

// LookupRepository persists aggregated lookups for the history views and feeds.
type LookupRepository interface {
	Save(ctx context.Context, record domain.LookupRecord) error
	// FindByID returns repository.ErrNotFound when no record has the id.
	FindByID(ctx context.Context, id string) (domain.LookupRecord, error)
	List(ctx context.Context, offset, limit int) ([]domain.LookupRecord, error)
	Count(ctx context.Context) (int, error)
	// Prune deletes all but the newest keep records and returns how many were removed.
	Prune(ctx context.Context, keep int) (int, error)
	FindSince(ctx context.Context, since time.Time, limit int) ([]domain.LookupRecord, error)
}

// ResultPublisher fans finished results out to other consumers.
type ResultPublisher interface {
	Publish(ctx context.Context, record domain.LookupRecord) error
	Close() error
}
