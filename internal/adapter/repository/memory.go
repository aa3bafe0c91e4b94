package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hive-corporation/iocscope/internal/core/domain"
)

// MemoryRepository keeps lookups in process memory. Used when no database is configured.
type MemoryRepository struct {
	mu      sync.RWMutex
	records []domain.LookupRecord // newest first
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Save(_ context.Context, record domain.LookupRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// insert keeping timestamp order, newest first; equal timestamps keep arrival order
	i := sort.Search(len(r.records), func(i int) bool {
		return r.records[i].Timestamp.Before(record.Timestamp)
	})
	r.records = append(r.records, domain.LookupRecord{})
	copy(r.records[i+1:], r.records[i:])
	r.records[i] = record

	return nil
}

func (r *MemoryRepository) FindByID(_ context.Context, id string) (domain.LookupRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, record := range r.records {
		if record.ID == id {
			return record, nil
		}
	}
	return domain.LookupRecord{}, ErrNotFound
}

func (r *MemoryRepository) List(_ context.Context, offset, limit int) ([]domain.LookupRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if offset < 0 {
		offset = 0
	}
	if offset >= len(r.records) {
		return []domain.LookupRecord{}, nil
	}
	end := len(r.records)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	out := make([]domain.LookupRecord, end-offset)
	copy(out, r.records[offset:end])
	return out, nil
}

func (r *MemoryRepository) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records), nil
}

func (r *MemoryRepository) Prune(_ context.Context, keep int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if keep < 0 {
		keep = 0
	}
	if len(r.records) <= keep {
		return 0, nil
	}
	removed := len(r.records) - keep
	r.records = r.records[:keep:keep]
	return removed, nil
}

func (r *MemoryRepository) FindSince(_ context.Context, since time.Time, limit int) ([]domain.LookupRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []domain.LookupRecord{}
	for _, record := range r.records {
		if record.Timestamp.Before(since) {
			break
		}
		out = append(out, record)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
