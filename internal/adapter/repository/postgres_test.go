package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/hive-corporation/iocscope/internal/core/domain"
)

// newTestPostgres connects to TEST_DATABASE_URL and starts from an empty table.
func newTestPostgres(t *testing.T) *PostgresRepository {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := Connect(ctx, dbURL, 5*time.Second)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(pool.Close)

	repo := NewPostgresRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE ioc_lookups`); err != nil {
		t.Fatalf("truncate failed: %v", err)
	}
	return repo
}

func TestPostgresRepositoryRoundTrip(t *testing.T) {
	repo := newTestPostgres(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 3; i++ {
		record := domain.LookupRecord{
			ID:          uuid.NewString(),
			Indicator:   "evil.com",
			Type:        domain.Domain,
			WasDefanged: i == 0,
			Result: domain.AggregatedResult{
				Indicator: "evil.com",
				Type:      domain.Domain,
				Sources: map[domain.SourceName]domain.LookupOutcome{
					domain.SourceVirusTotal: domain.FailedMessage("HTTP 404"),
				},
			},
			Summary:   domain.Summary{Queried: 1, Failed: 1},
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		}
		if err := repo.Save(ctx, record); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		ids = append(ids, record.ID)
	}

	got, err := repo.FindByID(ctx, ids[0])
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if !got.WasDefanged || got.Summary.Failed != 1 || got.Result.Sources[domain.SourceVirusTotal].Error != "HTTP 404" {
		t.Errorf("record did not round-trip: %+v", got)
	}

	if _, err := repo.FindByID(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindByID unknown id error = %v, want ErrNotFound", err)
	}

	page, err := repo.List(ctx, 0, 2)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	var pageIDs []string
	for _, r := range page {
		pageIDs = append(pageIDs, r.ID)
	}
	if diff := cmp.Diff([]string{ids[2], ids[1]}, pageIDs); diff != "" {
		t.Errorf("List order mismatch (-want +got):\n%s", diff)
	}

	since, err := repo.FindSince(ctx, base.Add(30*time.Minute), 10)
	if err != nil || len(since) != 2 {
		t.Errorf("FindSince = %d records, %v", len(since), err)
	}

	removed, err := repo.Prune(ctx, 1)
	if err != nil || removed != 2 {
		t.Errorf("Prune = %d, %v; want 2", removed, err)
	}
	if n, _ := repo.Count(ctx); n != 1 {
		t.Errorf("Count after prune = %d, want 1", n)
	}
}
