package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hive-corporation/iocscope/internal/core/domain"
)

const schema = `
	CREATE TABLE IF NOT EXISTS ioc_lookups (
		id           UUID PRIMARY KEY,
		ioc          TEXT NOT NULL,
		type         TEXT NOT NULL,
		was_defanged BOOLEAN NOT NULL DEFAULT FALSE,
		results      JSONB NOT NULL,
		summary      JSONB NOT NULL DEFAULT '{}',
		timestamp    TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS ioc_lookups_timestamp_idx ON ioc_lookups (timestamp DESC);
`

// ErrNotFound is returned when a lookup id is unknown.
var ErrNotFound = errors.New("lookup not found")

const selectColumns = `SELECT id, ioc, type, was_defanged, results, summary, timestamp FROM ioc_lookups`

type PostgresRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Connect opens a pool and pings it, retrying with exponential backoff while the
// database is still starting up.
func Connect(ctx context.Context, databaseURL string, maxWait time.Duration) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = maxWait

	err = backoff.Retry(func() error {
		return pool.Ping(ctx)
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("database not reachable: %w", err)
	}

	return pool, nil
}

// EnsureSchema creates the lookup table if it does not exist yet.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Save(ctx context.Context, record domain.LookupRecord) error {
	results, err := json.Marshal(record.Result)
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	summary, err := json.Marshal(record.Summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}

	query := `
		INSERT INTO ioc_lookups (id, ioc, type, was_defanged, results, summary, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.db.Exec(ctx, query,
		record.ID,
		record.Indicator,
		string(record.Type),
		record.WasDefanged,
		results,
		summary,
		record.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert lookup: %w", err)
	}

	return nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (domain.LookupRecord, error) {
	rows, err := r.db.Query(ctx, selectColumns+` WHERE id = $1`, id)
	if err != nil {
		return domain.LookupRecord{}, fmt.Errorf("failed to query lookup: %w", err)
	}

	records, err := collectRecords(rows)
	if err != nil {
		return domain.LookupRecord{}, err
	}
	if len(records) == 0 {
		return domain.LookupRecord{}, ErrNotFound
	}
	return records[0], nil
}

func (r *PostgresRepository) List(ctx context.Context, offset, limit int) ([]domain.LookupRecord, error) {
	query := selectColumns + `
		ORDER BY timestamp DESC
		OFFSET $1
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query lookups: %w", err)
	}

	return collectRecords(rows)
}

func (r *PostgresRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM ioc_lookups`).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count lookups: %w", err)
	}
	return total, nil
}

func (r *PostgresRepository) Prune(ctx context.Context, keep int) (int, error) {
	query := `
		DELETE FROM ioc_lookups
		WHERE id NOT IN (
			SELECT id FROM ioc_lookups
			ORDER BY timestamp DESC
			LIMIT $1
		)
	`

	tag, err := r.db.Exec(ctx, query, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune lookups: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

func (r *PostgresRepository) FindSince(ctx context.Context, since time.Time, limit int) ([]domain.LookupRecord, error) {
	query := selectColumns + `
		WHERE timestamp >= $1
		ORDER BY timestamp DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query lookups since %v: %w", since, err)
	}

	return collectRecords(rows)
}

func collectRecords(rows pgx.Rows) ([]domain.LookupRecord, error) {
	defer rows.Close()

	records := []domain.LookupRecord{}

	for rows.Next() {
		var (
			record  domain.LookupRecord
			iocType string
			results []byte
			summary []byte
		)
		err := rows.Scan(
			&record.ID,
			&record.Indicator,
			&iocType,
			&record.WasDefanged,
			&results,
			&summary,
			&record.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lookup: %w", err)
		}

		record.Type = domain.IndicatorType(iocType)
		if err := json.Unmarshal(results, &record.Result); err != nil {
			return nil, fmt.Errorf("failed to decode results for %s: %w", record.ID, err)
		}
		if err := json.Unmarshal(summary, &record.Summary); err != nil {
			return nil, fmt.Errorf("failed to decode summary for %s: %w", record.ID, err)
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}
