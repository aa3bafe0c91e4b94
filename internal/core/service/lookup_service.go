package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hive-corporation/iocscope/internal/core/domain"
	"github.com/hive-corporation/iocscope/internal/core/ports"
)

// ErrNoIndicators is returned when the submitted text contains nothing classifiable.
var ErrNoIndicators = errors.New("no valid IOCs detected")

// IndicatorResult is one looked-up indicator as returned to API callers.
type IndicatorResult struct {
	domain.AggregatedResult
	WasDefanged bool           `json:"was_defanged"`
	Summary     domain.Summary `json:"summary"`
}

type LookupReport struct {
	Results []IndicatorResult `json:"results"`
}

type HistoryPage struct {
	Count      int                   `json:"count"`
	Total      int                   `json:"total"`
	Page       int                   `json:"page"`
	PerPage    int                   `json:"per_page"`
	TotalPages int                   `json:"total_pages"`
	History    []domain.LookupRecord `json:"history"`
}

type Stats struct {
	TotalLookups int `json:"total_lookups"`
}

// LookupService ties extraction, aggregation and history together.
type LookupService struct {
	aggregator   *Aggregator
	repo         ports.LookupRepository
	publishers   []ports.ResultPublisher
	indicators   ports.IndicatorRecorder
	concurrency  int
	historyLimit int
	now          func() time.Time
	logger       *slog.Logger
}

type Option func(*LookupService)

// WithPublisher sends every finished lookup to p. It may be given more than once.
// Publish errors are logged and ignored.
func WithPublisher(p ports.ResultPublisher) Option {
	return func(s *LookupService) { s.publishers = append(s.publishers, p) }
}

// WithIndicatorRecorder reports every aggregated indicator to r.
func WithIndicatorRecorder(r ports.IndicatorRecorder) Option {
	return func(s *LookupService) { s.indicators = r }
}

// WithConcurrency limits how many indicators of one request are aggregated at once.
func WithConcurrency(n int) Option {
	return func(s *LookupService) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithHistoryLimit caps the number of stored lookups. Zero or less keeps everything.
func WithHistoryLimit(n int) Option {
	return func(s *LookupService) { s.historyLimit = n }
}

func WithClock(now func() time.Time) Option {
	return func(s *LookupService) { s.now = now }
}

func WithServiceLogger(l *slog.Logger) Option {
	return func(s *LookupService) { s.logger = l }
}

func NewLookupService(aggregator *Aggregator, repo ports.LookupRepository, opts ...Option) *LookupService {
	s := &LookupService{
		aggregator:   aggregator,
		repo:         repo,
		concurrency:  4,
		historyLimit: 150,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LookupService) Extract(text string) []domain.IndicatorToken {
	return domain.ExtractIndicators(text)
}

// Lookup extracts indicators from text and aggregates each of them. Results keep the
// extraction order. Persisting and publishing are best effort and never fail the lookup.
func (s *LookupService) Lookup(ctx context.Context, text string) (*LookupReport, error) {
	tokens := domain.ExtractIndicators(text)
	if len(tokens) == 0 {
		return nil, ErrNoIndicators
	}

	results := make([]IndicatorResult, len(tokens))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, tok := range tokens {
		g.Go(func() error {
			aggregated := s.aggregator.Lookup(gctx, tok.Value, tok.Type)
			summary := domain.Summarize(aggregated)
			results[i] = IndicatorResult{
				AggregatedResult: aggregated,
				WasDefanged:      tok.WasDefanged,
				Summary:          summary,
			}
			if s.indicators != nil {
				s.indicators.RecordIndicator(tok.Type, summary.Flagged > 0)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("lookup cancelled: %w", err)
	}

	for i, tok := range tokens {
		s.record(ctx, tok, results[i])
	}

	return &LookupReport{Results: results}, nil
}

func (s *LookupService) record(ctx context.Context, tok domain.IndicatorToken, result IndicatorResult) {
	record := domain.LookupRecord{
		ID:          uuid.NewString(),
		Indicator:   tok.Value,
		Type:        tok.Type,
		WasDefanged: tok.WasDefanged,
		Result:      result.AggregatedResult,
		Summary:     result.Summary,
		Timestamp:   s.now().UTC(),
	}

	if s.repo != nil {
		if err := s.repo.Save(ctx, record); err != nil {
			s.logger.Error("failed to save lookup", "ioc", tok.Value, "error", err)
		}
	}

	for _, pub := range s.publishers {
		if err := pub.Publish(ctx, record); err != nil {
			s.logger.Warn("failed to publish lookup", "ioc", tok.Value, "error", err)
		}
	}
}

// History prunes the store down to the history limit, then returns one page, newest first.
func (s *LookupService) History(ctx context.Context, page, perPage int) (*HistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}

	if s.historyLimit > 0 {
		removed, err := s.repo.Prune(ctx, s.historyLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to enforce history limit: %w", err)
		}
		if removed > 0 {
			s.logger.Info("pruned lookup history", "removed", removed, "limit", s.historyLimit)
		}
	}

	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count history: %w", err)
	}

	records, err := s.repo.List(ctx, (page-1)*perPage, perPage)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	return &HistoryPage{
		Count:      len(records),
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: (total + perPage - 1) / perPage,
		History:    records,
	}, nil
}

// Get returns one stored lookup by id.
func (s *LookupService) Get(ctx context.Context, id string) (domain.LookupRecord, error) {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return domain.LookupRecord{}, fmt.Errorf("failed to load lookup %s: %w", id, err)
	}
	return record, nil
}

func (s *LookupService) Stats(ctx context.Context) (*Stats, error) {
	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count lookups: %w", err)
	}
	return &Stats{TotalLookups: total}, nil
}

// Since returns stored lookups newer than since, newest first, for the export feeds.
func (s *LookupService) Since(ctx context.Context, since time.Time, limit int) ([]domain.LookupRecord, error) {
	records, err := s.repo.FindSince(ctx, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load lookups since %s: %w", since.Format(time.RFC3339), err)
	}
	return records, nil
}
