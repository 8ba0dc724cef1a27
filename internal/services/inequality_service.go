package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"ineqmx/internal/config"
	"ineqmx/internal/dataset"
	apperrors "ineqmx/internal/errors"
	"ineqmx/internal/exporter"
	"ineqmx/internal/inequality"
	"ineqmx/internal/infrastructure"
)

// ObservationLoader reads the cleaned ENIGH observations of a survey year.
type ObservationLoader interface {
	LoadObservations(ctx context.Context, year int) ([]inequality.Observation, error)
}

// InequalityReport is the computed table of one year and level.
type InequalityReport struct {
	Year        int                 `json:"year"`
	Level       dataset.Level       `json:"level"`
	Groups      int                 `json:"groups"`
	Results     []inequality.Result `json:"results"`
	GeneratedAt time.Time           `json:"generated_at"`
	Cached      bool                `json:"cached"`
}

// InequalityService computes Gini and decile tables on demand and keeps them
// in an expiring in-memory cache.
type InequalityService struct {
	loader   ObservationLoader
	pipeline config.PipelineConfig
	cache    *cache.Cache
	flight   singleflight.Group
	metrics  *infrastructure.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewInequalityService creates the service. A non-positive ttl keeps entries
// until Invalidate is called.
func NewInequalityService(loader ObservationLoader, pipeline config.PipelineConfig, ttl time.Duration, metrics *infrastructure.Metrics, logger *slog.Logger) *InequalityService {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	cleanup := ttl * 2
	if ttl <= 0 {
		ttl = cache.NoExpiration
		cleanup = 0
	}
	return &InequalityService{
		loader:   loader,
		pipeline: pipeline,
		cache:    cache.New(ttl, cleanup),
		metrics:  metrics,
		logger:   infrastructure.WithComponent(logger, "inequality_service"),
		now:      time.Now,
	}
}

func cacheKey(year int, level dataset.Level) string {
	return fmt.Sprintf("%d/%s", year, level)
}

// Results returns the inequality table of year at level, computing it from the
// tidy ENIGH file on a cache miss. Concurrent misses for the same key share one
// computation.
func (s *InequalityService) Results(ctx context.Context, year int, level dataset.Level) (*InequalityReport, error) {
	if year < 1990 || year > 2100 {
		return nil, apperrors.NewAppValidationError("year out of range").WithContext("year", year)
	}
	key := cacheKey(year, level)

	if cached, ok := s.cache.Get(key); ok {
		s.metrics.RecordCacheLookup(ctx, true)
		report := *cached.(*InequalityReport)
		report.Cached = true
		return &report, nil
	}
	s.metrics.RecordCacheLookup(ctx, false)

	v, err, shared := s.flight.Do(key, func() (interface{}, error) {
		report, err := s.compute(ctx, year, level)
		if err != nil {
			return nil, err
		}
		s.cache.SetDefault(key, report)
		return report, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.DebugContext(ctx, "shared result computation", slog.String("key", key))
	}
	report := *v.(*InequalityReport)
	return &report, nil
}

func (s *InequalityService) compute(ctx context.Context, year int, level dataset.Level) (*InequalityReport, error) {
	ctx, span := infrastructure.StartSpan(ctx, "inequality.compute",
		attribute.Int("year", year),
		attribute.String("level", string(level)))
	defer span.End()

	start := time.Now()
	obs, err := s.loader.LoadObservations(ctx, year)
	if err != nil {
		infrastructure.RecordError(ctx, err)
		return nil, err
	}

	opts := []inequality.Option{inequality.WithLogger(s.logger)}
	if level == dataset.LevelMunicipal && s.pipeline.MinMunicipalObs > 0 {
		opts = append(opts, inequality.WithMinObservations(s.pipeline.MinMunicipalObs))
	}
	grouped, err := inequality.AggregateByGroup(ctx, obs, exporter.KeyFunc(level), opts...)
	if err != nil {
		infrastructure.RecordError(ctx, err)
		return nil, err
	}
	s.metrics.RecordGroups(ctx, string(level), len(grouped))

	s.logger.InfoContext(ctx, "computed inequality table",
		slog.Int("year", year),
		slog.String("level", string(level)),
		slog.Int("observations", len(obs)),
		slog.Int("groups", len(grouped)),
		slog.Duration("duration", time.Since(start)))

	return &InequalityReport{
		Year:        year,
		Level:       level,
		Groups:      len(grouped),
		Results:     inequality.SortedResults(grouped),
		GeneratedAt: s.now(),
	}, nil
}

// Invalidate drops every cached table.
func (s *InequalityService) Invalidate() {
	n := s.cache.ItemCount()
	s.cache.Flush()
	s.logger.Info("result cache flushed", slog.Int("entries", n))
}

// CachedEntries reports how many tables are currently cached.
func (s *InequalityService) CachedEntries() int {
	return s.cache.ItemCount()
}
