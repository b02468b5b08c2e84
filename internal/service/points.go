package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-tour/internal/logging"
	"github.com/joeblew999/plat-tour/internal/metrics"
)

// PointSource answers resource queries for one category.
type PointSource interface {
	FetchPoints(ctx context.Context, category Category, filters Filters) ([]PointRecord, error)
}

// RemotePointSource queries the resource service at
// {base}/{category}/results/filter.
type RemotePointSource struct {
	up       *upstream
	language string
}

// NewRemotePointSource creates a client for the resource query service.
func NewRemotePointSource(baseURL, language string, opts UpstreamOptions) *RemotePointSource {
	if language == "" {
		language = "es"
	}
	return &RemotePointSource{
		up:       newUpstream("resources", baseURL, opts),
		language: language,
	}
}

// FetchPoints returns the records matching filters. Records whose collection
// label is not a known category are tagged with the queried category.
func (s *RemotePointSource) FetchPoints(ctx context.Context, category Category, filters Filters) ([]PointRecord, error) {
	q := url.Values{}
	for k, v := range filters {
		q.Set(k, v)
	}
	q.Set("idioma", s.language)

	body, err := s.up.get(ctx, "/"+url.PathEscape(string(category))+"/results/filter", q)
	if err != nil {
		return nil, err
	}

	var records []PointRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("decode %s results: %w", category, err)
	}
	for i := range records {
		if c, err := ParseCategory(string(records[i].Category)); err == nil {
			records[i].Category = c
		} else {
			records[i].Category = category
		}
	}
	return records, nil
}

// BreakerState reports the circuit breaker state.
func (s *RemotePointSource) BreakerState() string {
	return s.up.State()
}

// CachedPointSource memoizes another PointSource per (category, filters).
type CachedPointSource struct {
	next  PointSource
	cache Cache
	ttl   time.Duration
	log   zerolog.Logger
}

// NewCachedPointSource wraps next with cache.
func NewCachedPointSource(next PointSource, cache Cache, ttl time.Duration) *CachedPointSource {
	return &CachedPointSource{
		next:  next,
		cache: cache,
		ttl:   ttl,
		log:   logging.Component("points-cache"),
	}
}

// CacheKey identifies a query. Filters are encoded as a JSON object so key
// order does not matter.
func CacheKey(category Category, filters Filters) string {
	if filters == nil {
		filters = Filters{}
	}
	key, _ := json.Marshal(struct {
		Category Category `json:"category"`
		Filters  Filters  `json:"filters"`
	}{category, filters})
	return "points:" + string(key)
}

// FetchPoints serves from the cache when possible. Cache errors fall through
// to the wrapped source.
func (s *CachedPointSource) FetchPoints(ctx context.Context, category Category, filters Filters) ([]PointRecord, error) {
	key := CacheKey(category, filters)

	raw, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		var records []PointRecord
		if jerr := json.Unmarshal([]byte(raw), &records); jerr == nil {
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return records, nil
		}
		metrics.CacheLookups.WithLabelValues("error").Inc()
	case errors.Is(err, ErrCacheMiss):
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	default:
		metrics.CacheLookups.WithLabelValues("error").Inc()
		s.log.Warn().Err(err).Str("key", key).Msg("cache lookup failed")
	}

	records, err := s.next.FetchPoints(ctx, category, filters)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, records, s.ttl); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("cache store failed")
	}
	return records, nil
}
