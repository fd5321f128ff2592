// Package catalog maintains the exchange symbol list the dashboard offers
// for configuration: a TTL-cached copy of the exchange's tradable pairs with
// layered fallbacks, so the settings UI keeps working through upstream or
// cache outages.
package catalog

import (
	"context"
	"sync"
	"time"

	"autobot-dashboard/internal/cache"

	"github.com/rs/zerolog"
)

// Cache keys: the fresh copy expires after the TTL; the last-good copy is
// kept without expiry and served when the upstream is unreachable.
const (
	keyFresh    = "exinfo"
	keyLastGood = "exinfo:last"
)

// Futures intervals are fixed; the exchange does not publish them.
var fixedIntervals = []string{"1m", "3m", "5m", "15m", "30m", "1h", "2h", "4h", "6h", "12h", "1d"}

// Minimal fallback so the UI never renders an empty symbol picker.
var minimalSymbols = []string{"BTCUSDT", "ETHUSDT"}

// Listing is the symbol/interval catalog handed to the dashboard. Cache and
// Fallback flag where the data came from; OK is always 1 since the chain
// cannot fail outright.
type Listing struct {
	OK        int      `json:"ok"`
	Symbols   []string `json:"symbols"`
	Intervals []string `json:"intervals"`
	Cache     int      `json:"cache,omitempty"`
	Fallback  int      `json:"fallback,omitempty"`
}

// Fetcher retrieves the live symbol list.
type Fetcher interface {
	FetchSymbols(ctx context.Context) ([]string, error)
}

// Service resolves the catalog in order: fresh cache, live fetch, last-good
// cache, built-in minimum. A Redis outage narrows the chain but never breaks
// it; the service keeps the last successful listing in memory as well.
type Service struct {
	fetcher Fetcher
	cache   *cache.Service // nil when Redis is disabled
	ttl     time.Duration
	log     zerolog.Logger

	mu       sync.RWMutex
	lastGood []string
}

// NewService creates the catalog service. cacheService may be nil.
func NewService(fetcher Fetcher, cacheService *cache.Service, ttl time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		fetcher: fetcher,
		cache:   cacheService,
		ttl:     ttl,
		log:     logger.With().Str("component", "catalog").Logger(),
	}
}

// Listing returns the current catalog. It never returns an error: every
// failure path degrades to older or built-in data.
func (s *Service) Listing(ctx context.Context) *Listing {
	if symbols := s.cachedFresh(ctx); symbols != nil {
		return &Listing{OK: 1, Symbols: symbols, Intervals: fixedIntervals, Cache: 1}
	}

	symbols, err := s.fetcher.FetchSymbols(ctx)
	if err == nil {
		s.store(ctx, symbols)
		return &Listing{OK: 1, Symbols: symbols, Intervals: fixedIntervals}
	}
	s.log.Warn().Err(err).Msg("symbol fetch failed, serving fallback")

	if symbols := s.cachedLastGood(ctx); symbols != nil {
		return &Listing{OK: 1, Symbols: symbols, Intervals: fixedIntervals, Cache: 1}
	}
	return &Listing{OK: 1, Symbols: minimalSymbols, Intervals: fixedIntervals, Fallback: 1}
}

func (s *Service) cachedFresh(ctx context.Context) []string {
	if s.cache == nil {
		return nil
	}
	var symbols []string
	if err := s.cache.GetJSON(ctx, keyFresh, &symbols); err != nil || len(symbols) == 0 {
		return nil
	}
	return symbols
}

func (s *Service) cachedLastGood(ctx context.Context) []string {
	if s.cache != nil {
		var symbols []string
		if err := s.cache.GetJSON(ctx, keyLastGood, &symbols); err == nil && len(symbols) > 0 {
			return symbols
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.lastGood) > 0 {
		return s.lastGood
	}
	return nil
}

func (s *Service) store(ctx context.Context, symbols []string) {
	s.mu.Lock()
	s.lastGood = symbols
	s.mu.Unlock()

	if s.cache == nil {
		return
	}
	if err := s.cache.SetJSON(ctx, keyFresh, symbols, s.ttl); err != nil {
		s.log.Debug().Err(err).Msg("fresh cache write skipped")
	}
	if err := s.cache.SetJSON(ctx, keyLastGood, symbols, 0); err != nil {
		s.log.Debug().Err(err).Msg("last-good cache write skipped")
	}
}
