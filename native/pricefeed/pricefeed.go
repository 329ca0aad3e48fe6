// Package pricefeed tracks collateral price quotes from multiple sources and
// gates them on freshness. It serves the redemption payout path only; the
// accounting engines never read prices.
package pricefeed

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	// ErrNoQuote indicates that no source has reported the pair yet.
	ErrNoQuote = errors.New("pricefeed: no quote recorded")
	// ErrStaleQuote indicates that every recorded quote fell outside the
	// freshness window.
	ErrStaleQuote = errors.New("pricefeed: quote outside freshness window")
	// ErrInsufficientFeeds indicates that fewer live sources reported than the
	// configured minimum.
	ErrInsufficientFeeds = errors.New("pricefeed: not enough live feeds")
)

// Quote captures an exchange rate reported by one source together with the
// observation timestamp.
type Quote struct {
	Rate      *big.Rat
	Timestamp time.Time
	Source    string
}

// Clone returns a deep copy of the quote to prevent accidental mutations.
func (q Quote) Clone() Quote {
	clone := Quote{Timestamp: q.Timestamp, Source: q.Source}
	if q.Rate != nil {
		clone.Rate = new(big.Rat).Set(q.Rate)
	}
	return clone
}

// RateString renders the rate using the supplied precision.
func (q Quote) RateString(precision int) string {
	if q.Rate == nil {
		return ""
	}
	if precision < 0 {
		precision = 18
	}
	return q.Rate.FloatString(precision)
}

const defaultMaxQuoteAge = 2 * time.Minute

// Manager aggregates the latest quote per source for each tracked pair and
// answers with the median of the fresh ones.
type Manager struct {
	mu       sync.RWMutex
	maxAge   time.Duration
	minFeeds int
	now      func() time.Time
	quotes   map[string]map[string]Quote
}

// NewManager constructs a feed manager. A non-positive maxAge falls back to
// the default window; minFeeds below one is coerced to one.
func NewManager(maxAge time.Duration, minFeeds int) *Manager {
	if maxAge <= 0 {
		maxAge = defaultMaxQuoteAge
	}
	if minFeeds < 1 {
		minFeeds = 1
	}
	return &Manager{
		maxAge:   maxAge,
		minFeeds: minFeeds,
		now:      time.Now,
		quotes:   make(map[string]map[string]Quote),
	}
}

// SetClock overrides the time source. Used by tests.
func (m *Manager) SetClock(now func() time.Time) {
	if m == nil || now == nil {
		return
	}
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

func pairKey(base, quote string) string {
	return normaliseSymbol(base) + ":" + normaliseSymbol(quote)
}

func normaliseSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Record stores the latest quote from one source for the pair, replacing any
// earlier observation from the same source.
func (m *Manager) Record(base, quote string, q Quote) error {
	if m == nil {
		return fmt.Errorf("pricefeed: manager not configured")
	}
	baseSym := normaliseSymbol(base)
	quoteSym := normaliseSymbol(quote)
	if baseSym == "" || quoteSym == "" {
		return fmt.Errorf("pricefeed: base and quote required")
	}
	if q.Rate == nil || q.Rate.Sign() <= 0 {
		return fmt.Errorf("pricefeed: rate must be positive")
	}
	source := strings.ToLower(strings.TrimSpace(q.Source))
	if source == "" {
		return fmt.Errorf("pricefeed: source required")
	}
	sample := q.Clone()
	sample.Source = source
	if sample.Timestamp.IsZero() {
		m.mu.RLock()
		sample.Timestamp = m.now().UTC()
		m.mu.RUnlock()
	} else {
		sample.Timestamp = sample.Timestamp.UTC()
	}
	key := pairKey(baseSym, quoteSym)
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket := m.quotes[key]
	if bucket == nil {
		bucket = make(map[string]Quote)
		m.quotes[key] = bucket
	}
	bucket[source] = sample
	return nil
}

func (m *Manager) freshLocked(key string) ([]Quote, error) {
	bucket := m.quotes[key]
	if len(bucket) == 0 {
		return nil, ErrNoQuote
	}
	cutoff := m.now().UTC().Add(-m.maxAge)
	fresh := make([]Quote, 0, len(bucket))
	for _, sample := range bucket {
		if sample.Timestamp.Before(cutoff) {
			continue
		}
		fresh = append(fresh, sample)
	}
	if len(fresh) == 0 {
		return nil, ErrStaleQuote
	}
	if len(fresh) < m.minFeeds {
		return nil, ErrInsufficientFeeds
	}
	return fresh, nil
}

// Latest returns the median rate across all fresh sources for the pair. The
// returned timestamp is the newest contributing observation.
func (m *Manager) Latest(base, quote string) (Quote, error) {
	if m == nil {
		return Quote{}, fmt.Errorf("pricefeed: manager not configured")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	fresh, err := m.freshLocked(pairKey(base, quote))
	if err != nil {
		return Quote{}, err
	}
	if len(fresh) == 1 {
		return fresh[0].Clone(), nil
	}

	values := make([]*big.Rat, 0, len(fresh))
	newest := fresh[0].Timestamp
	sources := make([]string, 0, len(fresh))
	for _, sample := range fresh {
		values = append(values, new(big.Rat).Set(sample.Rate))
		if sample.Timestamp.After(newest) {
			newest = sample.Timestamp
		}
		sources = append(sources, sample.Source)
	}
	sort.Slice(values, func(i, j int) bool {
		return values[i].Cmp(values[j]) < 0
	})
	mid := len(values) / 2
	median := new(big.Rat).Set(values[mid])
	if len(values)%2 == 0 {
		median.Add(values[mid-1], values[mid])
		median.Quo(median, big.NewRat(2, 1))
	}
	sort.Strings(sources)
	return Quote{
		Rate:      median,
		Timestamp: newest,
		Source:    strings.Join(sources, ","),
	}, nil
}

// Fresh reports whether the pair currently has enough live quotes to serve a
// redemption.
func (m *Manager) Fresh(base, quote string) bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, err := m.freshLocked(pairKey(base, quote))
	return err == nil
}

// ComputeCollateralValue converts a point quantity into its collateral value
// at the supplied rate (collateral units per point), rounding down.
func ComputeCollateralValue(points uint64, rate *big.Rat) (*big.Int, error) {
	if rate == nil || rate.Sign() <= 0 {
		return nil, fmt.Errorf("pricefeed: rate must be positive")
	}
	value := new(big.Rat).Mul(new(big.Rat).SetUint64(points), rate)
	return new(big.Int).Quo(value.Num(), value.Denom()), nil
}
