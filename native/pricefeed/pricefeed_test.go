package pricefeed

import (
	"errors"
	"math/big"
	"testing"
	"time"
)

func TestLatestReturnsSingleFreshQuote(t *testing.T) {
	mgr := NewManager(time.Minute, 1)
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	mgr.SetClock(func() time.Time { return now })

	if err := mgr.Record("USD", "COL", Quote{Rate: big.NewRat(1, 1), Source: "manual", Timestamp: now}); err != nil {
		t.Fatalf("record: %v", err)
	}
	quote, err := mgr.Latest("usd", "col")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if quote.Rate.Cmp(big.NewRat(1, 1)) != 0 {
		t.Fatalf("unexpected rate %s", quote.RateString(4))
	}
	if quote.Source != "manual" {
		t.Fatalf("unexpected source %q", quote.Source)
	}
}

func TestLatestTakesMedianAcrossSources(t *testing.T) {
	mgr := NewManager(time.Minute, 2)
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	mgr.SetClock(func() time.Time { return now })

	quotes := []Quote{
		{Rate: big.NewRat(98, 100), Source: "alpha", Timestamp: now},
		{Rate: big.NewRat(100, 100), Source: "bravo", Timestamp: now},
		{Rate: big.NewRat(105, 100), Source: "charlie", Timestamp: now},
	}
	for _, q := range quotes {
		if err := mgr.Record("USD", "COL", q); err != nil {
			t.Fatalf("record %s: %v", q.Source, err)
		}
	}
	quote, err := mgr.Latest("USD", "COL")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if quote.Rate.Cmp(big.NewRat(1, 1)) != 0 {
		t.Fatalf("expected median 1, got %s", quote.RateString(4))
	}
}

func TestStalenessGating(t *testing.T) {
	mgr := NewManager(time.Minute, 1)
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	mgr.SetClock(func() time.Time { return now })

	if err := mgr.Record("USD", "COL", Quote{Rate: big.NewRat(1, 1), Source: "manual", Timestamp: now}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if !mgr.Fresh("USD", "COL") {
		t.Fatalf("expected fresh quote")
	}

	now = now.Add(2 * time.Minute)
	if mgr.Fresh("USD", "COL") {
		t.Fatalf("expected stale quote after window elapsed")
	}
	if _, err := mgr.Latest("USD", "COL"); !errors.Is(err, ErrStaleQuote) {
		t.Fatalf("expected ErrStaleQuote, got %v", err)
	}
}

func TestMinimumFeedCount(t *testing.T) {
	mgr := NewManager(time.Minute, 2)
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	mgr.SetClock(func() time.Time { return now })

	if _, err := mgr.Latest("USD", "COL"); !errors.Is(err, ErrNoQuote) {
		t.Fatalf("expected ErrNoQuote, got %v", err)
	}
	if err := mgr.Record("USD", "COL", Quote{Rate: big.NewRat(1, 1), Source: "alpha", Timestamp: now}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := mgr.Latest("USD", "COL"); !errors.Is(err, ErrInsufficientFeeds) {
		t.Fatalf("expected ErrInsufficientFeeds, got %v", err)
	}
	if err := mgr.Record("USD", "COL", Quote{Rate: big.NewRat(1, 1), Source: "bravo", Timestamp: now}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := mgr.Latest("USD", "COL"); err != nil {
		t.Fatalf("latest with two feeds: %v", err)
	}
}

func TestRecordRejectsInvalidQuotes(t *testing.T) {
	mgr := NewManager(time.Minute, 1)
	if err := mgr.Record("USD", "COL", Quote{Rate: big.NewRat(0, 1), Source: "alpha"}); err == nil {
		t.Fatalf("expected error for zero rate")
	}
	if err := mgr.Record("USD", "COL", Quote{Rate: big.NewRat(1, 1)}); err == nil {
		t.Fatalf("expected error for empty source")
	}
	if err := mgr.Record("", "COL", Quote{Rate: big.NewRat(1, 1), Source: "alpha"}); err == nil {
		t.Fatalf("expected error for empty base")
	}
}

func TestComputeCollateralValueRoundsDown(t *testing.T) {
	value, err := ComputeCollateralValue(1001, big.NewRat(1, 1000))
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if value.Int64() != 1 {
		t.Fatalf("expected 1 collateral unit, got %s", value)
	}
	if _, err := ComputeCollateralValue(1, nil); err == nil {
		t.Fatalf("expected error for nil rate")
	}
}
