package market

import (
	"errors"
	"testing"
	"time"
)

func TestSnapshotQuoteAtIgnoresFutureQuotes(t *testing.T) {
	decision := time.Date(2024, 3, 1, 15, 30, 0, 0, time.UTC)
	snap := NewSnapshot(decision.Add(time.Minute))
	snap.Add("SPXW240301P05000", Quote{Bid: 1.10, Ask: 1.20, BidSize: 10, AskSize: 12, Timestamp: decision.Add(-2 * time.Second)})
	snap.Add("SPXW240301P05000", Quote{Bid: 1.15, Ask: 1.25, BidSize: 8, AskSize: 9, Timestamp: decision})
	snap.Add("SPXW240301P05000", Quote{Bid: 3.00, Ask: 3.50, BidSize: 1, AskSize: 1, Timestamp: decision.Add(time.Second)})

	q, ok := snap.QuoteAt("SPXW240301P05000", decision)
	if !ok {
		t.Fatalf("expected quote")
	}
	if q.Bid != 1.15 || q.Ask != 1.25 {
		t.Fatalf("expected decision-time quote, got %+v", q)
	}
	if _, ok := snap.QuoteAt("SPXW240301P04990", decision); ok {
		t.Fatalf("unexpected quote for unknown instrument")
	}
}

func TestSnapshotOnlyFutureQuote(t *testing.T) {
	decision := time.Date(2024, 3, 1, 15, 30, 0, 0, time.UTC)
	snap := NewSnapshot(decision)
	snap.Add("X", Quote{Bid: 1, Ask: 1.1, Timestamp: decision.Add(time.Millisecond)})
	if _, ok := snap.QuoteAt("X", decision); ok {
		t.Fatalf("future-only quote must not be visible")
	}
}

func TestSnapshotCheckDecision(t *testing.T) {
	decision := time.Date(2024, 3, 1, 15, 30, 0, 0, time.UTC)
	if err := NewSnapshot(decision).CheckDecision(decision); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	err := NewSnapshot(decision.Add(-time.Second)).CheckDecision(decision)
	if !errors.Is(err, ErrStaleSnapshot) {
		t.Fatalf("expected stale snapshot, got %v", err)
	}
}

func TestQuoteValidate(t *testing.T) {
	cases := []struct {
		name string
		q    Quote
		want error
	}{
		{"正常", Quote{Bid: 1, Ask: 1.1, BidSize: 1, AskSize: 1}, nil},
		{"零价差", Quote{Bid: 1, Ask: 1}, nil},
		{"无买价", Quote{Bid: 0, Ask: 0.05, AskSize: 3}, nil},
		{"交叉", Quote{Bid: 1.2, Ask: 1.1}, ErrCrossedQuote},
		{"负价格", Quote{Bid: -1, Ask: 1.1}, ErrInvalidQuote},
		{"负数量", Quote{Bid: 1, Ask: 1.1, BidSize: -1}, ErrInvalidQuote},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.q.Validate()
			if tc.want == nil && err != nil {
				t.Fatalf("unexpected: %v", err)
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestQuoteMidSpread(t *testing.T) {
	q := Quote{Bid: 1.00, Ask: 1.20}
	if q.Mid() != 1.10 {
		t.Fatalf("mid %.4f", q.Mid())
	}
	if d := q.Spread() - 0.20; d > 1e-12 || d < -1e-12 {
		t.Fatalf("spread %.4f", q.Spread())
	}
	if (Quote{Bid: 1}).Mid() != 0 {
		t.Fatalf("mid without ask must be 0")
	}
}
