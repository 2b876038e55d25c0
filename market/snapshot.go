package market

import (
	"fmt"
	"sort"
	"time"
)

// Snapshot 是某个决策时点的多合约行情视图。
// Quotes 中每个合约可以保存多条按时间排列的报价；读取时只使用不晚于决策时间的最新一条，
// 决策时间之后的报价永远不会被读取。
type Snapshot struct {
	Timestamp time.Time
	Quotes    map[string][]Quote
}

// NewSnapshot 创建空快照。
func NewSnapshot(ts time.Time) Snapshot {
	return Snapshot{Timestamp: ts, Quotes: make(map[string][]Quote)}
}

// Add 追加一条报价并保持时间顺序。
func (s *Snapshot) Add(instrument string, q Quote) {
	if s.Quotes == nil {
		s.Quotes = make(map[string][]Quote)
	}
	series := append(s.Quotes[instrument], q)
	sort.SliceStable(series, func(i, j int) bool {
		return series[i].Timestamp.Before(series[j].Timestamp)
	})
	s.Quotes[instrument] = series
}

// QuoteAt 返回 decision 时刻（含）之前的最新报价。
func (s Snapshot) QuoteAt(instrument string, decision time.Time) (Quote, bool) {
	var (
		best  Quote
		found bool
	)
	for _, q := range s.Quotes[instrument] {
		if q.Timestamp.After(decision) {
			continue
		}
		if !found || !q.Timestamp.Before(best.Timestamp) {
			best = q
			found = true
		}
	}
	return best, found
}

// CheckDecision 快照时间不得早于决策时间。
func (s Snapshot) CheckDecision(decision time.Time) error {
	if s.Timestamp.Before(decision) {
		return fmt.Errorf("%w: snapshot %s decision %s", ErrStaleSnapshot,
			s.Timestamp.Format(time.RFC3339Nano), decision.Format(time.RFC3339Nano))
	}
	return nil
}

// Instruments 返回快照中出现的合约（排序后）。
func (s Snapshot) Instruments() []string {
	out := make([]string, 0, len(s.Quotes))
	for k := range s.Quotes {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
