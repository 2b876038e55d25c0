package market

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrCrossedQuote  = errors.New("crossed quote")
	ErrInvalidQuote  = errors.New("invalid quote")
	ErrStaleSnapshot = errors.New("snapshot earlier than decision time")
)

// Quote 保存某一合约在某一时刻的 NBBO 与顶档数量。
type Quote struct {
	Bid       float64
	Ask       float64
	BidSize   int
	AskSize   int
	Last      float64
	Timestamp time.Time
}

// Mid 返回中间价；任一侧缺失时返回 0。
func (q Quote) Mid() float64 {
	if q.Ask <= 0 {
		return 0
	}
	return (q.Bid + q.Ask) / 2
}

// Spread 返回 ask-bid，缺少 ask 时返回 0。
func (q Quote) Spread() float64 {
	if q.Ask <= 0 {
		return 0
	}
	return q.Ask - q.Bid
}

// Validate 检查价格与数量是否合理，bid>ask 视为交叉报价。
func (q Quote) Validate() error {
	for _, v := range []float64{q.Bid, q.Ask, q.Last} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: bid=%.4f ask=%.4f last=%.4f", ErrInvalidQuote, q.Bid, q.Ask, q.Last)
		}
	}
	if q.BidSize < 0 || q.AskSize < 0 {
		return fmt.Errorf("%w: negative size bid=%d ask=%d", ErrInvalidQuote, q.BidSize, q.AskSize)
	}
	if q.Ask > 0 && q.Bid > q.Ask {
		return fmt.Errorf("%w: bid %.4f > ask %.4f", ErrCrossedQuote, q.Bid, q.Ask)
	}
	return nil
}
