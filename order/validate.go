package order

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidOrder = errors.New("invalid order")

// Validate 在模拟前检查订单结构，任何问题都返回包装了 ErrInvalidOrder 的错误。
func Validate(o Order) error {
	if len(o.Legs) == 0 {
		return fmt.Errorf("%w: no legs", ErrInvalidOrder)
	}
	if o.DecisionTime.IsZero() {
		return fmt.Errorf("%w: decision time missing", ErrInvalidOrder)
	}
	if !(o.Multiplier > 0) || math.IsInf(o.Multiplier, 0) {
		return fmt.Errorf("%w: multiplier must be > 0", ErrInvalidOrder)
	}
	if math.IsNaN(o.MaxLoss) || math.IsInf(o.MaxLoss, 0) || o.MaxLoss < 0 {
		return fmt.Errorf("%w: max loss must be >= 0", ErrInvalidOrder)
	}
	seen := make(map[string]int, len(o.Legs))
	for i, l := range o.Legs {
		if l.Instrument == "" {
			return fmt.Errorf("%w: leg %d instrument empty", ErrInvalidOrder, i)
		}
		if l.Side != Buy && l.Side != Sell {
			return fmt.Errorf("%w: leg %d side %q", ErrInvalidOrder, i, l.Side)
		}
		if l.Quantity <= 0 {
			return fmt.Errorf("%w: leg %d quantity must be > 0", ErrInvalidOrder, i)
		}
		if math.IsNaN(l.LimitPrice) || math.IsInf(l.LimitPrice, 0) || l.LimitPrice < 0 {
			return fmt.Errorf("%w: leg %d limit %.4f", ErrInvalidOrder, i, l.LimitPrice)
		}
		if j, dup := seen[l.Instrument]; dup {
			return fmt.Errorf("%w: legs %d and %d both trade %s", ErrInvalidOrder, j, i, l.Instrument)
		}
		seen[l.Instrument] = i
	}
	return nil
}

// Ratio 返回各腿数量的最大公约数，即一单位结构的倍数。
func Ratio(o Order) int {
	g := 0
	for _, l := range o.Legs {
		g = gcd(g, l.Quantity)
	}
	return g
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	if a < 0 {
		return -a
	}
	return a
}
