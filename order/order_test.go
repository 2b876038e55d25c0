package order

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func creditSpread() Order {
	return Order{
		ID:           "o1",
		DecisionTime: time.Date(2024, 3, 1, 15, 30, 0, 0, time.UTC),
		Multiplier:   100,
		MaxLoss:      400,
		Legs: []Leg{
			{Instrument: "SPXW240301P05000", Side: Sell, Quantity: 2, LimitPrice: 1.20},
			{Instrument: "SPXW240301P04995", Side: Buy, Quantity: 2, LimitPrice: 0.90},
		},
	}
}

func TestNetPremium(t *testing.T) {
	o := creditSpread()
	assert.InDelta(t, -60.0, o.NetPremium(), 1e-9)
	assert.True(t, o.IsCredit())
}

func TestWithLimitsCopies(t *testing.T) {
	o := creditSpread()
	n := o.WithLimits([]float64{1.10, 0.95})
	assert.Equal(t, 1.20, o.Legs[0].LimitPrice)
	assert.Equal(t, 1.10, n.Legs[0].LimitPrice)
	assert.Equal(t, 0.95, n.Legs[1].LimitPrice)
}

func TestParseSide(t *testing.T) {
	s, ok := ParseSide(" sell ")
	require.True(t, ok)
	assert.Equal(t, Sell, s)
	_, ok = ParseSide("short")
	assert.False(t, ok)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(creditSpread()))

	cases := map[string]func(o *Order){
		"no legs":       func(o *Order) { o.Legs = nil },
		"no decision":   func(o *Order) { o.DecisionTime = time.Time{} },
		"multiplier":    func(o *Order) { o.Multiplier = 0 },
		"max loss":      func(o *Order) { o.MaxLoss = -1 },
		"zero qty":      func(o *Order) { o.Legs[0].Quantity = 0 },
		"side":          func(o *Order) { o.Legs[1].Side = "HOLD" },
		"instrument":    func(o *Order) { o.Legs[0].Instrument = "" },
		"limit":         func(o *Order) { o.Legs[0].LimitPrice = -0.1 },
		"duplicate leg": func(o *Order) { o.Legs[1].Instrument = o.Legs[0].Instrument },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			o := creditSpread()
			o.Legs = append([]Leg(nil), o.Legs...)
			mutate(&o)
			err := Validate(o)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidOrder))
		})
	}
}

func TestRatio(t *testing.T) {
	o := creditSpread()
	assert.Equal(t, 2, Ratio(o))
	o.Legs[1].Quantity = 3
	assert.Equal(t, 1, Ratio(o))
}
