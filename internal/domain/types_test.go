package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFearGreedLabel(t *testing.T) {
	cases := map[int]string{
		0:   "Extreme Fear",
		20:  "Extreme Fear",
		21:  "Fear",
		40:  "Fear",
		50:  "Neutral",
		61:  "Greed",
		80:  "Greed",
		81:  "Extreme Greed",
		100: "Extreme Greed",
	}
	for fg, want := range cases {
		assert.Equal(t, want, FearGreedLabel(fg), "fg=%d", fg)
	}
}

func TestPositionUnrealizedPnL(t *testing.T) {
	open := Position{
		Status:    PositionOpen,
		Size:      decimal.NewFromFloat(0.5),
		QuoteCost: decimal.NewFromInt(20000),
	}
	pnl := open.UnrealizedPnL(decimal.NewFromInt(44000))
	assert.True(t, pnl.Equal(decimal.NewFromInt(2000)), "got %s", pnl)

	closed := open
	closed.Status = PositionClosed
	assert.True(t, closed.UnrealizedPnL(decimal.NewFromInt(44000)).IsZero())
}

func TestBalanceTotalAndMid(t *testing.T) {
	b := Balance{Free: decimal.NewFromInt(70), Locked: decimal.NewFromInt(30)}
	assert.True(t, b.Total().Equal(decimal.NewFromInt(100)))

	m := MarketPrice{Bid: decimal.NewFromInt(99), Ask: decimal.NewFromInt(101)}
	assert.True(t, m.Mid().Equal(decimal.NewFromInt(100)))
}
