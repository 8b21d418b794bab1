package recharge

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestBonus_TableEntries(t *testing.T) {
	cases := map[int64]int64{
		30:   0,
		50:   5,
		100:  15,
		250:  50,
		500:  125,
		1000: 300,
	}
	for amount, want := range cases {
		got := Bonus(decimal.NewFromInt(amount), false)
		assert.True(t, got.Equal(decimal.NewFromInt(want)), "amount %d: got %s want %d", amount, got, want)
	}
}

func TestBonus_BandedPercentages(t *testing.T) {
	cases := map[int64]int64{
		40:   0,   // below the first band
		75:   7,   // 10% floored
		150:  22,  // 15% floored
		300:  60,  // 20%
		600:  150, // 25%
		2000: 600, // 30%
	}
	for amount, want := range cases {
		got := Bonus(decimal.NewFromInt(amount), false)
		assert.True(t, got.Equal(decimal.NewFromInt(want)), "amount %d: got %s want %d", amount, got, want)
	}
}

func TestBonus_OptOut(t *testing.T) {
	assert.True(t, Bonus(decimal.NewFromInt(1000), true).IsZero())
}

func TestPresets(t *testing.T) {
	ps := Presets()
	assert.Len(t, ps, 6)
	assert.Equal(t, int64(30), ps[0].Value)
	assert.True(t, ps[1].Popular)

	// callers must not be able to mutate the table
	ps[0].Value = 1
	assert.Equal(t, int64(30), Presets()[0].Value)
}

func TestFormatCountdown(t *testing.T) {
	assert.Equal(t, "15:00", FormatCountdown(900))
	assert.Equal(t, "00:59", FormatCountdown(59))
	assert.Equal(t, "00:00", FormatCountdown(0))
	assert.Equal(t, "00:00", FormatCountdown(-5))
}
