package recharge

import "github.com/shopspring/decimal"

// Preset is one entry of the storefront's amount grid.
type Preset struct {
	Value       int64  `json:"value"`
	Label       string `json:"label"`
	Bonus       int64  `json:"bonus"`
	Popular     bool   `json:"popular,omitempty"`
	Hot         bool   `json:"hot,omitempty"`
	Description string `json:"description"`
}

var presets = []Preset{
	{Value: 30, Label: "R$ 30", Bonus: 0, Description: "Iniciante"},
	{Value: 50, Label: "R$ 50", Bonus: 5, Popular: true, Description: "Mais Escolhido"},
	{Value: 100, Label: "R$ 100", Bonus: 15, Description: "Bom Negócio"},
	{Value: 250, Label: "R$ 250", Bonus: 50, Hot: true, Description: "Super Oferta"},
	{Value: 500, Label: "R$ 500", Bonus: 125, Description: "Investidor"},
	{Value: 1000, Label: "R$ 1.000", Bonus: 300, Hot: true, Description: "VIP"},
}

// Presets returns the amount grid for the host UI.
func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}

// Bonus computes the promotional bonus for a deposit amount. Exact preset
// amounts use the table; anything between entries falls into a banded
// percentage, floored to whole currency units. Zero when the user opts out.
// The bonus is display/event data only; it is never part of the ledger credit.
func Bonus(amount decimal.Decimal, noBonus bool) decimal.Decimal {
	if noBonus {
		return decimal.Zero
	}
	for _, p := range presets {
		if amount.Equal(decimal.NewFromInt(p.Value)) {
			return decimal.NewFromInt(p.Bonus)
		}
	}
	var pct int64
	switch {
	case amount.GreaterThanOrEqual(decimal.NewFromInt(1000)):
		pct = 30
	case amount.GreaterThanOrEqual(decimal.NewFromInt(500)):
		pct = 25
	case amount.GreaterThanOrEqual(decimal.NewFromInt(250)):
		pct = 20
	case amount.GreaterThanOrEqual(decimal.NewFromInt(100)):
		pct = 15
	case amount.GreaterThanOrEqual(decimal.NewFromInt(50)):
		pct = 10
	default:
		return decimal.Zero
	}
	return amount.Mul(decimal.NewFromInt(pct)).Div(decimal.NewFromInt(100)).Floor()
}
