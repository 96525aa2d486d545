package billing

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/Tanmoy095/logisynapse-fulfillment/internal/money"
)

var ErrRateCardNotFound = errors.New("rate card not found")

type Direction string

const (
	DirectionForward Direction = "forward"
	DirectionRTO     Direction = "rto"
)

// Slab prices one weight band. Weight inside the band is billed in StepGrams
// increments, each costing StepCost. FlatFee is added once when the band is entered.
type Slab struct {
	UpToGrams int64           `json:"up_to_grams"` // inclusive upper limit, -1 for unlimited
	StepGrams int64           `json:"step_grams"`
	StepCost  decimal.Decimal `json:"step_cost"`
	FlatFee   decimal.Decimal `json:"flat_fee"`
}

type RateCard struct {
	Category   string          `json:"category"`
	Zone       Zone            `json:"zone"`
	Direction  Direction       `json:"direction"`
	Slabs      []Slab          `json:"slabs"`
	CODFlat    decimal.Decimal `json:"cod_flat"`
	CODPercent decimal.Decimal `json:"cod_percent"`
}

// RateCardStore resolves the card for a merchant category, zone and direction.
type RateCardStore interface {
	RateCard(ctx context.Context, category string, zone Zone, dir Direction) (*RateCard, error)
}

func (rc RateCard) Validate() error {
	if len(rc.Slabs) == 0 {
		return errors.New("at least one slab is required")
	}
	if rc.Slabs[len(rc.Slabs)-1].UpToGrams != -1 {
		return errors.New("last slab must be unlimited (-1)")
	}
	for i := 1; i < len(rc.Slabs); i++ {
		prev, cur := rc.Slabs[i-1], rc.Slabs[i]
		if prev.UpToGrams == -1 {
			return errors.New("no slabs allowed after unlimited slab")
		}
		if cur.UpToGrams != -1 && cur.UpToGrams <= prev.UpToGrams {
			return errors.New("slabs must be strictly increasing")
		}
	}
	for _, s := range rc.Slabs {
		if s.StepGrams <= 0 {
			return errors.New("step grams must be positive")
		}
		if s.StepCost.IsNegative() || s.FlatFee.IsNegative() {
			return errors.New("costs must be non-negative")
		}
	}
	if rc.CODFlat.IsNegative() || rc.CODPercent.IsNegative() {
		return errors.New("cod charges must be non-negative")
	}
	return nil
}

// Cost prices a chargeable weight across the slabs.
func (rc RateCard) Cost(grams int64) (decimal.Decimal, error) {
	if grams < 0 {
		return decimal.Zero, errors.New("weight cannot be negative")
	}
	total := decimal.Zero
	remaining := grams
	var prevLimit int64

	for _, s := range rc.Slabs {
		if remaining <= 0 {
			break
		}
		var inSlab int64
		if s.UpToGrams == -1 {
			inSlab = remaining
		} else {
			capacity := s.UpToGrams - prevLimit
			inSlab = min(remaining, capacity)
		}
		steps := (inSlab + s.StepGrams - 1) / s.StepGrams
		total = total.Add(s.StepCost.Mul(decimal.NewFromInt(steps)))
		if inSlab > 0 {
			total = total.Add(s.FlatFee)
		}
		remaining -= inSlab
		if s.UpToGrams != -1 {
			prevLimit = s.UpToGrams
		}
	}
	if remaining > 0 {
		return decimal.Zero, errors.New("weight exceeds slabs (validation should prevent)")
	}
	return money.Round2(total), nil
}

// CODCharge is the larger of the flat fee and the percentage of the collected amount.
func (rc RateCard) CODCharge(codAmount decimal.Decimal) decimal.Decimal {
	pct := codAmount.Mul(rc.CODPercent).Div(decimal.NewFromInt(100))
	return money.Round2(money.Max(rc.CODFlat, pct))
}

// DefaultRateCards is the built-in card set for the "standard" category.
func DefaultRateCards() []RateCard {
	base := map[Zone]int64{ZoneA: 29, ZoneB: 33, ZoneC: 40, ZoneD: 45, ZoneE: 55}
	var out []RateCard
	for zone, first := range base {
		for _, dir := range []Direction{DirectionForward, DirectionRTO} {
			f := decimal.NewFromInt(first)
			step := decimal.NewFromInt(first).Mul(decimal.RequireFromString("0.9"))
			if dir == DirectionRTO {
				f = f.Mul(decimal.RequireFromString("0.8"))
				step = step.Mul(decimal.RequireFromString("0.8"))
			}
			out = append(out, RateCard{
				Category:  "standard",
				Zone:      zone,
				Direction: dir,
				Slabs: []Slab{
					{UpToGrams: 500, StepGrams: 500, StepCost: f},
					{UpToGrams: 5000, StepGrams: 500, StepCost: money.Round2(step)},
					{UpToGrams: -1, StepGrams: 1000, StepCost: money.Round2(step.Mul(decimal.NewFromInt(2)))},
				},
				CODFlat:    decimal.NewFromInt(35),
				CODPercent: decimal.RequireFromString("1.75"),
			})
		}
	}
	return out
}
