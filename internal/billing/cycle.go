package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	domainErr "github.com/Tanmoy095/logisynapse-fulfillment/internal/domain/errors"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/order"
)

var ErrCycleNotFound = fmt.Errorf("billing cycle %w", domainErr.ErrNotFound)

// Period is one calendar month in UTC.
type Period struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

func PeriodOf(t time.Time) Period {
	t = t.UTC()
	return Period{Year: t.Year(), Month: int(t.Month())}
}

func (p Period) Start() time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
}

// End is exclusive.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, 0)
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

var cycleNamespace = uuid.MustParse("5b0c7f52-4f0e-4d53-9c59-2f3f3c0a9b11")

// CycleID is a name-based UUID so concurrent creators converge on one cycle.
func CycleID(merchantID string, p Period) string {
	return uuid.NewSHA1(cycleNamespace, []byte(merchantID+"/"+p.String())).String()
}

type Line struct {
	OrderID        string        `json:"order_id"`
	Waybill        string        `json:"waybill,omitempty"`
	Direction      Direction     `json:"direction"`
	Zone           string        `json:"zone,omitempty"`
	ChargedWeightG int64         `json:"charged_weight_g"`
	Charges        order.Charges `json:"charges"`
	AddedAt        time.Time     `json:"added_at"`
}

type Cycle struct {
	ID           string          `json:"id"`
	MerchantID   string          `json:"merchant_id"`
	Period       Period          `json:"period"`
	ForwardTotal decimal.Decimal `json:"forward_total"`
	RTOTotal     decimal.Decimal `json:"rto_total"`
	CODTotal     decimal.Decimal `json:"cod_total"`
	Total        decimal.Decimal `json:"total"`
	Lines        []Line          `json:"lines"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func NewCycle(merchantID string, p Period, at time.Time) *Cycle {
	return &Cycle{
		ID:           CycleID(merchantID, p),
		MerchantID:   merchantID,
		Period:       p,
		ForwardTotal: decimal.Zero,
		RTOTotal:     decimal.Zero,
		CODTotal:     decimal.Zero,
		Total:        decimal.Zero,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
}

// Apply adds a line to the running totals. It does not deduplicate.
func (c *Cycle) Apply(l Line) {
	c.Lines = append(c.Lines, l)
	c.ForwardTotal = c.ForwardTotal.Add(l.Charges.Forward)
	c.RTOTotal = c.RTOTotal.Add(l.Charges.RTO)
	c.CODTotal = c.CODTotal.Add(l.Charges.COD)
	c.Total = c.Total.Add(l.Charges.Total)
	if l.AddedAt.After(c.UpdatedAt) {
		c.UpdatedAt = l.AddedAt
	}
}

func (c *Cycle) HasLine(orderID string, dir Direction) bool {
	for _, l := range c.Lines {
		if l.OrderID == orderID && l.Direction == dir {
			return true
		}
	}
	return false
}

// Store persists cycles. AddLine is idempotent per (cycle, order, direction)
// and reports whether the line was new.
type Store interface {
	GetOrCreateCycle(ctx context.Context, merchantID string, p Period) (*Cycle, error)
	GetCycle(ctx context.Context, merchantID string, p Period) (*Cycle, error)
	AddLine(ctx context.Context, cycleID string, l Line) (bool, error)
}
