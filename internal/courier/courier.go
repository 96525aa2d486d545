package courier

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Adapter abstracts the courier provider, the only source of truth for
// whether a shipment exists.
type Adapter interface {
	CheckServiceability(ctx context.Context, pincode string) (PincodeInfo, error)
	AllocateWaybills(ctx context.Context, count int) ([]string, error)
	CreateShipment(ctx context.Context, req ShipmentRequest) (CreateResult, error)
	CancelShipment(ctx context.Context, waybill string) (CancelResult, error)
	TrackShipment(ctx context.Context, waybill, referenceID string) (TrackResult, error)
	SchedulePickup(ctx context.Context, req PickupRequest) (PickupResult, error)
	RenderLabel(ctx context.Context, waybill string) (Label, error)
}

type PincodeInfo struct {
	Pincode         string `json:"pincode"`
	Serviceable     bool   `json:"serviceable"`
	PickupAvailable bool   `json:"pickup_available"`
	CashOnDelivery  bool   `json:"cash_on_delivery"`
	City            string `json:"city,omitempty"`
	State           string `json:"state,omitempty"`
}

type Party struct {
	Name    string `json:"name"`
	Address string `json:"add"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pin"`
	Phone   string `json:"phone"`
}

type ShipmentRequest struct {
	OrderID        string          `json:"order"`
	Waybill        string          `json:"waybill,omitempty"`
	PickupLocation string          `json:"-"`
	Consignee      Party           `json:"consignee"`
	Return         Party           `json:"return"`
	PaymentMode    string          `json:"payment_mode"`
	CODAmount      decimal.Decimal `json:"cod_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	WeightGrams    int64           `json:"weight"`
	LengthCm       float64         `json:"shipment_length"`
	WidthCm        float64         `json:"shipment_width"`
	HeightCm       float64         `json:"shipment_height"`
	Quantity       int             `json:"quantity"`
	Description    string          `json:"products_desc,omitempty"`
}

type PackageResult struct {
	Waybill string   `json:"waybill"`
	Status  string   `json:"status"`
	RefNum  string   `json:"refnum"`
	Remarks []string `json:"remarks"`
}

type CreateResult struct {
	Success  bool            `json:"success"`
	Waybill  string          `json:"waybill"`
	Packages []PackageResult `json:"packages"`
	Error    string          `json:"rmk"`
}

// UsableWaybill returns the top-level waybill or the first package waybill.
// Empty means the provider did not actually confirm a shipment.
func (r CreateResult) UsableWaybill() string {
	if wb := strings.TrimSpace(r.Waybill); wb != "" {
		return wb
	}
	for _, p := range r.Packages {
		if wb := strings.TrimSpace(p.Waybill); wb != "" {
			return wb
		}
	}
	return ""
}

// FailureReason flattens the provider's error and package remarks.
func (r CreateResult) FailureReason() string {
	parts := []string{}
	if r.Error != "" {
		parts = append(parts, r.Error)
	}
	for _, p := range r.Packages {
		parts = append(parts, p.Remarks...)
	}
	if len(parts) == 0 {
		return "no waybill in courier response"
	}
	return strings.Join(parts, "; ")
}

type CancelResult struct {
	Success bool   `json:"status"`
	Remark  string `json:"remark"`
	Error   string `json:"error"`
}

// Confirmed is true only for an explicit positive cancellation.
func (r CancelResult) Confirmed() bool {
	return r.Success && r.Error == "" && strings.Contains(strings.ToLower(r.Remark), "cancel")
}

// Denied is an explicit rejection, as opposed to an ambiguous answer.
func (r CancelResult) Denied() bool {
	return !r.Success && r.Error != ""
}

type Scan struct {
	Status       string    `json:"status"`
	StatusType   string    `json:"status_type"`
	Location     string    `json:"location"`
	Instructions string    `json:"instructions"`
	At           time.Time `json:"at"`
}

type TrackResult struct {
	Waybill     string `json:"waybill"`
	ReferenceID string `json:"reference_id"`
	Status      string `json:"status"`
	StatusType  string `json:"status_type"`
	Scans       []Scan `json:"scans"`
}

type PickupRequest struct {
	Location      string `json:"pickup_location"`
	Date          string `json:"pickup_date"`
	Time          string `json:"pickup_time"`
	ExpectedCount int    `json:"expected_package_count"`
}

type PickupResult struct {
	Success  bool   `json:"success"`
	PickupID string `json:"pickup_id"`
	Error    string `json:"error"`
}

type Label struct {
	Waybill      string          `json:"waybill"`
	OrderID      string          `json:"order_id"`
	Barcode      string          `json:"barcode"`
	SortCode     string          `json:"sort_code"`
	Destination  string          `json:"destination"`
	Consignee    Party           `json:"consignee"`
	Sender       Party           `json:"sender"`
	PaymentMode  string          `json:"payment_mode"`
	CODAmount    decimal.Decimal `json:"cod_amount"`
	WeightGrams  int64           `json:"weight"`
	ProductDesc  string          `json:"product_desc"`
	ShipmentDate string          `json:"shipment_date"`
}
