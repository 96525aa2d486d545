package order

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domainErr "github.com/Tanmoy095/logisynapse-fulfillment/internal/domain/errors"
)

var (
	ErrOrderNotFound       = fmt.Errorf("order %w", domainErr.ErrNotFound)
	ErrDuplicateOrder      = errors.New("order id or reference id already exists for merchant")
	ErrStaleOrder          = fmt.Errorf("order was modified concurrently: %w", domainErr.ErrConflict)
	ErrWaybillAlreadySet   = errors.New("order already has a waybill")
	ErrWaybillRequired     = errors.New("order has no waybill")
	ErrNotCancellable      = fmt.Errorf("order cannot be cancelled: %w", domainErr.ErrInvalidTransition)
	ErrEmptyWaybill        = errors.New("waybill must not be empty")
	ErrCancellationPending = errors.New("cancellation already pending with courier")
)

type PaymentMode string

const (
	PaymentPrepaid    PaymentMode = "prepaid"
	PaymentCOD        PaymentMode = "cod"
	PaymentPickupOnly PaymentMode = "pickup"
)

func (m PaymentMode) Valid() bool {
	return m == PaymentPrepaid || m == PaymentCOD || m == PaymentPickupOnly
}

type CancellationStatus string

const (
	CancellationNone      CancellationStatus = ""
	CancellationPending   CancellationStatus = "pending"
	CancellationCancelled CancellationStatus = "cancelled"
)

// StatusType is the reporting code stored with a cancellation. It never gates behaviour.
type StatusType string

const (
	StatusTypeCN StatusType = "CN"
	StatusTypeRT StatusType = "RT"
	StatusTypeUD StatusType = "UD"
)

type BillingPaymentStatus string

const (
	BillingUnpaid BillingPaymentStatus = "unpaid"
	BillingPaid   BillingPaymentStatus = "paid"
)

var pincodeRe = regexp.MustCompile(`^[1-9][0-9]{5}$`)

func ValidPincode(p string) bool { return pincodeRe.MatchString(p) }

type Address struct {
	Name    string `json:"name"`
	Line1   string `json:"line1"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
	Phone   string `json:"phone"`
}

// Validate checks completeness. role prefixes the field name in errors.
func (a Address) Validate(role string) error {
	switch {
	case strings.TrimSpace(a.Name) == "":
		return domainErr.Validation(role+".name", "is required")
	case strings.TrimSpace(a.Line1) == "":
		return domainErr.Validation(role+".line1", "is required")
	case strings.TrimSpace(a.City) == "":
		return domainErr.Validation(role+".city", "is required")
	case strings.TrimSpace(a.State) == "":
		return domainErr.Validation(role+".state", "is required")
	case !ValidPincode(a.Pincode):
		return domainErr.Validation(role+".pincode", "must be a 6 digit postal code")
	case len(strings.TrimSpace(a.Phone)) < 10:
		return domainErr.Validation(role+".phone", "must have at least 10 digits")
	}
	return nil
}

type Package struct {
	WeightKg float64 `json:"weight_kg"`
	LengthCm float64 `json:"length_cm"`
	WidthCm  float64 `json:"width_cm"`
	HeightCm float64 `json:"height_cm"`
	BoxCount int     `json:"box_count"`
}

func (p Package) Validate(field string) error {
	switch {
	case p.WeightKg <= 0:
		return domainErr.Validation(field+".weight_kg", "must be positive")
	case p.LengthCm <= 0 || p.WidthCm <= 0 || p.HeightCm <= 0:
		return domainErr.Validation(field+".dimensions", "must be positive")
	case p.BoxCount < 0:
		return domainErr.Validation(field+".box_count", "must not be negative")
	}
	return nil
}

type Cancellation struct {
	Status     CancellationStatus `json:"status,omitempty"`
	Date       *time.Time         `json:"date,omitempty"`
	Reason     string             `json:"reason,omitempty"`
	StatusType StatusType         `json:"status_type,omitempty"`
	Remark     string             `json:"remark,omitempty"`
}

type Charges struct {
	Forward decimal.Decimal `json:"forward"`
	RTO     decimal.Decimal `json:"rto"`
	COD     decimal.Decimal `json:"cod"`
	Total   decimal.Decimal `json:"total"`
}

type Billing struct {
	Zone              string               `json:"zone,omitempty"`
	DeclaredWeightG   int64                `json:"declared_weight_g"`
	VolumetricWeightG int64                `json:"volumetric_weight_g"`
	ChargedWeightG    int64                `json:"charged_weight_g"`
	Breakdown         Charges              `json:"breakdown"`
	CycleID           string               `json:"cycle_id,omitempty"`
	WalletTxnID       string               `json:"wallet_txn_id,omitempty"`
	PaymentStatus     BillingPaymentStatus `json:"payment_status,omitempty"`
}

type HistoryEntry struct {
	Status  Status    `json:"status"`
	At      time.Time `json:"at"`
	Remarks string    `json:"remarks,omitempty"`
	Actor   string    `json:"actor,omitempty"`
}

type Order struct {
	ID                 string          `json:"id"`
	MerchantID         string          `json:"merchant_id"`
	ReferenceID        string          `json:"reference_id,omitempty"`
	ParentID           string          `json:"parent_id,omitempty"`
	PickupLocation     string          `json:"pickup_location"`
	Pickup             Address         `json:"pickup"`
	Delivery           Address         `json:"delivery"`
	Package            Package         `json:"package"`
	ProductDescription string          `json:"product_description,omitempty"`
	PaymentMode        PaymentMode     `json:"payment_mode"`
	OrderValue         decimal.Decimal `json:"order_value"`
	ShippingCharge     decimal.Decimal `json:"shipping_charge"`
	CODAmount          decimal.Decimal `json:"cod_amount"`
	Waybill            string          `json:"waybill,omitempty"`
	ProviderStatus     string          `json:"provider_status,omitempty"`
	Cancellation       Cancellation    `json:"cancellation"`
	Billing            Billing         `json:"billing"`
	Status             Status          `json:"status"`
	History            []HistoryEntry  `json:"history"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	// Version counts saved updates. Store.Update only writes over the
	// version it was loaded at.
	Version int64 `json:"version"`
}

// New builds an in-memory order in status new. Nothing is persisted.
func New(id, merchantID string, at time.Time, actor string) *Order {
	o := &Order{
		ID:         id,
		MerchantID: merchantID,
		Status:     StatusNew,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
	o.History = append(o.History, HistoryEntry{Status: StatusNew, At: at, Remarks: "order created", Actor: actor})
	return o
}

func (o *Order) appendHistory(s Status, at time.Time, remarks, actor string) {
	o.History = append(o.History, HistoryEntry{Status: s, At: at, Remarks: remarks, Actor: actor})
	o.UpdatedAt = at
}

// Transition moves the order along the transition table. Entering
// ready_to_ship goes through AssignWaybill and cancellation through Cancel.
func (o *Order) Transition(to Status, at time.Time, remarks, actor string) error {
	if to == StatusReadyToShip {
		return fmt.Errorf("%w: ready_to_ship requires a courier waybill", domainErr.ErrInvalidTransition)
	}
	if to == StatusCancelled {
		return fmt.Errorf("%w: use Cancel", domainErr.ErrInvalidTransition)
	}
	if !CanTransition(o.Status, to) {
		return fmt.Errorf("%w: %s -> %s", domainErr.ErrInvalidTransition, o.Status, to)
	}
	if to.RequiresWaybill() && o.Waybill == "" {
		return ErrWaybillRequired
	}
	o.Status = to
	o.appendHistory(to, at, remarks, actor)
	return nil
}

// AssignWaybill records the courier-confirmed waybill and moves new -> ready_to_ship.
func (o *Order) AssignWaybill(waybill string, at time.Time, actor string) error {
	waybill = strings.TrimSpace(waybill)
	if waybill == "" {
		return ErrEmptyWaybill
	}
	if o.Waybill != "" {
		return ErrWaybillAlreadySet
	}
	if o.Status != StatusNew {
		return fmt.Errorf("%w: waybill can only be assigned to a new order (current %s)", domainErr.ErrInvalidTransition, o.Status)
	}
	o.Waybill = waybill
	o.Status = StatusReadyToShip
	o.appendHistory(StatusReadyToShip, at, "waybill "+waybill+" assigned", actor)
	return nil
}

func (o *Order) Cancellable() bool {
	return !o.Status.IsTerminal()
}

// ClassifyCancellation returns the reporting code for the stage the order reached.
func ClassifyCancellation(o *Order) StatusType {
	if o.Waybill == "" {
		return StatusTypeCN
	}
	switch o.Status {
	case StatusReadyToShip:
		return StatusTypeUD
	case StatusNew, StatusPickupsManifests:
		return StatusTypeCN
	default:
		return StatusTypeRT
	}
}

// Cancel applies a confirmed cancellation.
func (o *Order) Cancel(reason, remark string, at time.Time, actor string) error {
	if !o.Cancellable() {
		return fmt.Errorf("%w (status %s)", ErrNotCancellable, o.Status)
	}
	o.Cancellation = Cancellation{
		Status:     CancellationCancelled,
		Date:       &at,
		Reason:     reason,
		StatusType: ClassifyCancellation(o),
		Remark:     remark,
	}
	o.Status = StatusCancelled
	o.appendHistory(StatusCancelled, at, cancelRemarks(reason, remark), actor)
	return nil
}

// MarkCancellationPending records that the courier did not confirm. Status is unchanged.
func (o *Order) MarkCancellationPending(reason, remark string, at time.Time) error {
	if !o.Cancellable() {
		return fmt.Errorf("%w (status %s)", ErrNotCancellable, o.Status)
	}
	o.Cancellation = Cancellation{
		Status: CancellationPending,
		Date:   &at,
		Reason: reason,
		Remark: remark,
	}
	o.UpdatedAt = at
	return nil
}

// ClearCancellationPending drops the pending marker after the courier
// refused for good. The remark is kept for support.
func (o *Order) ClearCancellationPending(remark string, at time.Time) {
	if o.Cancellation.Status != CancellationPending {
		return
	}
	o.Cancellation.Status = CancellationNone
	o.Cancellation.Remark = remark
	o.UpdatedAt = at
}

func cancelRemarks(reason, remark string) string {
	parts := []string{"cancelled"}
	if reason != "" {
		parts = append(parts, reason)
	}
	if remark != "" {
		parts = append(parts, remark)
	}
	return strings.Join(parts, ": ")
}

// Clone returns a deep copy.
func (o *Order) Clone() *Order {
	c := *o
	c.History = append([]HistoryEntry(nil), o.History...)
	if o.Cancellation.Date != nil {
		d := *o.Cancellation.Date
		c.Cancellation.Date = &d
	}
	return &c
}
