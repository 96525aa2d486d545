package fulfillment

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	domainErr "github.com/Tanmoy095/logisynapse-fulfillment/internal/domain/errors"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/order"
)

const maxBulkItems = 200

// CreateOrderCommand is validated once at the boundary and then treated
// as immutable by the orchestrator.
type CreateOrderCommand struct {
	MerchantID  string
	OrderID     string // generated when empty
	ReferenceID string
	ParentID    string

	// PickupLocation names a registered warehouse. Pickup is an ad hoc
	// address used when no warehouse is registered under that name.
	PickupLocation string
	Pickup         *order.Address
	Delivery       order.Address
	Package        order.Package

	ProductDescription string
	PaymentMode        order.PaymentMode
	OrderValue         decimal.Decimal
	CODAmount          decimal.Decimal
	// ShippingCharge is quoted from the rate card when not set.
	ShippingCharge decimal.NullDecimal

	GenerateAWB bool
	Actor       string
}

func (c CreateOrderCommand) Validate() error {
	if strings.TrimSpace(c.MerchantID) == "" {
		return domainErr.Validation("merchant_id", "is required")
	}
	if c.PickupLocation == "" && c.Pickup == nil {
		return domainErr.Validation("pickup_location", "or an ad hoc pickup address is required")
	}
	if c.Pickup != nil {
		if err := c.Pickup.Validate("pickup"); err != nil {
			return err
		}
	}
	if err := c.Delivery.Validate("delivery"); err != nil {
		return err
	}
	if err := c.Package.Validate("package"); err != nil {
		return err
	}
	if !c.PaymentMode.Valid() {
		return domainErr.Validation("payment_mode", fmt.Sprintf("unknown mode %q", c.PaymentMode))
	}
	if c.OrderValue.IsNegative() {
		return domainErr.Validation("order_value", "must not be negative")
	}
	if c.CODAmount.IsNegative() {
		return domainErr.Validation("cod_amount", "must not be negative")
	}
	if c.PaymentMode == order.PaymentCOD && !c.CODAmount.IsPositive() {
		return domainErr.Validation("cod_amount", "is required for cod orders")
	}
	if c.ShippingCharge.Valid && c.ShippingCharge.Decimal.IsNegative() {
		return domainErr.Validation("shipping_charge", "must not be negative")
	}
	return nil
}

// MultiPackageCommand describes several boxes sharing everything but the package.
// A shipping charge on Base applies to each box.
type MultiPackageCommand struct {
	Base  CreateOrderCommand
	Boxes []order.Package
}

func (c MultiPackageCommand) Validate() error {
	if len(c.Boxes) < 2 {
		return domainErr.Validation("boxes", "at least two boxes are required")
	}
	if len(c.Boxes) > maxBulkItems {
		return domainErr.Validation("boxes", fmt.Sprintf("at most %d boxes", maxBulkItems))
	}
	for i, b := range c.Boxes {
		if err := b.Validate(fmt.Sprintf("boxes[%d]", i)); err != nil {
			return err
		}
	}
	base := c.Base
	base.Package = c.Boxes[0]
	return base.Validate()
}

type CancelCommand struct {
	MerchantID string
	OrderID    string
	Reason     string
	Actor      string
}

func (c CancelCommand) Validate() error {
	if c.MerchantID == "" {
		return domainErr.Validation("merchant_id", "is required")
	}
	if c.OrderID == "" {
		return domainErr.Validation("order_id", "is required")
	}
	return nil
}

type BulkCommand struct {
	MerchantID string
	OrderIDs   []string
	Reason     string
	Actor      string
}

// Validate also drops blank and repeated ids, keeping the first occurrence.
func (c *BulkCommand) Validate() error {
	if c.MerchantID == "" {
		return domainErr.Validation("merchant_id", "is required")
	}
	seen := make(map[string]bool, len(c.OrderIDs))
	ids := c.OrderIDs[:0:0]
	for _, id := range c.OrderIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return domainErr.Validation("order_ids", "at least one order id is required")
	}
	if len(ids) > maxBulkItems {
		return domainErr.Validation("order_ids", fmt.Sprintf("at most %d orders per request", maxBulkItems))
	}
	c.OrderIDs = ids
	return nil
}

type PickupCommand struct {
	BulkCommand
	Date string // YYYY-MM-DD, defaults to the next day
	Time string // HH:MM:SS, defaults to 11:00:00
}
