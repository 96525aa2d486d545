package api

import (
	"github.com/shopspring/decimal"

	"github.com/Tanmoy095/logisynapse-fulfillment/internal/fulfillment"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/order"
)

type createOrderRequest struct {
	OrderID            string              `json:"order_id"`
	ReferenceID        string              `json:"reference_id"`
	PickupLocation     string              `json:"pickup_location"`
	Pickup             *order.Address      `json:"pickup"`
	Delivery           order.Address       `json:"delivery"`
	Package            order.Package       `json:"package"`
	Boxes              []order.Package     `json:"boxes"`
	ProductDescription string              `json:"product_description"`
	PaymentMode        order.PaymentMode   `json:"payment_mode"`
	OrderValue         decimal.Decimal     `json:"order_value"`
	CODAmount          decimal.Decimal     `json:"cod_amount"`
	ShippingCharge     decimal.NullDecimal `json:"shipping_charge"`
	GenerateAWB        bool                `json:"generate_awb"`
}

func (req createOrderRequest) command(merchantID string) fulfillment.CreateOrderCommand {
	return fulfillment.CreateOrderCommand{
		MerchantID:         merchantID,
		OrderID:            req.OrderID,
		ReferenceID:        req.ReferenceID,
		PickupLocation:     req.PickupLocation,
		Pickup:             req.Pickup,
		Delivery:           req.Delivery,
		Package:            req.Package,
		ProductDescription: req.ProductDescription,
		PaymentMode:        req.PaymentMode,
		OrderValue:         req.OrderValue,
		CODAmount:          req.CODAmount,
		ShippingCharge:     req.ShippingCharge,
		GenerateAWB:        req.GenerateAWB,
		Actor:              "merchant:" + merchantID,
	}
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type bulkRequest struct {
	OrderIDs []string `json:"order_ids"`
	Reason   string   `json:"reason"`
}

type pickupRequest struct {
	OrderIDs []string `json:"order_ids"`
	Date     string   `json:"pickup_date"`
	Time     string   `json:"pickup_time"`
}

type topUpRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Name   string          `json:"name"`
	Email  string          `json:"email"`
	Phone  string          `json:"phone"`
}

type cancelResponse struct {
	*fulfillment.CancelResult
	Message string `json:"message"`
}
