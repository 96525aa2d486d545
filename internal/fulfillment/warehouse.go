package fulfillment

import (
	"context"
	"errors"

	"github.com/Tanmoy095/logisynapse-fulfillment/internal/order"
)

var ErrWarehouseNotFound = errors.New("pickup location not registered")

// Warehouse is a registered pickup location. Name is what the courier knows it by.
type Warehouse struct {
	Name    string        `json:"name"`
	Address order.Address `json:"address"`
}

type Warehouses interface {
	Warehouse(ctx context.Context, merchantID, name string) (*Warehouse, error)
}
