package order

import "context"

// Store persists orders. Every read is scoped by merchant.
type Store interface {
	// Create fails with ErrDuplicateOrder when the id or reference id is taken.
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, merchantID, orderID string) (*Order, error)
	// Update writes o only if the stored status still equals expected and
	// the stored version still equals o.Version, otherwise ErrStaleOrder.
	// On success o.Version is advanced. Stored billing linkage is preserved;
	// it is written only through UpdateBilling and LinkPayment.
	Update(ctx context.Context, o *Order, expected Status) error
	UpdateBilling(ctx context.Context, merchantID, orderID string, b Billing) error
	LinkPayment(ctx context.Context, merchantID, orderID, walletTxnID string, status BillingPaymentStatus) error
	ListByCancellationStatus(ctx context.Context, status CancellationStatus, limit int) ([]*Order, error)
}
