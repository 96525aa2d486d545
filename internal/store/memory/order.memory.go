package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/Tanmoy095/logisynapse-fulfillment/internal/order"
)

type OrderStore struct {
	mu     sync.RWMutex
	orders map[string]*order.Order
	refs   map[string]string
}

func NewOrderStore() *OrderStore {
	return &OrderStore{
		orders: make(map[string]*order.Order),
		refs:   make(map[string]string),
	}
}

func orderKey(merchantID, id string) string { return merchantID + "/" + id }

func (s *OrderStore) Create(ctx context.Context, o *order.Order) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := orderKey(o.MerchantID, o.ID)
	if _, ok := s.orders[key]; ok {
		return order.ErrDuplicateOrder
	}
	if o.ReferenceID != "" {
		ref := orderKey(o.MerchantID, o.ReferenceID)
		if _, ok := s.refs[ref]; ok {
			return order.ErrDuplicateOrder
		}
		s.refs[ref] = o.ID
	}
	s.orders[key] = o.Clone()
	return nil
}

func (s *OrderStore) Get(ctx context.Context, merchantID, orderID string) (*order.Order, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[orderKey(merchantID, orderID)]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return o.Clone(), nil
}

func (s *OrderStore) Update(ctx context.Context, o *order.Order, expected order.Status) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := orderKey(o.MerchantID, o.ID)
	cur, ok := s.orders[key]
	if !ok {
		return order.ErrOrderNotFound
	}
	if cur.Status != expected || cur.Version != o.Version {
		return order.ErrStaleOrder
	}
	next := o.Clone()
	next.Billing = cur.Billing
	next.Version = cur.Version + 1
	s.orders[key] = next
	o.Version = next.Version
	return nil
}

func (s *OrderStore) UpdateBilling(ctx context.Context, merchantID, orderID string, b order.Billing) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.orders[orderKey(merchantID, orderID)]
	if !ok {
		return order.ErrOrderNotFound
	}
	cur.Billing = b
	return nil
}

func (s *OrderStore) LinkPayment(ctx context.Context, merchantID, orderID, walletTxnID string, status order.BillingPaymentStatus) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.orders[orderKey(merchantID, orderID)]
	if !ok {
		return order.ErrOrderNotFound
	}
	if walletTxnID != "" {
		cur.Billing.WalletTxnID = walletTxnID
	}
	cur.Billing.PaymentStatus = status
	return nil
}

func (s *OrderStore) ListByCancellationStatus(ctx context.Context, status order.CancellationStatus, limit int) ([]*order.Order, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var out []*order.Order
	for _, o := range s.orders {
		if o.Cancellation.Status == status {
			out = append(out, o.Clone())
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Count is used by tests.
func (s *OrderStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}
