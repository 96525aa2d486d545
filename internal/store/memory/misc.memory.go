package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/Tanmoy095/logisynapse-fulfillment/internal/billing"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/customer"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/events"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/fulfillment"
)

// MerchantStore holds merchant categories and registered pickup locations.
type MerchantStore struct {
	mu         sync.RWMutex
	categories map[string]string
	warehouses map[string]fulfillment.Warehouse
}

func NewMerchantStore() *MerchantStore {
	return &MerchantStore{
		categories: make(map[string]string),
		warehouses: make(map[string]fulfillment.Warehouse),
	}
}

func (s *MerchantStore) SetCategory(merchantID, category string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories[merchantID] = category
}

func (s *MerchantStore) AddWarehouse(merchantID string, w fulfillment.Warehouse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warehouses[orderKey(merchantID, w.Name)] = w
}

func (s *MerchantStore) PutMerchant(ctx context.Context, id, name, category string) error {
	if category == "" {
		category = "standard"
	}
	s.SetCategory(id, category)
	return ctxErr(ctx)
}

func (s *MerchantStore) PutWarehouse(ctx context.Context, merchantID string, w fulfillment.Warehouse) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.AddWarehouse(merchantID, w)
	return nil
}

func (s *MerchantStore) MerchantCategory(ctx context.Context, merchantID string) (string, error) {
	if err := ctxErr(ctx); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.categories[merchantID], nil
}

func (s *MerchantStore) Warehouse(ctx context.Context, merchantID, name string) (*fulfillment.Warehouse, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.warehouses[orderKey(merchantID, name)]
	if !ok {
		return nil, fulfillment.ErrWarehouseNotFound
	}
	return &w, nil
}

type BillingStore struct {
	mu     sync.Mutex
	cycles map[string]*billing.Cycle
}

func NewBillingStore() *BillingStore {
	return &BillingStore{cycles: make(map[string]*billing.Cycle)}
}

func cloneCycle(c *billing.Cycle) *billing.Cycle {
	cp := *c
	cp.Lines = append([]billing.Line(nil), c.Lines...)
	return &cp
}

func (s *BillingStore) GetOrCreateCycle(ctx context.Context, merchantID string, p billing.Period) (*billing.Cycle, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := billing.CycleID(merchantID, p)
	c, ok := s.cycles[id]
	if !ok {
		c = billing.NewCycle(merchantID, p, p.Start())
		s.cycles[id] = c
	}
	return cloneCycle(c), nil
}

func (s *BillingStore) GetCycle(ctx context.Context, merchantID string, p billing.Period) (*billing.Cycle, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cycles[billing.CycleID(merchantID, p)]
	if !ok {
		return nil, billing.ErrCycleNotFound
	}
	return cloneCycle(c), nil
}

func (s *BillingStore) AddLine(ctx context.Context, cycleID string, l billing.Line) (bool, error) {
	if err := ctxErr(ctx); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cycles[cycleID]
	if !ok {
		return false, billing.ErrCycleNotFound
	}
	if c.HasLine(l.OrderID, l.Direction) {
		return false, nil
	}
	c.Apply(l)
	return true, nil
}

type CustomerStore struct {
	mu       sync.Mutex
	profiles map[string]*customer.Profile
}

func NewCustomerStore() *CustomerStore {
	return &CustomerStore{profiles: make(map[string]*customer.Profile)}
}

func (s *CustomerStore) Upsert(ctx context.Context, merchantID, phone string, mutate func(p *customer.Profile)) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := orderKey(merchantID, phone)
	p, ok := s.profiles[key]
	if !ok {
		p = &customer.Profile{MerchantID: merchantID, Phone: phone, TotalShipping: decimal.Zero}
	}
	next := *p
	mutate(&next)
	s.profiles[key] = &next
	return nil
}

func (s *CustomerStore) Get(ctx context.Context, merchantID, phone string) (*customer.Profile, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[orderKey(merchantID, phone)]
	if !ok {
		return nil, customer.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

type outboxRow struct {
	ev        events.Event
	published bool
}

type OutboxStore struct {
	mu   sync.Mutex
	rows []outboxRow
}

func NewOutboxStore() *OutboxStore { return &OutboxStore{} }

func (s *OutboxStore) Append(ctx context.Context, ev events.Event) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, outboxRow{ev: ev})
	return nil
}

func (s *OutboxStore) Pending(ctx context.Context, limit int) ([]events.Event, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.Event
	for _, r := range s.rows {
		if !r.published {
			out = append(out, r.ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *OutboxStore) MarkPublished(ctx context.Context, ids []string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if set[s.rows[i].ev.ID] {
			s.rows[i].published = true
		}
	}
	return nil
}
