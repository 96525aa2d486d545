package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Tanmoy095/logisynapse-fulfillment/internal/money"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/wallet"
)

type txKey struct{}

func ctxErr(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// WalletStore keeps balances and transactions in memory. RunInTx serialises
// writers and restores a snapshot when fn fails.
type WalletStore struct {
	txMu     sync.Mutex
	mu       sync.RWMutex
	balances map[string]decimal.Decimal
	txns     []wallet.Transaction
	now      func() time.Time
}

func NewWalletStore() *WalletStore {
	return &WalletStore{balances: make(map[string]decimal.Decimal), now: time.Now}
}

// Seed sets a starting balance.
func (s *WalletStore) Seed(merchantID string, balance decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[merchantID] = money.Round2(balance)
}

func (s *WalletStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	balances := maps.Clone(s.balances)
	txns := slices.Clone(s.txns)
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.mu.Lock()
		s.balances, s.txns = balances, txns
		s.mu.Unlock()
		return err
	}
	return nil
}

// write serialises against running transactions unless called from one.
func (s *WalletStore) write(ctx context.Context, fn func() error) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if ctx.Value(txKey{}) == nil {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

func (s *WalletStore) Balance(ctx context.Context, merchantID string) (decimal.Decimal, error) {
	if err := ctxErr(ctx); err != nil {
		return decimal.Zero, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[merchantID], nil
}

func (s *WalletStore) AdjustBalance(ctx context.Context, merchantID string, delta decimal.Decimal, floor bool) (opening, closing decimal.Decimal, err error) {
	err = s.write(ctx, func() error {
		opening = s.balances[merchantID]
		closing = money.Round2(opening.Add(delta))
		if floor && closing.IsNegative() {
			closing = opening
			return wallet.ErrInsufficientFunds
		}
		s.balances[merchantID] = closing
		return nil
	})
	return opening, closing, err
}

func (s *WalletStore) InsertTransaction(ctx context.Context, txn *wallet.Transaction) error {
	return s.write(ctx, func() error {
		for _, t := range s.txns {
			if t.ID == txn.ID {
				return wallet.ErrDuplicateEntry
			}
			if txn.Category.OncePerOrder() && t.MerchantID == txn.MerchantID &&
				t.OrderID == txn.OrderID && t.Category == txn.Category && t.Status != wallet.StatusFailed {
				return wallet.ErrDuplicateEntry
			}
		}
		s.txns = append(s.txns, *txn)
		return nil
	})
}

func (s *WalletStore) FindOrderTransaction(ctx context.Context, merchantID, orderID string, c wallet.Category) (*wallet.Transaction, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.txns) - 1; i >= 0; i-- {
		t := s.txns[i]
		if t.MerchantID == merchantID && t.OrderID == orderID && t.Category == c && t.Status == wallet.StatusCompleted {
			return &t, nil
		}
	}
	return nil, wallet.ErrTransactionNotFound
}

func (s *WalletStore) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*wallet.Transaction, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.txns {
		if t.GatewayOrderID == gatewayOrderID {
			return &t, nil
		}
	}
	return nil, wallet.ErrTransactionNotFound
}

func (s *WalletStore) SettlePending(ctx context.Context, txnID string, status wallet.Status, opening, closing decimal.Decimal) error {
	return s.write(ctx, func() error {
		for i := range s.txns {
			if s.txns[i].ID != txnID {
				continue
			}
			if s.txns[i].Status != wallet.StatusPending {
				return wallet.ErrNotPending
			}
			s.txns[i].Status = status
			s.txns[i].UpdatedAt = s.now().UTC()
			if status == wallet.StatusCompleted {
				s.txns[i].OpeningBalance, s.txns[i].ClosingBalance = opening, closing
			}
			return nil
		}
		return wallet.ErrTransactionNotFound
	})
}

func (s *WalletStore) ListTransactions(ctx context.Context, merchantID string, f wallet.Filter) ([]wallet.Transaction, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var out []wallet.Transaction
	for _, t := range s.txns {
		if t.MerchantID != merchantID ||
			(f.Category != "" && t.Category != f.Category) ||
			(f.Status != "" && t.Status != f.Status) ||
			(f.OrderID != "" && t.OrderID != f.OrderID) {
			continue
		}
		out = append(out, t)
	}
	s.mu.RUnlock()

	// newest first
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *WalletStore) ListPendingTopUps(ctx context.Context, olderThan time.Duration, limit int) ([]wallet.Transaction, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	cutoff := s.now().Add(-olderThan)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []wallet.Transaction
	for _, t := range s.txns {
		if t.Category == wallet.CategoryTopUp && t.Status == wallet.StatusPending && !t.CreatedAt.After(cutoff) {
			out = append(out, t)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}
