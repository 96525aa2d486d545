package serviceability

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Tanmoy095/logisynapse-fulfillment/internal/courier"
	domainErr "github.com/Tanmoy095/logisynapse-fulfillment/internal/domain/errors"
	"github.com/Tanmoy095/logisynapse-fulfillment/internal/order"
)

type fakeLookup struct {
	mu    sync.Mutex
	info  map[string]courier.PincodeInfo
	fail  map[string]error
	calls int
}

func (f *fakeLookup) CheckServiceability(ctx context.Context, pin string) (courier.PincodeInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.fail[pin]; err != nil {
		return courier.PincodeInfo{}, err
	}
	return f.info[pin], nil
}

func full(pin string) courier.PincodeInfo {
	return courier.PincodeInfo{Pincode: pin, Serviceable: true, PickupAvailable: true, CashOnDelivery: true}
}

func TestGateCheck(t *testing.T) {
	tests := []struct {
		name     string
		pickup   courier.PincodeInfo
		delivery courier.PincodeInfo
		failPin  string
		mode     order.PaymentMode
		wantRole string
	}{
		{name: "both serviceable", pickup: full("411001"), delivery: full("560001"), mode: order.PaymentCOD},
		{name: "delivery not serviceable", pickup: full("411001"), delivery: courier.PincodeInfo{Pincode: "560001"}, mode: order.PaymentPrepaid, wantRole: "delivery"},
		{name: "pickup lacks pickup capability", pickup: courier.PincodeInfo{Pincode: "411001", Serviceable: true}, delivery: full("560001"), mode: order.PaymentPrepaid, wantRole: "pickup"},
		{name: "cod not available", pickup: full("411001"), delivery: courier.PincodeInfo{Pincode: "560001", Serviceable: true}, mode: order.PaymentCOD, wantRole: "delivery"},
		{name: "prepaid ignores cod flag", pickup: full("411001"), delivery: courier.PincodeInfo{Pincode: "560001", Serviceable: true}, mode: order.PaymentPrepaid},
		{name: "provider error is failure", pickup: full("411001"), delivery: full("560001"), failPin: "560001", mode: order.PaymentPrepaid, wantRole: "delivery"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lk := &fakeLookup{
				info: map[string]courier.PincodeInfo{"411001": tt.pickup, "560001": tt.delivery},
				fail: map[string]error{},
			}
			if tt.failPin != "" {
				lk.fail[tt.failPin] = errors.New("timeout")
			}
			_, err := NewGate(lk).Check(context.Background(), "411001", "560001", tt.mode)
			if tt.wantRole == "" {
				require.NoError(t, err)
				return
			}
			var se *domainErr.ServiceabilityError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.wantRole, se.Role)
		})
	}
}

type mockLookup struct {
	mock.Mock
}

func (m *mockLookup) CheckServiceability(ctx context.Context, pin string) (courier.PincodeInfo, error) {
	args := m.Called(ctx, pin)
	return args.Get(0).(courier.PincodeInfo), args.Error(1)
}

func TestGateNoCaching(t *testing.T) {
	lk := new(mockLookup)
	lk.On("CheckServiceability", mock.Anything, "411001").Return(full("411001"), nil).Times(2)
	lk.On("CheckServiceability", mock.Anything, "560001").Return(full("560001"), nil).Once()
	lk.On("CheckServiceability", mock.Anything, "560001").Return(courier.PincodeInfo{Pincode: "560001"}, nil).Once()

	g := NewGate(lk)
	_, err := g.Check(context.Background(), "411001", "560001", order.PaymentPrepaid)
	require.NoError(t, err)

	// coverage changed between attempts; the second check must see it
	_, err = g.Check(context.Background(), "411001", "560001", order.PaymentPrepaid)
	var se *domainErr.ServiceabilityError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "delivery", se.Role)
	lk.AssertExpectations(t)
}

func TestGateMalformedPincode(t *testing.T) {
	lk := &fakeLookup{}
	_, err := NewGate(lk).Check(context.Background(), "41100", "560001", order.PaymentPrepaid)
	var se *domainErr.ServiceabilityError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "pickup", se.Role)
	assert.Zero(t, lk.calls)
}
