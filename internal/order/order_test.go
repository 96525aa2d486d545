package order

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainErr "github.com/Tanmoy095/logisynapse-fulfillment/internal/domain/errors"
)

var t0 = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func dispatched(t *testing.T) *Order {
	t.Helper()
	o := New("ORD-1", "m-1", t0, "tester")
	require.NoError(t, o.AssignWaybill("WB100", t0, "courier"))
	return o
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusNew, StatusReadyToShip, true},
		{StatusNew, StatusInTransit, false},
		{StatusReadyToShip, StatusPickupsManifests, true},
		{StatusPickupsManifests, StatusInTransit, true},
		{StatusPickupsManifests, StatusNDR, true},
		{StatusInTransit, StatusOutForDelivery, true},
		{StatusOutForDelivery, StatusDelivered, true},
		{StatusOutForDelivery, StatusNDR, true},
		{StatusNDR, StatusRTO, true},
		{StatusNDR, StatusDelivered, false},
		{StatusInTransit, StatusNew, false},
		{StatusLost, StatusCancelled, true},
		{StatusDelivered, StatusCancelled, false},
		{StatusRTO, StatusCancelled, false},
		{StatusCancelled, StatusCancelled, false},
		{StatusDelivered, StatusRTO, false},
		{Status("shipped"), StatusDelivered, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestAssignWaybill(t *testing.T) {
	o := New("ORD-1", "m-1", t0, "tester")

	require.ErrorIs(t, o.AssignWaybill("  ", t0, "courier"), ErrEmptyWaybill)
	assert.Empty(t, o.Waybill)
	assert.Equal(t, StatusNew, o.Status)

	require.NoError(t, o.AssignWaybill("WB100", t0, "courier"))
	assert.Equal(t, "WB100", o.Waybill)
	assert.Equal(t, StatusReadyToShip, o.Status)
	require.Len(t, o.History, 2)
	assert.Equal(t, StatusReadyToShip, o.History[1].Status)

	assert.ErrorIs(t, o.AssignWaybill("WB200", t0, "courier"), ErrWaybillAlreadySet)
}

func TestTransitionRejectsReadyToShipWithoutCourier(t *testing.T) {
	o := New("ORD-1", "m-1", t0, "tester")
	err := o.Transition(StatusReadyToShip, t0, "", "tester")
	assert.ErrorIs(t, err, domainErr.ErrInvalidTransition)
	assert.Equal(t, StatusNew, o.Status)
}

func TestTransitionAppendsHistory(t *testing.T) {
	o := dispatched(t)
	steps := []Status{StatusPickupsManifests, StatusInTransit, StatusOutForDelivery, StatusDelivered}
	for _, s := range steps {
		require.NoError(t, o.Transition(s, t0.Add(time.Hour), "scan", "tracking"))
	}
	assert.Equal(t, StatusDelivered, o.Status)
	assert.Len(t, o.History, 2+len(steps))

	err := o.Transition(StatusNDR, t0, "", "tracking")
	assert.ErrorIs(t, err, domainErr.ErrInvalidTransition)
	assert.Equal(t, StatusDelivered, o.Status)
}

func TestCancelClassification(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) *Order
		want  StatusType
	}{
		{"no waybill", func(t *testing.T) *Order { return New("O", "m", t0, "x") }, StatusTypeCN},
		{"ready to ship", dispatched, StatusTypeUD},
		{"manifested", func(t *testing.T) *Order {
			o := dispatched(t)
			require.NoError(t, o.Transition(StatusPickupsManifests, t0, "", "x"))
			return o
		}, StatusTypeCN},
		{"in transit", func(t *testing.T) *Order {
			o := dispatched(t)
			require.NoError(t, o.Transition(StatusPickupsManifests, t0, "", "x"))
			require.NoError(t, o.Transition(StatusInTransit, t0, "", "x"))
			return o
		}, StatusTypeRT},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := tt.setup(t)
			require.NoError(t, o.Cancel("customer request", "", t0, "merchant"))
			assert.Equal(t, StatusCancelled, o.Status)
			assert.Equal(t, CancellationCancelled, o.Cancellation.Status)
			assert.Equal(t, tt.want, o.Cancellation.StatusType)
			assert.Equal(t, StatusCancelled, o.History[len(o.History)-1].Status)
		})
	}
}

func TestCancelTerminal(t *testing.T) {
	o := dispatched(t)
	require.NoError(t, o.Cancel("", "", t0, "x"))
	assert.ErrorIs(t, o.Cancel("", "", t0, "x"), ErrNotCancellable)
	assert.ErrorIs(t, o.MarkCancellationPending("", "", t0), ErrNotCancellable)
}

func TestMarkCancellationPendingKeepsStatus(t *testing.T) {
	o := dispatched(t)
	require.NoError(t, o.MarkCancellationPending("duplicate", "no remark from courier", t0))
	assert.Equal(t, StatusReadyToShip, o.Status)
	assert.Equal(t, CancellationPending, o.Cancellation.Status)
	assert.Len(t, o.History, 2)
}

func TestPath(t *testing.T) {
	p, ok := Path(StatusPickupsManifests, StatusDelivered)
	require.True(t, ok)
	assert.Equal(t, []Status{StatusInTransit, StatusOutForDelivery, StatusDelivered}, p)

	p, ok = Path(StatusInTransit, StatusRTO)
	require.True(t, ok)
	assert.Equal(t, []Status{StatusNDR, StatusRTO}, p)

	_, ok = Path(StatusDelivered, StatusRTO)
	assert.False(t, ok)

	_, ok = Path(StatusInTransit, StatusCancelled)
	assert.False(t, ok)
}

func TestAddressValidate(t *testing.T) {
	a := Address{Name: "A", Line1: "1 Road", City: "Pune", State: "Maharashtra", Pincode: "411001", Phone: "9876543210"}
	require.NoError(t, a.Validate("delivery"))

	a.Pincode = "011001"
	var ve *domainErr.ValidationError
	require.ErrorAs(t, a.Validate("delivery"), &ve)
	assert.Equal(t, "delivery.pincode", ve.Field)
}
