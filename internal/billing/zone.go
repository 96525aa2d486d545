package billing

import (
	"errors"
	"strings"

	"github.com/Tanmoy095/logisynapse-fulfillment/internal/order"
)

type Zone string

const (
	ZoneA Zone = "A" // within city
	ZoneB Zone = "B" // within state
	ZoneC Zone = "C" // metro to metro
	ZoneD Zone = "D" // rest of india
	ZoneE Zone = "E" // special states
)

var ErrZoneUnresolved = errors.New("zone cannot be resolved from addresses")

var metros = map[string]bool{
	"mumbai": true, "delhi": true, "new delhi": true, "kolkata": true, "chennai": true,
	"bengaluru": true, "bangalore": true, "hyderabad": true, "pune": true, "ahmedabad": true,
}

var specialStates = map[string]bool{
	"jammu and kashmir": true, "ladakh": true, "himachal pradesh": true,
	"assam": true, "arunachal pradesh": true, "manipur": true, "meghalaya": true,
	"mizoram": true, "nagaland": true, "sikkim": true, "tripura": true,
	"andaman and nicobar islands": true, "lakshadweep": true,
}

func norm(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "&", "and")
	return strings.Join(strings.Fields(s), " ")
}

func ResolveZone(pickup, delivery order.Address) (Zone, error) {
	pc, ps := norm(pickup.City), norm(pickup.State)
	dc, ds := norm(delivery.City), norm(delivery.State)
	if pc == "" || ps == "" || dc == "" || ds == "" {
		return "", ErrZoneUnresolved
	}
	switch {
	case pc == dc && ps == ds:
		return ZoneA, nil
	case ps == ds:
		return ZoneB, nil
	case specialStates[ps] || specialStates[ds]:
		return ZoneE, nil
	case metros[pc] && metros[dc]:
		return ZoneC, nil
	default:
		return ZoneD, nil
	}
}
