package order

// Status is the closed set of lifecycle states for an order.
type Status string

const (
	StatusNew              Status = "new"
	StatusReadyToShip      Status = "ready_to_ship"
	StatusPickupsManifests Status = "pickups_manifests"
	StatusInTransit        Status = "in_transit"
	StatusOutForDelivery   Status = "out_for_delivery"
	StatusDelivered        Status = "delivered"
	StatusNDR              Status = "ndr"
	StatusRTO              Status = "rto"
	StatusCancelled        Status = "cancelled"
	StatusLost             Status = "lost"
)

var allStatuses = []Status{
	StatusNew, StatusReadyToShip, StatusPickupsManifests, StatusInTransit,
	StatusOutForDelivery, StatusDelivered, StatusNDR, StatusRTO, StatusCancelled, StatusLost,
}

// transitions is the only place that decides which moves are legal.
// Cancellation is handled separately since every non-terminal state allows it.
var transitions = map[Status][]Status{
	StatusNew:              {StatusReadyToShip},
	StatusReadyToShip:      {StatusPickupsManifests},
	StatusPickupsManifests: {StatusInTransit, StatusNDR},
	StatusInTransit:        {StatusOutForDelivery, StatusNDR, StatusLost},
	StatusOutForDelivery:   {StatusDelivered, StatusNDR, StatusLost},
	StatusNDR:              {StatusRTO, StatusLost},
}

func ParseStatus(s string) (Status, bool) {
	for _, st := range allStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

func (s Status) Valid() bool {
	_, ok := ParseStatus(string(s))
	return ok
}

func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusRTO || s == StatusCancelled
}

// RequiresWaybill reports whether an order in s must carry a waybill.
func (s Status) RequiresWaybill() bool {
	switch s {
	case StatusReadyToShip, StatusPickupsManifests, StatusInTransit,
		StatusOutForDelivery, StatusDelivered, StatusNDR, StatusRTO:
		return true
	}
	return false
}

func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() || from.IsTerminal() {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Path returns the shortest chain of forward transitions leading from -> to,
// excluding from itself. Cancellation never appears in a path.
func Path(from, to Status) ([]Status, bool) {
	if from == to {
		return nil, true
	}
	prev := map[Status]Status{from: ""}
	queue := []Status{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range transitions[cur] {
			if _, seen := prev[next]; seen {
				continue
			}
			prev[next] = cur
			if next == to {
				var path []Status
				for s := to; s != from; s = prev[s] {
					path = append([]Status{s}, path...)
				}
				return path, true
			}
			queue = append(queue, next)
		}
	}
	return nil, false
}
