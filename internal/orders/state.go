package orders

import "foodbackend/internal/models"

type Policy string

const (
	// PolicyForward allows skipping ahead in the lifecycle but never moving
	// back. Cancellation is allowed from any non-terminal status.
	PolicyForward Policy = "forward"
	// PolicyStrict allows only the next adjacent status, or cancellation.
	PolicyStrict Policy = "strict"
)

var lifecycleRank = map[models.OrderStatus]int{
	models.StatusPending:        0,
	models.StatusConfirmed:      1,
	models.StatusPreparing:      2,
	models.StatusOutForDelivery: 3,
	models.StatusDelivered:      4,
}

type StateMachine struct {
	policy Policy
}

func NewStateMachine(policy Policy) StateMachine {
	if policy != PolicyStrict {
		policy = PolicyForward
	}
	return StateMachine{policy: policy}
}

func (m StateMachine) Policy() Policy {
	return m.policy
}

// CanTransition reports whether from -> to is a legal, effective change.
// A same-status request is not a transition and returns false.
func (m StateMachine) CanTransition(from, to models.OrderStatus) bool {
	if !from.Valid() || !to.Valid() || from == to || from.Terminal() {
		return false
	}
	if to == models.StatusCancelled {
		return true
	}

	delta := lifecycleRank[to] - lifecycleRank[from]
	if m.policy == PolicyStrict {
		return delta == 1
	}
	return delta > 0
}

// Next lists the statuses reachable from the given one.
func (m StateMachine) Next(from models.OrderStatus) []models.OrderStatus {
	next := make([]models.OrderStatus, 0, len(models.OrderStatuses))
	for _, status := range models.OrderStatuses {
		if m.CanTransition(from, status) {
			next = append(next, status)
		}
	}
	return next
}
