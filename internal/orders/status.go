package orders

import "github.com/bazaarly/bazaarly-backend/pkg/enums"

// allowedTransitions is the single source of truth for the order state
// machine. Anything not listed is rejected.
var allowedTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending: {
		enums.OrderStatusProcessing,
		enums.OrderStatusPaid,
		enums.OrderStatusCancelled,
		enums.OrderStatusFailed,
	},
	enums.OrderStatusProcessing: {
		enums.OrderStatusPaid,
		enums.OrderStatusCompleted,
		enums.OrderStatusCancelled,
		enums.OrderStatusFailed,
	},
	enums.OrderStatusPaid: {
		enums.OrderStatusCompleted,
		enums.OrderStatusCancelled,
	},
}

// CanTransition reports whether an order may move from one status to
// another. Terminal statuses have no outgoing transitions.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// IsCancellable reports whether a buyer may still cancel in the status.
func IsCancellable(status enums.OrderStatus) bool {
	return status == enums.OrderStatusPending || status == enums.OrderStatusProcessing
}
