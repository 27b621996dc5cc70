package checkout

import (
	"fmt"

	pkgerrors "github.com/casadeele/storefront/pkg/errors"
)

// State is a step of the checkout state machine.
type State string

const (
	StateIdle              State = "Idle"
	StateValidatingBilling State = "ValidatingBilling"
	StateCreatingOrder     State = "CreatingOrder"
	StateAwaitingPayment   State = "AwaitingPayment"
	StateVerifyingPayment  State = "VerifyingPayment"
	StateSucceeded         State = "Succeeded"
	StateFailed            State = "Failed"
	StateCancelled         State = "Cancelled"
)

// transitions lists every legal move. Succeeded and Failed are terminal; a
// retry after Failed starts a new attempt at Idle. Cancelled only falls back to Idle.
var transitions = map[State][]State{
	StateIdle:              {StateValidatingBilling},
	StateValidatingBilling: {StateIdle, StateCreatingOrder, StateFailed},
	StateCreatingOrder:     {StateAwaitingPayment, StateFailed},
	StateAwaitingPayment:   {StateVerifyingPayment, StateCancelled, StateFailed},
	StateVerifyingPayment:  {StateSucceeded, StateFailed},
	StateCancelled:         {StateIdle},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func transitionError(from, to State) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("checkout cannot move from %s to %s", from, to)).
		WithDetails(map[string]string{"from": string(from), "to": string(to)})
}
