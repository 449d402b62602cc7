package relationships

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidTarget indicates a blank counterpart id.
	ErrInvalidTarget = errors.New("target account id is required")
	// ErrSelfRelation indicates an account attempting to relate to itself.
	ErrSelfRelation = errors.New("an account cannot relate to itself")
	// ErrAccountNotFound indicates the counterpart account does not exist.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAlreadyFriends indicates a friend request between accounts that are already friends.
	ErrAlreadyFriends = errors.New("accounts are already friends")
	// ErrRequestNotFound indicates there is no pending request from the sender.
	ErrRequestNotFound = errors.New("friend request not found")
	// ErrRelationNotFound indicates the caller has no such relation with the counterpart.
	ErrRelationNotFound = errors.New("relation not found")
	// ErrStoreUnavailable indicates the account store failed while reading or writing.
	ErrStoreUnavailable = errors.New("account store unavailable")
)

// TransitionError reports a transition spanning two accounts that stopped after some of its
// writes were applied. Every step is idempotent, so repeating the whole transition is safe.
type TransitionError struct {
	Transition string
	FailedStep string
	Applied    []string
	Err        error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: step %q failed after [%s]: %v",
		e.Transition, e.FailedStep, strings.Join(e.Applied, ", "), e.Err)
}

// Unwrap exposes both ErrStoreUnavailable and the store failure.
func (e *TransitionError) Unwrap() []error {
	return []error{ErrStoreUnavailable, e.Err}
}
