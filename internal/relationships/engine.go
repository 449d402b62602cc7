// Package relationships applies friend request, friendship and block transitions between two
// accounts.
//
// Each account record is written atomically by the store, but a transition touching both
// records is a sequence of idempotent single-record steps with no rollback. Steps are ordered
// so that the record carrying the precondition is written last: when a step fails, the
// precondition still holds and the caller can repeat the transition.
package relationships

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kinship/backend/internal/logging"
	"github.com/kinship/backend/internal/models"
	"github.com/kinship/backend/internal/observability"
	"github.com/kinship/backend/internal/repositories"
)

// Transition names used in logs, metrics and TransitionError.
const (
	TransitionSendRequest = "send_request"
	TransitionAccept      = "accept_request"
	TransitionDecline     = "decline_request"
	TransitionUnfriend    = "unfriend"
	TransitionBlock       = "block"
	TransitionUnblock     = "unblock"
)

// Store is the account persistence the engine needs.
type Store interface {
	FindByID(ctx context.Context, id string) (models.Account, error)
	PushToSet(ctx context.Context, id string, set models.RelationSet, value string) error
	PullFromSet(ctx context.Context, id string, set models.RelationSet, value string) error
	ApplySetOps(ctx context.Context, id string, ops ...models.SetOp) error
	ListSummaries(ctx context.Context, ids []string) ([]models.AccountSummary, error)
}

// SummarySource resolves account ids into list entries.
type SummarySource interface {
	Summaries(ctx context.Context, ids []string) ([]models.AccountSummary, error)
}

// Engine validates and applies relationship transitions.
type Engine struct {
	store     Store
	summaries SummarySource
}

// Option customises an Engine.
type Option func(*Engine)

// WithSummarySource routes list lookups through source instead of the store, typically a
// cached lookup.
func WithSummarySource(source SummarySource) Option {
	return func(e *Engine) {
		if source != nil {
			e.summaries = source
		}
	}
}

// NewEngine constructs an Engine over store.
func NewEngine(store Store, opts ...Option) *Engine {
	if store == nil {
		panic("relationships: store must not be nil")
	}
	e := &Engine{store: store}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SendRequest records senderID as a pending request on targetID. Sending again while the
// request is pending succeeds without changing anything.
func (e *Engine) SendRequest(ctx context.Context, senderID, targetID string) (err error) {
	ctx, done := e.begin(ctx, TransitionSendRequest, targetID)
	defer func() { done(err) }()

	if err := validatePair(senderID, targetID); err != nil {
		return err
	}

	target, err := e.load(ctx, targetID)
	if err != nil {
		return err
	}
	if target.Has(models.SetPendingRequests, senderID) {
		return nil
	}
	if target.Has(models.SetFriends, senderID) {
		return ErrAlreadyFriends
	}

	sender, err := e.load(ctx, senderID)
	if err != nil {
		return err
	}
	if sender.Has(models.SetFriends, targetID) {
		return ErrAlreadyFriends
	}

	if err := e.store.PushToSet(ctx, targetID, models.SetPendingRequests, senderID); err != nil {
		return storeError(TransitionSendRequest, err)
	}
	return nil
}

// RespondToRequest accepts or declines the pending request senderID sent to recipientID.
func (e *Engine) RespondToRequest(ctx context.Context, recipientID, senderID string, accept bool) (err error) {
	transition := TransitionDecline
	if accept {
		transition = TransitionAccept
	}
	ctx, done := e.begin(ctx, transition, senderID)
	defer func() { done(err) }()

	if err := validatePair(recipientID, senderID); err != nil {
		return err
	}

	recipient, err := e.load(ctx, recipientID)
	if err != nil {
		return err
	}
	if !recipient.Has(models.SetPendingRequests, senderID) {
		return ErrRequestNotFound
	}

	if !accept {
		if err := e.store.PullFromSet(ctx, recipientID, models.SetPendingRequests, senderID); err != nil {
			return storeError(transition, err)
		}
		return nil
	}

	return e.run(ctx, transition, []step{
		{
			// Also clears a crossed request the recipient may have sent the other way.
			name:    "add recipient to sender friends",
			account: senderID,
			ops: []models.SetOp{
				models.Push(models.SetFriends, recipientID),
				models.Pull(models.SetPendingRequests, recipientID),
			},
		},
		{
			name:    "add sender to recipient friends and clear request",
			account: recipientID,
			ops: []models.SetOp{
				models.Push(models.SetFriends, senderID),
				models.Pull(models.SetPendingRequests, senderID),
			},
		},
	})
}

// Unfriend removes the friendship between callerID and targetID from both records.
func (e *Engine) Unfriend(ctx context.Context, callerID, targetID string) (err error) {
	ctx, done := e.begin(ctx, TransitionUnfriend, targetID)
	defer func() { done(err) }()

	if err := validatePair(callerID, targetID); err != nil {
		return err
	}

	caller, err := e.load(ctx, callerID)
	if err != nil {
		return err
	}
	if !caller.Has(models.SetFriends, targetID) {
		return ErrRelationNotFound
	}

	return e.run(ctx, TransitionUnfriend, []step{
		{
			name:         "remove caller from target friends",
			account:      targetID,
			ops:          []models.SetOp{models.Pull(models.SetFriends, callerID)},
			allowMissing: true,
		},
		{
			name:    "remove target from caller friends",
			account: callerID,
			ops:     []models.SetOp{models.Pull(models.SetFriends, targetID)},
		},
	})
}

// Block records targetID as blocked by callerID and drops any pending request or friendship
// on the caller's record. The target's record is left untouched.
func (e *Engine) Block(ctx context.Context, callerID, targetID string) (err error) {
	ctx, done := e.begin(ctx, TransitionBlock, targetID)
	defer func() { done(err) }()

	if err := validatePair(callerID, targetID); err != nil {
		return err
	}
	if _, err := e.load(ctx, targetID); err != nil {
		return err
	}

	err = e.store.ApplySetOps(ctx, callerID,
		models.Pull(models.SetPendingRequests, targetID),
		models.Pull(models.SetFriends, targetID),
		models.Push(models.SetBlocked, targetID),
	)
	if err != nil {
		return storeError(TransitionBlock, err)
	}
	return nil
}

// Unblock removes targetID from the caller's blocked set.
func (e *Engine) Unblock(ctx context.Context, callerID, targetID string) (err error) {
	ctx, done := e.begin(ctx, TransitionUnblock, targetID)
	defer func() { done(err) }()

	if err := validatePair(callerID, targetID); err != nil {
		return err
	}

	caller, err := e.load(ctx, callerID)
	if err != nil {
		return err
	}
	if !caller.Has(models.SetBlocked, targetID) {
		return ErrRelationNotFound
	}

	if err := e.store.PullFromSet(ctx, callerID, models.SetBlocked, targetID); err != nil {
		return storeError(TransitionUnblock, err)
	}
	return nil
}

// ListFriends returns summaries of the account's friends.
func (e *Engine) ListFriends(ctx context.Context, accountID string) ([]models.AccountSummary, error) {
	return e.list(ctx, accountID, models.SetFriends)
}

// ListBlocked returns summaries of the accounts the account has blocked.
func (e *Engine) ListBlocked(ctx context.Context, accountID string) ([]models.AccountSummary, error) {
	return e.list(ctx, accountID, models.SetBlocked)
}

// ListPendingRequests returns summaries of the accounts waiting on a response.
func (e *Engine) ListPendingRequests(ctx context.Context, accountID string) ([]models.AccountSummary, error) {
	return e.list(ctx, accountID, models.SetPendingRequests)
}

func (e *Engine) list(ctx context.Context, accountID string, set models.RelationSet) ([]models.AccountSummary, error) {
	account, err := e.load(ctx, accountID)
	if err != nil {
		return nil, err
	}

	ids := account.Set(set)
	if len(ids) == 0 {
		return []models.AccountSummary{}, nil
	}

	var summaries []models.AccountSummary
	if e.summaries != nil {
		summaries, err = e.summaries.Summaries(ctx, ids)
	} else {
		summaries, err = e.store.ListSummaries(ctx, ids)
	}
	if err != nil {
		return nil, storeError("list "+string(set), err)
	}
	if summaries == nil {
		summaries = []models.AccountSummary{}
	}
	return summaries, nil
}

// step is one single-record write of a transition.
type step struct {
	name    string
	account string
	ops     []models.SetOp
	// allowMissing treats a vanished account as already updated.
	allowMissing bool
}

// run applies steps in order and stops at the first failure.
func (e *Engine) run(ctx context.Context, transition string, steps []step) error {
	logger := logging.FromContext(ctx)
	applied := make([]string, 0, len(steps))

	for _, s := range steps {
		err := e.store.ApplySetOps(ctx, s.account, s.ops...)
		if err == nil {
			applied = append(applied, s.name)
			continue
		}
		if s.allowMissing && errors.Is(err, repositories.ErrNotFound) {
			logger.Warn("counterpart account missing", slog.String("step", s.name), slog.String("counterpart_id", s.account))
			continue
		}
		if len(applied) == 0 {
			return storeError(transition, err)
		}

		observability.RecordPartialFailure(transition)
		logger.Error("transition partially applied",
			slog.String("transition", transition),
			slog.String("failed_step", s.name),
			slog.String("applied_steps", strings.Join(applied, "; ")),
			slog.String("error", err.Error()),
		)
		return &TransitionError{
			Transition: transition,
			FailedStep: s.name,
			Applied:    applied,
			Err:        err,
		}
	}
	return nil
}

func (e *Engine) load(ctx context.Context, id string) (models.Account, error) {
	account, err := e.store.FindByID(ctx, id)
	if err != nil {
		return models.Account{}, storeError("load account", err)
	}
	return account, nil
}

func (e *Engine) begin(ctx context.Context, transition, counterpartID string) (context.Context, func(error)) {
	ctx, span := logging.StartSpan(ctx, "relationships."+transition)
	ctx = logging.WithLogger(ctx, logging.FromContext(ctx).With(slog.String("counterpart_id", counterpartID)))

	return ctx, func(err error) {
		observability.RecordTransition(transition, outcome(err))
		span.EndWithError(err)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return observability.OutcomeOK
	case errors.Is(err, ErrStoreUnavailable):
		return observability.OutcomeFailed
	default:
		return observability.OutcomeRejected
	}
}

func validatePair(callerID, targetID string) error {
	if strings.TrimSpace(targetID) == "" || strings.TrimSpace(callerID) == "" {
		return ErrInvalidTarget
	}
	if callerID == targetID {
		return ErrSelfRelation
	}
	return nil
}

func storeError(op string, err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrAccountNotFound
	}
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
