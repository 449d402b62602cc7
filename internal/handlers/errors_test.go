package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/kinship/backend/internal/access"
	"github.com/kinship/backend/internal/accounts"
	"github.com/kinship/backend/internal/auth"
	"github.com/kinship/backend/internal/relationships"
	"github.com/kinship/backend/internal/repositories"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"body", missingField("targetId"), http.StatusBadRequest, KindInvalid},
		{"input", fmt.Errorf("%w: bad email", accounts.ErrInvalidInput), http.StatusBadRequest, KindInvalid},
		{"self", relationships.ErrSelfRelation, http.StatusBadRequest, KindInvalid},
		{"unauthenticated", fmt.Errorf("%w: %w", access.ErrUnauthenticated, auth.ErrTokenExpired), http.StatusUnauthorized, KindUnauthenticated},
		{"refresh", auth.ErrRefreshTokenExpired, http.StatusUnauthorized, KindUnauthenticated},
		{"credential", accounts.ErrInvalidCredential, http.StatusUnauthorized, KindInvalidCredential},
		{"accountMissing", accounts.ErrAccountNotFound, http.StatusNotFound, KindNotFound},
		{"callerMissing", access.ErrAccountNotFound, http.StatusNotFound, KindNotFound},
		{"targetMissing", relationships.ErrAccountNotFound, http.StatusNotFound, KindNotFound},
		{"request", relationships.ErrRequestNotFound, http.StatusNotFound, KindRequestNotFound},
		{"relation", relationships.ErrRelationNotFound, http.StatusNotFound, KindRelationNotFound},
		{"exists", accounts.ErrAlreadyExists, http.StatusConflict, KindAlreadyExists},
		{"friends", relationships.ErrAlreadyFriends, http.StatusConflict, KindAlreadyExists},
		{"store", fmt.Errorf("load: %w", repositories.ErrUnavailable), http.StatusServiceUnavailable, KindStoreUnavailable},
		{"partialMissing", &relationships.TransitionError{
			Transition: relationships.TransitionAccept,
			FailedStep: "add sender to recipient friends and clear request",
			Applied:    []string{"add recipient to sender friends"},
			Err:        repositories.ErrNotFound,
		}, http.StatusServiceUnavailable, KindStoreUnavailable},
		{"partialStore", &relationships.TransitionError{
			Transition: relationships.TransitionUnfriend,
			FailedStep: "remove target from caller friends",
			Err:        repositories.ErrUnavailable,
		}, http.StatusServiceUnavailable, KindStoreUnavailable},
		{"tooLarge", &http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge, KindTooLarge},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, KindInternal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, kind, message := classify(tc.err)
			if status != tc.status || kind != tc.kind {
				t.Fatalf("expected %d/%s got %d/%s", tc.status, tc.kind, status, kind)
			}
			if message == "" {
				t.Fatal("expected a message")
			}
		})
	}
}
