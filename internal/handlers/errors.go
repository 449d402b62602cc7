package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kinship/backend/internal/access"
	"github.com/kinship/backend/internal/accounts"
	"github.com/kinship/backend/internal/auth"
	"github.com/kinship/backend/internal/logging"
	"github.com/kinship/backend/internal/relationships"
	"github.com/kinship/backend/internal/repositories"
)

// Error kinds reported in the "kind" field of error bodies.
const (
	KindInvalid           = "invalid"
	KindUnauthenticated   = "unauthenticated"
	KindInvalidCredential = "invalid_credential"
	KindNotFound          = "not_found"
	KindRequestNotFound   = "request_not_found"
	KindRelationNotFound  = "relation_not_found"
	KindAlreadyExists     = "already_exists"
	KindTooLarge          = "too_large"
	KindStoreUnavailable  = "store_unavailable"
	KindInternal          = "internal"
)

const maxJSONBodyBytes = 1 << 20

var errInvalidBody = errors.New("invalid request body")

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// classify maps a service error onto a status, a kind and a message safe to return.
func classify(err error) (int, string, string) {
	var tooLarge *http.MaxBytesError
	var partial *relationships.TransitionError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, KindTooLarge, "request body too large"
	case errors.Is(err, errInvalidBody),
		errors.Is(err, accounts.ErrInvalidInput),
		errors.Is(err, relationships.ErrSelfRelation),
		errors.Is(err, relationships.ErrInvalidTarget):
		return http.StatusBadRequest, KindInvalid, err.Error()
	case errors.Is(err, accounts.ErrInvalidCredential):
		return http.StatusUnauthorized, KindInvalidCredential, "invalid credentials"
	case errors.Is(err, access.ErrUnauthenticated):
		return http.StatusUnauthorized, KindUnauthenticated, "authentication required"
	case errors.Is(err, auth.ErrSessionNotFound), errors.Is(err, auth.ErrRefreshTokenExpired):
		return http.StatusUnauthorized, KindUnauthenticated, "refresh token is invalid or expired"
	case errors.As(err, &partial):
		// Checked before the not-found cases: some writes landed whatever the failed step hit.
		return http.StatusServiceUnavailable, KindStoreUnavailable, "relationship change partially applied, retry the request"
	case errors.Is(err, relationships.ErrRequestNotFound):
		return http.StatusNotFound, KindRequestNotFound, err.Error()
	case errors.Is(err, relationships.ErrRelationNotFound):
		return http.StatusNotFound, KindRelationNotFound, err.Error()
	case errors.Is(err, accounts.ErrAccountNotFound),
		errors.Is(err, relationships.ErrAccountNotFound),
		errors.Is(err, access.ErrAccountNotFound),
		errors.Is(err, repositories.ErrNotFound):
		return http.StatusNotFound, KindNotFound, "account not found"
	case errors.Is(err, accounts.ErrAlreadyExists):
		return http.StatusConflict, KindAlreadyExists, err.Error()
	case errors.Is(err, relationships.ErrAlreadyFriends):
		return http.StatusConflict, KindAlreadyExists, err.Error()
	case errors.Is(err, relationships.ErrStoreUnavailable), errors.Is(err, repositories.ErrUnavailable):
		return http.StatusServiceUnavailable, KindStoreUnavailable, "account store unavailable, retry the request"
	default:
		return http.StatusInternalServerError, KindInternal, "internal error"
	}
}

// writeError renders err as {"error", "kind"}. Server-side failures keep their cause in the log
// only.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status, kind, message := classify(err)
	if status >= http.StatusInternalServerError {
		logging.FromContext(ctx).Error("request error", "kind", kind, "error", err)
	}
	respondJSON(ctx, w, status, errorResponse{Error: message, Kind: kind})
}

// authFailure adapts writeError for access.Control.Middleware.
func authFailure(w http.ResponseWriter, r *http.Request, err error) {
	writeError(r.Context(), w, err)
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

// decodeJSON reads a single JSON object from the request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, strict bool) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	if strict {
		decoder.DisallowUnknownFields()
	}
	if err := decoder.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	if decoder.More() {
		return fmt.Errorf("%w: unexpected data after JSON object", errInvalidBody)
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	for _, method := range allowed {
		w.Header().Add("Allow", method)
	}
	w.WriteHeader(http.StatusMethodNotAllowed)
}
