package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/kinship/backend/internal/access"
	"github.com/kinship/backend/internal/accounts"
	"github.com/kinship/backend/internal/models"
)

// AccountService captures the account lifecycle operations used by the handlers.
type AccountService interface {
	Register(ctx context.Context, in accounts.RegisterInput) (models.Account, error)
	Authenticate(ctx context.Context, email, phone, password string) (models.Account, models.SessionTokens, error)
	Get(ctx context.Context, id string) (models.Account, error)
	UpdateProfile(ctx context.Context, id string, update accounts.ProfileUpdate) (models.Account, error)
	UpdateProfilePicture(ctx context.Context, id, filename, contentType string, r io.Reader) (models.Account, error)
}

// SessionManager refreshes and revokes issued sessions.
type SessionManager interface {
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	Revoke(ctx context.Context, refreshToken string) error
}

// RelationshipEngine applies relationship transitions for the caller.
type RelationshipEngine interface {
	SendRequest(ctx context.Context, senderID, targetID string) error
	RespondToRequest(ctx context.Context, recipientID, senderID string, accept bool) error
	Unfriend(ctx context.Context, callerID, targetID string) error
	Block(ctx context.Context, callerID, targetID string) error
	Unblock(ctx context.Context, callerID, targetID string) error
	ListFriends(ctx context.Context, accountID string) ([]models.AccountSummary, error)
	ListBlocked(ctx context.Context, accountID string) ([]models.AccountSummary, error)
	ListPendingRequests(ctx context.Context, accountID string) ([]models.AccountSummary, error)
}

// Authenticator wraps handlers that require a resolved caller.
type Authenticator interface {
	Middleware(fail access.ErrorWriter) func(http.Handler) http.Handler
}
