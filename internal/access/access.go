// Package access resolves bearer tokens into the calling account.
package access

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/kinship/backend/internal/logging"
	"github.com/kinship/backend/internal/models"
	"github.com/kinship/backend/internal/repositories"
)

var (
	// ErrUnauthenticated indicates a missing, malformed, forged or expired bearer token.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrAccountNotFound indicates a valid token whose account no longer exists.
	ErrAccountNotFound = errors.New("account not found")
)

// TokenVerifier checks an access token and returns the account id it carries.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// AccountFinder loads accounts by id.
type AccountFinder interface {
	FindByID(ctx context.Context, id string) (models.Account, error)
}

// Control authenticates callers.
type Control struct {
	tokens   TokenVerifier
	accounts AccountFinder
}

// NewControl constructs a Control.
func NewControl(tokens TokenVerifier, accounts AccountFinder) *Control {
	return &Control{tokens: tokens, accounts: accounts}
}

// Resolve verifies token and loads the account it was issued to.
func (c *Control) Resolve(ctx context.Context, token string) (models.Account, error) {
	if strings.TrimSpace(token) == "" {
		return models.Account{}, ErrUnauthenticated
	}

	accountID, err := c.tokens.Verify(token)
	if err != nil {
		return models.Account{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	account, err := c.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Account{}, ErrAccountNotFound
		}
		return models.Account{}, fmt.Errorf("load caller: %w", err)
	}
	return account, nil
}

// ErrorWriter renders an authentication failure.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Middleware requires an "Authorization: Bearer <token>" header, resolves the caller and stores
// it on the request context for AccountFromContext.
func (c *Control) Middleware(fail ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				fail(w, r, ErrUnauthenticated)
				return
			}

			account, err := c.Resolve(r.Context(), token)
			if err != nil {
				logging.FromContext(r.Context()).Warn("caller resolution failed", "error", err)
				fail(w, r, err)
				return
			}

			ctx := WithAccount(r.Context(), account)
			ctx = logging.WithAccountID(ctx, account.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

type accountKey struct{}

// WithAccount stores the authenticated account on the context.
func WithAccount(ctx context.Context, account models.Account) context.Context {
	return context.WithValue(ctx, accountKey{}, account)
}

// AccountFromContext returns the authenticated account stored by Middleware.
func AccountFromContext(ctx context.Context) (models.Account, bool) {
	account, ok := ctx.Value(accountKey{}).(models.Account)
	return account, ok
}
