package access

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kinship/backend/internal/auth"
	"github.com/kinship/backend/internal/logging"
	"github.com/kinship/backend/internal/models"
	"github.com/kinship/backend/internal/repositories"
)

func newControl(t *testing.T) (*Control, *auth.Manager, *repositories.InMemoryAccountRepository) {
	t.Helper()
	repo := repositories.NewInMemoryAccountRepository()
	if err := repo.Create(context.Background(), models.Account{ID: "acct-1", UserName: "alice", Email: "alice@example.com"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	manager := auth.NewManager(auth.Options{
		Secret:     []byte("secret"),
		Issuer:     "kinship",
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	}, auth.NewInMemorySessionStore())
	return NewControl(manager, repo), manager, repo
}

func TestResolve(t *testing.T) {
	control, manager, _ := newControl(t)
	ctx := context.Background()

	tokens, err := manager.Issue(ctx, "acct-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	account, err := control.Resolve(ctx, tokens.AccessToken)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if account.ID != "acct-1" {
		t.Fatalf("unexpected account %+v", account)
	}

	if _, err := control.Resolve(ctx, ""); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated got %v", err)
	}
	if _, err := control.Resolve(ctx, "garbage"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated got %v", err)
	}

	orphan, err := manager.Issue(ctx, "acct-gone")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := control.Resolve(ctx, orphan.AccessToken); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected account not found got %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	control, manager, _ := newControl(t)
	tokens, err := manager.Issue(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	var failures []error
	fail := func(w http.ResponseWriter, _ *http.Request, err error) {
		failures = append(failures, err)
		w.WriteHeader(http.StatusUnauthorized)
	}

	var seen models.Account
	var seenLogID string
	handler := control.Middleware(fail)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = AccountFromContext(r.Context())
		seenLogID = logging.AccountIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"valid", "Bearer " + tokens.AccessToken, http.StatusNoContent},
		{"lowercaseScheme", "bearer " + tokens.AccessToken, http.StatusNoContent},
		{"missing", "", http.StatusUnauthorized},
		{"wrongScheme", "Basic abc", http.StatusUnauthorized},
		{"emptyToken", "Bearer   ", http.StatusUnauthorized},
		{"invalidToken", "Bearer nope", http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("expected %d got %d", tc.status, rec.Code)
			}
		})
	}

	if seen.ID != "acct-1" || seenLogID != "acct-1" {
		t.Fatalf("expected caller on context, got %+v %q", seen, seenLogID)
	}
	for _, err := range failures {
		if !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("expected unauthenticated failures got %v", err)
		}
	}
}
