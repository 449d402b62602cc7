package handlers

import (
	"net/http"
	"strings"

	"github.com/kinship/backend/internal/accounts"
	"github.com/kinship/backend/internal/logging"
	"github.com/kinship/backend/internal/models"
)

// AuthHandler implements registration and session endpoints.
type AuthHandler struct {
	Accounts AccountService
	Sessions SessionManager
}

// Register handles POST /api/v1/auth/register requests.
func (h AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	ctx := r.Context()
	var req accounts.RegisterInput
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(ctx, w, err)
		return
	}

	account, err := h.Accounts.Register(ctx, req)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	logging.FromContext(ctx).Info("account created", "account_id", account.ID)
	respondJSON(ctx, w, http.StatusCreated, accountResponse{Account: account})
}

// Login handles POST /api/v1/auth/login requests.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	ctx := r.Context()
	var req loginRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(ctx, w, err)
		return
	}

	account, tokens, err := h.Accounts.Authenticate(ctx, req.Email, req.PhoneNumber, req.Password)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, loginResponse{
		Token:   tokens.AccessToken,
		Tokens:  tokens,
		Account: account,
	})
}

// Refresh exchanges a refresh token for a new session.
func (h AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	ctx := r.Context()
	var req refreshRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(ctx, w, err)
		return
	}

	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		writeError(ctx, w, missingField("refreshToken"))
		return
	}

	tokens, err := h.Sessions.Refresh(ctx, req.RefreshToken)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, tokenResponse{Token: tokens.AccessToken, Tokens: tokens})
}

// Logout revokes a refresh token. Unknown tokens are accepted silently.
func (h AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	ctx := r.Context()
	var req refreshRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(ctx, w, err)
		return
	}

	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		writeError(ctx, w, missingField("refreshToken"))
		return
	}

	if err := h.Sessions.Revoke(ctx, req.RefreshToken); err != nil {
		writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type loginRequest struct {
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
	Password    string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type accountResponse struct {
	Account models.Account `json:"account"`
}

type loginResponse struct {
	Token   string               `json:"token"`
	Tokens  models.SessionTokens `json:"tokens"`
	Account models.Account       `json:"account"`
}

type tokenResponse struct {
	Token  string               `json:"token"`
	Tokens models.SessionTokens `json:"tokens"`
}
