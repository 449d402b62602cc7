package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/kinship/backend/internal/access"
	"github.com/kinship/backend/internal/models"
)

// RelationshipHandler exposes friend request, friendship and block endpoints.
type RelationshipHandler struct {
	Relationships RelationshipEngine
}

// Requests handles POST (send) and GET (list pending) on /api/v1/friends/requests.
func (h RelationshipHandler) Requests(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.targetAction(w, r, h.Relationships.SendRequest)
	case http.MethodGet:
		h.list(w, r, h.Relationships.ListPendingRequests)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

// Respond handles POST /api/v1/friends/requests/respond.
func (h RelationshipHandler) Respond(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	ctx := r.Context()
	caller, ok := access.AccountFromContext(ctx)
	if !ok {
		writeError(ctx, w, access.ErrUnauthenticated)
		return
	}

	var req respondRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(ctx, w, err)
		return
	}
	req.SenderID = strings.TrimSpace(req.SenderID)
	if req.SenderID == "" {
		writeError(ctx, w, missingField("senderId"))
		return
	}
	if req.Accept == nil {
		writeError(ctx, w, missingField("accept"))
		return
	}

	if err := h.Relationships.RespondToRequest(ctx, caller.ID, req.SenderID, *req.Accept); err != nil {
		writeError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, okResponse{OK: true})
}

// Friends handles GET /api/v1/friends.
func (h RelationshipHandler) Friends(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	h.list(w, r, h.Relationships.ListFriends)
}

// Unfriend handles POST /api/v1/friends/unfriend.
func (h RelationshipHandler) Unfriend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	h.targetAction(w, r, h.Relationships.Unfriend)
}

// Blocks handles POST (block) and GET (list blocked) on /api/v1/blocks.
func (h RelationshipHandler) Blocks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.targetAction(w, r, h.Relationships.Block)
	case http.MethodGet:
		h.list(w, r, h.Relationships.ListBlocked)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

// Unblock handles POST /api/v1/blocks/remove.
func (h RelationshipHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	h.targetAction(w, r, h.Relationships.Unblock)
}

type pairAction func(ctx context.Context, callerID, targetID string) error

type listAction func(ctx context.Context, accountID string) ([]models.AccountSummary, error)

func (h RelationshipHandler) targetAction(w http.ResponseWriter, r *http.Request, action pairAction) {
	ctx := r.Context()
	caller, ok := access.AccountFromContext(ctx)
	if !ok {
		writeError(ctx, w, access.ErrUnauthenticated)
		return
	}

	var req targetRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(ctx, w, err)
		return
	}
	req.TargetID = strings.TrimSpace(req.TargetID)
	if req.TargetID == "" {
		writeError(ctx, w, missingField("targetId"))
		return
	}

	if err := action(ctx, caller.ID, req.TargetID); err != nil {
		writeError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, okResponse{OK: true})
}

func (h RelationshipHandler) list(w http.ResponseWriter, r *http.Request, action listAction) {
	ctx := r.Context()
	caller, ok := access.AccountFromContext(ctx)
	if !ok {
		writeError(ctx, w, access.ErrUnauthenticated)
		return
	}

	summaries, err := action(ctx, caller.ID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, listResponse{Accounts: summaries})
}

type targetRequest struct {
	TargetID string `json:"targetId"`
}

type respondRequest struct {
	SenderID string `json:"senderId"`
	Accept   *bool  `json:"accept"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type listResponse struct {
	Accounts []models.AccountSummary `json:"accounts"`
}
