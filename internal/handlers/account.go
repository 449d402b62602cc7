package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/kinship/backend/internal/access"
	"github.com/kinship/backend/internal/accounts"
)

const profilePictureField = "profilePicture"

// AccountHandler serves the authenticated caller's own account.
type AccountHandler struct {
	Accounts       AccountService
	MaxUploadBytes int64
}

// Me handles GET and PATCH /api/v1/me.
func (h AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.current(w, r)
	case http.MethodPatch:
		h.update(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPatch)
	}
}

func (h AccountHandler) current(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := access.AccountFromContext(ctx)
	if !ok {
		writeError(ctx, w, access.ErrUnauthenticated)
		return
	}
	respondJSON(ctx, w, http.StatusOK, accountResponse{Account: caller})
}

func (h AccountHandler) update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := access.AccountFromContext(ctx)
	if !ok {
		writeError(ctx, w, access.ErrUnauthenticated)
		return
	}

	var req accounts.ProfileUpdate
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(ctx, w, err)
		return
	}

	account, err := h.Accounts.UpdateProfile(ctx, caller.ID, req)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, accountResponse{Account: account})
}

// Picture handles POST /api/v1/me/picture multipart uploads.
func (h AccountHandler) Picture(w http.ResponseWriter, r *http.Request) {
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

	limit := h.MaxUploadBytes
	if limit <= 0 {
		limit = 5 << 20
	}
	// Leave headroom for the multipart envelope around the file.
	r.Body = http.MaxBytesReader(w, r.Body, limit+64<<10)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(ctx, w, err)
			return
		}
		writeError(ctx, w, fmt.Errorf("%w: %v", errInvalidBody, err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile(profilePictureField)
	if err != nil {
		writeError(ctx, w, missingField(profilePictureField))
		return
	}
	defer file.Close()

	if header.Size > limit {
		writeError(ctx, w, &http.MaxBytesError{Limit: limit})
		return
	}

	account, err := h.Accounts.UpdateProfilePicture(ctx, caller.ID, header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, accountResponse{Account: account})
}

func missingField(name string) error {
	return fmt.Errorf("%w: %s is required", errInvalidBody, name)
}
