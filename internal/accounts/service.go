// Package accounts implements registration, login and profile management.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/mail"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kinship/backend/internal/auth"
	"github.com/kinship/backend/internal/logging"
	"github.com/kinship/backend/internal/models"
	"github.com/kinship/backend/internal/repositories"
)

const minPasswordLength = 8

// Store is the account persistence used by the service.
type Store interface {
	FindByID(ctx context.Context, id string) (models.Account, error)
	FindByEmailOrPhone(ctx context.Context, email, phone string) (models.Account, error)
	Create(ctx context.Context, account models.Account) error
	Update(ctx context.Context, id string, patch models.AccountPatch) (models.Account, error)
	ListSummaries(ctx context.Context, ids []string) ([]models.AccountSummary, error)
}

// Hasher hashes and checks passwords.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) error
}

// TokenIssuer issues session tokens bound to an account id.
type TokenIssuer interface {
	Issue(ctx context.Context, accountID string) (models.SessionTokens, error)
}

// BlobStore saves uploaded files and returns their location.
type BlobStore interface {
	Save(ctx context.Context, key, contentType string, r io.Reader) (string, error)
}

// Dependencies bundles the collaborators of a Service.
type Dependencies struct {
	Store  Store
	Hasher Hasher
	Tokens TokenIssuer
	Blobs  BlobStore
	Cache  SummaryCache
	Now    func() time.Time
	NewID  func() string
}

// Service implements the account lifecycle.
type Service struct {
	store  Store
	hasher Hasher
	tokens TokenIssuer
	blobs  BlobStore
	cache  SummaryCache
	now    func() time.Time
	newID  func() string
}

// NewService validates deps and constructs a Service. Cache is optional.
func NewService(deps Dependencies) (*Service, error) {
	if deps.Store == nil || deps.Hasher == nil || deps.Tokens == nil {
		return nil, errors.New("accounts: store, hasher and token issuer are required")
	}
	svc := &Service{
		store:  deps.Store,
		hasher: deps.Hasher,
		tokens: deps.Tokens,
		blobs:  deps.Blobs,
		cache:  deps.Cache,
		now:    deps.Now,
		newID:  deps.NewID,
	}
	if svc.cache == nil {
		svc.cache = noopCache{}
	}
	if svc.now == nil {
		svc.now = func() time.Time { return time.Now().UTC() }
	}
	if svc.newID == nil {
		svc.newID = uuid.NewString
	}
	return svc, nil
}

// RegisterInput carries the fields accepted at registration.
type RegisterInput struct {
	UserName    string         `json:"userName"`
	Email       string         `json:"email"`
	PhoneNumber string         `json:"phoneNumber"`
	Password    string         `json:"password"`
	Profile     map[string]any `json:"profile"`
}

// Register creates a new account after checking that neither the email nor the phone number
// is in use.
func (s *Service) Register(ctx context.Context, in RegisterInput) (models.Account, error) {
	logger := logging.FromContext(ctx)

	in.UserName = strings.TrimSpace(in.UserName)
	in.Email = normalizeEmail(in.Email)
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)

	if in.UserName == "" || in.Email == "" || in.Password == "" {
		return models.Account{}, fmt.Errorf("%w: userName, email and password are required", ErrInvalidInput)
	}
	if err := validateEmail(in.Email); err != nil {
		return models.Account{}, err
	}
	if len(in.Password) < minPasswordLength {
		return models.Account{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}

	if _, err := s.store.FindByEmailOrPhone(ctx, in.Email, in.PhoneNumber); err == nil {
		logger.Warn("registration identity in use", slog.String("email", in.Email))
		return models.Account{}, ErrAlreadyExists
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return models.Account{}, fmt.Errorf("check existing account: %w", err)
	}

	hashed, err := s.hasher.Hash(in.Password)
	if err != nil {
		return models.Account{}, err
	}

	now := s.now()
	account := models.Account{
		ID:              s.newID(),
		UserName:        in.UserName,
		Email:           in.Email,
		PhoneNumber:     in.PhoneNumber,
		PasswordHash:    hashed,
		Profile:         in.Profile,
		PendingRequests: []string{},
		Friends:         []string{},
		Blocked:         []string{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.store.Create(ctx, account); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return models.Account{}, ErrAlreadyExists
		}
		return models.Account{}, fmt.Errorf("create account: %w", err)
	}

	logger.Info("account registered", slog.String("account_id", account.ID))
	return account, nil
}

// Authenticate checks the password of the account matching email or phone and issues tokens.
func (s *Service) Authenticate(ctx context.Context, email, phone, password string) (models.Account, models.SessionTokens, error) {
	email = normalizeEmail(email)
	phone = strings.TrimSpace(phone)
	if (email == "" && phone == "") || password == "" {
		return models.Account{}, models.SessionTokens{}, fmt.Errorf("%w: email or phoneNumber and password are required", ErrInvalidInput)
	}

	account, err := s.store.FindByEmailOrPhone(ctx, email, phone)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Account{}, models.SessionTokens{}, ErrAccountNotFound
		}
		return models.Account{}, models.SessionTokens{}, fmt.Errorf("find account: %w", err)
	}

	if err := s.hasher.Verify(account.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			logging.FromContext(ctx).Warn("login password mismatch", slog.String("account_id", account.ID))
			return models.Account{}, models.SessionTokens{}, ErrInvalidCredential
		}
		return models.Account{}, models.SessionTokens{}, err
	}

	tokens, err := s.tokens.Issue(ctx, account.ID)
	if err != nil {
		return models.Account{}, models.SessionTokens{}, fmt.Errorf("issue session: %w", err)
	}
	return account, tokens, nil
}

// Get returns the account with the given id.
func (s *Service) Get(ctx context.Context, id string) (models.Account, error) {
	account, err := s.store.FindByID(ctx, id)
	if err != nil {
		return models.Account{}, mapLookupError(err)
	}
	return account, nil
}

// ProfileUpdate lists the fields an account owner may change. Nil fields are left as they are;
// Profile replaces the stored profile as a whole.
type ProfileUpdate struct {
	UserName    *string        `json:"userName"`
	Email       *string        `json:"email"`
	PhoneNumber *string        `json:"phoneNumber"`
	Password    *string        `json:"password"`
	Profile     map[string]any `json:"profile"`
}

// UpdateProfile applies an allow-listed update to the account.
func (s *Service) UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (models.Account, error) {
	patch := models.AccountPatch{Profile: update.Profile}

	if update.UserName != nil {
		name := strings.TrimSpace(*update.UserName)
		if name == "" {
			return models.Account{}, fmt.Errorf("%w: userName must not be empty", ErrInvalidInput)
		}
		patch.UserName = &name
	}
	if update.Email != nil {
		email := normalizeEmail(*update.Email)
		if err := validateEmail(email); err != nil {
			return models.Account{}, err
		}
		patch.Email = &email
	}
	if update.PhoneNumber != nil {
		phone := strings.TrimSpace(*update.PhoneNumber)
		patch.PhoneNumber = &phone
	}
	if update.Password != nil {
		if len(*update.Password) < minPasswordLength {
			return models.Account{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
		}
		hashed, err := s.hasher.Hash(*update.Password)
		if err != nil {
			return models.Account{}, err
		}
		patch.PasswordHash = &hashed
	}

	if patch.Empty() {
		return s.Get(ctx, id)
	}
	patch.UpdatedAt = s.now()

	account, err := s.store.Update(ctx, id, patch)
	if err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return models.Account{}, ErrAlreadyExists
		}
		return models.Account{}, mapLookupError(err)
	}

	if patch.UserName != nil || patch.Profile != nil {
		s.invalidate(ctx, id)
	}
	return account, nil
}

// UpdateProfilePicture stores the upload and records its location on the account.
func (s *Service) UpdateProfilePicture(ctx context.Context, id, filename, contentType string, r io.Reader) (models.Account, error) {
	if s.blobs == nil {
		return models.Account{}, errors.New("profile picture storage is not configured")
	}
	name := pictureName(filename)
	if name == "" {
		return models.Account{}, fmt.Errorf("%w: profile picture file name is required", ErrInvalidInput)
	}

	if _, err := s.Get(ctx, id); err != nil {
		return models.Account{}, err
	}

	now := s.now()
	key := fmt.Sprintf("profiles/%s/%d-%s", id, now.UnixMilli(), name)
	location, err := s.blobs.Save(ctx, key, contentType, r)
	if err != nil {
		return models.Account{}, fmt.Errorf("store profile picture: %w", err)
	}

	account, err := s.store.Update(ctx, id, models.AccountPatch{ProfilePicturePath: &location, UpdatedAt: now})
	if err != nil {
		return models.Account{}, mapLookupError(err)
	}
	return account, nil
}

// Summaries returns the list projection of ids in order, consulting the cache first.
func (s *Service) Summaries(ctx context.Context, ids []string) ([]models.AccountSummary, error) {
	if len(ids) == 0 {
		return []models.AccountSummary{}, nil
	}
	logger := logging.FromContext(ctx)

	cached, err := s.cache.GetMany(ctx, ids)
	if err != nil {
		logger.Warn("summary cache read failed", slog.String("error", err.Error()))
		cached = nil
	}

	var missing []string
	for _, id := range ids {
		if _, ok := cached[id]; !ok {
			missing = append(missing, id)
		}
	}

	byID := make(map[string]models.AccountSummary, len(ids))
	for id, summary := range cached {
		byID[id] = summary
	}

	if len(missing) > 0 {
		loaded, err := s.store.ListSummaries(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("load summaries: %w", err)
		}
		for _, summary := range loaded {
			byID[summary.ID] = summary
		}
		if err := s.cache.SetMany(ctx, loaded); err != nil {
			logger.Warn("summary cache write failed", slog.String("error", err.Error()))
		}
	}

	out := make([]models.AccountSummary, 0, len(ids))
	for _, id := range ids {
		if summary, ok := byID[id]; ok {
			out = append(out, summary)
		}
	}
	return out, nil
}

func (s *Service) invalidate(ctx context.Context, id string) {
	if err := s.cache.Delete(ctx, id); err != nil {
		logging.FromContext(ctx).Warn("summary cache invalidation failed",
			slog.String("account_id", id), slog.String("error", err.Error()))
	}
}

func mapLookupError(err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrAccountNotFound
	}
	return err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email must not be empty", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}
	return nil
}

// pictureName lowercases the base name of an upload and replaces spaces with dashes.
func pictureName(filename string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	if base == "." || base == "/" {
		return ""
	}
	return strings.ToLower(strings.ReplaceAll(base, " ", "-"))
}
