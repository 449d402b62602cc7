package repositories

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/kinship/backend/internal/models"
)

// InMemoryAccountRepository implements AccountRepository for tests and the memory store driver.
type InMemoryAccountRepository struct {
	mu       sync.RWMutex
	accounts map[string]models.Account
}

// NewInMemoryAccountRepository returns an empty in-memory account store.
func NewInMemoryAccountRepository() *InMemoryAccountRepository {
	return &InMemoryAccountRepository{accounts: make(map[string]models.Account)}
}

// FindByID returns a copy of the stored account.
func (r *InMemoryAccountRepository) FindByID(_ context.Context, id string) (models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[id]
	if !ok {
		return models.Account{}, ErrNotFound
	}
	return cloneAccount(account), nil
}

// FindByEmailOrPhone returns the first account matching the non-empty email or phone.
func (r *InMemoryAccountRepository) FindByEmailOrPhone(_ context.Context, email, phone string) (models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, account := range r.accounts {
		if matchesIdentity(account, email, phone) {
			return cloneAccount(account), nil
		}
	}
	return models.Account{}, ErrNotFound
}

// Create stores a new account, rejecting duplicate ids, emails and phone numbers.
func (r *InMemoryAccountRepository) Create(_ context.Context, account models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.accounts[account.ID]; exists {
		return ErrConflict
	}
	for _, existing := range r.accounts {
		if matchesIdentity(existing, account.Email, account.PhoneNumber) {
			return ErrConflict
		}
	}

	account.PendingRequests = dedupe(account.PendingRequests)
	account.Friends = dedupe(account.Friends)
	account.Blocked = dedupe(account.Blocked)
	r.accounts[account.ID] = cloneAccount(account)
	return nil
}

// Update applies the patch and returns the updated account.
func (r *InMemoryAccountRepository) Update(_ context.Context, id string, patch models.AccountPatch) (models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return models.Account{}, ErrNotFound
	}

	for otherID, other := range r.accounts {
		if otherID == id {
			continue
		}
		if patch.Email != nil && *patch.Email != "" && other.Email == *patch.Email {
			return models.Account{}, ErrConflict
		}
		if patch.PhoneNumber != nil && *patch.PhoneNumber != "" && other.PhoneNumber == *patch.PhoneNumber {
			return models.Account{}, ErrConflict
		}
	}

	if patch.UserName != nil {
		account.UserName = *patch.UserName
	}
	if patch.Email != nil {
		account.Email = *patch.Email
	}
	if patch.PhoneNumber != nil {
		account.PhoneNumber = *patch.PhoneNumber
	}
	if patch.PasswordHash != nil {
		account.PasswordHash = *patch.PasswordHash
	}
	if patch.Profile != nil {
		account.Profile = maps.Clone(patch.Profile)
	}
	if patch.ProfilePicturePath != nil {
		account.ProfilePicturePath = *patch.ProfilePicturePath
	}
	if !patch.UpdatedAt.IsZero() {
		account.UpdatedAt = patch.UpdatedAt
	}

	r.accounts[id] = account
	return cloneAccount(account), nil
}

// PushToSet adds value to the named set if it is not already present.
func (r *InMemoryAccountRepository) PushToSet(ctx context.Context, id string, set models.RelationSet, value string) error {
	return r.ApplySetOps(ctx, id, models.Push(set, value))
}

// PullFromSet removes value from the named set if present.
func (r *InMemoryAccountRepository) PullFromSet(ctx context.Context, id string, set models.RelationSet, value string) error {
	return r.ApplySetOps(ctx, id, models.Pull(set, value))
}

// ApplySetOps applies all ops to one account under a single lock.
func (r *InMemoryAccountRepository) ApplySetOps(_ context.Context, id string, ops ...models.SetOp) error {
	if err := validateOps(ops); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return ErrNotFound
	}

	for _, op := range ops {
		members := account.Set(op.Set)
		switch op.Kind {
		case models.SetOpPush:
			if !slices.Contains(members, op.Value) {
				members = append(slices.Clone(members), op.Value)
			}
		case models.SetOpPull:
			members = slices.DeleteFunc(slices.Clone(members), func(v string) bool { return v == op.Value })
		}
		setMembers(&account, op.Set, members)
	}

	r.accounts[id] = account
	return nil
}

// ListSummaries returns the public projection of the requested accounts.
func (r *InMemoryAccountRepository) ListSummaries(_ context.Context, ids []string) ([]models.AccountSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byID := make(map[string]models.AccountSummary, len(ids))
	for _, id := range ids {
		if account, ok := r.accounts[id]; ok {
			byID[id] = models.AccountSummary{ID: account.ID, UserName: account.UserName, Profile: maps.Clone(account.Profile)}
		}
	}
	return orderSummaries(ids, byID), nil
}

func matchesIdentity(account models.Account, email, phone string) bool {
	return (email != "" && account.Email == email) || (phone != "" && account.PhoneNumber == phone)
}

func setMembers(account *models.Account, set models.RelationSet, members []string) {
	switch set {
	case models.SetPendingRequests:
		account.PendingRequests = members
	case models.SetFriends:
		account.Friends = members
	case models.SetBlocked:
		account.Blocked = members
	}
}

func cloneAccount(account models.Account) models.Account {
	account.Profile = maps.Clone(account.Profile)
	account.PendingRequests = nonNil(slices.Clone(account.PendingRequests))
	account.Friends = nonNil(slices.Clone(account.Friends))
	account.Blocked = nonNil(slices.Clone(account.Blocked))
	return account
}

func dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

var _ AccountRepository = (*InMemoryAccountRepository)(nil)
