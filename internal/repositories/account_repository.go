package repositories

import (
	"context"

	"github.com/kinship/backend/internal/models"
)

// AccountRepository defines the data access contract for account documents.
//
// Every method that mutates a relationship set touches exactly one account and is applied
// atomically by the backing store. Pushing a present value or pulling an absent one succeeds
// without changing anything; both fail with ErrNotFound when the account itself is missing.
type AccountRepository interface {
	FindByID(ctx context.Context, id string) (models.Account, error)
	FindByEmailOrPhone(ctx context.Context, email, phone string) (models.Account, error)
	Create(ctx context.Context, account models.Account) error
	Update(ctx context.Context, id string, patch models.AccountPatch) (models.Account, error)
	PushToSet(ctx context.Context, id string, set models.RelationSet, value string) error
	PullFromSet(ctx context.Context, id string, set models.RelationSet, value string) error
	ApplySetOps(ctx context.Context, id string, ops ...models.SetOp) error
	ListSummaries(ctx context.Context, ids []string) ([]models.AccountSummary, error)
}

func validateOps(ops []models.SetOp) error {
	for _, op := range ops {
		if !op.Set.Valid() {
			return ErrInvalidSet
		}
	}
	return nil
}

// orderSummaries returns summaries in the order of ids, dropping ids with no match.
func orderSummaries(ids []string, byID map[string]models.AccountSummary) []models.AccountSummary {
	out := make([]models.AccountSummary, 0, len(ids))
	for _, id := range ids {
		if summary, ok := byID[id]; ok {
			out = append(out, summary)
		}
	}
	return out
}
