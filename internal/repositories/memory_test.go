package repositories

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/kinship/backend/internal/models"
)

func TestInMemoryAccountRepository_CreateAndLookup(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryAccountRepository()

	account := newTestAccount("alice@example.com", "+15550001")
	account.Friends = []string{"bob", "bob"}
	if err := repo.Create(ctx, account); err != nil {
		t.Fatalf("create account: %v", err)
	}

	tests := []struct {
		name    string
		account models.Account
	}{
		{name: "same id", account: models.Account{ID: account.ID, Email: "x@example.com"}},
		{name: "same email", account: newTestAccount(account.Email, "")},
		{name: "same phone", account: newTestAccount("y@example.com", account.PhoneNumber)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := repo.Create(ctx, tt.account); !errors.Is(err, ErrConflict) {
				t.Fatalf("expected conflict, got %v", err)
			}
		})
	}

	found, err := repo.FindByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("find account: %v", err)
	}
	if !reflect.DeepEqual(found.Friends, []string{"bob"}) {
		t.Fatalf("expected duplicate members to collapse, got %v", found.Friends)
	}

	found.Friends[0] = "mallory"
	again, _ := repo.FindByID(ctx, account.ID)
	if again.Friends[0] != "bob" {
		t.Fatal("expected returned accounts to be copies")
	}

	if _, err := repo.FindByEmailOrPhone(ctx, "", account.PhoneNumber); err != nil {
		t.Fatalf("find by phone: %v", err)
	}
	if _, err := repo.FindByEmailOrPhone(ctx, "", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected empty identity not to match, got %v", err)
	}
}

func TestInMemoryAccountRepository_Update(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryAccountRepository()

	alice := newTestAccount("alice@example.com", "")
	bob := newTestAccount("bob@example.com", "")
	for _, a := range []models.Account{alice, bob} {
		if err := repo.Create(ctx, a); err != nil {
			t.Fatalf("create account: %v", err)
		}
	}

	taken := bob.Email
	if _, err := repo.Update(ctx, alice.ID, models.AccountPatch{Email: &taken}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	picture := "https://cdn.example.com/alice.png"
	updated, err := repo.Update(ctx, alice.ID, models.AccountPatch{ProfilePicturePath: &picture})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ProfilePicturePath != picture || updated.Email != alice.Email {
		t.Fatalf("unexpected account after update: %+v", updated)
	}

	if _, err := repo.Update(ctx, "missing", models.AccountPatch{ProfilePicturePath: &picture}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInMemoryAccountRepository_SetOps(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryAccountRepository()
	account := newTestAccount("alice@example.com", "")
	account.PendingRequests = []string{"bob"}
	if err := repo.Create(ctx, account); err != nil {
		t.Fatalf("create account: %v", err)
	}

	err := repo.ApplySetOps(ctx, account.ID,
		models.Pull(models.SetPendingRequests, "bob"),
		models.Push(models.SetFriends, "bob"),
		models.Push(models.SetFriends, "bob"),
	)
	if err != nil {
		t.Fatalf("apply set ops: %v", err)
	}
	assertSet(t, repo, account.ID, models.SetPendingRequests, nil)
	assertSet(t, repo, account.ID, models.SetFriends, []string{"bob"})

	if err := repo.PullFromSet(ctx, account.ID, models.SetBlocked, "nobody"); err != nil {
		t.Fatalf("pull absent member: %v", err)
	}
	if err := repo.PushToSet(ctx, "missing", models.SetFriends, "bob"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := repo.PushToSet(ctx, account.ID, models.RelationSet("followers"), "bob"); !errors.Is(err, ErrInvalidSet) {
		t.Fatalf("expected invalid set, got %v", err)
	}
}

func TestInMemoryAccountRepository_ConcurrentPushesKeepSetSemantics(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryAccountRepository()
	account := newTestAccount("alice@example.com", "")
	if err := repo.Create(ctx, account); err != nil {
		t.Fatalf("create account: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = repo.PushToSet(ctx, account.ID, models.SetFriends, fmt.Sprintf("friend-%d", i%10))
		}(i)
	}
	wg.Wait()

	found, err := repo.FindByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("find account: %v", err)
	}
	if len(found.Friends) != 10 {
		t.Fatalf("expected 10 distinct friends, got %d: %v", len(found.Friends), found.Friends)
	}
}

func TestInMemoryAccountRepository_ListSummaries(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryAccountRepository()
	alice := newTestAccount("alice@example.com", "")
	alice.UserName = "alice"
	alice.Profile = map[string]any{"bio": "hi"}
	bob := newTestAccount("bob@example.com", "")
	bob.UserName = "bob"
	for _, a := range []models.Account{alice, bob} {
		if err := repo.Create(ctx, a); err != nil {
			t.Fatalf("create account: %v", err)
		}
	}

	summaries, err := repo.ListSummaries(ctx, []string{bob.ID, "ghost", alice.ID})
	if err != nil {
		t.Fatalf("list summaries: %v", err)
	}
	want := []models.AccountSummary{
		{ID: bob.ID, UserName: "bob"},
		{ID: alice.ID, UserName: "alice", Profile: map[string]any{"bio": "hi"}},
	}
	if !reflect.DeepEqual(summaries, want) {
		t.Fatalf("expected %+v, got %+v", want, summaries)
	}
}

func TestBuildSetOpsUpdate(t *testing.T) {
	query, args := buildSetOpsUpdate("acct-1", []models.SetOp{
		models.Pull(models.SetPendingRequests, "bob"),
		models.Push(models.SetFriends, "bob"),
		models.Pull(models.SetFriends, "carol"),
	})

	wantArgs := []any{"acct-1", "bob", "bob", "carol"}
	if !reflect.DeepEqual(args, wantArgs) {
		t.Fatalf("expected args %v, got %v", wantArgs, args)
	}

	wantParts := []string{
		"pending_requests = array_remove(pending_requests, $2::TEXT)",
		"friends = array_remove(CASE WHEN $3::TEXT = ANY(friends) THEN friends ELSE array_append(friends, $3::TEXT) END, $4::TEXT)",
		"updated_at = now()",
		"WHERE id = $1",
	}
	for _, part := range wantParts {
		if !strings.Contains(query, part) {
			t.Fatalf("expected query to contain %q, got %s", part, query)
		}
	}
	if strings.Count(query, "friends =") != 1 {
		t.Fatalf("expected one assignment per column, got %s", query)
	}
}
