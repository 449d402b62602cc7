package repositories

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/testserver"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kinship/backend/internal/auth"
	"github.com/kinship/backend/internal/models"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(runWithTestServer(m))
}

// runWithTestServer starts a cockroach test server for the Postgres tests. When it cannot be
// started those tests skip and the rest of the package still runs.
func runWithTestServer(m *testing.M) int {
	server, err := testserver.NewTestServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "start cockroach test server: %v; skipping postgres tests\n", err)
		return m.Run()
	}
	defer server.Stop()

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, server.PGURL().String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to cockroach test server: %v\n", err)
		return 1
	}
	defer pool.Close()

	if err := applyMigrations(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "apply migrations: %v\n", err)
		return 1
	}

	testPool = pool
	return m.Run()
}

func TestPostgresAccountRepository_CreateFindAndUpdate(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresAccountRepository(testPool)
	account := newTestAccount("alice@example.com", "+15550001")
	account.Profile = map[string]any{"bio": "hello"}
	if err := repo.Create(ctx, account); err != nil {
		t.Fatalf("create account: %v", err)
	}

	dup := newTestAccount(account.Email, "")
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict for duplicate email, got %v", err)
	}
	dupPhone := newTestAccount("other@example.com", account.PhoneNumber)
	if err := repo.Create(ctx, dupPhone); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict for duplicate phone, got %v", err)
	}
	// Empty phone numbers are exempt from the uniqueness index.
	if err := repo.Create(ctx, newTestAccount("bob@example.com", "")); err != nil {
		t.Fatalf("create account without phone: %v", err)
	}
	if err := repo.Create(ctx, newTestAccount("carol@example.com", "")); err != nil {
		t.Fatalf("create second account without phone: %v", err)
	}

	found, err := repo.FindByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if found.Email != account.Email || found.PasswordHash != account.PasswordHash {
		t.Fatalf("unexpected account: %+v", found)
	}
	if found.Profile["bio"] != "hello" {
		t.Fatalf("expected profile to round trip, got %v", found.Profile)
	}
	if found.Friends == nil || found.PendingRequests == nil || found.Blocked == nil {
		t.Fatal("expected empty relationship sets to be non-nil")
	}
	if !timesClose(found.CreatedAt, account.CreatedAt, time.Millisecond) {
		t.Fatalf("expected created at %v, got %v", account.CreatedAt, found.CreatedAt)
	}

	byPhone, err := repo.FindByEmailOrPhone(ctx, "", account.PhoneNumber)
	if err != nil || byPhone.ID != account.ID {
		t.Fatalf("expected lookup by phone to find %s, got %+v (%v)", account.ID, byPhone, err)
	}
	if _, err := repo.FindByEmailOrPhone(ctx, "", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for empty identity, got %v", err)
	}
	if _, err := repo.FindByID(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	name := "Alice"
	updated, err := repo.Update(ctx, account.ID, models.AccountPatch{
		UserName: &name,
		Profile:  map[string]any{"bio": "updated"},
	})
	if err != nil {
		t.Fatalf("update account: %v", err)
	}
	if updated.UserName != name || updated.Profile["bio"] != "updated" {
		t.Fatalf("unexpected updated account: %+v", updated)
	}
	if updated.Email != account.Email {
		t.Fatalf("expected untouched email, got %q", updated.Email)
	}

	taken := "bob@example.com"
	if _, err := repo.Update(ctx, account.ID, models.AccountPatch{Email: &taken}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict for taken email, got %v", err)
	}
	if _, err := repo.Update(ctx, uuid.NewString(), models.AccountPatch{UserName: &name}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPostgresAccountRepository_SetOperationsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresAccountRepository(testPool)
	account := newTestAccount("alice@example.com", "")
	if err := repo.Create(ctx, account); err != nil {
		t.Fatalf("create account: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := repo.PushToSet(ctx, account.ID, models.SetFriends, "bob"); err != nil {
			t.Fatalf("push friend: %v", err)
		}
	}
	if err := repo.PushToSet(ctx, account.ID, models.SetFriends, "carol"); err != nil {
		t.Fatalf("push friend: %v", err)
	}
	assertSet(t, repo, account.ID, models.SetFriends, []string{"bob", "carol"})

	for i := 0; i < 2; i++ {
		if err := repo.PullFromSet(ctx, account.ID, models.SetFriends, "bob"); err != nil {
			t.Fatalf("pull friend: %v", err)
		}
	}
	assertSet(t, repo, account.ID, models.SetFriends, []string{"carol"})

	if err := repo.PushToSet(ctx, uuid.NewString(), models.SetFriends, "bob"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for missing account, got %v", err)
	}
	if err := repo.PushToSet(ctx, account.ID, models.RelationSet("followers"), "bob"); !errors.Is(err, ErrInvalidSet) {
		t.Fatalf("expected invalid set, got %v", err)
	}
}

func TestPostgresAccountRepository_ApplySetOpsCommitsTogether(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresAccountRepository(testPool)
	account := newTestAccount("alice@example.com", "")
	account.PendingRequests = []string{"bob", "dave"}
	account.Friends = []string{"carol"}
	if err := repo.Create(ctx, account); err != nil {
		t.Fatalf("create account: %v", err)
	}

	err := repo.ApplySetOps(ctx, account.ID,
		models.Pull(models.SetPendingRequests, "bob"),
		models.Push(models.SetFriends, "bob"),
		models.Pull(models.SetFriends, "carol"),
		models.Push(models.SetBlocked, "carol"),
	)
	if err != nil {
		t.Fatalf("apply set ops: %v", err)
	}

	assertSet(t, repo, account.ID, models.SetPendingRequests, []string{"dave"})
	assertSet(t, repo, account.ID, models.SetFriends, []string{"bob"})
	assertSet(t, repo, account.ID, models.SetBlocked, []string{"carol"})

	// An invalid op rejects the whole batch before anything is written.
	err = repo.ApplySetOps(ctx, account.ID,
		models.Push(models.SetFriends, "erin"),
		models.Push(models.RelationSet("followers"), "erin"),
	)
	if !errors.Is(err, ErrInvalidSet) {
		t.Fatalf("expected invalid set, got %v", err)
	}
	assertSet(t, repo, account.ID, models.SetFriends, []string{"bob"})
}

func TestPostgresAccountRepository_ListSummaries(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresAccountRepository(testPool)
	var ids []string
	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		account := newTestAccount(email, "")
		account.UserName = email[:1]
		account.Profile = map[string]any{"email": email}
		if err := repo.Create(ctx, account); err != nil {
			t.Fatalf("create account: %v", err)
		}
		ids = append(ids, account.ID)
	}

	request := []string{ids[2], uuid.NewString(), ids[0]}
	summaries, err := repo.ListSummaries(ctx, request)
	if err != nil {
		t.Fatalf("list summaries: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}
	if summaries[0].ID != ids[2] || summaries[1].ID != ids[0] {
		t.Fatalf("expected summaries in request order, got %+v", summaries)
	}
	if summaries[0].UserName != "c" || summaries[0].Profile["email"] != "c@example.com" {
		t.Fatalf("unexpected summary: %+v", summaries[0])
	}

	empty, err := repo.ListSummaries(ctx, nil)
	if err != nil {
		t.Fatalf("list empty summaries: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected an empty non-nil slice, got %#v", empty)
	}
}

func TestPostgresSessionStore_SaveFindAndDelete(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	accounts := NewPostgresAccountRepository(testPool)
	account := newTestAccount("alice@example.com", "")
	if err := accounts.Create(ctx, account); err != nil {
		t.Fatalf("create account: %v", err)
	}

	store := NewPostgresSessionStore(testPool)
	session := auth.Session{
		RefreshToken: uuid.NewString(),
		AccountID:    account.ID,
		ExpiresAt:    time.Now().Add(time.Hour).UTC().Truncate(time.Millisecond),
	}
	if err := store.Save(ctx, session); err != nil {
		t.Fatalf("save session: %v", err)
	}

	found, err := store.Find(ctx, session.RefreshToken)
	if err != nil {
		t.Fatalf("find session: %v", err)
	}
	if found.AccountID != account.ID || !timesClose(found.ExpiresAt, session.ExpiresAt, time.Millisecond) {
		t.Fatalf("unexpected session: %+v", found)
	}

	session.ExpiresAt = session.ExpiresAt.Add(time.Hour)
	if err := store.Save(ctx, session); err != nil {
		t.Fatalf("resave session: %v", err)
	}
	found, err = store.Find(ctx, session.RefreshToken)
	if err != nil {
		t.Fatalf("find resaved session: %v", err)
	}
	if !timesClose(found.ExpiresAt, session.ExpiresAt, time.Millisecond) {
		t.Fatalf("expected upsert to move expiry to %v, got %v", session.ExpiresAt, found.ExpiresAt)
	}

	if err := store.Delete(ctx, session.RefreshToken); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := store.Find(ctx, session.RefreshToken); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}
	if err := store.Delete(ctx, session.RefreshToken); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("expected session not found on second delete, got %v", err)
	}

	// Sessions go away with their account.
	other := auth.Session{RefreshToken: uuid.NewString(), AccountID: account.ID, ExpiresAt: session.ExpiresAt}
	if err := store.Save(ctx, other); err != nil {
		t.Fatalf("save session: %v", err)
	}
	if _, err := testPool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, account.ID); err != nil {
		t.Fatalf("delete account: %v", err)
	}
	if _, err := store.Find(ctx, other.RefreshToken); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("expected session to cascade with its account, got %v", err)
	}
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir := filepath.Join("..", "..", "migrations")
	names, err := filepath.Glob(filepath.Join(migrationsDir, "*.sql"))
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		contents, err := os.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := pool.Exec(ctx, string(contents)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}

func resetDatabase(t *testing.T) {
	t.Helper()
	if testPool == nil {
		t.Skip("cockroach test server unavailable")
	}

	ctx := context.Background()
	conn, err := testPool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire connection: %v", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "TRUNCATE TABLE sessions, accounts CASCADE"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

func newTestAccount(email, phone string) models.Account {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return models.Account{
		ID:           uuid.NewString(),
		UserName:     "user",
		Email:        email,
		PhoneNumber:  phone,
		PasswordHash: "password-hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func assertSet(t *testing.T, repo AccountRepository, id string, set models.RelationSet, want []string) {
	t.Helper()
	account, err := repo.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("find account %s: %v", id, err)
	}
	got := append([]string{}, account.Set(set)...)
	sort.Strings(got)
	sorted := append([]string{}, want...)
	sort.Strings(sorted)
	if !reflect.DeepEqual(got, sorted) {
		t.Fatalf("expected %s to be %v, got %v", set, sorted, got)
	}
}

func timesClose(a, b time.Time, delta time.Duration) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= delta
}
