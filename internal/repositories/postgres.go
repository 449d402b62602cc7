package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kinship/backend/internal/db"
	"github.com/kinship/backend/internal/models"
)

const accountColumns = `id, user_name, email, phone_number, password_hash, profile, profile_picture_path,
        pending_requests, friends, blocked, created_at, updated_at`

// setColumns maps relationship sets to their array columns. Column names in generated SQL
// only ever come from this table.
var setColumns = map[models.RelationSet]string{
	models.SetPendingRequests: "pending_requests",
	models.SetFriends:         "friends",
	models.SetBlocked:         "blocked",
}

// PostgresAccountRepository provides PostgreSQL-backed persistence for accounts. Each account
// is one row whose relationship sets are TEXT[] columns, so every set mutation is a single
// UPDATE statement.
type PostgresAccountRepository struct {
	pool db.Pool
}

// NewPostgresAccountRepository constructs an account repository backed by PostgreSQL.
func NewPostgresAccountRepository(pool db.Pool) *PostgresAccountRepository {
	return &PostgresAccountRepository{pool: pool}
}

// Create persists a new account record.
func (r *PostgresAccountRepository) Create(ctx context.Context, account models.Account) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("%w: acquire connection: %w", ErrUnavailable, err)
	}
	defer conn.Release()

	profile := account.Profile
	if profile == nil {
		profile = map[string]any{}
	}

	_, err = conn.Exec(ctx, `
        INSERT INTO accounts (id, user_name, email, phone_number, password_hash, profile, profile_picture_path,
            pending_requests, friends, blocked, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
    `, account.ID, account.UserName, account.Email, account.PhoneNumber, account.PasswordHash, profile,
		account.ProfilePicturePath, nonNil(dedupe(account.PendingRequests)), nonNil(dedupe(account.Friends)),
		nonNil(dedupe(account.Blocked)), account.CreatedAt, account.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("%w: insert account: %w", ErrUnavailable, err)
	}

	return nil
}

// FindByID fetches an account by its identifier.
func (r *PostgresAccountRepository) FindByID(ctx context.Context, id string) (models.Account, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Account{}, fmt.Errorf("%w: acquire connection: %w", ErrUnavailable, err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Account{}, ErrNotFound
		}
		return models.Account{}, fmt.Errorf("%w: select account by id: %w", ErrUnavailable, err)
	}
	return account, nil
}

// FindByEmailOrPhone fetches the account owning the email or the phone number. Empty
// arguments never match.
func (r *PostgresAccountRepository) FindByEmailOrPhone(ctx context.Context, email, phone string) (models.Account, error) {
	if email == "" && phone == "" {
		return models.Account{}, ErrNotFound
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Account{}, fmt.Errorf("%w: acquire connection: %w", ErrUnavailable, err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT `+accountColumns+`
        FROM accounts
        WHERE ($1 <> '' AND email = $1) OR ($2 <> '' AND phone_number = $2)
        ORDER BY created_at
        LIMIT 1
    `, email, phone)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Account{}, ErrNotFound
		}
		return models.Account{}, fmt.Errorf("%w: select account by email or phone: %w", ErrUnavailable, err)
	}
	return account, nil
}

// Update writes the non-nil fields of the patch and returns the updated account.
func (r *PostgresAccountRepository) Update(ctx context.Context, id string, patch models.AccountPatch) (models.Account, error) {
	updatedAt := patch.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	sets := []string{"updated_at = $2"}
	args := []any{id, updatedAt}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.UserName != nil {
		add("user_name", *patch.UserName)
	}
	if patch.Email != nil {
		add("email", *patch.Email)
	}
	if patch.PhoneNumber != nil {
		add("phone_number", *patch.PhoneNumber)
	}
	if patch.PasswordHash != nil {
		add("password_hash", *patch.PasswordHash)
	}
	if patch.Profile != nil {
		add("profile", patch.Profile)
	}
	if patch.ProfilePicturePath != nil {
		add("profile_picture_path", *patch.ProfilePicturePath)
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Account{}, fmt.Errorf("%w: acquire connection: %w", ErrUnavailable, err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        UPDATE accounts
        SET `+strings.Join(sets, ", ")+`
        WHERE id = $1
        RETURNING `+accountColumns, args...)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Account{}, ErrNotFound
		}
		if isUniqueViolation(err) {
			return models.Account{}, ErrConflict
		}
		return models.Account{}, fmt.Errorf("%w: update account: %w", ErrUnavailable, err)
	}
	return account, nil
}

// PushToSet adds value to the named set unless it is already a member.
func (r *PostgresAccountRepository) PushToSet(ctx context.Context, id string, set models.RelationSet, value string) error {
	return r.ApplySetOps(ctx, id, models.Push(set, value))
}

// PullFromSet removes every occurrence of value from the named set.
func (r *PostgresAccountRepository) PullFromSet(ctx context.Context, id string, set models.RelationSet, value string) error {
	return r.ApplySetOps(ctx, id, models.Pull(set, value))
}

// ApplySetOps folds all ops into one UPDATE so they commit together.
func (r *PostgresAccountRepository) ApplySetOps(ctx context.Context, id string, ops ...models.SetOp) error {
	if err := validateOps(ops); err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}

	query, args := buildSetOpsUpdate(id, ops)

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("%w: acquire connection: %w", ErrUnavailable, err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: update relationship sets: %w", ErrUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSummaries loads the public projection of the requested accounts.
func (r *PostgresAccountRepository) ListSummaries(ctx context.Context, ids []string) ([]models.AccountSummary, error) {
	if len(ids) == 0 {
		return []models.AccountSummary{}, nil
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: acquire connection: %w", ErrUnavailable, err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, user_name, profile
        FROM accounts
        WHERE id = ANY($1)
    `, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: query account summaries: %w", ErrUnavailable, err)
	}
	defer rows.Close()

	byID := make(map[string]models.AccountSummary, len(ids))
	for rows.Next() {
		var summary models.AccountSummary
		if err := rows.Scan(&summary.ID, &summary.UserName, &summary.Profile); err != nil {
			return nil, fmt.Errorf("%w: scan account summary: %w", ErrUnavailable, err)
		}
		byID[summary.ID] = summary
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate account summaries: %w", ErrUnavailable, err)
	}

	return orderSummaries(ids, byID), nil
}

// buildSetOpsUpdate nests the ops per column, in order, so several ops on the same set
// still produce a single assignment.
func buildSetOpsUpdate(id string, ops []models.SetOp) (string, []any) {
	args := []any{id}
	exprs := make(map[string]string)
	var order []string

	for _, op := range ops {
		column := setColumns[op.Set]
		expr, seen := exprs[column]
		if !seen {
			expr = column
			order = append(order, column)
		}

		args = append(args, op.Value)
		param := fmt.Sprintf("$%d::TEXT", len(args))
		switch op.Kind {
		case models.SetOpPush:
			expr = fmt.Sprintf("CASE WHEN %[2]s = ANY(%[1]s) THEN %[1]s ELSE array_append(%[1]s, %[2]s) END", expr, param)
		case models.SetOpPull:
			expr = fmt.Sprintf("array_remove(%s, %s)", expr, param)
		}
		exprs[column] = expr
	}

	assignments := make([]string, 0, len(order)+1)
	for _, column := range order {
		assignments = append(assignments, fmt.Sprintf("%s = %s", column, exprs[column]))
	}
	assignments = append(assignments, "updated_at = now()")

	return "UPDATE accounts SET " + strings.Join(assignments, ", ") + " WHERE id = $1", args
}

func scanAccount(row pgx.Row) (models.Account, error) {
	var account models.Account
	err := row.Scan(
		&account.ID,
		&account.UserName,
		&account.Email,
		&account.PhoneNumber,
		&account.PasswordHash,
		&account.Profile,
		&account.ProfilePicturePath,
		&account.PendingRequests,
		&account.Friends,
		&account.Blocked,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return models.Account{}, err
	}
	account.PendingRequests = nonNil(account.PendingRequests)
	account.Friends = nonNil(account.Friends)
	account.Blocked = nonNil(account.Blocked)
	account.CreatedAt = account.CreatedAt.UTC()
	account.UpdatedAt = account.UpdatedAt.UTC()
	return account, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ AccountRepository = (*PostgresAccountRepository)(nil)
