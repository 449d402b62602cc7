package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kinship/backend/internal/models"
)

// AccountsCollection is the collection holding one document per account.
const AccountsCollection = "accounts"

type accountDocument struct {
	ID                 string         `bson:"_id"`
	UserName           string         `bson:"userName"`
	Email              string         `bson:"email"`
	PhoneNumber        string         `bson:"phoneNumber,omitempty"`
	PasswordHash       string         `bson:"password"`
	Profile            map[string]any `bson:"profile,omitempty"`
	ProfilePicturePath string         `bson:"profilePicture,omitempty"`
	PendingRequests    []string       `bson:"pendingRequests"`
	Friends            []string       `bson:"friends"`
	Blocked            []string       `bson:"blocked"`
	CreatedAt          time.Time      `bson:"createdAt"`
	UpdatedAt          time.Time      `bson:"updatedAt"`
}

func (d accountDocument) model() models.Account {
	return models.Account{
		ID:                 d.ID,
		UserName:           d.UserName,
		Email:              d.Email,
		PhoneNumber:        d.PhoneNumber,
		PasswordHash:       d.PasswordHash,
		Profile:            d.Profile,
		ProfilePicturePath: d.ProfilePicturePath,
		PendingRequests:    nonNil(d.PendingRequests),
		Friends:            nonNil(d.Friends),
		Blocked:            nonNil(d.Blocked),
		CreatedAt:          d.CreatedAt.UTC(),
		UpdatedAt:          d.UpdatedAt.UTC(),
	}
}

// MongoAccountRepository stores accounts as MongoDB documents. Relationship sets are arrays
// on the account document, so every set mutation is a single-document update.
type MongoAccountRepository struct {
	accounts *mongo.Collection
}

// NewMongoAccountRepository constructs an account repository over the given database.
func NewMongoAccountRepository(database *mongo.Database) *MongoAccountRepository {
	return &MongoAccountRepository{accounts: database.Collection(AccountsCollection)}
}

// EnsureIndexes creates the uniqueness indexes backing registration checks.
func (r *MongoAccountRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.accounts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("accounts_email_key"),
		},
		{
			Keys: bson.D{{Key: "phoneNumber", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName("accounts_phone_number_key").
				SetPartialFilterExpression(bson.M{"phoneNumber": bson.M{"$gt": ""}}),
		},
	})
	if err != nil {
		return fmt.Errorf("%w: create account indexes: %w", ErrUnavailable, err)
	}
	return nil
}

// Create inserts a new account document.
func (r *MongoAccountRepository) Create(ctx context.Context, account models.Account) error {
	doc := accountDocument{
		ID:                 account.ID,
		UserName:           account.UserName,
		Email:              account.Email,
		PhoneNumber:        account.PhoneNumber,
		PasswordHash:       account.PasswordHash,
		Profile:            account.Profile,
		ProfilePicturePath: account.ProfilePicturePath,
		PendingRequests:    nonNil(dedupe(account.PendingRequests)),
		Friends:            nonNil(dedupe(account.Friends)),
		Blocked:            nonNil(dedupe(account.Blocked)),
		CreatedAt:          account.CreatedAt,
		UpdatedAt:          account.UpdatedAt,
	}

	if _, err := r.accounts.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return fmt.Errorf("%w: insert account: %w", ErrUnavailable, err)
	}
	return nil
}

// FindByID fetches an account document by id.
func (r *MongoAccountRepository) FindByID(ctx context.Context, id string) (models.Account, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// FindByEmailOrPhone fetches the account owning the email or the phone number. Empty
// arguments never match.
func (r *MongoAccountRepository) FindByEmailOrPhone(ctx context.Context, email, phone string) (models.Account, error) {
	var or bson.A
	if email != "" {
		or = append(or, bson.M{"email": email})
	}
	if phone != "" {
		or = append(or, bson.M{"phoneNumber": phone})
	}
	if len(or) == 0 {
		return models.Account{}, ErrNotFound
	}
	return r.findOne(ctx, bson.M{"$or": or})
}

func (r *MongoAccountRepository) findOne(ctx context.Context, filter bson.M) (models.Account, error) {
	var doc accountDocument
	if err := r.accounts.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Account{}, ErrNotFound
		}
		return models.Account{}, fmt.Errorf("%w: find account: %w", ErrUnavailable, err)
	}
	return doc.model(), nil
}

// Update sets the non-nil fields of the patch and returns the updated document.
func (r *MongoAccountRepository) Update(ctx context.Context, id string, patch models.AccountPatch) (models.Account, error) {
	updatedAt := patch.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	set := bson.M{"updatedAt": updatedAt}
	if patch.UserName != nil {
		set["userName"] = *patch.UserName
	}
	if patch.Email != nil {
		set["email"] = *patch.Email
	}
	if patch.PhoneNumber != nil {
		set["phoneNumber"] = *patch.PhoneNumber
	}
	if patch.PasswordHash != nil {
		set["password"] = *patch.PasswordHash
	}
	if patch.Profile != nil {
		set["profile"] = patch.Profile
	}
	if patch.ProfilePicturePath != nil {
		set["profilePicture"] = *patch.ProfilePicturePath
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc accountDocument
	err := r.accounts.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Account{}, ErrNotFound
		}
		if mongo.IsDuplicateKeyError(err) {
			return models.Account{}, ErrConflict
		}
		return models.Account{}, fmt.Errorf("%w: update account: %w", ErrUnavailable, err)
	}
	return doc.model(), nil
}

// PushToSet adds value to the named set unless it is already a member.
func (r *MongoAccountRepository) PushToSet(ctx context.Context, id string, set models.RelationSet, value string) error {
	return r.ApplySetOps(ctx, id, models.Push(set, value))
}

// PullFromSet removes value from the named set.
func (r *MongoAccountRepository) PullFromSet(ctx context.Context, id string, set models.RelationSet, value string) error {
	return r.ApplySetOps(ctx, id, models.Pull(set, value))
}

// ApplySetOps runs all ops as one pipeline update on the account document.
func (r *MongoAccountRepository) ApplySetOps(ctx context.Context, id string, ops ...models.SetOp) error {
	if err := validateOps(ops); err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}

	res, err := r.accounts.UpdateOne(ctx, bson.M{"_id": id}, setOpsPipeline(ops, time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("%w: update relationship sets: %w", ErrUnavailable, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSummaries loads the public projection of the requested accounts.
func (r *MongoAccountRepository) ListSummaries(ctx context.Context, ids []string) ([]models.AccountSummary, error) {
	if len(ids) == 0 {
		return []models.AccountSummary{}, nil
	}

	opts := options.Find().SetProjection(bson.M{"userName": 1, "profile": 1})
	cursor, err := r.accounts.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: find account summaries: %w", ErrUnavailable, err)
	}
	defer cursor.Close(ctx)

	byID := make(map[string]models.AccountSummary, len(ids))
	for cursor.Next(ctx) {
		var doc accountDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: decode account summary: %w", ErrUnavailable, err)
		}
		byID[doc.ID] = models.AccountSummary{ID: doc.ID, UserName: doc.UserName, Profile: doc.Profile}
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate account summaries: %w", ErrUnavailable, err)
	}

	return orderSummaries(ids, byID), nil
}

// setOpsPipeline nests the ops per field as aggregation expressions, so pushes and pulls on
// the same array still land in one $set stage without path conflicts.
func setOpsPipeline(ops []models.SetOp, now time.Time) mongo.Pipeline {
	exprs := make(map[string]any)
	var order []string

	for _, op := range ops {
		field := string(op.Set)
		expr, seen := exprs[field]
		if !seen {
			expr = bson.M{"$ifNull": bson.A{"$" + field, bson.A{}}}
			order = append(order, field)
		}

		// $literal keeps ids from being read as field paths.
		value := bson.M{"$literal": op.Value}
		switch op.Kind {
		case models.SetOpPush:
			expr = bson.M{"$cond": bson.A{
				bson.M{"$in": bson.A{value, expr}},
				expr,
				bson.M{"$concatArrays": bson.A{expr, bson.A{value}}},
			}}
		case models.SetOpPull:
			expr = bson.M{"$filter": bson.M{
				"input": expr,
				"cond":  bson.M{"$ne": bson.A{"$$this", value}},
			}}
		}
		exprs[field] = expr
	}

	stage := bson.D{}
	for _, field := range order {
		stage = append(stage, bson.E{Key: field, Value: exprs[field]})
	}
	stage = append(stage, bson.E{Key: "updatedAt", Value: now})

	return mongo.Pipeline{{{Key: "$set", Value: stage}}}
}

var _ AccountRepository = (*MongoAccountRepository)(nil)
