package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/accessedu/portal-auth/internal/domain/entity"
	"github.com/accessedu/portal-auth/internal/domain/repository"
)

type UserRepository struct {
	coll *mongo.Collection
}

func NewUserRepository(db *mongo.Database, collection string) *UserRepository {
	return &UserRepository{coll: db.Collection(collection)}
}

// EnsureIndexes creates the unique email index the store relies on for conflicts.
func (r *UserRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("users_email_unique"),
		},
		{
			Keys:    bson.D{{Key: "role", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetName("users_role_created"),
		},
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	return nil
}

func (r *UserRepository) Insert(ctx context.Context, u *entity.User) (*entity.User, error) {
	if _, err := r.coll.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, repository.ErrConflict
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	cp := *u
	return &cp, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	var u entity.User
	if err := r.coll.FindOne(ctx, bson.M{"email": email}).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

func (r *UserRepository) UpdateFields(ctx context.Context, email string, p repository.UserPatch) (*entity.User, error) {
	filter := bson.M{"email": email}
	if p.OnlyIfUnverified {
		filter["verified_at"] = nil
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var u entity.User
	err := r.coll.FindOneAndUpdate(ctx, filter, updateDoc(p), opts).Decode(&u)
	if err == nil {
		return &u, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("update user: %w", err)
	}
	if !p.OnlyIfUnverified {
		return nil, repository.ErrNotFound
	}
	if _, findErr := r.FindByEmail(ctx, email); findErr != nil {
		return nil, findErr
	}
	return nil, repository.ErrPrecondition
}

func (r *UserRepository) List(ctx context.Context, f repository.ListFilter) ([]entity.User, error) {
	filter := bson.M{}
	if f.Role != "" {
		filter["role"] = f.Role
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "email", Value: 1}}).
		SetLimit(int64(f.NormalizeLimit()))
	if f.Offset > 0 {
		opts.SetSkip(int64(f.Offset))
	}
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := []entity.User{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return out, nil
}

// updateDoc renders p as a single atomic update: $set for supplied fields,
// $inc for the login counter and $max so updated_at never moves backwards.
func updateDoc(p repository.UserPatch) bson.M {
	set := bson.M{}
	if p.FullName != nil {
		set["full_name"] = *p.FullName
	}
	if p.PreferredLanguage != nil {
		set["preferred_language"] = *p.PreferredLanguage
	}
	if p.DyslexiaFont != nil {
		set["accessibility.dyslexia_font"] = *p.DyslexiaFont
	}
	if p.HighContrast != nil {
		set["accessibility.high_contrast"] = *p.HighContrast
	}
	if p.TextToSpeech != nil {
		set["accessibility.text_to_speech"] = *p.TextToSpeech
	}
	if p.PasswordHash != nil {
		set["password_hash"] = *p.PasswordHash
	}
	if p.Role != nil {
		set["role"] = string(*p.Role)
	}
	if p.IsActive != nil {
		set["is_active"] = *p.IsActive
	}
	if p.IsVerified != nil {
		set["is_verified"] = *p.IsVerified
	}
	if p.VerifiedAt != nil {
		set["verified_at"] = *p.VerifiedAt
	}
	if p.LastLogin != nil {
		set["last_login"] = *p.LastLogin
	}

	update := bson.M{"$max": bson.M{"updated_at": p.UpdatedAt}}
	if len(set) > 0 {
		update["$set"] = set
	}
	if p.IncLoginCount {
		update["$inc"] = bson.M{"login_count": 1}
	}
	return update
}

var _ repository.UserRepository = (*UserRepository)(nil)
