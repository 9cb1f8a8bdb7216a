package auth

import (
	"context"
	"strings"

	"lagat/models"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	ErrEmailTaken   = errors.New("email already registered")
	ErrUserNotFound = errors.New("user not found")
)

type Users interface {
	Create(ctx context.Context, u *models.User) error
	ByEmail(ctx context.Context, email string) (models.User, error)
	ByID(ctx context.Context, id string) (models.User, error)
	SetPreferredStore(ctx context.Context, id, store string) error
}

type MongoUsers struct {
	Coll *mongo.Collection
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (m *MongoUsers) Create(ctx context.Context, u *models.User) error {
	u.Email = normalizeEmail(u.Email)
	res, err := m.Coll.InsertOne(ctx, u)
	if mongo.IsDuplicateKeyError(err) {
		return ErrEmailTaken
	}
	if err != nil {
		return errors.Wrap(err, "insert user")
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		u.ID = id
	}
	return nil
}

func (m *MongoUsers) ByEmail(ctx context.Context, email string) (models.User, error) {
	return m.findOne(ctx, bson.M{"email": normalizeEmail(email)})
}

func (m *MongoUsers) ByID(ctx context.Context, id string) (models.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return models.User{}, ErrUserNotFound
	}
	return m.findOne(ctx, bson.M{"_id": oid})
}

func (m *MongoUsers) SetPreferredStore(ctx context.Context, id, store string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrUserNotFound
	}
	res, err := m.Coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{"preferred_store": store}})
	if err != nil {
		return errors.Wrap(err, "update preferred store")
	}
	if res.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (m *MongoUsers) findOne(ctx context.Context, filter bson.M) (models.User, error) {
	var u models.User
	err := m.Coll.FindOne(ctx, filter).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.User{}, ErrUserNotFound
	}
	return u, errors.Wrap(err, "find user")
}
