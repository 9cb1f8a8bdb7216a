package pantry

import (
	"context"
	"strings"
	"time"

	"lagat/models"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrNotFound  = errors.New("pantry item not found")
	ErrEmptyName = errors.New("ingredient name is required")
)

// Store is the authoritative pantry. Add is idempotent by name.
type Store interface {
	List(ctx context.Context, userID string) ([]models.PantryItem, error)
	Add(ctx context.Context, userID, name string) (models.PantryItem, error)
	Remove(ctx context.Context, userID, id string) error
}

type pantryDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	UserID    string             `bson:"user_id"`
	Name      string             `bson:"name"`
	CreatedAt time.Time          `bson:"created_at"`
}

func (d pantryDoc) item() models.PantryItem {
	return models.PantryItem{ID: d.ID.Hex(), UserID: d.UserID, Name: d.Name, CreatedAt: d.CreatedAt}
}

type MongoStore struct {
	Coll *mongo.Collection
}

// List returns the user's pantry, newest first.
func (s *MongoStore) List(ctx context.Context, userID string) ([]models.PantryItem, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := s.Coll.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, errors.Wrap(err, "find pantry")
	}
	defer cur.Close(ctx)

	items := []models.PantryItem{}
	for cur.Next(ctx) {
		var d pantryDoc
		if err := cur.Decode(&d); err != nil {
			return nil, errors.Wrap(err, "decode pantry item")
		}
		items = append(items, d.item())
	}
	return items, errors.Wrap(cur.Err(), "iterate pantry")
}

func (s *MongoStore) Add(ctx context.Context, userID, name string) (models.PantryItem, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.PantryItem{}, ErrEmptyName
	}
	filter := bson.M{"user_id": userID, "name": name}
	update := bson.M{"$setOnInsert": bson.M{"user_id": userID, "name": name, "created_at": time.Now().UTC()}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var d pantryDoc
	if err := s.Coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&d); err != nil {
		return models.PantryItem{}, errors.Wrap(err, "upsert pantry item")
	}
	return d.item(), nil
}

func (s *MongoStore) Remove(ctx context.Context, userID, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	res, err := s.Coll.DeleteOne(ctx, bson.M{"_id": oid, "user_id": userID})
	if err != nil {
		return errors.Wrap(err, "delete pantry item")
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
