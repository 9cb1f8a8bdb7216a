package db

import (
	"context"

	"lagat/globals"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	RecipeCollection           *mongo.Collection
	RecipeIngredientCollection *mongo.Collection
	OfferCollection            *mongo.Collection
	RecommendationCollection   *mongo.Collection
	MatchCollection            *mongo.Collection
	PantryCollection           *mongo.Collection
	UserCollection             *mongo.Collection

	Client *mongo.Client
)

// Connect opens the client, pings the deployment and assigns the collections.
func Connect(ctx context.Context, uri, database string) (*mongo.Client, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, errors.Wrap(err, "connect to mongodb")
	}
	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(err, "ping mongodb")
	}

	db := client.Database(database)
	RecipeCollection = db.Collection(globals.RecipesCollection)
	RecipeIngredientCollection = db.Collection(globals.RecipeIngredientsCollection)
	OfferCollection = db.Collection(globals.OffersCollection)
	RecommendationCollection = db.Collection(globals.RecommendationsCollection)
	MatchCollection = db.Collection(globals.MatchesCollection)
	PantryCollection = db.Collection(globals.PantryCollection)
	UserCollection = db.Collection(globals.UsersCollection)
	Client = client

	return client, nil
}

// CreateIndexes sets up the indexes the feed and pantry queries rely on.
// Per-store offer_count indexes are created by the recommender, which knows
// the store set.
func CreateIndexes(ctx context.Context) error {
	indexes := []struct {
		coll  *mongo.Collection
		model mongo.IndexModel
	}{
		{RecommendationCollection, mongo.IndexModel{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "match_count", Value: -1}, {Key: "recipe_id", Value: 1}},
		}},
		{MatchCollection, mongo.IndexModel{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "recipe_id", Value: 1}},
		}},
		{OfferCollection, mongo.IndexModel{
			Keys: bson.D{{Key: "recipe_id", Value: 1}, {Key: "store_id", Value: 1}},
		}},
		{RecipeIngredientCollection, mongo.IndexModel{
			Keys: bson.D{{Key: "recipe_id", Value: 1}},
		}},
		{PantryCollection, mongo.IndexModel{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		{UserCollection, mongo.IndexModel{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
	}

	for _, idx := range indexes {
		if _, err := idx.coll.Indexes().CreateOne(ctx, idx.model); err != nil {
			return errors.Wrapf(err, "create index on %s", idx.coll.Name())
		}
	}
	return nil
}

// OptionsFindLatest sorts newest first and caps the result.
func OptionsFindLatest(limit int64) *options.FindOptions {
	opts := options.Find()
	opts.SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	opts.SetLimit(limit)
	return opts
}
