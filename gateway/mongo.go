package gateway

import (
	"context"

	"lagat/models"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo reads the recommender's collections.
type Mongo struct {
	Recipes         *mongo.Collection
	Ingredients     *mongo.Collection
	Offers          *mongo.Collection
	Recommendations *mongo.Collection
	Matches         *mongo.Collection
}

func sortKey(store string) string {
	if store == "" {
		return "match_count"
	}
	return "offer_count." + store
}

func recommendedFilter(q Query) (bson.M, error) {
	key := sortKey(q.Store)
	filter := bson.M{"user_id": q.UserID}
	if q.Store != "" {
		filter[key] = bson.M{"$exists": true}
	}
	if q.After != "" {
		pos, err := q.After.decode(q.Store)
		if err != nil {
			return nil, err
		}
		filter["$or"] = []bson.M{
			{key: bson.M{"$lt": pos.Key}},
			{key: pos.Key, "recipe_id": bson.M{"$gt": pos.RecipeID}},
		}
	}
	return filter, nil
}

func (g *Mongo) ListRecommended(ctx context.Context, q Query) (Page, error) {
	filter, err := recommendedFilter(q)
	if err != nil {
		return Page{}, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: sortKey(q.Store), Value: -1}, {Key: "recipe_id", Value: 1}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := g.Recommendations.Find(ctx, filter, opts)
	if err != nil {
		return Page{}, errors.Wrap(err, "find recommendations")
	}
	defer cursor.Close(ctx)

	var entries []models.Recommendation
	if err := cursor.All(ctx, &entries); err != nil {
		return Page{}, errors.Wrap(err, "decode recommendations")
	}
	return pageOf(q.Store, entries), nil
}

func (g *Mongo) GetRecipe(ctx context.Context, id string) (*models.Recipe, error) {
	var recipe models.Recipe
	err := g.Recipes.FindOne(ctx, bson.M{"_id": id}).Decode(&recipe)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find recipe %s", id)
	}
	return &recipe, nil
}

func (g *Mongo) ListOffers(ctx context.Context, recipeID, store string) ([]models.Offer, error) {
	offers := []models.Offer{}
	err := findAll(ctx, g.Offers, bson.M{"recipe_id": recipeID, "store_id": store}, &offers)
	return offers, errors.Wrap(err, "list offers")
}

func (g *Mongo) ListMatches(ctx context.Context, userID, recipeID string) ([]models.Match, error) {
	matches := []models.Match{}
	err := findAll(ctx, g.Matches, bson.M{"user_id": userID, "recipe_id": recipeID}, &matches)
	return matches, errors.Wrap(err, "list matches")
}

func (g *Mongo) ListIngredients(ctx context.Context, recipeID string) ([]models.RecipeIngredient, error) {
	ingredients := []models.RecipeIngredient{}
	err := findAll(ctx, g.Ingredients, bson.M{"recipe_id": recipeID}, &ingredients)
	return ingredients, errors.Wrap(err, "list ingredients")
}

func findAll(ctx context.Context, coll *mongo.Collection, filter bson.M, dst any) error {
	cursor, err := coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)
	return cursor.All(ctx, dst)
}
