package models

// RecipeIngredient is one entry of a recipe's ingredient sub-collection.
type RecipeIngredient struct {
	RecipeID string `bson:"recipe_id" json:"-"`
	Name     string `bson:"name"      json:"name"`
}

type Recipe struct {
	ID         string         `bson:"_id"                   json:"id"`
	Name       string         `bson:"name"                  json:"name"`
	LinkURL    string         `bson:"link_url"              json:"link_url"`
	ImgURL     string         `bson:"img_url,omitempty"     json:"img_url,omitempty"`
	OfferCount map[string]int `bson:"offer_count,omitempty" json:"offer_count,omitempty"`

	// Resolved per request, never stored on the recipe document.
	Image               string             `bson:"-" json:"image,omitempty"`
	Ingredients         []RecipeIngredient `bson:"-" json:"ingredients"`
	Offers              []Offer            `bson:"-" json:"offers"`
	MatchingIngredients []Match            `bson:"-" json:"matchingIngredients"`
}

// Offer is a store promotion that can stand in for one recipe ingredient.
// An empty StoreID marks the store-agnostic offer list.
type Offer struct {
	RecipeID   string  `bson:"recipe_id"  json:"-"`
	StoreID    string  `bson:"store_id"   json:"-"`
	Name       string  `bson:"name"       json:"name"`
	Ingredient string  `bson:"ingredient" json:"ingredient"`
	Similarity float64 `bson:"similarity" json:"similarity"`
}

// Match records that a user's pantry holds something close to a recipe
// ingredient.
type Match struct {
	UserID     string  `bson:"user_id"    json:"-"`
	RecipeID   string  `bson:"recipe_id"  json:"-"`
	Name       string  `bson:"name"       json:"name"`
	Match      string  `bson:"match"      json:"match"`
	Similarity float64 `bson:"similarity" json:"similarity"`
}

// Recommendation is the recommender's per-user ranking entry for a recipe.
type Recommendation struct {
	UserID     string         `bson:"user_id"               json:"-"`
	RecipeID   string         `bson:"recipe_id"             json:"recipe_id"`
	MatchCount int            `bson:"match_count"           json:"match_count"`
	OfferCount map[string]int `bson:"offer_count,omitempty" json:"offer_count,omitempty"`
}

// Relevance returns the ordering key for the given store filter. The second
// result is false when the entry does not take part in that store's feed.
func (r Recommendation) Relevance(store string) (int, bool) {
	if store == "" {
		return r.MatchCount, true
	}
	n, ok := r.OfferCount[store]
	return n, ok
}
