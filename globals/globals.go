package globals

type contextKey string

const (
	UserIDKey contextKey = "userId"
	TokenKey  contextKey = "token"
)

// Collection names shared by the db package and its readers.
const (
	RecipesCollection           = "recipes"
	RecipeIngredientsCollection = "recipe_ingredients"
	OffersCollection            = "offers"
	RecommendationsCollection   = "recommendations"
	MatchesCollection           = "matches"
	PantryCollection            = "pantry"
	UsersCollection             = "users"
)

// PantryChannel is the redis channel pantry change events are published on.
const PantryChannel = "lagat:events"
