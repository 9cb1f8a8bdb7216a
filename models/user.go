package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type User struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"             json:"id"`
	Email          string             `bson:"email"                     json:"email"`
	Name           string             `bson:"name,omitempty"            json:"name,omitempty"`
	PasswordHash   string             `bson:"password_hash"             json:"-"`
	PreferredStore string             `bson:"preferred_store,omitempty" json:"preferred_store"`
	CreatedAt      time.Time          `bson:"created_at"                json:"createdAt"`
}

// PantryItem is a confirmed, server-side ingredient in a user's pantry.
type PantryItem struct {
	ID        string    `bson:"-"          json:"id"`
	UserID    string    `bson:"user_id"    json:"-"`
	Name      string    `bson:"name"       json:"name"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}

type Store struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Stores is the set of grocery chains offers are collected from.
var Stores = []Store{
	{ID: "ica", Name: "ICA"},
	{ID: "coop", Name: "Coop"},
	{ID: "willys", Name: "Willys"},
	{ID: "hemkop", Name: "Hemköp"},
	{ID: "lidl", Name: "Lidl"},
}

// KnownStore reports whether id names one of Stores. The empty id is valid
// and means "no store selected".
func KnownStore(id string) bool {
	if id == "" {
		return true
	}
	for _, s := range Stores {
		if s.ID == id {
			return true
		}
	}
	return false
}
