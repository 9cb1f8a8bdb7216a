package utils

import (
	"context"

	"lagat/globals"
)

func GetUserIDFromContext(ctx context.Context) string {
	requestingUserID, ok := ctx.Value(globals.UserIDKey).(string)
	if !ok || requestingUserID == "" {
		return ""
	}
	return requestingUserID
}

// GetTokenFromContext returns the bearer token the request was
// authenticated with.
func GetTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(globals.TokenKey).(string)
	return token
}
