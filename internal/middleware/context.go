package middleware

import "context"

type contextKey string

const UserIDKey contextKey = "user_id"

// GetUserID returns the authenticated user id from the request context
// (set by Auth) and whether one is present.
func GetUserID(ctx context.Context) (string, bool) {
	v, _ := ctx.Value(UserIDKey).(string)
	return v, v != ""
}
