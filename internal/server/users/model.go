package users

import "time"

// User is an account row. Every user belongs to exactly one tenant; the
// tenant id is copied into issued tokens and scopes every other query.
type User struct {
	ID           string
	TenantID     string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}
