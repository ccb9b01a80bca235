package users

import "time"

// PermUsersRead guards the user management endpoints.
const PermUsersRead = "users:read"

// User is a user account as presented to administrators.
type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	IsDisabled     bool      `json:"isDisabled"`
	EmailConfirmed bool      `json:"emailConfirmed"`
	CreatedAt      time.Time `json:"createdAt"`
}
