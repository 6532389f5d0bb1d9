package models

import "time"

// User is a back-office account. Local accounts authenticate with a
// password; accounts provisioned from Keycloak carry the OIDC subject.
type User struct {
	ID           string    `bson:"_id" json:"id"`
	Sub          string    `bson:"sub,omitempty" json:"sub,omitempty"`
	Username     string    `bson:"username" json:"username"`
	Email        string    `bson:"email" json:"email"`
	Name         string    `bson:"name" json:"name"`
	PasswordHash string    `bson:"passwordHash,omitempty" json:"-"`
	Active       bool      `bson:"active" json:"active"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt" json:"updatedAt"`
}
