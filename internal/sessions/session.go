package sessions

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Session is a refresh session. Only the SHA-256 of the refresh token is
// persisted; the raw token is handed to the client once.
type Session struct {
	ID        string    `bson:"_id,omitempty" json:"id"`
	TokenHash string    `bson:"tokenHash" json:"tokenHash"`
	UserID    string    `bson:"userId" json:"userId"`
	UserAgent string    `bson:"userAgent,omitempty" json:"userAgent,omitempty"`
	ExpiresAt time.Time `bson:"expiresAt" json:"expiresAt"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// HashToken returns the hex SHA-256 used as the lookup key for a refresh token.
func HashToken(refresh string) string {
	sum := sha256.Sum256([]byte(refresh))
	return hex.EncodeToString(sum[:])
}
