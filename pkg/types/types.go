// Package types holds the record types shared by the store gateway and the
// caching layer.
package types

import (
	"time"
)

// User is the primary record. The ID is assigned by the store on insert and
// is the pagination sort key for all cached reads.
type User struct {
	ID           string    `firestore:"id" json:"id"`
	Username     string    `firestore:"username" json:"username"`
	FirstName    string    `firestore:"firstName" json:"firstName"`
	LastName     string    `firestore:"lastName" json:"lastName"`
	Email        string    `firestore:"email" json:"email"`
	BirthDate    int64     `firestore:"birthDate" json:"birthDate"`
	Address      string    `firestore:"address" json:"address"`
	Role         string    `firestore:"role" json:"role"`
	IsVerified   bool      `firestore:"isVerified" json:"isVerified"`
	PasswordHash string    `firestore:"passwordHash" json:"passwordHash,omitempty"`
	// ProfileImagePath is the object path of the stored profile image, not the
	// image bytes themselves.
	ProfileImagePath string    `firestore:"profileImagePath" json:"profileImagePath,omitempty"`
	CreatedAt        time.Time `firestore:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time `firestore:"updatedAt" json:"updatedAt"`
}

// WithoutSecrets returns a copy of the user with sensitive fields cleared.
// Cached snapshots and point lookups only ever carry sanitized records.
func (u User) WithoutSecrets() User {
	u.PasswordHash = ""
	return u
}

// Blog is a dependent record owned by a user. Deleting a user cascades to
// every blog whose UserID matches.
type Blog struct {
	ID        string    `firestore:"id" json:"id"`
	UserID    string    `firestore:"userId" json:"userId"`
	Title     string    `firestore:"title" json:"title"`
	Content   string    `firestore:"content" json:"content"`
	CreatedAt time.Time `firestore:"createdAt" json:"createdAt"`
}
