package model

import "time"

// Account is a credential record owned by the local identity provider.
//
// The hosted provider keeps its own accounts; this type only exists so the
// app can run without one. PasswordHash is a bcrypt hash and is never
// serialized.
type Account struct {
	ID           string    `json:"id"        db:"id"` // UUID, like the hosted provider's user IDs
	Email        string    `json:"email"     db:"email"`
	PasswordHash string    `json:"-"         db:"password_hash"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}
