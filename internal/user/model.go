package user

import (
	"io"
	"time"

	"github.com/gofrs/uuid"
)

// User is the persisted account record.
type User struct {
	ID           uuid.UUID `json:"id" db:"id"`
	FullName     string    `json:"fullName" db:"full_name"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Image        *string   `json:"image" db:"image"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// HasImage reports whether a profile image has already been attached.
func (u *User) HasImage() bool {
	return u.Image != nil && *u.Image != ""
}

// Listing is the projection returned by the directory listing.
// Password carries the stored hash, never the plaintext.
type Listing struct {
	FullName string `json:"fullName" db:"full_name"`
	Email    string `json:"email" db:"email"`
	Password string `json:"password" db:"password_hash"`
}

// NewUser holds the fields of a creation request.
type NewUser struct {
	FullName string `validate:"required,fullname"`
	Email    string `validate:"required,emailaddr"`
	Password string `validate:"required,password"`
}

// Changes holds the optional fields of an edit request. Nil means "leave as is".
type Changes struct {
	FullName *string
	Password *string
}

// Patch is what the repository writes on edit; Password is already hashed.
type Patch struct {
	FullName     *string
	PasswordHash *string
}

// Upload describes an image submitted for attachment.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}
