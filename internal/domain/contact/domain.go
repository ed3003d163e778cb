package contact

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrInvalid = errors.New("contact: name and email are required")

type Contact struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Normalize trims name and email and rejects contacts that could not be notified.
func (c *Contact) Normalize() error {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.TrimSpace(c.Email)
	if c.Name == "" || c.Email == "" {
		return ErrInvalid
	}
	if at := strings.Index(c.Email, "@"); at < 1 || at == len(c.Email)-1 {
		return ErrInvalid
	}
	return nil
}
