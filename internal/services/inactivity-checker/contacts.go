package checker

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/NordCoder/Deadswitch/internal/domain/contact"
)

type ContactResolver struct {
	Contacts ContactSource
}

// Resolve returns the contacts owned by userID. Rows owned by anyone else are dropped.
func (r *ContactResolver) Resolve(ctx context.Context, userID uuid.UUID) ([]contact.Contact, error) {
	list, err := r.Contacts.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	out := list[:0:0]
	for _, c := range list {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}
