package checker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NordCoder/Deadswitch/internal/domain/contact"
	"github.com/NordCoder/Deadswitch/internal/domain/notification"
)

func TestContactResolver_DropsForeignContacts(t *testing.T) {
	s := newMemStore()
	owner, other := uuid.New(), uuid.New()
	mine := s.addContact(owner, "Mine", "mine@example.com")
	s.contacts[owner] = append(s.contacts[owner], contact.Contact{ID: uuid.New(), UserID: other, Name: "Theirs", Email: "theirs@example.com"})

	got, err := (&ContactResolver{Contacts: s}).Resolve(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, mine.ID, got[0].ID)
}

func TestContactResolver_Error(t *testing.T) {
	s := newMemStore()
	u := uuid.New()
	s.contactErr[u] = errors.New("boom")

	_, err := (&ContactResolver{Contacts: s}).Resolve(context.Background(), u)
	require.Error(t, err)
}

func TestDeduplicator_Window(t *testing.T) {
	s := newMemStore()
	u, other := uuid.New(), uuid.New()
	s.logs = []*notification.LogEntry{
		{UserID: other, SentAt: runNow.Add(-time.Hour), Status: notification.StatusSent},
		{UserID: u, SentAt: runNow.Add(-30 * time.Hour), Status: notification.StatusSent},
	}
	d := &Deduplicator{Log: s, Window: 24 * time.Hour}

	ok, err := d.Suppressed(context.Background(), u, runNow)
	require.NoError(t, err)
	assert.False(t, ok, "another user's entry must not suppress")

	s.logs = append(s.logs, &notification.LogEntry{UserID: u, SentAt: runNow.Add(-24 * time.Hour), Status: notification.StatusFailed})
	ok, err = d.Suppressed(context.Background(), u, runNow)
	require.NoError(t, err)
	assert.True(t, ok)
}
