package checker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/NordCoder/Deadswitch/internal/domain/checkin"
	"github.com/NordCoder/Deadswitch/internal/domain/contact"
	"github.com/NordCoder/Deadswitch/internal/domain/notification"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// memStore backs every store port the dispatcher reads and writes.
type memStore struct {
	mu sync.Mutex

	checkIns   []checkin.CheckIn
	checkInErr error

	emails      map[uuid.UUID]string
	rosterErr   error
	rosterCalls int

	contacts   map[uuid.UUID][]contact.Contact
	contactErr map[uuid.UUID]error

	logs      []*notification.LogEntry
	listErr   map[uuid.UUID]error
	appendErr error
}

func newMemStore() *memStore {
	return &memStore{
		emails:     map[uuid.UUID]string{},
		contacts:   map[uuid.UUID][]contact.Contact{},
		contactErr: map[uuid.UUID]error{},
		listErr:    map[uuid.UUID]error{},
	}
}

func (s *memStore) addUser(email string) uuid.UUID {
	id := uuid.New()
	s.emails[id] = email
	return id
}

func (s *memStore) checkIn(userID uuid.UUID, at time.Time) {
	s.checkIns = append(s.checkIns, checkin.CheckIn{ID: uuid.New(), UserID: userID, CheckedAt: at})
}

func (s *memStore) addContact(userID uuid.UUID, name, email string) contact.Contact {
	c := contact.Contact{ID: uuid.New(), UserID: userID, Name: name, Email: email}
	s.contacts[userID] = append(s.contacts[userID], c)
	return c
}

func (s *memStore) LatestPerUser(context.Context) ([]checkin.CheckIn, error) {
	if s.checkInErr != nil {
		return nil, s.checkInErr
	}
	return s.checkIns, nil
}

func (s *memStore) EmailsByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rosterCalls++
	if s.rosterErr != nil {
		return nil, s.rosterErr
	}
	out := make(map[uuid.UUID]string, len(ids))
	for _, id := range ids {
		if e, ok := s.emails[id]; ok {
			out[id] = e
		}
	}
	return out, nil
}

func (s *memStore) ListByUser(_ context.Context, userID uuid.UUID) ([]contact.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.contactErr[userID]; err != nil {
		return nil, err
	}
	return append([]contact.Contact(nil), s.contacts[userID]...), nil
}

func (s *memStore) ListSince(_ context.Context, userID uuid.UUID, since time.Time) ([]*notification.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.listErr[userID]; err != nil {
		return nil, err
	}
	var out []*notification.LogEntry
	for _, e := range s.logs {
		if e.UserID == userID && !e.SentAt.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) Append(_ context.Context, e *notification.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	cp := *e
	cp.ID = int64(len(s.logs) + 1)
	s.logs = append(s.logs, &cp)
	return nil
}

func (s *memStore) logsFor(userID uuid.UUID) []*notification.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*notification.LogEntry
	for _, e := range s.logs {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}

type sentMail struct {
	To, Subject, Body string
}

type fakeChannel struct {
	mu     sync.Mutex
	sent   []sentMail
	failTo map[string]error
	onSend func(ctx context.Context, to string) error
}

func (f *fakeChannel) Send(ctx context.Context, to, subject, body string) error {
	if f.onSend != nil {
		if err := f.onSend(ctx, to); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failTo[to]; err != nil {
		return err
	}
	f.sent = append(f.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (f *fakeChannel) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newDispatcher(s *memStore, ch notification.EmailSender, now time.Time) *Dispatcher {
	return &Dispatcher{
		CheckIns: s,
		Roster:   s,
		Dedup:    &Deduplicator{Log: s, Window: 24 * time.Hour},
		Contacts: &ContactResolver{Contacts: s},
		Log:      s,
		Channel:  ch,
		Clock:    fixedClock{t: now},
		Cfg: Settings{
			Threshold:   48 * time.Hour,
			Workers:     4,
			SendTimeout: time.Second,
			Location:    time.UTC,
			LockKey:     "check-inactive",
			LockTTL:     time.Minute,
		},
	}
}
