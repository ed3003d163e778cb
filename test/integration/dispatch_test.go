//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	domainkafka "github.com/NordCoder/Deadswitch/internal/domain/kafka"
	"github.com/NordCoder/Deadswitch/internal/lock"
	"github.com/NordCoder/Deadswitch/internal/obs/retry"
	"github.com/NordCoder/Deadswitch/internal/outbox"
	kafkax "github.com/NordCoder/Deadswitch/internal/repository/kafka"
	pg "github.com/NordCoder/Deadswitch/internal/repository/postgres"
	checker "github.com/NordCoder/Deadswitch/internal/services/inactivity-checker"
	"github.com/NordCoder/Deadswitch/internal/services/inactivity-checker/repo"
)

func newDispatcher(t *testing.T, db *pg.DB, logStore repo.NotificationLog, smtpAddr string) *checker.Dispatcher {
	t.Helper()
	l := zaptest.NewLogger(t)
	return &checker.Dispatcher{
		CheckIns: pg.NewCheckInRepo(db),
		Roster:   pg.NewUserRepo(db),
		Dedup:    &checker.Deduplicator{Log: logStore, Window: 24 * time.Hour},
		Contacts: &checker.ContactResolver{Contacts: pg.NewContactRepo(db)},
		Log:      logStore,
		Channel: checker.NewMailer(checker.MailerConfig{
			Addr:    smtpAddr,
			From:    "deadswitch@example.com",
			Timeout: 10 * time.Second,
		}).WithLogger(l),
		Clock:  checker.SystemClock,
		Locker: lock.NewLocalLocker(),
		Cfg: checker.Settings{
			Threshold:   48 * time.Hour,
			Workers:     2,
			SendTimeout: 10 * time.Second,
			RunTimeout:  30 * time.Second,
			Location:    time.UTC,
			LockKey:     "it:dispatch",
			LockTTL:     time.Minute,
		},
		Logger: l,
	}
}

func openPool(t *testing.T, dsn string) *pg.DB {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	db, err := pg.NewDB(ctx, pg.Config{DSN: dsn, QueryTimeout: 5 * time.Second})
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func TestDispatch_EmailsContactsOfInactiveUsersOnce(t *testing.T) {
	cfg := LoadCfg()
	WaitTCP(t, "mailhog", cfg.MailhogSMTP, 30*time.Second)

	sqlDB := DBOpen(t, cfg.DBDSN)
	defer sqlDB.Close()
	pool := openPool(t, cfg.DBDSN)

	now := time.Now().UTC()

	idle := UniqueEmail("idle")
	idleID := SeedUser(t, sqlDB, idle)
	SeedCheckIn(t, sqlDB, idleID, now.Add(-96*time.Hour))
	SeedCheckIn(t, sqlDB, idleID, now.Add(-72*time.Hour))
	alice := UniqueEmail("alice")
	bob := UniqueEmail("bob")
	SeedContact(t, sqlDB, idleID, "Alice", alice)
	SeedContact(t, sqlDB, idleID, "Bob", bob)

	active := UniqueEmail("active")
	activeID := SeedUser(t, sqlDB, active)
	SeedCheckIn(t, sqlDB, activeID, now.Add(-100*time.Hour))
	SeedCheckIn(t, sqlDB, activeID, now.Add(-time.Hour))
	carol := UniqueEmail("carol")
	SeedContact(t, sqlDB, activeID, "Carol", carol)

	neverID := SeedUser(t, sqlDB, UniqueEmail("never"))
	dave := UniqueEmail("dave")
	SeedContact(t, sqlDB, neverID, "Dave", dave)

	logStore := repo.NotificationLog{R: pg.NewNotificationLogRepo(pool)}
	d := newDispatcher(t, pool, logStore, cfg.MailhogSMTP)

	sum, err := d.Run(context.Background())
	require.NoError(t, err)
	require.False(t, sum.Partial)

	var mine []checker.Result
	for _, r := range sum.Notifications {
		if r.UserID == idleID {
			mine = append(mine, r)
		}
		require.NotEqual(t, activeID, r.UserID)
		require.NotEqual(t, neverID, r.UserID)
	}
	require.Len(t, mine, 2)
	for _, r := range mine {
		require.Equal(t, "sent", string(r.Status))
	}

	rows := LogRows(t, sqlDB, idleID)
	require.Len(t, rows, 2)
	for _, r := range rows {
		require.True(t, r.ContactID.Valid)
		require.Equal(t, "sent", r.Status)
	}
	require.Empty(t, LogRows(t, sqlDB, activeID))
	require.Empty(t, LogRows(t, sqlDB, neverID))

	require.Eventually(t, func() bool {
		return len(MailhogSubjectsTo(t, cfg.MailhogAPI, alice)) == 1 &&
			len(MailhogSubjectsTo(t, cfg.MailhogAPI, bob)) == 1
	}, 15*time.Second, 250*time.Millisecond)
	subj := MailhogSubjectsTo(t, cfg.MailhogAPI, alice)[0]
	require.True(t, strings.Contains(subj, idle), "subject %q", subj)
	require.Empty(t, MailhogSubjectsTo(t, cfg.MailhogAPI, carol))
	require.Empty(t, MailhogSubjectsTo(t, cfg.MailhogAPI, dave))

	// the next run falls inside the suppression window
	sum, err = d.Run(context.Background())
	require.NoError(t, err)
	for _, r := range sum.Notifications {
		require.NotEqual(t, idleID, r.UserID)
	}
	require.Len(t, LogRows(t, sqlDB, idleID), 2)
}

func TestDispatch_LogEntriesReachKafkaThroughOutbox(t *testing.T) {
	cfg := LoadCfg()
	WaitTCP(t, "mailhog", cfg.MailhogSMTP, 30*time.Second)
	EnsureTopic(t, cfg.KafkaBootstrap, cfg.EventsTopic)

	sqlDB := DBOpen(t, cfg.DBDSN)
	defer sqlDB.Close()
	pool := openPool(t, cfg.DBDSN)
	l := zaptest.NewLogger(t)

	idleID := SeedUser(t, sqlDB, UniqueEmail("outbox"))
	SeedCheckIn(t, sqlDB, idleID, time.Now().Add(-50*time.Hour))
	contactID := SeedContact(t, sqlDB, idleID, "Erin", UniqueEmail("erin"))

	outboxRepo := pg.NewOutboxRepo(pool)
	logStore := repo.NotificationLog{
		R:      pg.NewNotificationLogRepo(pool),
		Outbox: outboxRepo,
		Tx:     pg.NewTransactor(pool, l),
	}
	_, err := newDispatcher(t, pool, logStore, cfg.MailhogSMTP).Run(context.Background())
	require.NoError(t, err)

	prod := kafkax.NewProducer([]string{cfg.KafkaBootstrap}, cfg.EventsTopic).WithLogger(l)
	defer prod.Close()
	runner := outbox.NewOutboxRunner(l, outboxRepo,
		outbox.MakeGlobalOutboxHandler(kafkax.NewNotificationEventsKafka(prod), retry.OutboxPolicy(l)),
		1, 100, 50*time.Millisecond, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	runner.Tick(ctx)

	msg, ok := ReadUntil(t, cfg.KafkaBootstrap, cfg.EventsTopic, 30*time.Second, func(m kafka.Message) bool {
		return string(m.Key) == idleID.String()
	})
	require.True(t, ok, "event for %s not published", idleID)

	var ev domainkafka.NotificationLogged
	require.NoError(t, json.Unmarshal(msg.Value, &ev))
	require.Equal(t, idleID, ev.UserID)
	require.Equal(t, contactID, ev.ContactID)
	require.Equal(t, "sent", ev.Status)
}
