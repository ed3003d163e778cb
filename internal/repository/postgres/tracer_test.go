package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestStatementOp(t *testing.T) {
	cases := []struct {
		sql  string
		want string
	}{
		{"", "UNKNOWN"},
		{"\n  select id from users", "SELECT"},
		{"INSERT INTO check_ins (user_id) VALUES ($1)", "INSERT"},
		{qOutboxPick, "UPDATE"},
		{"WITH x AS (UPDATE t SET a = 1 RETURNING a) SELECT * FROM x", "SELECT"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, statementOp(c.sql), c.sql)
	}
}

func TestCompactSQL(t *testing.T) {
	assert.Equal(t, "SELECT a FROM t WHERE b = $1", compactSQL("\nSELECT a\n  FROM t\n\tWHERE b = $1"))
}

func TestQueryTracer_LogsSlowStatements(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	q := newQueryTracer(zap.New(core), time.Nanosecond)

	ctx := q.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "SELECT 1"})
	time.Sleep(time.Millisecond)
	q.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{CommandTag: pgconn.NewCommandTag("SELECT 1")})

	entries := logs.FilterMessage("slow query").AllUntimed()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "SELECT", entries[0].ContextMap()["op"])
	}
}

func TestQueryTracer_QuietWhenDisabled(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	q := newQueryTracer(zap.New(core), 0)

	ctx := q.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "DELETE FROM outbox"})
	q.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{Err: errors.New("boom")})

	assert.Zero(t, logs.Len())
}
