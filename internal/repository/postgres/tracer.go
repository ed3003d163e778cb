package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var mQueryDur = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "deadswitch_db_query_duration_seconds",
	Help:    "Postgres statement latency.",
	Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
}, []string{"op", "outcome"})

type queryStartKey struct{}

type queryStart struct {
	at  time.Time
	sql string
}

// queryTracer opens a client span per statement and logs statements slower than slow.
type queryTracer struct {
	tr   trace.Tracer
	log  *zap.Logger
	slow time.Duration
}

var _ pgx.QueryTracer = (*queryTracer)(nil)

func newQueryTracer(log *zap.Logger, slow time.Duration) *queryTracer {
	if log == nil {
		log = zap.NewNop()
	}
	return &queryTracer{
		tr:   otel.Tracer("postgres"),
		log:  log.With(zap.String("component", "postgres.query")),
		slow: slow,
	}
}

func (q *queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	op := statementOp(data.SQL)
	ctx, _ = q.tr.Start(ctx, "postgres."+strings.ToLower(op),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.DBSystemPostgreSQL,
			semconv.DBOperation(op),
			attribute.String("db.statement", compactSQL(data.SQL)),
		),
	)
	return context.WithValue(ctx, queryStartKey{}, queryStart{at: time.Now(), sql: data.SQL})
}

func (q *queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	st, _ := ctx.Value(queryStartKey{}).(queryStart)
	op := statementOp(st.sql)
	elapsed := time.Since(st.at)

	outcome := "ok"
	if data.Err != nil {
		outcome = "error"
		span.RecordError(data.Err)
		span.SetStatus(codes.Error, data.Err.Error())
	}
	span.SetAttributes(attribute.Int64("db.rows_affected", data.CommandTag.RowsAffected()))
	mQueryDur.WithLabelValues(op, outcome).Observe(elapsed.Seconds())

	if q.slow > 0 && elapsed >= q.slow {
		q.log.Warn("slow query",
			zap.String("op", op),
			zap.Duration("elapsed", elapsed),
			zap.String("sql", compactSQL(st.sql)),
		)
	}
}

// statementOp returns the leading keyword of a statement, looking past a CTE.
func statementOp(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "UNKNOWN"
	}
	op := strings.ToUpper(fields[0])
	if op != "WITH" {
		return op
	}
	for _, f := range fields[1:] {
		switch u := strings.ToUpper(f); u {
		case "SELECT", "INSERT", "UPDATE", "DELETE":
			// the last top-level verb wins; CTE bodies come first
			op = u
		}
	}
	return op
}

func compactSQL(sql string) string {
	return strings.Join(strings.Fields(sql), " ")
}
