// Package httpapi exposes the inactivity job trigger and the check-in and contact endpoints.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/NordCoder/Deadswitch/internal/domain/checkin"
	"github.com/NordCoder/Deadswitch/internal/domain/contact"
	checker "github.com/NordCoder/Deadswitch/internal/services/inactivity-checker"
)

type CheckIns interface {
	Record(ctx context.Context, userID uuid.UUID) (*checkin.CheckIn, error)
	Status(ctx context.Context, userID uuid.UUID) (checker.Status, error)
}

type Deps struct {
	Job      checker.Job
	CheckIns CheckIns
	Contacts contact.Repo
	// TokenHash is a bcrypt hash of the bearer token. Empty disables auth.
	TokenHash   string
	CORSOrigins []string
	Health      func(context.Context) error
}

type Server struct {
	deps Deps
	log  *zap.Logger
}

func NewHandler(deps Deps, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{deps: deps, log: log.With(zap.String("component", "http"))}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthz)

	r.Route("/v1", func(r chi.Router) {
		r.Use(bearerAuth(deps.TokenHash))

		r.Post("/jobs/check-inactive", s.checkInactive)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Post("/check-ins", s.recordCheckIn)
			r.Get("/status", s.status)

			r.Get("/contacts", s.listContacts)
			r.Post("/contacts", s.createContact)
			r.Put("/contacts/{contactID}", s.updateContact)
			r.Delete("/contacts/{contactID}", s.deleteContact)
		})
	})

	c := cors.New(cors.Options{
		AllowedOrigins: deps.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "X-Client-Info", "Apikey", "Content-Type"},
		MaxAge:         600,
	})

	return otelhttp.NewHandler(c.Handler(r), "deadswitch.http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := s.deps.Health(ctx); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
