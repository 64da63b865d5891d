// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/okian/readq/internal/adapters/http/swagger"
	model "github.com/okian/readq/internal/domain/model"
	"github.com/okian/readq/internal/domain/ordering"
	"github.com/okian/readq/internal/domain/scoring"
	"github.com/okian/readq/internal/domain/stats"
	"github.com/okian/readq/internal/domain/types"
	"github.com/okian/readq/pkg/logger"
)

// Headers set by the identity proxy in front of the service.
const (
	HeaderUserID     = "X-User-ID"
	HeaderAdminToken = "X-Admin-Token"
)

// BookDependencies are the reading-list operations behind /books.
type BookDependencies interface {
	CreateBook(ctx context.Context, user string, in types.BookInput) (model.Book, error)
	GetBook(ctx context.Context, user, id string) (model.Book, error)
	UpdateBook(ctx context.Context, user, id string, patch types.BookPatch) (model.Book, error)
	DeleteBook(ctx context.Context, user, id string) error
	Reorder(ctx context.Context, user string, pairs []types.RankAssignment) (types.ReorderResult, error)
	ListBooks(ctx context.Context, user string) ([]model.Book, error)
	ListQueue(ctx context.Context, user string) ([]model.Book, error)
	BookAt(ctx context.Context, user string, n int) (model.Book, error)
	QueueStats(ctx context.Context, user string) (stats.Quartiles, error)
	PreviewScore(ctx context.Context, user string, in types.BookInput) (scoring.Breakdown, error)
}

// FormulaDependencies manage a user's scoring formula.
type FormulaDependencies interface {
	GetFormula(ctx context.Context, user string) (types.FormulaView, error)
	SetFormula(ctx context.Context, user string, cfg model.FormulaConfig) (types.FormulaUpdate, error)
	ResetFormula(ctx context.Context, user string) (types.FormulaUpdate, error)
}

// AdminDependencies are the maintenance operations.
type AdminDependencies interface {
	Resequence(ctx context.Context, user string) (types.ResequenceResult, error)
	Audit(ctx context.Context, user string) (ordering.Report, error)
	EnqueueRescoreAll(ctx context.Context, reason string) (types.RescoreResult, error)
}

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	BookDependencies
	FormulaDependencies
	AdminDependencies
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	booksHandler   *BooksHandler
	formulaHandler *FormulaHandler
	adminHandler   *AdminHandler

	adminToken string
	logger     logger.Logger
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithAdminToken enables the admin routes behind token.
func WithAdminToken(token string) Option {
	return func(s *Server) {
		s.adminToken = token
	}
}

// WithLogger sets the logger used for request failures.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("api")
	}

	v := newRequestValidator()
	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(deps)
	s.booksHandler = NewBooksHandler(deps, v, s.logger)
	s.formulaHandler = NewFormulaHandler(deps, s.logger)
	s.adminHandler = NewAdminHandler(deps, s.logger)
	return s
}

// Routes returns the router serving every endpoint.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)

	r.Get("/healthz", s.healthHandler.HandleHealth)
	r.Get("/metrics", s.healthHandler.HandleMetrics)
	r.Get("/stats", s.statsHandler.HandleStats)
	swagger.Register(r)

	r.Route("/books", func(r chi.Router) {
		r.Use(RequireUser)
		r.Get("/", s.booksHandler.HandleList)
		r.Post("/", s.booksHandler.HandleCreate)
		r.Post("/preview-score", s.booksHandler.HandlePreviewScore)
		r.Post("/reorder", s.booksHandler.HandleReorder)
		r.Get("/queue", s.booksHandler.HandleQueue)
		r.Get("/queue/stats", s.booksHandler.HandleQueueStats)
		r.Get("/queue/{position}", s.booksHandler.HandleBookAt)
		r.Get("/{id}", s.booksHandler.HandleGet)
		r.Put("/{id}", s.booksHandler.HandleUpdate)
		r.Delete("/{id}", s.booksHandler.HandleDelete)
	})

	r.Route("/formula", func(r chi.Router) {
		r.Use(RequireUser)
		r.Get("/", s.formulaHandler.HandleGet)
		r.Put("/", s.formulaHandler.HandleSet)
		r.Delete("/", s.formulaHandler.HandleReset)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.requireAdmin)
		r.Post("/resequence", s.adminHandler.HandleResequence)
		r.Get("/audit", s.adminHandler.HandleAudit)
		r.Post("/rescore", s.adminHandler.HandleRescore)
	})

	return r
}

type ctxKey struct{}

// RequireUser rejects requests without an acting user.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := r.Header.Get(HeaderUserID)
		if user == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, user)))
	})
}

// UserFrom returns the acting user stored by RequireUser.
func UserFrom(ctx context.Context) string {
	user, _ := ctx.Value(ctxKey{}).(string)
	return user
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken == "" {
			writeError(w, http.StatusNotFound, "not_found", ErrAdminOff)
			return
		}
		got := r.Header.Get(HeaderAdminToken)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.adminToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized", ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// fail writes err with the status its kind maps to. Server errors are
// logged since their message is the only trace.
func fail(ctx context.Context, w http.ResponseWriter, l logger.Logger, err error) {
	status, code := statusOf(err)
	if status >= http.StatusInternalServerError {
		l.Error(ctx, "request failed", logger.Error(err))
	}
	writeError(w, status, code, err)
}

func decodeJSON(r *http.Request, op string, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return wrapKind(op, ErrBadRequest, err)
	}
	return nil
}
