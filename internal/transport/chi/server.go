package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/bookdex/internal/db"
	"github.com/kailas-cloud/bookdex/internal/domain"
	authuc "github.com/kailas-cloud/bookdex/internal/usecase/auth"
)

// Error codes returned in JSON error bodies.
const (
	codeBadRequest          = "bad_request"
	codeValidationFailed    = "validation_failed"
	codeUnauthorized        = "unauthorized"
	codeInvalidCredentials  = "invalid_credentials"
	codeInvalidToken        = "invalid_token"
	codeNotFound            = "not_found"
	codeBookNotFound        = "book_not_found"
	codeAlreadyExists       = "already_exists"
	codeConflict            = "conflict"
	codeProviderUnavailable = "provider_unavailable"
	codeInternalError       = "internal_error"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Auth issues and refreshes token pairs.
type Auth interface {
	SignUp(ctx context.Context, email, password string) (authuc.TokenPair, error)
	SignIn(ctx context.Context, email, password string) (authuc.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (authuc.TokenPair, error)
}

// Catalog searches and reads books.
type Catalog interface {
	Search(ctx context.Context, userID, q string, page int) ([]domain.BookView, error)
	Local(ctx context.Context, q string, limit int) ([]domain.BookView, error)
	Get(ctx context.Context, userID, id string) (domain.BookView, error)
}

// Reviews attaches reviews to books.
type Reviews interface {
	Add(ctx context.Context, bookID, reviewerID string, rating int, comment string) (domain.BookView, error)
}

// History reads recorded search queries.
type History interface {
	Last(ctx context.Context, userID string) ([]string, error)
}

// Library manages per-user book collections.
type Library interface {
	Add(ctx context.Context, userID, bookID string) error
	Remove(ctx context.Context, userID, bookID string) error
	List(ctx context.Context, userID string) ([]domain.BookView, error)
}

// Health reports readiness.
type Health interface {
	Check(ctx context.Context) error
}

// Server is the HTTP API.
type Server struct {
	auth          Auth
	verifier      TokenVerifier
	catalog       Catalog
	reviews       Reviews
	history       History
	library       Library
	health        Health
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	auth Auth,
	verifier TokenVerifier,
	catalog Catalog,
	reviews Reviews,
	history History,
	library Library,
	health Health,
	logger *zap.Logger,
) *Server {
	s := &Server{
		auth:     auth,
		verifier: verifier,
		catalog:  catalog,
		reviews:  reviews,
		history:  history,
		library:  library,
		health:   health,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrInvalidCredentials, http.StatusUnauthorized, codeInvalidCredentials),
		sentinelHandler(domain.ErrInvalidToken, http.StatusUnauthorized, codeInvalidToken),
		sentinelHandler(domain.ErrBookNotFound, http.StatusNotFound, codeBookNotFound),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrAlreadyExists, http.StatusConflict, codeAlreadyExists),
		sentinelHandler(db.ErrTxConflict, http.StatusConflict, codeConflict),
		sentinelHandler(domain.ErrProviderUnavailable, http.StatusBadGateway, codeProviderUnavailable),
	}
	return s
}

// Routes mounts all API routes on the router.
func (s *Server) Routes(r chi.Router) {
	r.Use(s.authenticate)

	r.Post("/auth/sign-up", s.handleSignUp)
	r.Post("/auth/sign-in", s.handleSignIn)
	r.Post("/auth/refresh-token", s.handleRefresh)

	r.Get("/search", s.handleSearch)
	r.Get("/books", s.handleLocalSearch)
	r.Get("/books/{id}", s.handleGetBook)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.requireUser)

		r.Get("/last-search", s.handleLastSearch)
		r.Post("/books/{id}/reviews", s.handleAddReview)
		r.Get("/library", s.handleLibraryList)
		r.Post("/library", s.handleLibraryAdd)
		r.Delete("/library/{bookID}", s.handleLibraryRemove)
	})
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleSignUp handles POST /auth/sign-up.
func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	pair, err := s.auth.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, pair)
}

// handleSignIn handles POST /auth/sign-in.
func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	pair, err := s.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

// handleRefresh handles POST /auth/refresh-token.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	pair, err := s.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

type bookListResponse struct {
	Items []domain.BookView `json:"items"`
	Total int               `json:"total"`
}

// handleSearch handles GET /search. Anonymous requests are served
// without library annotation or history recording.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	page := queryInt(r, "page", 0)

	views, err := s.catalog.Search(r.Context(), UserIDFromContext(r.Context()), q, page)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, bookListResponse{Items: views, Total: len(views)})
}

// handleLocalSearch handles GET /books. Serves from the local catalog
// only, no provider round trip.
func (s *Server) handleLocalSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit := queryInt(r, "limit", 0)

	views, err := s.catalog.Local(r.Context(), q, limit)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, bookListResponse{Items: views, Total: len(views)})
}

// handleGetBook handles GET /books/{id}.
func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	view, err := s.catalog.Get(r.Context(), UserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// handleLastSearch handles GET /last-search.
func (s *Server) handleLastSearch(w http.ResponseWriter, r *http.Request) {
	queries, err := s.history.Last(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Queries []string `json:"queries"`
	}{Queries: queries})
}

// handleAddReview handles POST /books/{id}/reviews.
func (s *Server) handleAddReview(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rating  int    `json:"rating"`
		Comment string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	view, err := s.reviews.Add(r.Context(),
		chi.URLParam(r, "id"), UserIDFromContext(r.Context()), req.Rating, req.Comment)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, view)
}

// handleLibraryList handles GET /library.
func (s *Server) handleLibraryList(w http.ResponseWriter, r *http.Request) {
	views, err := s.library.List(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, bookListResponse{Items: views, Total: len(views)})
}

// handleLibraryAdd handles POST /library.
func (s *Server) handleLibraryAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BookID string `json:"bookId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.BookID == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "bookId is required")
		return
	}

	if err := s.library.Add(r.Context(), UserIDFromContext(r.Context()), req.BookID); err != nil {
		s.handleDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleLibraryRemove handles DELETE /library/{bookID}.
func (s *Server) handleLibraryRemove(w http.ResponseWriter, r *http.Request) {
	err := s.library.Remove(r.Context(), UserIDFromContext(r.Context()), chi.URLParam(r, "bookID"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleHealth handles GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.health.Check(r.Context()); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrValidation,
		domain.ErrInvalidCredentials,
		domain.ErrInvalidToken,
		domain.ErrBookNotFound,
		domain.ErrNotFound,
		domain.ErrAlreadyExists,
		db.ErrTxConflict,
		domain.ErrProviderUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
