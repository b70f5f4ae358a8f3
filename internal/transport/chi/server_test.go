package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/bookdex/internal/db"
	"github.com/kailas-cloud/bookdex/internal/domain"
	authuc "github.com/kailas-cloud/bookdex/internal/usecase/auth"
)

// --- Mocks ---

type mockAuth struct {
	signUpFn  func(email, password string) (authuc.TokenPair, error)
	signInFn  func(email, password string) (authuc.TokenPair, error)
	refreshFn func(token string) (authuc.TokenPair, error)
}

func (m *mockAuth) SignUp(_ context.Context, email, password string) (authuc.TokenPair, error) {
	return m.signUpFn(email, password)
}

func (m *mockAuth) SignIn(_ context.Context, email, password string) (authuc.TokenPair, error) {
	return m.signInFn(email, password)
}

func (m *mockAuth) Refresh(_ context.Context, token string) (authuc.TokenPair, error) {
	return m.refreshFn(token)
}

type mockVerifier struct {
	users map[string]string
}

func (m *mockVerifier) VerifyAccess(token string) (string, error) {
	id, ok := m.users[token]
	if !ok {
		return "", domain.ErrInvalidToken
	}
	return id, nil
}

type mockCatalog struct {
	searchFn func(userID, q string, page int) ([]domain.BookView, error)
	localFn  func(q string, limit int) ([]domain.BookView, error)
	getFn    func(userID, id string) (domain.BookView, error)
}

func (m *mockCatalog) Search(_ context.Context, userID, q string, page int) ([]domain.BookView, error) {
	return m.searchFn(userID, q, page)
}

func (m *mockCatalog) Local(_ context.Context, q string, limit int) ([]domain.BookView, error) {
	return m.localFn(q, limit)
}

func (m *mockCatalog) Get(_ context.Context, userID, id string) (domain.BookView, error) {
	return m.getFn(userID, id)
}

type mockReviews struct {
	addFn func(bookID, reviewerID string, rating int, comment string) (domain.BookView, error)
}

func (m *mockReviews) Add(
	_ context.Context, bookID, reviewerID string, rating int, comment string,
) (domain.BookView, error) {
	return m.addFn(bookID, reviewerID, rating, comment)
}

type mockHistory struct {
	lastFn func(userID string) ([]string, error)
}

func (m *mockHistory) Last(_ context.Context, userID string) ([]string, error) {
	return m.lastFn(userID)
}

type mockLibrary struct {
	added   []string
	removed []string
	listFn  func(userID string) ([]domain.BookView, error)
	addErr  error
}

func (m *mockLibrary) Add(_ context.Context, userID, bookID string) error {
	if m.addErr != nil {
		return m.addErr
	}
	m.added = append(m.added, userID+"/"+bookID)
	return nil
}

func (m *mockLibrary) Remove(_ context.Context, userID, bookID string) error {
	m.removed = append(m.removed, userID+"/"+bookID)
	return nil
}

func (m *mockLibrary) List(_ context.Context, userID string) ([]domain.BookView, error) {
	return m.listFn(userID)
}

type mockHealth struct {
	err error
}

func (m *mockHealth) Check(context.Context) error { return m.err }

type fixture struct {
	auth    *mockAuth
	catalog *mockCatalog
	reviews *mockReviews
	history *mockHistory
	library *mockLibrary
	health  *mockHealth
	router  *chi.Mux
}

func newFixture() *fixture {
	f := &fixture{
		auth:    &mockAuth{},
		catalog: &mockCatalog{},
		reviews: &mockReviews{},
		history: &mockHistory{},
		library: &mockLibrary{},
		health:  &mockHealth{},
	}
	verifier := &mockVerifier{users: map[string]string{"token-alice": "user-alice"}}
	srv := NewServer(f.auth, verifier, f.catalog, f.reviews, f.history, f.library, f.health, zap.NewNop())
	f.router = chi.NewRouter()
	srv.Routes(f.router)
	return f
}

func (f *fixture) do(method, target, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp
}

// --- Tests ---

func TestSignUp_Created(t *testing.T) {
	f := newFixture()
	f.auth.signUpFn = func(email, password string) (authuc.TokenPair, error) {
		if email != "alice@example.com" {
			t.Errorf("email: got %q", email)
		}
		return authuc.TokenPair{AccessToken: "a", RefreshToken: "r"}, nil
	}

	rr := f.do("POST", "/auth/sign-up", "",
		map[string]string{"email": "alice@example.com", "password": "correct horse"})

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusCreated)
	}
	var pair authuc.TokenPair
	if err := json.NewDecoder(rr.Body).Decode(&pair); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pair.AccessToken != "a" || pair.RefreshToken != "r" {
		t.Errorf("pair: got %+v", pair)
	}
}

func TestSignUp_DuplicateEmail_409(t *testing.T) {
	f := newFixture()
	f.auth.signUpFn = func(string, string) (authuc.TokenPair, error) {
		return authuc.TokenPair{}, fmt.Errorf("create user: %w", domain.ErrAlreadyExists)
	}

	rr := f.do("POST", "/auth/sign-up", "", map[string]string{"email": "a@b", "password": "p"})

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusConflict)
	}
	if resp := decodeError(t, rr); resp.Code != codeAlreadyExists {
		t.Errorf("code: got %s, want %s", resp.Code, codeAlreadyExists)
	}
}

func TestSignUp_MalformedBody_400(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest("POST", "/auth/sign-up", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if resp := decodeError(t, rr); resp.Code != codeBadRequest {
		t.Errorf("code: got %s, want %s", resp.Code, codeBadRequest)
	}
}

func TestSignIn_BadCredentials_401(t *testing.T) {
	f := newFixture()
	f.auth.signInFn = func(string, string) (authuc.TokenPair, error) {
		return authuc.TokenPair{}, domain.ErrInvalidCredentials
	}

	rr := f.do("POST", "/auth/sign-in", "", map[string]string{"email": "a@b", "password": "wrong"})

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
	if resp := decodeError(t, rr); resp.Code != codeInvalidCredentials {
		t.Errorf("code: got %s, want %s", resp.Code, codeInvalidCredentials)
	}
}

func TestRefresh_RevokedToken_401(t *testing.T) {
	f := newFixture()
	f.auth.refreshFn = func(string) (authuc.TokenPair, error) {
		return authuc.TokenPair{}, domain.ErrInvalidToken
	}

	rr := f.do("POST", "/auth/refresh-token", "", map[string]string{"refreshToken": "stale"})

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
	if resp := decodeError(t, rr); resp.Code != codeInvalidToken {
		t.Errorf("code: got %s, want %s", resp.Code, codeInvalidToken)
	}
}

func TestSearch_Anonymous(t *testing.T) {
	f := newFixture()
	f.catalog.searchFn = func(userID, q string, page int) ([]domain.BookView, error) {
		if userID != "" {
			t.Errorf("user id: got %q, want empty", userID)
		}
		if q != "dune" || page != 2 {
			t.Errorf("args: got q=%q page=%d", q, page)
		}
		return []domain.BookView{{ID: "b1", Title: "Dune"}}, nil
	}

	rr := f.do("GET", "/search?q=dune&page=2", "", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	var resp bookListResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || resp.Items[0].ID != "b1" {
		t.Errorf("response: got %+v", resp)
	}
}

func TestSearch_Authenticated_UserIDPropagated(t *testing.T) {
	f := newFixture()
	f.catalog.searchFn = func(userID, q string, page int) ([]domain.BookView, error) {
		if userID != "user-alice" {
			t.Errorf("user id: got %q, want user-alice", userID)
		}
		return nil, nil
	}

	rr := f.do("GET", "/search?q=dune", "token-alice", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestSearch_InvalidToken_401(t *testing.T) {
	f := newFixture()

	rr := f.do("GET", "/search?q=dune", "garbage", nil)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestSearch_EmptyQuery_400(t *testing.T) {
	f := newFixture()
	f.catalog.searchFn = func(_, q string, _ int) ([]domain.BookView, error) {
		return nil, fmt.Errorf("query is required: %w", domain.ErrValidation)
	}

	rr := f.do("GET", "/search", "", nil)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if resp := decodeError(t, rr); resp.Code != codeValidationFailed {
		t.Errorf("code: got %s, want %s", resp.Code, codeValidationFailed)
	}
}

func TestSearch_ProviderDown_502(t *testing.T) {
	f := newFixture()
	f.catalog.searchFn = func(string, string, int) ([]domain.BookView, error) {
		return nil, fmt.Errorf("search provider: %w", domain.ErrProviderUnavailable)
	}

	rr := f.do("GET", "/search?q=dune", "", nil)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadGateway)
	}
	if resp := decodeError(t, rr); resp.Code != codeProviderUnavailable {
		t.Errorf("code: got %s, want %s", resp.Code, codeProviderUnavailable)
	}
}

func TestGetBook_NotFound_404(t *testing.T) {
	f := newFixture()
	f.catalog.getFn = func(_, id string) (domain.BookView, error) {
		return domain.BookView{}, domain.ErrBookNotFound
	}

	rr := f.do("GET", "/books/missing", "", nil)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
	if resp := decodeError(t, rr); resp.Code != codeBookNotFound {
		t.Errorf("code: got %s, want %s", resp.Code, codeBookNotFound)
	}
}

func TestGetBook_OK(t *testing.T) {
	f := newFixture()
	f.catalog.getFn = func(userID, id string) (domain.BookView, error) {
		if id != "b7" {
			t.Errorf("id: got %q", id)
		}
		return domain.BookView{ID: "b7", Title: "Hyperion", InLibrary: userID == "user-alice"}, nil
	}

	rr := f.do("GET", "/books/b7", "token-alice", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	var view domain.BookView
	if err := json.NewDecoder(rr.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !view.InLibrary {
		t.Error("expected inLibrary annotation for authenticated reader")
	}
}

func TestLocalSearch_PassesLimit(t *testing.T) {
	f := newFixture()
	f.catalog.localFn = func(q string, limit int) ([]domain.BookView, error) {
		if q != "her" || limit != 5 {
			t.Errorf("args: got q=%q limit=%d", q, limit)
		}
		return []domain.BookView{}, nil
	}

	rr := f.do("GET", "/books?q=her&limit=5", "", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestLastSearch_RequiresAuth(t *testing.T) {
	f := newFixture()

	rr := f.do("GET", "/last-search", "", nil)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
	if resp := decodeError(t, rr); resp.Code != codeUnauthorized {
		t.Errorf("code: got %s, want %s", resp.Code, codeUnauthorized)
	}
}

func TestLastSearch_OK(t *testing.T) {
	f := newFixture()
	f.history.lastFn = func(userID string) ([]string, error) {
		if userID != "user-alice" {
			t.Errorf("user id: got %q", userID)
		}
		return []string{"dune", "hyperion"}, nil
	}

	rr := f.do("GET", "/last-search", "token-alice", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	var resp struct {
		Queries []string `json:"queries"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Queries) != 2 || resp.Queries[0] != "dune" {
		t.Errorf("queries: got %v", resp.Queries)
	}
}

func TestAddReview_Created(t *testing.T) {
	f := newFixture()
	f.reviews.addFn = func(bookID, reviewerID string, rating int, comment string) (domain.BookView, error) {
		if bookID != "b1" || reviewerID != "user-alice" || rating != 5 || comment != "great" {
			t.Errorf("args: got %s %s %d %q", bookID, reviewerID, rating, comment)
		}
		avg := 5.0
		return domain.BookView{ID: "b1", RatingCount: 1, RatingAvg: &avg, HasReviews: true}, nil
	}

	rr := f.do("POST", "/books/b1/reviews", "token-alice",
		map[string]any{"rating": 5, "comment": "great"})

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusCreated)
	}
	var view domain.BookView
	if err := json.NewDecoder(rr.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.RatingCount != 1 || !view.HasReviews {
		t.Errorf("view: got %+v", view)
	}
}

func TestAddReview_Anonymous_401(t *testing.T) {
	f := newFixture()

	rr := f.do("POST", "/books/b1/reviews", "", map[string]any{"rating": 5})

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestAddReview_TxConflict_409(t *testing.T) {
	f := newFixture()
	f.reviews.addFn = func(string, string, int, string) (domain.BookView, error) {
		return domain.BookView{}, fmt.Errorf("apply review: %w", db.ErrTxConflict)
	}

	rr := f.do("POST", "/books/b1/reviews", "token-alice", map[string]any{"rating": 4})

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusConflict)
	}
	if resp := decodeError(t, rr); resp.Code != codeConflict {
		t.Errorf("code: got %s, want %s", resp.Code, codeConflict)
	}
}

func TestLibraryAdd_NoContent(t *testing.T) {
	f := newFixture()

	rr := f.do("POST", "/library", "token-alice", map[string]string{"bookId": "b1"})

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusNoContent)
	}
	if len(f.library.added) != 1 || f.library.added[0] != "user-alice/b1" {
		t.Errorf("added: got %v", f.library.added)
	}
}

func TestLibraryAdd_MissingBookID_400(t *testing.T) {
	f := newFixture()

	rr := f.do("POST", "/library", "token-alice", map[string]string{})

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestLibraryAdd_UnknownBook_404(t *testing.T) {
	f := newFixture()
	f.library.addErr = fmt.Errorf("add to library: %w", domain.ErrBookNotFound)

	rr := f.do("POST", "/library", "token-alice", map[string]string{"bookId": "ghost"})

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestLibraryRemove_NoContent(t *testing.T) {
	f := newFixture()

	rr := f.do("DELETE", "/library/b1", "token-alice", nil)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusNoContent)
	}
	if len(f.library.removed) != 1 || f.library.removed[0] != "user-alice/b1" {
		t.Errorf("removed: got %v", f.library.removed)
	}
}

func TestLibraryList_OK(t *testing.T) {
	f := newFixture()
	f.library.listFn = func(userID string) ([]domain.BookView, error) {
		return []domain.BookView{{ID: "b1", InLibrary: true}}, nil
	}

	rr := f.do("GET", "/library", "token-alice", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	var resp bookListResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || !resp.Items[0].InLibrary {
		t.Errorf("response: got %+v", resp)
	}
}

func TestHealth_OK(t *testing.T) {
	f := newFixture()

	rr := f.do("GET", "/healthz", "", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestHealth_StoreDown_503(t *testing.T) {
	f := newFixture()
	f.health.err = errors.New("connection refused")

	rr := f.do("GET", "/healthz", "", nil)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
}

func TestUnknownError_500_Opaque(t *testing.T) {
	f := newFixture()
	f.catalog.searchFn = func(string, string, int) ([]domain.BookView, error) {
		return nil, errors.New("redis: broken pipe")
	}

	rr := f.do("GET", "/search?q=dune", "", nil)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusInternalServerError)
	}
	resp := decodeError(t, rr)
	if resp.Code != codeInternalError {
		t.Errorf("code: got %s, want %s", resp.Code, codeInternalError)
	}
	if resp.Message != "internal error" {
		t.Errorf("message leaked internals: %q", resp.Message)
	}
}

func TestAuthMiddleware_BasicScheme_401(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest("GET", "/search?q=dune", http.NoBody)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("basic scheme: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}
