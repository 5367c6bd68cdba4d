package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/buymeagift/giftlist/internal/auth"
	"github.com/buymeagift/giftlist/internal/domain"
	"github.com/buymeagift/giftlist/internal/service"
	"github.com/buymeagift/giftlist/pkg/health"
	"github.com/buymeagift/giftlist/pkg/httputil"
	"github.com/buymeagift/giftlist/pkg/middleware"
)

// ============================================================================
// Service mocks
// ============================================================================

type mockAuthService struct{ mock.Mock }

func (m *mockAuthService) Register(ctx context.Context, in service.RegisterInput) (*domain.User, *domain.TokenPair, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*domain.User), args.Get(1).(*domain.TokenPair), args.Error(2)
}

func (m *mockAuthService) Login(ctx context.Context, in service.LoginInput) (*domain.User, *domain.TokenPair, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*domain.User), args.Get(1).(*domain.TokenPair), args.Error(2)
}

func (m *mockAuthService) RefreshToken(ctx context.Context, token string) (*domain.TokenPair, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TokenPair), args.Error(1)
}

func (m *mockAuthService) VerifyToken(token string) error {
	return m.Called(token).Error(0)
}

func (m *mockAuthService) RequestPasswordReset(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

func (m *mockAuthService) CheckPasswordResetToken(ctx context.Context, uidb64, token string) error {
	return m.Called(ctx, uidb64, token).Error(0)
}

func (m *mockAuthService) CompletePasswordReset(ctx context.Context, in service.CompleteResetInput) error {
	return m.Called(ctx, in).Error(0)
}

func (m *mockAuthService) GetProfile(ctx context.Context, userID string) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockAuthService) ValidateAccessToken(token string) (*auth.Claims, error) {
	args := m.Called(token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Claims), args.Error(1)
}

type mockCatalogService struct{ mock.Mock }

func (m *mockCatalogService) CreateCategory(ctx context.Context, ownerID, name string) (*domain.Category, error) {
	args := m.Called(ctx, ownerID, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Category), args.Error(1)
}

func (m *mockCatalogService) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Category), args.Error(1)
}

func (m *mockCatalogService) ListCategories(ctx context.Context, ownerID string, page, perPage int) ([]domain.Category, int, error) {
	args := m.Called(ctx, ownerID, page, perPage)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]domain.Category), args.Int(1), args.Error(2)
}

func (m *mockCatalogService) UpdateCategory(ctx context.Context, userID, id, name string) (*domain.Category, error) {
	args := m.Called(ctx, userID, id, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Category), args.Error(1)
}

func (m *mockCatalogService) DeleteCategory(ctx context.Context, userID, id string) error {
	return m.Called(ctx, userID, id).Error(0)
}

func (m *mockCatalogService) CreateProducts(ctx context.Context, ownerID string, inputs []service.ProductInput) ([]*domain.Product, error) {
	args := m.Called(ctx, ownerID, inputs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Product), args.Error(1)
}

func (m *mockCatalogService) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *mockCatalogService) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]domain.Product), args.Int(1), args.Error(2)
}

func (m *mockCatalogService) UpdateProduct(ctx context.Context, userID, id string, in service.ProductInput) (*domain.Product, error) {
	args := m.Called(ctx, userID, id, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *mockCatalogService) DeleteProduct(ctx context.Context, userID, id string) error {
	return m.Called(ctx, userID, id).Error(0)
}

type mockWishlistService struct{ mock.Mock }

func (m *mockWishlistService) AddToWishlist(ctx context.Context, userID, productID string) (*domain.WishlistEntry, error) {
	args := m.Called(ctx, userID, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WishlistEntry), args.Error(1)
}

func (m *mockWishlistService) GetWishlist(ctx context.Context, userID string) (*domain.Wishlist, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Wishlist), args.Error(1)
}

func (m *mockWishlistService) ListWishlistProducts(ctx context.Context, userID string, sort domain.SortOptions) ([]domain.Product, error) {
	args := m.Called(ctx, userID, sort)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Product), args.Error(1)
}

func (m *mockWishlistService) NormalizeWishlist(ctx context.Context, userID string) ([]string, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// ============================================================================
// Test router
// ============================================================================

const (
	testUserID  = "550e8400-e29b-41d4-a716-446655440001"
	otherUserID = "550e8400-e29b-41d4-a716-446655440002"
	testToken   = "test-token"
)

type testServer struct {
	handler  http.Handler
	auth     *mockAuthService
	catalog  *mockCatalogService
	wishlist *mockWishlistService
	health   *health.Handler
}

func newTestServer(t *testing.T, opts ...func(*RouterConfig)) *testServer {
	t.Helper()

	s := &testServer{
		auth:     new(mockAuthService),
		catalog:  new(mockCatalogService),
		wishlist: new(mockWishlistService),
		health:   health.NewHandler(),
	}
	s.auth.On("ValidateAccessToken", testToken).
		Return(&auth.Claims{UserID: testUserID, Email: "test@example.com"}, nil).Maybe()
	s.auth.On("ValidateAccessToken", mock.Anything).
		Return(nil, auth.ErrWrongTokenType).Maybe()

	reg := prometheus.NewRegistry()
	cfg := RouterConfig{
		Auth:        s.auth,
		Catalog:     s.catalog,
		Wishlist:    s.wishlist,
		Health:      s.health,
		Gatherer:    reg,
		HTTPMetrics: middleware.NewHTTPMetrics(reg, "giftlist"),
		CORS:        middleware.DefaultCORSConfig([]string{"*"}),
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	s.handler = NewRouter(cfg)
	return s
}

// do sends a request through the router. body is JSON-encoded unless it is a string.
func (s *testServer) do(t *testing.T, method, path string, body any, authed bool) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) httputil.Response {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

// decodeData decodes the "data" member of the envelope into dst.
func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, dst))
}

func jsonDecode(rec *httptest.ResponseRecorder, dst any) error {
	return json.NewDecoder(rec.Body).Decode(dst)
}
