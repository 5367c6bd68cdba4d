package service

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"

	"github.com/buymeagift/giftlist/internal/cache"
	"github.com/buymeagift/giftlist/internal/domain"
	"github.com/buymeagift/giftlist/internal/notify"
	"github.com/buymeagift/giftlist/internal/repository"
	apperrors "github.com/buymeagift/giftlist/pkg/errors"
)

// ============================================================================
// Repository mocks
// ============================================================================

type mockUserRepository struct{ mock.Mock }

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	args := m.Called(ctx, id, passwordHash)
	return args.Error(0)
}

type mockRefreshTokenRepository struct{ mock.Mock }

func (m *mockRefreshTokenRepository) Create(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	args := m.Called(ctx, userID, tokenHash, expiresAt)
	return args.Error(0)
}

func (m *mockRefreshTokenRepository) GetByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	args := m.Called(ctx, tokenHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RefreshToken), args.Error(1)
}

func (m *mockRefreshTokenRepository) RevokeByUserID(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *mockRefreshTokenRepository) Revoke(ctx context.Context, tokenHash string) error {
	args := m.Called(ctx, tokenHash)
	return args.Error(0)
}

type mockCategoryRepository struct{ mock.Mock }

func (m *mockCategoryRepository) Create(ctx context.Context, c *domain.Category) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *mockCategoryRepository) GetByID(ctx context.Context, id string) (*domain.Category, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Category), args.Error(1)
}

func (m *mockCategoryRepository) List(ctx context.Context, ownerID string, page, perPage int) ([]domain.Category, int, error) {
	args := m.Called(ctx, ownerID, page, perPage)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Category), args.Int(1), args.Error(2)
}

func (m *mockCategoryRepository) Update(ctx context.Context, c *domain.Category) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *mockCategoryRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type mockProductRepository struct{ mock.Mock }

func (m *mockProductRepository) Create(ctx context.Context, products ...*domain.Product) error {
	args := m.Called(ctx, products)
	return args.Error(0)
}

func (m *mockProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *mockProductRepository) List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Product), args.Int(1), args.Error(2)
}

func (m *mockProductRepository) Update(ctx context.Context, p *domain.Product) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *mockProductRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type mockWishlistRepository struct{ mock.Mock }

func (m *mockWishlistRepository) GetByUser(ctx context.Context, userID string) (*domain.Wishlist, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Wishlist), args.Error(1)
}

func (m *mockWishlistRepository) AddProduct(ctx context.Context, userID, productID string, guard repository.AddGuard) (*domain.WishlistEntry, domain.AddVerdict, error) {
	args := m.Called(ctx, userID, productID, guard)
	if args.Get(0) == nil {
		return nil, args.Get(1).(domain.AddVerdict), args.Error(2)
	}
	return args.Get(0).(*domain.WishlistEntry), args.Get(1).(domain.AddVerdict), args.Error(2)
}

func (m *mockWishlistRepository) Normalize(ctx context.Context, userID string) ([]string, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockWishlistRepository) ListUsersWithDuplicates(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockWishlistRepository) ListUsersHoldingProduct(ctx context.Context, productID string) ([]string, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockWishlistRepository) ListUsersHoldingCategory(ctx context.Context, categoryID string) ([]string, error) {
	args := m.Called(ctx, categoryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// ============================================================================
// Collaborator mocks
// ============================================================================

type mockEvents struct{ mock.Mock }

func (m *mockEvents) PublishUserRegistered(ctx context.Context, user *domain.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockEvents) PublishPasswordResetRequested(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *mockEvents) PublishProductCreated(ctx context.Context, p *domain.Product) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockEvents) PublishProductDeleted(ctx context.Context, p *domain.Product) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockEvents) PublishProductAdded(ctx context.Context, userID string, entry *domain.WishlistEntry, p *domain.Product) error {
	return m.Called(ctx, userID, entry, p).Error(0)
}

func (m *mockEvents) PublishWishlistNormalized(ctx context.Context, userID string, removed []string) error {
	return m.Called(ctx, userID, removed).Error(0)
}

type mockMailer struct{ mock.Mock }

func (m *mockMailer) Send(ctx context.Context, msg *notify.Message) error {
	return m.Called(ctx, msg).Error(0)
}

// ============================================================================
// In-memory wishlist store
// ============================================================================

// memWishlistRepository keeps wishlists in memory and runs the add guard
// under a mutex, mirroring the row lock of the SQL implementation.
type memWishlistRepository struct {
	mu        sync.Mutex
	products  map[string]domain.Product
	wishlists map[string][]string // user id -> product ids in insertion order
}

func newMemWishlistRepository(products ...domain.Product) *memWishlistRepository {
	r := &memWishlistRepository{
		products:  make(map[string]domain.Product),
		wishlists: make(map[string][]string),
	}
	for _, p := range products {
		r.products[p.ID] = p
	}
	return r
}

func (r *memWishlistRepository) members(userID string) []domain.Product {
	out := []domain.Product{}
	for _, id := range r.wishlists[userID] {
		out = append(out, r.products[id])
	}
	return out
}

func (r *memWishlistRepository) GetByUser(_ context.Context, userID string) (*domain.Wishlist, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.wishlists[userID]; !ok {
		return nil, apperrors.NotFound("wishlist", userID)
	}
	return &domain.Wishlist{ID: "wl-" + userID, UserID: userID, Products: r.members(userID)}, nil
}

func (r *memWishlistRepository) AddProduct(_ context.Context, userID, productID string, guard repository.AddGuard) (*domain.WishlistEntry, domain.AddVerdict, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v := guard(r.members(userID)); v != domain.AddAccepted {
		return nil, v, nil
	}
	r.wishlists[userID] = append(r.wishlists[userID], productID)
	return &domain.WishlistEntry{WishlistID: "wl-" + userID, ProductID: productID, AddedAt: time.Now()}, domain.AddAccepted, nil
}

func (r *memWishlistRepository) Normalize(_ context.Context, userID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept, dropped := domain.NormalizeProducts(r.members(userID))
	ids := make([]string, 0, len(kept))
	for _, p := range kept {
		ids = append(ids, p.ID)
	}
	if _, ok := r.wishlists[userID]; ok {
		r.wishlists[userID] = ids
	}
	removed := []string{}
	for _, p := range dropped {
		removed = append(removed, p.ID)
	}
	return removed, nil
}

func (r *memWishlistRepository) ListUsersWithDuplicates(context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for userID := range r.wishlists {
		if _, dropped := domain.NormalizeProducts(r.members(userID)); len(dropped) > 0 {
			out = append(out, userID)
		}
	}
	return out, nil
}

func (r *memWishlistRepository) ListUsersHoldingProduct(context.Context, string) ([]string, error) {
	return nil, nil
}

func (r *memWishlistRepository) ListUsersHoldingCategory(context.Context, string) ([]string, error) {
	return nil, nil
}

// seed puts product ids straight into a wishlist, bypassing the add rules.
func (r *memWishlistRepository) seed(userID string, productIDs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wishlists[userID] = append(r.wishlists[userID], productIDs...)
}

func (r *memWishlistRepository) hasWishlist(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.wishlists[userID]
	return ok
}

// ============================================================================
// Helpers
// ============================================================================

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestCache(t *testing.T) (*cache.WishlistCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return cache.NewWishlistCache(client, time.Minute), mr
}
