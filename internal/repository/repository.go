package repository

import (
	"context"
	"time"

	"github.com/buymeagift/giftlist/internal/domain"
)

// UserRepository defines the interface for user persistence operations.
type UserRepository interface {
	// Create inserts a new user into the store.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by their unique identifier.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByEmail retrieves a user by their email address.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// UpdatePassword replaces the stored password hash.
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// RefreshTokenRepository defines the interface for refresh token persistence operations.
type RefreshTokenRepository interface {
	// Create stores a new refresh token hash.
	Create(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error

	// GetByHash retrieves a refresh token record by its hash.
	GetByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)

	// RevokeByUserID revokes all refresh tokens for the given user.
	RevokeByUserID(ctx context.Context, userID string) error

	// Revoke revokes a live refresh token by its hash. It returns ErrNotFound
	// when no live token matched, including when a concurrent call won.
	Revoke(ctx context.Context, tokenHash string) error
}

// CategoryRepository persists categories.
type CategoryRepository interface {
	Create(ctx context.Context, category *domain.Category) error
	GetByID(ctx context.Context, id string) (*domain.Category, error)
	// List returns categories, optionally restricted to one owner.
	List(ctx context.Context, ownerID string, page, perPage int) ([]domain.Category, int, error)
	Update(ctx context.Context, category *domain.Category) error
	// Delete removes the category and, by cascade, its products.
	Delete(ctx context.Context, id string) error
}

// ProductRepository persists products.
type ProductRepository interface {
	// Create inserts all products in a single transaction.
	Create(ctx context.Context, products ...*domain.Product) error
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int, error)
	Update(ctx context.Context, product *domain.Product) error
	Delete(ctx context.Context, id string) error
}

// AddGuard decides an add while the wishlist is locked. members is the
// current wishlist content in insertion order.
type AddGuard func(members []domain.Product) domain.AddVerdict

// WishlistRepository persists wishlists and their membership rows.
type WishlistRepository interface {
	// GetByUser returns the wishlist with its products in insertion order,
	// or a NotFound error when the user has none.
	GetByUser(ctx context.Context, userID string) (*domain.Wishlist, error)

	// AddProduct creates the wishlist if needed, locks it, evaluates guard
	// against the current members and inserts the product when accepted.
	// Any rejected verdict leaves no trace, including the wishlist row.
	AddProduct(ctx context.Context, userID, productID string, guard AddGuard) (*domain.WishlistEntry, domain.AddVerdict, error)

	// Normalize removes all but the first product per category under the
	// wishlist lock and returns the removed product ids.
	Normalize(ctx context.Context, userID string) ([]string, error)

	// ListUsersWithDuplicates returns users whose wishlist holds more than one
	// product from some category.
	ListUsersWithDuplicates(ctx context.Context) ([]string, error)

	// ListUsersHoldingProduct returns users whose wishlist contains productID.
	ListUsersHoldingProduct(ctx context.Context, productID string) ([]string, error)

	// ListUsersHoldingCategory returns users whose wishlist contains any
	// product of categoryID.
	ListUsersHoldingCategory(ctx context.Context, categoryID string) ([]string, error)
}
