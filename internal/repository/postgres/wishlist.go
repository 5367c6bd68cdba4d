package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/buymeagift/giftlist/internal/domain"
	"github.com/buymeagift/giftlist/internal/repository"
	"github.com/buymeagift/giftlist/pkg/database"
	apperrors "github.com/buymeagift/giftlist/pkg/errors"
)

const (
	ensureWishlistSQL = `
		INSERT INTO wishlists (id, user_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO NOTHING`

	lockWishlistSQL = `SELECT id FROM wishlists WHERE user_id = $1 FOR UPDATE`

	insertMemberSQL = `
		INSERT INTO wishlist_products (wishlist_id, product_id, added_at)
		VALUES ($1, $2, $3)`

	// Members come back in insertion order; normalization depends on it.
	listMembersSQL = `
		SELECT p.id, p.name, p.price::text, p.rank, COALESCE(p.currency, ''),
		       p.category_id, p.owner_id, p.created_at, p.updated_at, c.name
		FROM wishlist_products wp
		JOIN products p ON p.id = wp.product_id
		JOIN categories c ON c.id = p.category_id
		WHERE wp.wishlist_id = $1
		ORDER BY wp.added_at, wp.product_id`

	deleteMembersSQL = `DELETE FROM wishlist_products WHERE wishlist_id = $1 AND product_id = ANY($2)`
)

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// WishlistRepository implements repository.WishlistRepository using PostgreSQL.
type WishlistRepository struct {
	db  database.DBTX
	now func() time.Time
}

// NewWishlistRepository creates a new PostgreSQL-backed wishlist repository.
func NewWishlistRepository(db database.DBTX) *WishlistRepository {
	return &WishlistRepository{db: db, now: utcNow}
}

// GetByUser returns the user's wishlist with its products.
func (r *WishlistRepository) GetByUser(ctx context.Context, userID string) (*domain.Wishlist, error) {
	var (
		w         = domain.Wishlist{UserID: userID}
		createdAt time.Time
	)

	err := r.db.QueryRow(ctx,
		`SELECT id, created_at FROM wishlists WHERE user_id = $1`, userID,
	).Scan(&w.ID, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("wishlist", userID)
		}
		return nil, fmt.Errorf("scan wishlist: %w", err)
	}
	w.CreatedAt = &createdAt

	w.Products, err = listMembers(ctx, r.db, w.ID)
	if err != nil {
		return nil, err
	}

	return &w, nil
}

// AddProduct runs the whole add in one transaction. The wishlist row is
// created if missing and then locked, so concurrent adds for the same user
// are serialized and guard always sees the committed membership. When guard
// rejects, the transaction rolls back, which also discards a wishlist row
// created by this call.
func (r *WishlistRepository) AddProduct(
	ctx context.Context,
	userID, productID string,
	guard repository.AddGuard,
) (entry *domain.WishlistEntry, verdict domain.AddVerdict, err error) {
	ctx, end := database.TraceQuery(ctx, "wishlist.add_product", insertMemberSQL)
	defer func() { end(err) }()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := r.now()
	if _, err = tx.Exec(ctx, ensureWishlistSQL, uuid.NewString(), userID, now); err != nil {
		return nil, 0, fmt.Errorf("ensure wishlist: %w", err)
	}

	var wishlistID string
	if err = tx.QueryRow(ctx, lockWishlistSQL, userID).Scan(&wishlistID); err != nil {
		return nil, 0, fmt.Errorf("lock wishlist: %w", err)
	}

	members, err := listMembers(ctx, tx, wishlistID)
	if err != nil {
		return nil, 0, err
	}

	if verdict = guard(members); verdict != domain.AddAccepted {
		return nil, verdict, nil
	}

	if _, err = tx.Exec(ctx, insertMemberSQL, wishlistID, productID, now); err != nil {
		switch {
		case database.IsForeignKeyViolation(err, ""):
			// The product was deleted after it was looked up.
			return nil, domain.AddUnknownProduct, nil
		case database.IsUniqueViolation(err, ""):
			return nil, domain.AddCategoryTaken, nil
		}
		return nil, 0, fmt.Errorf("insert wishlist product: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, 0, fmt.Errorf("commit transaction: %w", err)
	}

	return &domain.WishlistEntry{WishlistID: wishlistID, ProductID: productID, AddedAt: now}, domain.AddAccepted, nil
}

// Normalize drops every product whose category already appeared earlier in
// the wishlist and returns the dropped product ids.
func (r *WishlistRepository) Normalize(ctx context.Context, userID string) (removed []string, err error) {
	ctx, end := database.TraceQuery(ctx, "wishlist.normalize", deleteMembersSQL)
	defer func() { end(err) }()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var wishlistID string
	if err = tx.QueryRow(ctx, lockWishlistSQL, userID).Scan(&wishlistID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("lock wishlist: %w", err)
	}

	members, err := listMembers(ctx, tx, wishlistID)
	if err != nil {
		return nil, err
	}

	_, dropped := domain.NormalizeProducts(members)
	removed = make([]string, 0, len(dropped))
	for _, p := range dropped {
		removed = append(removed, p.ID)
	}
	if len(removed) == 0 {
		return removed, nil
	}

	if _, err = tx.Exec(ctx, deleteMembersSQL, wishlistID, removed); err != nil {
		return nil, fmt.Errorf("delete duplicate wishlist products: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return removed, nil
}

// ListUsersWithDuplicates returns users holding two or more products of one category.
func (r *WishlistRepository) ListUsersWithDuplicates(ctx context.Context) ([]string, error) {
	return r.listUserIDs(ctx, "list users with duplicates", `
		SELECT DISTINCT w.user_id
		FROM wishlists w
		JOIN wishlist_products wp ON wp.wishlist_id = w.id
		JOIN products p ON p.id = wp.product_id
		GROUP BY w.user_id, p.category_id
		HAVING count(*) > 1`)
}

// ListUsersHoldingProduct returns users whose wishlist contains productID.
func (r *WishlistRepository) ListUsersHoldingProduct(ctx context.Context, productID string) ([]string, error) {
	return r.listUserIDs(ctx, "list users holding product", `
		SELECT w.user_id
		FROM wishlists w
		JOIN wishlist_products wp ON wp.wishlist_id = w.id
		WHERE wp.product_id = $1`, productID)
}

// ListUsersHoldingCategory returns users whose wishlist contains a product of categoryID.
func (r *WishlistRepository) ListUsersHoldingCategory(ctx context.Context, categoryID string) ([]string, error) {
	return r.listUserIDs(ctx, "list users holding category", `
		SELECT DISTINCT w.user_id
		FROM wishlists w
		JOIN wishlist_products wp ON wp.wishlist_id = w.id
		JOIN products p ON p.id = wp.product_id
		WHERE p.category_id = $1`, categoryID)
}

func (r *WishlistRepository) listUserIDs(ctx context.Context, op, query string, args ...any) ([]string, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate: %w", op, err)
	}

	return ids, nil
}

func listMembers(ctx context.Context, q queryer, wishlistID string) ([]domain.Product, error) {
	rows, err := q.Query(ctx, listMembersSQL, wishlistID)
	if err != nil {
		return nil, fmt.Errorf("list wishlist products: %w", err)
	}
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wishlist products: %w", err)
	}

	return products, nil
}
