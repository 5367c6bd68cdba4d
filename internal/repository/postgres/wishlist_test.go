package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buymeagift/giftlist/internal/domain"
	apperrors "github.com/buymeagift/giftlist/pkg/errors"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newWishlistTestRepo(t *testing.T) (*WishlistRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock := newMockPool(t)
	repo := NewWishlistRepository(mock)
	repo.now = func() time.Time { return fixedNow }
	return repo, mock
}

func memberColumns() []string {
	return []string{
		"id", "name", "price", "rank", "currency",
		"category_id", "owner_id", "created_at", "updated_at", "category_name",
	}
}

// memberRows builds wishlist rows where each pair is product id, category id.
func memberRows(pairs ...string) *pgxmock.Rows {
	rows := pgxmock.NewRows(memberColumns())
	for i := 0; i < len(pairs); i += 2 {
		rows.AddRow(pairs[i], "Product "+pairs[i], "10.00", i, "USD",
			pairs[i+1], "owner-1", fixedNow, fixedNow, "Category "+pairs[i+1])
	}
	return rows
}

func acceptAll([]domain.Product) domain.AddVerdict { return domain.AddAccepted }

// ---------------------------------------------------------------------------
// AddProduct
// ---------------------------------------------------------------------------

func TestWishlistRepository_AddProduct_Accepted(t *testing.T) {
	repo, mock := newWishlistTestRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO wishlists").
		WithArgs(pgxmock.AnyArg(), "user-1", fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT id FROM wishlists WHERE user_id = .+ FOR UPDATE").
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("wl-1"))
	mock.ExpectQuery("FROM wishlist_products wp").
		WithArgs("wl-1").
		WillReturnRows(memberRows())
	mock.ExpectExec("INSERT INTO wishlist_products").
		WithArgs("wl-1", "prod-1", fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	entry, verdict, err := repo.AddProduct(context.Background(), "user-1", "prod-1", acceptAll)
	require.NoError(t, err)
	assert.Equal(t, domain.AddAccepted, verdict)
	assert.Equal(t, "wl-1", entry.WishlistID)
	assert.Equal(t, "prod-1", entry.ProductID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWishlistRepository_AddProduct_GuardSeesMembersAndRejects(t *testing.T) {
	repo, mock := newWishlistTestRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO wishlists").
		WithArgs(pgxmock.AnyArg(), "user-1", fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery("SELECT id FROM wishlists WHERE user_id = .+ FOR UPDATE").
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("wl-1"))
	mock.ExpectQuery("FROM wishlist_products wp").
		WithArgs("wl-1").
		WillReturnRows(memberRows("p1", "c1"))
	mock.ExpectRollback()

	var seen []domain.Product
	guard := func(members []domain.Product) domain.AddVerdict {
		seen = members
		return domain.AddCategoryTaken
	}

	entry, verdict, err := repo.AddProduct(context.Background(), "user-1", "p2", guard)
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.Equal(t, domain.AddCategoryTaken, verdict)
	require.Len(t, seen, 1)
	assert.Equal(t, "c1", seen[0].CategoryID)
	assert.Equal(t, "10", seen[0].Price.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWishlistRepository_AddProduct_ProductVanished(t *testing.T) {
	repo, mock := newWishlistTestRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO wishlists").
		WithArgs(pgxmock.AnyArg(), "user-1", fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT id FROM wishlists WHERE user_id = .+ FOR UPDATE").
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("wl-1"))
	mock.ExpectQuery("FROM wishlist_products wp").
		WithArgs("wl-1").
		WillReturnRows(memberRows())
	mock.ExpectExec("INSERT INTO wishlist_products").
		WithArgs("wl-1", "gone", fixedNow).
		WillReturnError(&pgconn.PgError{Code: "23503"})
	mock.ExpectRollback()

	_, verdict, err := repo.AddProduct(context.Background(), "user-1", "gone", acceptAll)
	require.NoError(t, err)
	assert.Equal(t, domain.AddUnknownProduct, verdict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWishlistRepository_AddProduct_BeginError(t *testing.T) {
	repo, mock := newWishlistTestRepo(t)

	mock.ExpectBegin().WillReturnError(errors.New("pool exhausted"))

	_, _, err := repo.AddProduct(context.Background(), "user-1", "prod-1", acceptAll)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin transaction")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// GetByUser
// ---------------------------------------------------------------------------

func TestWishlistRepository_GetByUser(t *testing.T) {
	repo, mock := newWishlistTestRepo(t)

	mock.ExpectQuery("SELECT id, created_at FROM wishlists WHERE user_id =").
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow("wl-1", fixedNow))
	mock.ExpectQuery("FROM wishlist_products wp").
		WithArgs("wl-1").
		WillReturnRows(memberRows("p1", "c1", "p2", "c2"))

	w, err := repo.GetByUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "wl-1", w.ID)
	assert.Equal(t, []string{"p1", "p2"}, []string{w.Products[0].ID, w.Products[1].ID})
	assert.Equal(t, domain.CurrencyUSD, w.Products[0].Currency)
	assert.Equal(t, "Category c1", w.Products[0].Category.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWishlistRepository_GetByUser_NotFound(t *testing.T) {
	repo, mock := newWishlistTestRepo(t)

	mock.ExpectQuery("SELECT id, created_at FROM wishlists").
		WithArgs("user-2").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByUser(context.Background(), "user-2")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// Normalize
// ---------------------------------------------------------------------------

func TestWishlistRepository_Normalize_RemovesLaterDuplicates(t *testing.T) {
	repo, mock := newWishlistTestRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM wishlists WHERE user_id = .+ FOR UPDATE").
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("wl-1"))
	mock.ExpectQuery("FROM wishlist_products wp").
		WithArgs("wl-1").
		WillReturnRows(memberRows("p1", "c1", "p2", "c1", "p3", "c2"))
	mock.ExpectExec("DELETE FROM wishlist_products").
		WithArgs("wl-1", []string{"p2"}).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	removed, err := repo.Normalize(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWishlistRepository_Normalize_NothingToRemove(t *testing.T) {
	repo, mock := newWishlistTestRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM wishlists WHERE user_id = .+ FOR UPDATE").
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("wl-1"))
	mock.ExpectQuery("FROM wishlist_products wp").
		WithArgs("wl-1").
		WillReturnRows(memberRows("p1", "c1", "p3", "c2"))
	mock.ExpectRollback()

	removed, err := repo.Normalize(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWishlistRepository_Normalize_NoWishlist(t *testing.T) {
	repo, mock := newWishlistTestRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM wishlists WHERE user_id = .+ FOR UPDATE").
		WithArgs("user-9").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	removed, err := repo.Normalize(context.Background(), "user-9")
	require.NoError(t, err)
	assert.Empty(t, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// User lookups
// ---------------------------------------------------------------------------

func TestWishlistRepository_ListUsersWithDuplicates(t *testing.T) {
	repo, mock := newWishlistTestRepo(t)

	mock.ExpectQuery("HAVING count").
		WillReturnRows(pgxmock.NewRows([]string{"user_id"}).AddRow("user-1").AddRow("user-3"))

	ids, err := repo.ListUsersWithDuplicates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"user-1", "user-3"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWishlistRepository_ListUsersHoldingProduct_Error(t *testing.T) {
	repo, mock := newWishlistTestRepo(t)

	mock.ExpectQuery("WHERE wp.product_id =").
		WithArgs("prod-1").
		WillReturnError(errors.New("boom"))

	_, err := repo.ListUsersHoldingProduct(context.Background(), "prod-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list users holding product")
}

func TestWishlistRepository_ListUsersHoldingCategory_Empty(t *testing.T) {
	repo, mock := newWishlistTestRepo(t)

	mock.ExpectQuery("WHERE p.category_id =").
		WithArgs("cat-1").
		WillReturnRows(pgxmock.NewRows([]string{"user_id"}))

	ids, err := repo.ListUsersHoldingCategory(context.Background(), "cat-1")
	require.NoError(t, err)
	assert.Equal(t, []string{}, ids)
}
