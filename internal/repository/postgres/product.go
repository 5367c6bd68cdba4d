package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/buymeagift/giftlist/internal/domain"
	"github.com/buymeagift/giftlist/pkg/database"
	apperrors "github.com/buymeagift/giftlist/pkg/errors"
)

// productSelect joins the owning category so product views can embed it.
// Price is read as text to keep its exact decimal representation.
const productSelect = `
		SELECT p.id, p.name, p.price::text, p.rank, COALESCE(p.currency, ''),
		       p.category_id, p.owner_id, p.created_at, p.updated_at, c.name
		FROM products p
		JOIN categories c ON c.id = p.category_id`

// ProductRepository implements repository.ProductRepository using PostgreSQL.
type ProductRepository struct {
	db database.DBTX
}

// NewProductRepository creates a new PostgreSQL-backed product repository.
func NewProductRepository(db database.DBTX) *ProductRepository {
	return &ProductRepository{db: db}
}

// Create inserts the products in one transaction. Either all are stored or none.
func (r *ProductRepository) Create(ctx context.Context, products ...*domain.Product) error {
	query := `
		INSERT INTO products (id, name, price, rank, currency, category_id, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i, p := range products {
		_, err := tx.Exec(ctx, query,
			p.ID,
			p.Name,
			p.Price.String(),
			p.Rank,
			nullableCurrency(p.Currency),
			p.CategoryID,
			p.OwnerID,
			p.CreatedAt,
			p.UpdatedAt,
		)
		if err != nil {
			if database.IsForeignKeyViolation(err, "") {
				return apperrors.Validation("category_id", "Invalid pk - object does not exist.", apperrors.ErrNotFound)
			}
			return fmt.Errorf("insert product %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// GetByID retrieves a product by its ID.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	row := r.db.QueryRow(ctx, productSelect+` WHERE p.id = $1`, id)

	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("product", id)
		}
		return nil, err
	}

	return p, nil
}

// List returns products matching the given filter with the total count.
func (r *ProductRepository) List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int, error) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if filter.CategoryID != "" {
		conditions = append(conditions, fmt.Sprintf("p.category_id = $%d", argIndex))
		args = append(args, filter.CategoryID)
		argIndex++
	}

	if filter.OwnerID != "" {
		conditions = append(conditions, fmt.Sprintf("p.owner_id = $%d", argIndex))
		args = append(args, filter.OwnerID)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT p.id, p.name, p.price::text, p.rank, COALESCE(p.currency, ''),
		       p.category_id, p.owner_id, p.created_at, p.updated_at, c.name,
		       count(*) OVER() AS total_count
		FROM products p
		JOIN categories c ON c.id = p.category_id
		%s
		ORDER BY %s
		LIMIT $%d OFFSET $%d`,
		whereClause, orderBy(filter.Sort), argIndex, argIndex+1,
	)

	limit, offset := limitOffset(filter.Page, filter.PerPage)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var (
		products = []domain.Product{}
		total    int
	)
	for rows.Next() {
		p, err := scanProduct(rows, &total)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate product rows: %w", err)
	}

	return products, total, nil
}

// Update modifies an existing product in the database.
func (r *ProductRepository) Update(ctx context.Context, p *domain.Product) error {
	p.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE products
		SET name = $1, price = $2, rank = $3, currency = $4, category_id = $5, updated_at = $6
		WHERE id = $7`

	ct, err := r.db.Exec(ctx, query,
		p.Name,
		p.Price.String(),
		p.Rank,
		nullableCurrency(p.Currency),
		p.CategoryID,
		p.UpdatedAt,
		p.ID,
	)
	if err != nil {
		if database.IsForeignKeyViolation(err, "") {
			return apperrors.Validation("category_id", "Invalid pk - object does not exist.", apperrors.ErrNotFound)
		}
		return fmt.Errorf("update product: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("product", p.ID)
	}

	return nil
}

// Delete removes a product. Wishlist memberships are removed by cascade.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	ct, err := r.db.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("product", id)
	}

	return nil
}

// scanProduct reads one productSelect row. extra receives any trailing columns.
func scanProduct(row pgx.Row, extra ...any) (*domain.Product, error) {
	var (
		p            domain.Product
		price        string
		currency     string
		categoryName string
	)

	dest := []any{
		&p.ID,
		&p.Name,
		&price,
		&p.Rank,
		&currency,
		&p.CategoryID,
		&p.OwnerID,
		&p.CreatedAt,
		&p.UpdatedAt,
		&categoryName,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan product: %w", err)
	}

	amount, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parse product price %q: %w", price, err)
	}
	p.Price = amount
	p.Currency = domain.Currency(currency)
	p.Category = &domain.CategoryRef{ID: p.CategoryID, Name: categoryName}

	return &p, nil
}

// orderBy renders the ORDER BY clause. Descending orders reverse every
// column so they are the exact mirror of the ascending order.
func orderBy(opts domain.SortOptions) string {
	var columns []string
	switch opts.Key {
	case domain.SortRank:
		columns = []string{"p.rank", "p.created_at", "p.id"}
	case domain.SortCreatedTime:
		columns = []string{"p.created_at", "p.id"}
	default:
		return "p.created_at ASC, p.id ASC"
	}

	dir := " ASC"
	if opts.Direction == domain.Descending {
		dir = " DESC"
	}
	for i := range columns {
		columns[i] += dir
	}
	return strings.Join(columns, ", ")
}

func nullableCurrency(c domain.Currency) any {
	if c == "" {
		return nil
	}
	return string(c)
}
