package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/buymeagift/giftlist/internal/domain"
	"github.com/buymeagift/giftlist/internal/repository"
	apperrors "github.com/buymeagift/giftlist/pkg/errors"
)

const forbiddenMessage = "You do not have permission to perform this action."

// ProductEvents publishes catalog events.
type ProductEvents interface {
	PublishProductCreated(ctx context.Context, product *domain.Product) error
	PublishProductDeleted(ctx context.Context, product *domain.Product) error
}

// WishlistCache caches public wishlist views.
type WishlistCache interface {
	Get(ctx context.Context, userID string) ([]domain.Product, bool, error)
	Generation(ctx context.Context, userID string) (int64, error)
	Set(ctx context.Context, userID string, gen int64, products []domain.Product) error
	Invalidate(ctx context.Context, userIDs ...string) error
}

// CatalogService manages categories and products. Only owners may change or
// delete what they created.
type CatalogService struct {
	categories repository.CategoryRepository
	products   repository.ProductRepository
	wishlists  repository.WishlistRepository
	cache      WishlistCache
	events     ProductEvents
	logger     *slog.Logger
}

// NewCatalogService creates a new catalog service.
func NewCatalogService(
	categories repository.CategoryRepository,
	products repository.ProductRepository,
	wishlists repository.WishlistRepository,
	cache WishlistCache,
	events ProductEvents,
	logger *slog.Logger,
) *CatalogService {
	return &CatalogService{
		categories: categories,
		products:   products,
		wishlists:  wishlists,
		cache:      cache,
		events:     events,
		logger:     logger,
	}
}

// ProductInput holds the writable product fields.
type ProductInput struct {
	Name       string
	Price      decimal.Decimal
	Rank       int
	Currency   domain.Currency
	CategoryID string
}

// --- Categories ---

// CreateCategory creates a category owned by ownerID.
func (s *CatalogService) CreateCategory(ctx context.Context, ownerID, name string) (*domain.Category, error) {
	name, err := validateName(name, "name")
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	category := &domain.Category{
		ID:        uuid.New().String(),
		Name:      name,
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.categories.Create(ctx, category); err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}

	s.logger.InfoContext(ctx, "category created",
		slog.String("category_id", category.ID),
		slog.String("owner_id", ownerID),
	)

	return category, nil
}

// GetCategory returns a category by id.
func (s *CatalogService) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	if !isUUID(id) {
		return nil, apperrors.NotFound("category", id)
	}
	return s.categories.GetByID(ctx, id)
}

// ListCategories returns categories, optionally only those of ownerID.
func (s *CatalogService) ListCategories(ctx context.Context, ownerID string, page, perPage int) ([]domain.Category, int, error) {
	if ownerID != "" && !isUUID(ownerID) {
		return []domain.Category{}, 0, nil
	}
	categories, total, err := s.categories.List(ctx, ownerID, page, perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("list categories: %w", err)
	}
	return categories, total, nil
}

// UpdateCategory renames a category owned by userID.
func (s *CatalogService) UpdateCategory(ctx context.Context, userID, id, name string) (*domain.Category, error) {
	category, err := s.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	if category.OwnerID != userID {
		return nil, apperrors.Forbidden(forbiddenMessage)
	}

	if category.Name, err = validateName(name, "name"); err != nil {
		return nil, err
	}

	if err := s.categories.Update(ctx, category); err != nil {
		return nil, fmt.Errorf("update category: %w", err)
	}

	s.invalidateHolders(ctx, func() ([]string, error) {
		return s.wishlists.ListUsersHoldingCategory(ctx, category.ID)
	})

	return category, nil
}

// DeleteCategory deletes a category owned by userID together with its products.
func (s *CatalogService) DeleteCategory(ctx context.Context, userID, id string) error {
	category, err := s.GetCategory(ctx, id)
	if err != nil {
		return err
	}
	if category.OwnerID != userID {
		return apperrors.Forbidden(forbiddenMessage)
	}

	holders, holdersErr := s.wishlists.ListUsersHoldingCategory(ctx, category.ID)

	if err := s.categories.Delete(ctx, category.ID); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}

	s.invalidateHolders(ctx, func() ([]string, error) { return holders, holdersErr })

	s.logger.InfoContext(ctx, "category deleted",
		slog.String("category_id", category.ID),
	)

	return nil
}

// --- Products ---

// CreateProducts validates and stores one or more products owned by ownerID.
// The batch is all-or-nothing.
func (s *CatalogService) CreateProducts(ctx context.Context, ownerID string, inputs []ProductInput) ([]*domain.Product, error) {
	if len(inputs) == 0 {
		return nil, apperrors.Validation(apperrors.GeneralField, "Expected at least one product.", nil)
	}

	now := time.Now().UTC()
	products := make([]*domain.Product, 0, len(inputs))
	knownCategories := make(map[string]bool)

	for i, in := range inputs {
		field := fieldNamer(i, len(inputs))

		if err := s.validateProductInput(ctx, &in, field, knownCategories); err != nil {
			return nil, err
		}

		products = append(products, &domain.Product{
			ID:         uuid.New().String(),
			Name:       in.Name,
			Price:      in.Price,
			Rank:       in.Rank,
			Currency:   in.Currency,
			CategoryID: in.CategoryID,
			OwnerID:    ownerID,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	if err := s.products.Create(ctx, products...); err != nil {
		return nil, fmt.Errorf("create products: %w", err)
	}

	for _, p := range products {
		if err := s.events.PublishProductCreated(ctx, p); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish product.created event",
				slog.String("product_id", p.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "products created",
		slog.Int("count", len(products)),
		slog.String("owner_id", ownerID),
	)

	return products, nil
}

// GetProduct returns a product by id.
func (s *CatalogService) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	if !isUUID(id) {
		return nil, apperrors.NotFound("product", id)
	}
	return s.products.GetByID(ctx, id)
}

// ListProducts returns a page of products.
func (s *CatalogService) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int, error) {
	if (filter.CategoryID != "" && !isUUID(filter.CategoryID)) || (filter.OwnerID != "" && !isUUID(filter.OwnerID)) {
		return []domain.Product{}, 0, nil
	}
	products, total, err := s.products.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	return products, total, nil
}

// UpdateProduct replaces the writable fields of a product owned by userID.
func (s *CatalogService) UpdateProduct(ctx context.Context, userID, id string, in ProductInput) (*domain.Product, error) {
	product, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if !product.OwnedBy(userID) {
		return nil, apperrors.Forbidden(forbiddenMessage)
	}

	if err := s.validateProductInput(ctx, &in, fieldNamer(0, 1), map[string]bool{}); err != nil {
		return nil, err
	}

	product.Name = in.Name
	product.Price = in.Price
	product.Rank = in.Rank
	product.Currency = in.Currency
	if product.CategoryID != in.CategoryID {
		product.CategoryID = in.CategoryID
		product.Category = nil
	}

	if err := s.products.Update(ctx, product); err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}

	s.invalidateHolders(ctx, func() ([]string, error) {
		return s.wishlists.ListUsersHoldingProduct(ctx, product.ID)
	})

	return product, nil
}

// DeleteProduct deletes a product owned by userID.
func (s *CatalogService) DeleteProduct(ctx context.Context, userID, id string) error {
	product, err := s.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	if !product.OwnedBy(userID) {
		return apperrors.Forbidden(forbiddenMessage)
	}

	holders, holdersErr := s.wishlists.ListUsersHoldingProduct(ctx, product.ID)

	if err := s.products.Delete(ctx, product.ID); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	s.invalidateHolders(ctx, func() ([]string, error) { return holders, holdersErr })

	if err := s.events.PublishProductDeleted(ctx, product); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish product.deleted event",
			slog.String("product_id", product.ID),
			slog.String("error", err.Error()),
		)
	}

	return nil
}

func (s *CatalogService) validateProductInput(ctx context.Context, in *ProductInput, field func(string) string, knownCategories map[string]bool) error {
	name, err := validateName(in.Name, field("name"))
	if err != nil {
		return err
	}
	in.Name = name

	if in.Price.IsNegative() {
		return apperrors.Validation(field("price"), "Ensure this value is greater than or equal to 0.", nil)
	}
	if !in.Currency.Valid() {
		return apperrors.Validation(field("currency"), fmt.Sprintf("%q is not a valid choice.", in.Currency), nil)
	}

	if in.CategoryID == "" {
		return apperrors.Validation(field("category_id"), "This field is required.", nil)
	}
	if knownCategories[in.CategoryID] {
		return nil
	}

	invalidPK := apperrors.Validation(field("category_id"),
		fmt.Sprintf("Invalid pk %q - object does not exist.", in.CategoryID), apperrors.ErrNotFound)
	if !isUUID(in.CategoryID) {
		return invalidPK
	}
	if _, err := s.categories.GetByID(ctx, in.CategoryID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return invalidPK
		}
		return fmt.Errorf("get category: %w", err)
	}
	knownCategories[in.CategoryID] = true

	return nil
}

// invalidateHolders drops cached public views of the users returned by
// lookup. Failures are logged; entries expire on their own.
func (s *CatalogService) invalidateHolders(ctx context.Context, lookup func() ([]string, error)) {
	userIDs, err := lookup()
	if err == nil {
		err = s.cache.Invalidate(ctx, userIDs...)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate wishlist cache",
			slog.String("error", err.Error()),
		)
	}
}

func validateName(name, field string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperrors.Validation(field, "This field is required.", nil)
	}
	if len([]rune(name)) > domain.MaxProductNameLength {
		return "", apperrors.Validation(field,
			fmt.Sprintf("Ensure this field has no more than %d characters.", domain.MaxProductNameLength), nil)
	}
	return name, nil
}

// fieldNamer prefixes field names with the item index in bulk requests.
func fieldNamer(index, total int) func(string) string {
	if total <= 1 {
		return func(f string) string { return f }
	}
	return func(f string) string { return fmt.Sprintf("%d.%s", index, f) }
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
