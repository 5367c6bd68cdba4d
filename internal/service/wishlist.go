package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/buymeagift/giftlist/internal/domain"
	"github.com/buymeagift/giftlist/internal/repository"
	apperrors "github.com/buymeagift/giftlist/pkg/errors"
)

// Messages returned for rejected adds.
const (
	msgInvalidProductID = "Invalid product id"
	msgCategoryTaken    = "only one product from each category allowed"
)

// WishlistEvents publishes wishlist events.
type WishlistEvents interface {
	PublishProductAdded(ctx context.Context, userID string, entry *domain.WishlistEntry, product *domain.Product) error
	PublishWishlistNormalized(ctx context.Context, userID string, removed []string) error
}

// WishlistService enforces the one-product-per-category rule on wishlists
// and serves their read views.
type WishlistService struct {
	wishlists repository.WishlistRepository
	products  repository.ProductRepository
	cache     WishlistCache
	events    WishlistEvents
	metrics   *WishlistMetrics
	logger    *slog.Logger
}

// NewWishlistService creates a new wishlist service. metrics may be nil.
func NewWishlistService(
	wishlists repository.WishlistRepository,
	products repository.ProductRepository,
	cache WishlistCache,
	events WishlistEvents,
	metrics *WishlistMetrics,
	logger *slog.Logger,
) *WishlistService {
	return &WishlistService{
		wishlists: wishlists,
		products:  products,
		cache:     cache,
		events:    events,
		metrics:   metrics,
		logger:    logger,
	}
}

// AddToWishlist adds productID to the user's wishlist, creating the wishlist
// on first use. The product is resolved before any write, so an unknown id
// never creates a wishlist. The category check then runs again under the
// wishlist lock against the committed membership.
func (s *WishlistService) AddToWishlist(ctx context.Context, userID, productID string) (*domain.WishlistEntry, error) {
	candidate := &domain.AddCandidate{ProductID: strings.TrimSpace(productID)}

	if candidate.ProductID != "" {
		// A malformed id cannot name a product; it gets the same answer as an unknown one.
		if !isUUID(candidate.ProductID) {
			return nil, s.rejectAdd(ctx, userID, candidate, domain.AddUnknownProduct)
		}

		product, err := s.products.GetByID(ctx, candidate.ProductID)
		switch {
		case err == nil:
			candidate.Product = product
		case errors.Is(err, apperrors.ErrNotFound):
		default:
			return nil, fmt.Errorf("get product: %w", err)
		}
	}

	if verdict := domain.EvaluateAdd(candidate, domain.AddPipeline); verdict != domain.AddAccepted {
		return nil, s.rejectAdd(ctx, userID, candidate, verdict)
	}

	entry, verdict, err := s.wishlists.AddProduct(ctx, userID, candidate.ProductID,
		func(members []domain.Product) domain.AddVerdict {
			candidate.Members = members
			return domain.EvaluateAdd(candidate, domain.AddPipeline)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("add product to wishlist: %w", err)
	}
	if verdict != domain.AddAccepted {
		return nil, s.rejectAdd(ctx, userID, candidate, verdict)
	}

	s.metrics.observeAdd(domain.AddAccepted)

	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate wishlist cache",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	if err := s.events.PublishProductAdded(ctx, userID, entry, candidate.Product); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish wishlist.product_added event",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "product added to wishlist",
		slog.String("user_id", userID),
		slog.String("wishlist_id", entry.WishlistID),
		slog.String("product_id", entry.ProductID),
	)

	return entry, nil
}

func (s *WishlistService) rejectAdd(ctx context.Context, userID string, c *domain.AddCandidate, verdict domain.AddVerdict) error {
	s.metrics.observeAdd(verdict)

	s.logger.InfoContext(ctx, "wishlist add rejected",
		slog.String("user_id", userID),
		slog.String("product_id", c.ProductID),
		slog.String("verdict", verdict.String()),
	)

	switch verdict {
	case domain.AddMissingProductID:
		return apperrors.Validation("product_id", "This field is required.", nil)
	case domain.AddUnknownProduct:
		return apperrors.Validation("product_id", msgInvalidProductID, apperrors.ErrNotFound)
	case domain.AddCategoryTaken:
		return apperrors.Validation(apperrors.GeneralField, msgCategoryTaken, apperrors.ErrConflict)
	default:
		return apperrors.Internal(fmt.Errorf("unexpected add verdict %d", verdict))
	}
}

// GetWishlist returns the user's wishlist, or an empty one if none exists yet.
func (s *WishlistService) GetWishlist(ctx context.Context, userID string) (*domain.Wishlist, error) {
	w, err := s.wishlists.GetByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return domain.EmptyWishlist(userID), nil
		}
		return nil, fmt.Errorf("get wishlist: %w", err)
	}
	return w, nil
}

// ListWishlistProducts is the public view of a user's wishlist. Unknown or
// malformed user ids yield an empty list.
func (s *WishlistService) ListWishlistProducts(ctx context.Context, userID string, sort domain.SortOptions) ([]domain.Product, error) {
	if !isUUID(userID) {
		return []domain.Product{}, nil
	}

	products, hit, err := s.cache.Get(ctx, userID)
	if err != nil {
		s.logger.WarnContext(ctx, "wishlist cache read failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	if !hit {
		gen, genErr := s.cache.Generation(ctx, userID)
		if genErr != nil {
			s.logger.WarnContext(ctx, "wishlist cache generation read failed",
				slog.String("user_id", userID),
				slog.String("error", genErr.Error()),
			)
		}

		w, err := s.wishlists.GetByUser(ctx, userID)
		switch {
		case err == nil:
			products = w.Products
		case errors.Is(err, apperrors.ErrNotFound):
			products = []domain.Product{}
		default:
			return nil, fmt.Errorf("get wishlist: %w", err)
		}

		if genErr != nil {
			return domain.SortProducts(products, sort), nil
		}
		if err := s.cache.Set(ctx, userID, gen, products); err != nil {
			s.logger.WarnContext(ctx, "wishlist cache write failed",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
	}

	return domain.SortProducts(products, sort), nil
}

// NormalizeWishlist removes category duplicates from the user's wishlist and
// returns the removed product ids.
func (s *WishlistService) NormalizeWishlist(ctx context.Context, userID string) ([]string, error) {
	removed, err := s.wishlists.Normalize(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("normalize wishlist: %w", err)
	}
	if len(removed) == 0 {
		return removed, nil
	}

	s.metrics.observeNormalized(len(removed))

	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate wishlist cache",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	if err := s.events.PublishWishlistNormalized(ctx, userID, removed); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish wishlist.normalized event",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "wishlist normalized",
		slog.String("user_id", userID),
		slog.Int("removed", len(removed)),
	)

	return removed, nil
}

// NormalizeAll normalizes every wishlist that holds a category duplicate and
// returns how many wishlists changed. It keeps going past per-user failures.
func (s *WishlistService) NormalizeAll(ctx context.Context) (int, error) {
	userIDs, err := s.wishlists.ListUsersWithDuplicates(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users with duplicates: %w", err)
	}

	var (
		changed int
		errs    []error
	)
	for _, userID := range userIDs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		removed, err := s.NormalizeWishlist(ctx, userID)
		if err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", userID, err))
			continue
		}
		if len(removed) > 0 {
			changed++
		}
	}

	return changed, errors.Join(errs...)
}
