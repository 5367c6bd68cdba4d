package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/buymeagift/giftlist/internal/domain"
	"github.com/buymeagift/giftlist/pkg/httputil"
	"github.com/buymeagift/giftlist/pkg/middleware"
)

// WishlistService is the wishlist surface used by the wishlist handlers.
type WishlistService interface {
	AddToWishlist(ctx context.Context, userID, productID string) (*domain.WishlistEntry, error)
	GetWishlist(ctx context.Context, userID string) (*domain.Wishlist, error)
	ListWishlistProducts(ctx context.Context, userID string, sort domain.SortOptions) ([]domain.Product, error)
	NormalizeWishlist(ctx context.Context, userID string) ([]string, error)
}

// WishlistHandler handles HTTP requests for wishlist endpoints.
type WishlistHandler struct {
	service WishlistService
	logger  *slog.Logger
}

// NewWishlistHandler creates a new wishlist HTTP handler.
func NewWishlistHandler(svc WishlistService, logger *slog.Logger) *WishlistHandler {
	return &WishlistHandler{service: svc, logger: logger}
}

// AddRequest is the JSON request body for adding a product. The product id is
// checked by the service so that missing and unknown ids share one message format.
type AddRequest struct {
	ProductID string `json:"product_id"`
}

// AddResponse echoes the product that was added.
type AddResponse struct {
	ProductID string `json:"product_id"`
}

// NormalizeResponse lists the product ids removed by a normalization.
type NormalizeResponse struct {
	Removed []string `json:"removed"`
}

// Get handles GET /api/v1/wishlist
func (h *WishlistHandler) Get(w http.ResponseWriter, r *http.Request) {
	wishlist, err := h.service.GetWishlist(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: wishlist})
}

// Add handles POST /api/v1/wishlist/add
func (h *WishlistHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req AddRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	entry, err := h.service.AddToWishlist(r.Context(), middleware.UserIDFromContext(r.Context()), req.ProductID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: AddResponse{ProductID: entry.ProductID}})
}

// ListPublic handles GET /api/v1/wishlist/{user_id}. Anyone may read any
// user's wishlist; unknown users have an empty one.
func (h *WishlistHandler) ListPublic(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sort := domain.ResolveSort(q.Get("created_time"), q.Get("rank"))

	products, err := h.service.ListWishlistProducts(r.Context(), chi.URLParam(r, "user_id"), sort)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: products})
}

// Normalize handles POST /api/v1/wishlist/normalize
func (h *WishlistHandler) Normalize(w http.ResponseWriter, r *http.Request) {
	removed, err := h.service.NormalizeWishlist(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if removed == nil {
		removed = []string{}
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: NormalizeResponse{Removed: removed}})
}
