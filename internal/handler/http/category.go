package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/buymeagift/giftlist/internal/domain"
	"github.com/buymeagift/giftlist/internal/service"
	"github.com/buymeagift/giftlist/pkg/httputil"
	"github.com/buymeagift/giftlist/pkg/middleware"
	"github.com/buymeagift/giftlist/pkg/pagination"
)

// CatalogService is the category and product surface used by the catalog handlers.
type CatalogService interface {
	CreateCategory(ctx context.Context, ownerID, name string) (*domain.Category, error)
	GetCategory(ctx context.Context, id string) (*domain.Category, error)
	ListCategories(ctx context.Context, ownerID string, page, perPage int) ([]domain.Category, int, error)
	UpdateCategory(ctx context.Context, userID, id, name string) (*domain.Category, error)
	DeleteCategory(ctx context.Context, userID, id string) error

	CreateProducts(ctx context.Context, ownerID string, inputs []service.ProductInput) ([]*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int, error)
	UpdateProduct(ctx context.Context, userID, id string, in service.ProductInput) (*domain.Product, error)
	DeleteProduct(ctx context.Context, userID, id string) error
}

// CategoryHandler handles HTTP requests for category endpoints.
type CategoryHandler struct {
	service CatalogService
	logger  *slog.Logger
}

// NewCategoryHandler creates a new category HTTP handler.
func NewCategoryHandler(svc CatalogService, logger *slog.Logger) *CategoryHandler {
	return &CategoryHandler{service: svc, logger: logger}
}

// CategoryRequest is the JSON request body for creating or renaming a category.
type CategoryRequest struct {
	Name string `json:"name" validate:"required,max=128"`
}

// Create handles POST /api/v1/categories
func (h *CategoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	category, err := h.service.CreateCategory(r.Context(), middleware.UserIDFromContext(r.Context()), req.Name)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: category})
}

// List handles GET /api/v1/categories
func (h *CategoryHandler) List(w http.ResponseWriter, r *http.Request) {
	page := pagination.FromRequest(r)

	categories, total, err := h.service.ListCategories(r.Context(), r.URL.Query().Get("owner_id"), page.Page, page.PerPage)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.NewPaginatedResponse(categories, total, page.Page, page.PerPage))
}

// Get handles GET /api/v1/categories/{id}
func (h *CategoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	category, err := h.service.GetCategory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: category})
}

// Update handles PUT /api/v1/categories/{id}
func (h *CategoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	category, err := h.service.UpdateCategory(r.Context(),
		middleware.UserIDFromContext(r.Context()), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: category})
}

// Delete handles DELETE /api/v1/categories/{id}
func (h *CategoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.service.DeleteCategory(r.Context(), middleware.UserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
