package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/buymeagift/giftlist/internal/domain"
	"github.com/buymeagift/giftlist/internal/service"
	apperrors "github.com/buymeagift/giftlist/pkg/errors"
	"github.com/buymeagift/giftlist/pkg/httputil"
	"github.com/buymeagift/giftlist/pkg/middleware"
	"github.com/buymeagift/giftlist/pkg/pagination"
	"github.com/buymeagift/giftlist/pkg/validator"
)

// ProductHandler handles HTTP requests for product endpoints.
type ProductHandler struct {
	service CatalogService
	logger  *slog.Logger
}

// NewProductHandler creates a new product HTTP handler.
func NewProductHandler(svc CatalogService, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{service: svc, logger: logger}
}

// ProductRequest is the JSON body for one product. Price accepts a JSON
// number or a decimal string.
type ProductRequest struct {
	Name       string           `json:"name" validate:"required,max=128"`
	Price      *decimal.Decimal `json:"price" validate:"required"`
	Rank       *int             `json:"rank" validate:"required"`
	Currency   string           `json:"currency" validate:"omitempty,oneof=USD EUR GBP JPY ETB"`
	CategoryID string           `json:"category_id" validate:"required"`
}

func (req *ProductRequest) toInput() service.ProductInput {
	return service.ProductInput{
		Name:       req.Name,
		Price:      *req.Price,
		Rank:       *req.Rank,
		Currency:   domain.Currency(req.Currency),
		CategoryID: req.CategoryID,
	}
}

// Create handles POST /api/v1/products. The body is a single product object
// or an array of them; an array is created all-or-nothing.
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteValidationError(w, r, fmt.Errorf("read request body: %w", err))
		return
	}

	bulk := bytes.HasPrefix(bytes.TrimSpace(body), []byte("["))

	var reqs []ProductRequest
	if bulk {
		err = json.Unmarshal(body, &reqs)
	} else {
		var one ProductRequest
		err = json.Unmarshal(body, &one)
		reqs = []ProductRequest{one}
	}
	if err != nil {
		httputil.WriteValidationError(w, r, fmt.Errorf("decode request body: %w", err))
		return
	}

	inputs := make([]service.ProductInput, 0, len(reqs))
	for i := range reqs {
		if err := validator.Validate(reqs[i]); err != nil {
			httputil.WriteError(w, r, indexedValidationError(err, i, len(reqs)), h.logger)
			return
		}
		inputs = append(inputs, reqs[i].toInput())
	}

	products, err := h.service.CreateProducts(r.Context(), middleware.UserIDFromContext(r.Context()), inputs)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	if bulk {
		httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: products})
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: products[0]})
}

// List handles GET /api/v1/products
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := pagination.FromRequest(r)

	filter := domain.ProductFilter{
		CategoryID: q.Get("category_id"),
		OwnerID:    q.Get("owner_id"),
		Sort:       domain.ResolveSort(q.Get("created_time"), q.Get("rank")),
		Page:       page.Page,
		PerPage:    page.PerPage,
	}

	products, total, err := h.service.ListProducts(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.NewPaginatedResponse(products, total, page.Page, page.PerPage))
}

// Get handles GET /api/v1/products/{id}
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	product, err := h.service.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: product})
}

// Update handles PUT /api/v1/products/{id}
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	product, err := h.service.UpdateProduct(r.Context(),
		middleware.UserIDFromContext(r.Context()), chi.URLParam(r, "id"), req.toInput())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: product})
}

// Delete handles DELETE /api/v1/products/{id}
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.service.DeleteProduct(r.Context(), middleware.UserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// indexedValidationError prefixes field names with the item index when the
// request carried more than one product.
func indexedValidationError(err error, index, total int) error {
	valErr, ok := err.(*validator.ValidationError)
	if !ok || total <= 1 {
		return err
	}

	fields := make(map[string][]string)
	for name, msgs := range valErr.Fields() {
		fields[fmt.Sprintf("%d.%s", index, name)] = msgs
	}
	return &apperrors.AppError{
		Code:    "VALIDATION_ERROR",
		Message: "request validation failed",
		Fields:  fields,
		Status:  http.StatusBadRequest,
		Err:     apperrors.ErrInvalidInput,
	}
}
