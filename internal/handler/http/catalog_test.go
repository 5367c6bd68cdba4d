package http

import (
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/buymeagift/giftlist/internal/domain"
	"github.com/buymeagift/giftlist/internal/service"
	apperrors "github.com/buymeagift/giftlist/pkg/errors"
	"github.com/buymeagift/giftlist/pkg/httputil"
)

const (
	testCategoryID = "8b0e4f3c-7a8d-4a53-9a57-b8d1b1c1a001"
	testProductID  = "8b0e4f3c-7a8d-4a53-9a57-b8d1b1c1a101"
)

func sampleProduct() *domain.Product {
	return &domain.Product{
		ID:         testProductID,
		Name:       "Kindle",
		Price:      decimal.RequireFromString("89.99"),
		Rank:       1,
		Currency:   domain.CurrencyUSD,
		CategoryID: testCategoryID,
		OwnerID:    testUserID,
	}
}

// ============================================================================
// Categories
// ============================================================================

func TestCreateCategory(t *testing.T) {
	s := newTestServer(t)
	s.catalog.On("CreateCategory", mock.Anything, testUserID, "Books").
		Return(&domain.Category{ID: testCategoryID, Name: "Books", OwnerID: testUserID}, nil)

	rec := s.do(t, http.MethodPost, "/api/v1/categories", map[string]string{"name": "Books"}, true)

	require.Equal(t, http.StatusCreated, rec.Code)
	var c domain.Category
	decodeData(t, rec, &c)
	assert.Equal(t, testCategoryID, c.ID)
}

func TestCreateCategory_RequiresAuth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/categories", map[string]string{"name": "Books"}, false)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListCategories_Paginated(t *testing.T) {
	s := newTestServer(t)
	s.catalog.On("ListCategories", mock.Anything, testUserID, 2, 5).
		Return([]domain.Category{{ID: testCategoryID, Name: "Books"}}, 6, nil)

	rec := s.do(t, http.MethodGet, "/api/v1/categories?owner_id="+testUserID+"&page=2&per_page=5", nil, false)

	require.Equal(t, http.StatusOK, rec.Code)
	var page httputil.PaginatedResponse[domain.Category]
	require.NoError(t, jsonDecode(rec, &page))
	assert.Equal(t, 6, page.TotalCount)
	assert.Equal(t, 2, page.TotalPages)
	assert.False(t, page.HasNext)
	assert.Len(t, page.Data, 1)
}

func TestGetCategory_NotFound(t *testing.T) {
	s := newTestServer(t)
	s.catalog.On("GetCategory", mock.Anything, "nope").Return(nil, apperrors.NotFound("category", "nope"))

	rec := s.do(t, http.MethodGet, "/api/v1/categories/nope", nil, false)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateCategory_Forbidden(t *testing.T) {
	s := newTestServer(t)
	s.catalog.On("UpdateCategory", mock.Anything, testUserID, testCategoryID, "Gadgets").
		Return(nil, apperrors.Forbidden("You do not have permission to perform this action."))

	rec := s.do(t, http.MethodPut, "/api/v1/categories/"+testCategoryID, map[string]string{"name": "Gadgets"}, true)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", decodeResponse(t, rec).Error.Code)
}

func TestDeleteCategory(t *testing.T) {
	s := newTestServer(t)
	s.catalog.On("DeleteCategory", mock.Anything, testUserID, testCategoryID).Return(nil)

	rec := s.do(t, http.MethodDelete, "/api/v1/categories/"+testCategoryID, nil, true)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

// ============================================================================
// Products
// ============================================================================

func TestCreateProduct_SingleObject(t *testing.T) {
	s := newTestServer(t)
	want := []service.ProductInput{{
		Name:       "Kindle",
		Price:      decimal.RequireFromString("89.99"),
		Rank:       1,
		Currency:   domain.CurrencyUSD,
		CategoryID: testCategoryID,
	}}
	s.catalog.On("CreateProducts", mock.Anything, testUserID, mock.MatchedBy(func(in []service.ProductInput) bool {
		return len(in) == 1 && in[0].Name == want[0].Name && in[0].Price.Equal(want[0].Price) &&
			in[0].Rank == 1 && in[0].Currency == domain.CurrencyUSD && in[0].CategoryID == testCategoryID
	})).Return([]*domain.Product{sampleProduct()}, nil)

	rec := s.do(t, http.MethodPost, "/api/v1/products",
		`{"name":"Kindle","price":"89.99","rank":1,"currency":"USD","category_id":"`+testCategoryID+`"}`, true)

	require.Equal(t, http.StatusCreated, rec.Code)
	var p domain.Product
	decodeData(t, rec, &p)
	assert.Equal(t, testProductID, p.ID)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("89.99")))
}

func TestCreateProduct_BulkArray(t *testing.T) {
	s := newTestServer(t)
	second := sampleProduct()
	second.ID = "8b0e4f3c-7a8d-4a53-9a57-b8d1b1c1a102"
	s.catalog.On("CreateProducts", mock.Anything, testUserID, mock.MatchedBy(func(in []service.ProductInput) bool {
		return len(in) == 2
	})).Return([]*domain.Product{sampleProduct(), second}, nil)

	rec := s.do(t, http.MethodPost, "/api/v1/products", `[
		{"name":"Kindle","price":89.99,"rank":1,"category_id":"`+testCategoryID+`"},
		{"name":"Paperwhite","price":129,"rank":2,"category_id":"`+testCategoryID+`"}
	]`, true)

	require.Equal(t, http.StatusCreated, rec.Code)
	var products []domain.Product
	decodeData(t, rec, &products)
	assert.Len(t, products, 2)
}

func TestCreateProduct_BulkValidationIsIndexed(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/products", `[
		{"name":"Kindle","price":89.99,"rank":1,"category_id":"`+testCategoryID+`"},
		{"name":"Paperwhite","price":129,"category_id":"`+testCategoryID+`"}
	]`, true)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, []string{"This field is required."}, resp.Error.Fields["1.rank"])
	s.catalog.AssertNotCalled(t, "CreateProducts", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateProduct_InvalidCurrency(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/products",
		`{"name":"Kindle","price":1,"rank":1,"currency":"XYZ","category_id":"`+testCategoryID+`"}`, true)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []string{`"XYZ" is not a valid choice.`}, decodeResponse(t, rec).Error.Fields["currency"])
}

func TestCreateProduct_UnknownCategory(t *testing.T) {
	s := newTestServer(t)
	s.catalog.On("CreateProducts", mock.Anything, testUserID, mock.Anything).
		Return(nil, apperrors.Validation("category_id", `Invalid pk "x" - object does not exist.`, apperrors.ErrNotFound))

	rec := s.do(t, http.MethodPost, "/api/v1/products",
		`{"name":"Kindle","price":1,"rank":1,"category_id":"x"}`, true)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListProducts_FiltersAndSort(t *testing.T) {
	s := newTestServer(t)
	want := domain.ProductFilter{
		CategoryID: testCategoryID,
		Sort:       domain.SortOptions{Key: domain.SortRank, Direction: domain.Descending},
		Page:       1,
		PerPage:    20,
	}
	s.catalog.On("ListProducts", mock.Anything, want).Return([]domain.Product{*sampleProduct()}, 1, nil)

	rec := s.do(t, http.MethodGet, "/api/v1/products?category_id="+testCategoryID+"&created_time=asc&rank=DESC", nil, false)

	require.Equal(t, http.StatusOK, rec.Code)
	s.catalog.AssertExpectations(t)
}

func TestGetProduct_NotFound(t *testing.T) {
	s := newTestServer(t)
	s.catalog.On("GetProduct", mock.Anything, testProductID).Return(nil, apperrors.NotFound("product", testProductID))

	rec := s.do(t, http.MethodGet, "/api/v1/products/"+testProductID, nil, false)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateProduct_Forbidden(t *testing.T) {
	s := newTestServer(t)
	s.catalog.On("UpdateProduct", mock.Anything, testUserID, testProductID, mock.Anything).
		Return(nil, apperrors.Forbidden("You do not have permission to perform this action."))

	rec := s.do(t, http.MethodPut, "/api/v1/products/"+testProductID,
		`{"name":"Kindle","price":1,"rank":1,"category_id":"`+testCategoryID+`"}`, true)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDeleteProduct(t *testing.T) {
	s := newTestServer(t)
	s.catalog.On("DeleteProduct", mock.Anything, testUserID, testProductID).Return(nil)

	rec := s.do(t, http.MethodDelete, "/api/v1/products/"+testProductID, nil, true)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}
