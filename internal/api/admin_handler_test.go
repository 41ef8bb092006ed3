package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"storefront-service/internal/domain"
	"storefront-service/internal/store"
)

func TestHTTPHandler_CreateCategory_Success(t *testing.T) {
	mockCatStore := new(MockCategoryStorer)
	server := setupTestChiServer(t, mockCatStore, nil)

	expected := &domain.Category{ID: 1, Name: "Board Games", Slug: "board-games"}

	// Slug is derived from the name when omitted.
	mockCatStore.On("CreateCategory", mock.Anything, &domain.Category{Name: "Board Games", Slug: "board-games"}).
		Return(expected, nil).Once()

	reqBody, _ := json.Marshal(CategoryInput{Name: "Board Games"})
	res, err := http.Post(server.URL+"/api/admin/categories", "application/json", bytes.NewBuffer(reqBody))
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusCreated, res.StatusCode)

	var responseCategory CategoryResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&responseCategory))
	assert.Equal(t, CategoryResponse{ID: 1, Name: "Board Games", Slug: "board-games"}, responseCategory)

	mockCatStore.AssertExpectations(t)
}

func TestHTTPHandler_CreateCategory_InvalidPayload_Validation(t *testing.T) {
	mockCatStore := new(MockCategoryStorer)
	server := setupTestChiServer(t, mockCatStore, nil)

	reqBody, _ := json.Marshal(CategoryInput{Name: ""})
	res, err := http.Post(server.URL+"/api/admin/categories", "application/json", bytes.NewBuffer(reqBody))
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	var errResp ErrorResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&errResp))
	assert.Equal(t, "Validation failed", errResp.Error)
	assert.Equal(t, []string{"This field is required."}, errResp.Fields["name"])

	mockCatStore.AssertNotCalled(t, "CreateCategory", mock.Anything, mock.Anything)
}

func TestHTTPHandler_CreateCategory_InvalidSlug(t *testing.T) {
	mockCatStore := new(MockCategoryStorer)
	server := setupTestChiServer(t, mockCatStore, nil)

	reqBody, _ := json.Marshal(CategoryInput{Name: "Books", Slug: "Not A Slug"})
	res, err := http.Post(server.URL+"/api/admin/categories", "application/json", bytes.NewBuffer(reqBody))
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	var errResp ErrorResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&errResp))
	assert.Contains(t, errResp.Fields, "slug")
}

func TestHTTPHandler_CreateCategory_SlugConflict(t *testing.T) {
	mockCatStore := new(MockCategoryStorer)
	server := setupTestChiServer(t, mockCatStore, nil)

	mockCatStore.On("CreateCategory", mock.Anything, mock.AnythingOfType("*domain.Category")).
		Return(nil, store.ErrCategorySlugExists).Once()

	reqBody, _ := json.Marshal(CategoryInput{Name: "Books", Slug: "books"})
	res, err := http.Post(server.URL+"/api/admin/categories", "application/json", bytes.NewBuffer(reqBody))
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusConflict, res.StatusCode)
	mockCatStore.AssertExpectations(t)
}

func TestHTTPHandler_GetCategoryByID(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		setupMock      func(m *MockCategoryStorer)
		expectedStatus int
	}{
		{
			name: "found",
			path: "/api/admin/categories/1",
			setupMock: func(m *MockCategoryStorer) {
				m.On("GetCategoryByID", mock.Anything, int64(1)).
					Return(&domain.Category{ID: 1, Name: "Books", Slug: "books"}, nil).Once()
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "not found",
			path: "/api/admin/categories/999",
			setupMock: func(m *MockCategoryStorer) {
				m.On("GetCategoryByID", mock.Anything, int64(999)).Return(nil, store.ErrCategoryNotFound).Once()
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "invalid id",
			path:           "/api/admin/categories/abc",
			setupMock:      func(m *MockCategoryStorer) {},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockCatStore := new(MockCategoryStorer)
			tt.setupMock(mockCatStore)
			server := setupTestChiServer(t, mockCatStore, nil)

			res, err := http.Get(server.URL + tt.path)
			require.NoError(t, err)
			defer res.Body.Close()

			assert.Equal(t, tt.expectedStatus, res.StatusCode)
			mockCatStore.AssertExpectations(t)
		})
	}
}

func TestHTTPHandler_AdminListCategories(t *testing.T) {
	mockCatStore := new(MockCategoryStorer)
	server := setupTestChiServer(t, mockCatStore, nil)

	mockCatStore.On("ListCategories", mock.Anything, store.ListCategoriesParams{Limit: 2, Offset: 2}).
		Return([]domain.Category{{ID: 3, Name: "Games", Slug: "games"}}, 3, nil).Once()

	res, err := http.Get(server.URL + "/api/admin/categories?limit=2&page=2")
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)
	var body AdminListResponse[CategoryResponse]
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Len(t, body.Data, 1)
	assert.Equal(t, Pagination{Page: 2, Limit: 2, TotalItems: 3, TotalPages: 2}, body.Pagination)

	mockCatStore.AssertExpectations(t)
}

func TestHTTPHandler_UpdateCategory(t *testing.T) {
	mockCatStore := new(MockCategoryStorer)
	server := setupTestChiServer(t, mockCatStore, nil)

	mockCatStore.On("UpdateCategory", mock.Anything, &domain.Category{ID: 4, Name: "Sci Fi", Slug: "sci-fi"}).
		Return(&domain.Category{ID: 4, Name: "Sci Fi", Slug: "sci-fi"}, nil).Once()
	mockCatStore.On("UpdateCategory", mock.Anything, &domain.Category{ID: 5, Name: "Sci Fi", Slug: "sci-fi"}).
		Return(nil, store.ErrCategoryNotFound).Once()

	for id, want := range map[int64]int{4: http.StatusOK, 5: http.StatusNotFound} {
		req, _ := http.NewRequest(http.MethodPut, fmt.Sprintf("%s/api/admin/categories/%d", server.URL, id),
			strings.NewReader(`{"name":"Sci Fi"}`))
		req.Header.Set("Content-Type", "application/json")
		res, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		res.Body.Close()
		assert.Equal(t, want, res.StatusCode, "category %d", id)
	}

	mockCatStore.AssertExpectations(t)
}

func TestHTTPHandler_DeleteCategory(t *testing.T) {
	mockCatStore := new(MockCategoryStorer)
	server := setupTestChiServer(t, mockCatStore, nil)

	mockCatStore.On("DeleteCategory", mock.Anything, int64(1)).Return(nil).Once()
	mockCatStore.On("DeleteCategory", mock.Anything, int64(2)).Return(store.ErrCategoryNotFound).Once()

	req, _ := http.NewRequest(http.MethodDelete, server.URL+"/api/admin/categories/1", nil)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNoContent, res.StatusCode)

	req, _ = http.NewRequest(http.MethodDelete, server.URL+"/api/admin/categories/2", nil)
	res, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	mockCatStore.AssertExpectations(t)
}

func TestHTTPHandler_CreateProduct(t *testing.T) {
	mockProdStore := new(MockProductStorer)
	server := setupTestChiServer(t, nil, mockProdStore)

	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	created := &domain.Product{
		ID: 11, CategoryID: 2, Category: &domain.Category{ID: 2, Name: "Books", Slug: "books"},
		Name: "Go in Action", Slug: "go-in-action", Price: decimal.RequireFromString("19.9"),
		Available: true, CreatedAt: now, UpdatedAt: now,
	}

	mockProdStore.On("CreateProduct", mock.Anything, mock.MatchedBy(func(p *domain.Product) bool {
		return p.Slug == "go-in-action" && p.Available && p.Price.Equal(decimal.RequireFromString("19.90"))
	})).Return(created, nil).Once()

	res, err := http.Post(server.URL+"/api/admin/products", "application/json",
		strings.NewReader(`{"category_id":2,"name":"Go in Action","price":"19.90"}`))
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusCreated, res.StatusCode)
	var body AdminProductResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, "19.90", body.Price)
	assert.Equal(t, int64(2), body.CategoryID)
	assert.Equal(t, "books", body.Category.Slug)

	mockProdStore.AssertExpectations(t)
}

func TestHTTPHandler_CreateProduct_InvalidPrice(t *testing.T) {
	mockProdStore := new(MockProductStorer)
	server := setupTestChiServer(t, nil, mockProdStore)

	for _, body := range []string{
		`{"category_id":2,"name":"X","price":"-1"}`,
		`{"category_id":2,"name":"X","price":"1.005"}`,
		`{"category_id":2,"name":"X"}`,
	} {
		res, err := http.Post(server.URL+"/api/admin/products", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		var errResp ErrorResponse
		require.NoError(t, json.NewDecoder(res.Body).Decode(&errResp))
		res.Body.Close()

		assert.Equal(t, http.StatusBadRequest, res.StatusCode, body)
		assert.Contains(t, errResp.Fields, "price", body)
	}

	mockProdStore.AssertNotCalled(t, "CreateProduct", mock.Anything, mock.Anything)
}

func TestHTTPHandler_CreateProduct_UnknownCategory(t *testing.T) {
	mockProdStore := new(MockProductStorer)
	server := setupTestChiServer(t, nil, mockProdStore)

	mockProdStore.On("CreateProduct", mock.Anything, mock.AnythingOfType("*domain.Product")).
		Return(nil, store.ErrCategoryNotFound).Once()

	res, err := http.Post(server.URL+"/api/admin/products", "application/json",
		strings.NewReader(`{"category_id":99,"name":"X","price":1}`))
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	mockProdStore.AssertExpectations(t)
}

func TestHTTPHandler_AdminListProducts_IncludesUnavailable(t *testing.T) {
	mockProdStore := new(MockProductStorer)
	server := setupTestChiServer(t, nil, mockProdStore)

	mockProdStore.On("ListProducts", mock.Anything, store.ListProductsParams{Limit: 10, Offset: 0}).
		Return([]domain.Product{
			{ID: 1, Name: "A", Price: decimal.NewFromInt(1), Available: true},
			{ID: 2, Name: "B", Price: decimal.NewFromInt(2), Available: false},
		}, 2, nil).Once()
	mockProdStore.On("ListProducts", mock.Anything, store.ListProductsParams{Limit: 10, Offset: 0, Available: PtrTo(false)}).
		Return([]domain.Product{{ID: 2, Name: "B", Price: decimal.NewFromInt(2), Available: false}}, 1, nil).Once()

	res, err := http.Get(server.URL + "/api/admin/products")
	require.NoError(t, err)
	var body AdminListResponse[AdminProductResponse]
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	res.Body.Close()
	assert.Len(t, body.Data, 2)

	res, err = http.Get(server.URL + "/api/admin/products?available=false")
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	res.Body.Close()
	require.Len(t, body.Data, 1)
	assert.False(t, body.Data[0].Available)

	res, err = http.Get(server.URL + "/api/admin/products?available=maybe")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	mockProdStore.AssertExpectations(t)
}

func TestHTTPHandler_DeleteProduct_NotFound(t *testing.T) {
	mockProdStore := new(MockProductStorer)
	server := setupTestChiServer(t, nil, mockProdStore)

	mockProdStore.On("DeleteProduct", mock.Anything, int64(8)).Return(store.ErrProductNotFound).Once()

	req, _ := http.NewRequest(http.MethodDelete, server.URL+"/api/admin/products/8", nil)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()

	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	mockProdStore.AssertExpectations(t)
}
