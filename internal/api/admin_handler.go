package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"

	"storefront-service/internal/domain"
	"storefront-service/internal/store"
)

// Largest price NUMERIC(10,2) can hold.
var maxPrice = decimal.RequireFromString("99999999.99")

// --- Admin Category Handlers ---

// CategoryInput defines the expected input for creating or updating a category.
type CategoryInput struct {
	Name string `json:"name" validate:"required,max=200"`
	Slug string `json:"slug" validate:"omitempty,max=200"` // Derived from name when empty
}

// normalizeSlug fills in a missing slug and checks a provided one.
func normalizeSlug(name, s string) (string, map[string][]string) {
	if s == "" {
		s = slug.Make(name)
	}
	if !slug.IsSlug(s) {
		return "", map[string][]string{"slug": {"Enter a valid slug consisting of lowercase letters, numbers, or hyphens."}}
	}
	return s, nil
}

func (h *HTTPHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var input CategoryInput
	if err := decodeJSON(r, &input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}

	if err := h.validate.Struct(input); err != nil {
		respondWithFieldErrors(w, fieldErrors(err))
		return
	}
	categorySlug, fields := normalizeSlug(input.Name, input.Slug)
	if fields != nil {
		respondWithFieldErrors(w, fields)
		return
	}

	createdCategory, err := h.categoryStore.CreateCategory(r.Context(), &domain.Category{Name: input.Name, Slug: categorySlug})
	if err != nil {
		if errors.Is(err, store.ErrCategorySlugExists) {
			respondWithError(w, http.StatusConflict, store.ErrCategorySlugExists.Error())
		} else {
			log.Printf("ERROR: CreateCategory store operation failed: %v", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to create category")
		}
		return
	}

	respondWithJSON(w, http.StatusCreated, toCategoryResponse(*createdCategory))
}

// adminPage reads the page/limit pair used by the admin listings.
func adminPage(r *http.Request) (page, limit int) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 10 // Default limit
	}
	if limit > 100 { // Max limit
		limit = 100
	}
	page, err = strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page <= 0 {
		page = 1
	}
	return page, limit
}

// Pagination describes a page of an admin listing.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

// AdminListResponse wraps an admin listing.
type AdminListResponse[T any] struct {
	Data       []T        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

func newPagination(page, limit, totalCount int) Pagination {
	totalPages := 0
	if totalCount > 0 {
		totalPages = (totalCount + limit - 1) / limit
	}
	return Pagination{Page: page, Limit: limit, TotalItems: totalCount, TotalPages: totalPages}
}

func (h *HTTPHandler) AdminListCategories(w http.ResponseWriter, r *http.Request) {
	page, limit := adminPage(r)

	categories, totalCount, err := h.categoryStore.ListCategories(r.Context(), store.ListCategoriesParams{
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		log.Printf("ERROR: ListCategories store operation failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve categories")
		return
	}

	resp := AdminListResponse[CategoryResponse]{
		Data:       make([]CategoryResponse, 0, len(categories)),
		Pagination: newPagination(page, limit, totalCount),
	}
	for _, c := range categories {
		resp.Data = append(resp.Data, toCategoryResponse(c))
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) GetCategoryByID(w http.ResponseWriter, r *http.Request) {
	categoryID, ok := parseIDParam(r, "categoryId")
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid category ID format")
		return
	}

	category, err := h.categoryStore.GetCategoryByID(r.Context(), categoryID)
	if err != nil {
		if errors.Is(err, store.ErrCategoryNotFound) {
			respondWithError(w, http.StatusNotFound, store.ErrCategoryNotFound.Error())
		} else {
			log.Printf("ERROR: GetCategoryByID store operation for ID %d failed: %v", categoryID, err)
			respondWithError(w, http.StatusInternalServerError, "Failed to retrieve category")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, toCategoryResponse(*category))
}

func (h *HTTPHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	categoryID, ok := parseIDParam(r, "categoryId")
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid category ID format")
		return
	}

	var input CategoryInput
	if err := decodeJSON(r, &input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}

	if err := h.validate.Struct(input); err != nil {
		respondWithFieldErrors(w, fieldErrors(err))
		return
	}
	categorySlug, fields := normalizeSlug(input.Name, input.Slug)
	if fields != nil {
		respondWithFieldErrors(w, fields)
		return
	}

	category := &domain.Category{ID: categoryID, Name: input.Name, Slug: categorySlug}
	updatedCategory, err := h.categoryStore.UpdateCategory(r.Context(), category)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrCategoryNotFound):
			respondWithError(w, http.StatusNotFound, store.ErrCategoryNotFound.Error())
		case errors.Is(err, store.ErrCategorySlugExists):
			respondWithError(w, http.StatusConflict, store.ErrCategorySlugExists.Error())
		default:
			log.Printf("ERROR: UpdateCategory store operation for ID %d failed: %v", categoryID, err)
			respondWithError(w, http.StatusInternalServerError, "Failed to update category")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, toCategoryResponse(*updatedCategory))
}

func (h *HTTPHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	categoryID, ok := parseIDParam(r, "categoryId")
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid category ID format")
		return
	}

	err := h.categoryStore.DeleteCategory(r.Context(), categoryID)
	if err != nil {
		if errors.Is(err, store.ErrCategoryNotFound) {
			respondWithError(w, http.StatusNotFound, store.ErrCategoryNotFound.Error())
		} else {
			log.Printf("ERROR: DeleteCategory store operation for ID %d failed: %v", categoryID, err)
			respondWithError(w, http.StatusInternalServerError, "Failed to delete category")
		}
		return
	}

	respondWithJSON(w, http.StatusNoContent, nil)
}

// --- Admin Product Handlers ---

// ProductInput defines the expected input for creating or updating a product.
type ProductInput struct {
	CategoryID  int64            `json:"category_id" validate:"required,gt=0"`
	Name        string           `json:"name" validate:"required,max=200"`
	Slug        string           `json:"slug" validate:"omitempty,max=200"`
	Description string           `json:"description"`
	Image       string           `json:"image" validate:"omitempty,max=500"`
	Price       *decimal.Decimal `json:"price" validate:"required"`
	Available   *bool            `json:"available"` // Pointer to distinguish between not set and false
}

// toProduct checks the parts of the input the validator cannot express.
func (in ProductInput) toProduct(id int64) (*domain.Product, map[string][]string) {
	productSlug, fields := normalizeSlug(in.Name, in.Slug)
	if fields != nil {
		return nil, fields
	}
	switch {
	case in.Price.IsNegative():
		return nil, map[string][]string{"price": {"Ensure this value is greater than or equal to 0."}}
	case !in.Price.Equal(in.Price.Round(domain.PricePlaces)):
		return nil, map[string][]string{"price": {"Ensure that there are no more than 2 decimal places."}}
	case in.Price.GreaterThan(maxPrice):
		return nil, map[string][]string{"price": {"Ensure that there are no more than 10 digits in total."}}
	}

	available := true
	if in.Available != nil {
		available = *in.Available
	}
	return &domain.Product{
		ID:          id,
		CategoryID:  in.CategoryID,
		Name:        in.Name,
		Slug:        productSlug,
		Description: in.Description,
		Image:       in.Image,
		Price:       in.Price.Round(domain.PricePlaces),
		Available:   available,
	}, nil
}

// AdminProductResponse extends the public product with bookkeeping fields.
type AdminProductResponse struct {
	ProductResponse
	CategoryID int64  `json:"category_id"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

func toAdminProductResponse(p domain.Product) AdminProductResponse {
	return AdminProductResponse{
		ProductResponse: toProductResponse(p),
		CategoryID:      p.CategoryID,
		CreatedAt:       p.CreatedAt.UTC().Format(timeLayout),
		UpdatedAt:       p.UpdatedAt.UTC().Format(timeLayout),
	}
}

const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

func (h *HTTPHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var input ProductInput
	if err := decodeJSON(r, &input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}

	if err := h.validate.Struct(input); err != nil {
		respondWithFieldErrors(w, fieldErrors(err))
		return
	}
	product, fields := input.toProduct(0)
	if fields != nil {
		respondWithFieldErrors(w, fields)
		return
	}

	createdProduct, err := h.productStore.CreateProduct(r.Context(), product)
	if err != nil {
		if errors.Is(err, store.ErrCategoryNotFound) { // If category_id FK fails
			respondWithError(w, http.StatusBadRequest, "Invalid category_id: category does not exist.")
		} else {
			log.Printf("ERROR: CreateProduct store operation failed: %v", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to create product")
		}
		return
	}

	respondWithJSON(w, http.StatusCreated, toAdminProductResponse(*createdProduct))
}

// AdminListProducts lists products regardless of availability.
// Supports ?available=true|false, ?category=<slug> and ?ordering=.
func (h *HTTPHandler) AdminListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, limit := adminPage(r)

	params := store.ListProductsParams{
		Limit:    limit,
		Offset:   (page - 1) * limit,
		Ordering: q.Get("ordering"),
	}
	if !store.ValidOrdering(params.Ordering) {
		respondWithError(w, http.StatusBadRequest, "Invalid ordering. Allowed: name, -name, price, -price")
		return
	}
	if s := q.Get("available"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid available value: must be true or false")
			return
		}
		params.Available = &b
	}
	if s := q.Get("category"); s != "" {
		params.CategorySlug = &s
	}

	products, totalCount, err := h.productStore.ListProducts(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: ListProducts store operation failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve products")
		return
	}

	resp := AdminListResponse[AdminProductResponse]{
		Data:       make([]AdminProductResponse, 0, len(products)),
		Pagination: newPagination(page, limit, totalCount),
	}
	for _, p := range products {
		resp.Data = append(resp.Data, toAdminProductResponse(p))
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) AdminGetProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := parseIDParam(r, "productId")
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid product ID format")
		return
	}

	product, err := h.productStore.GetProductByID(r.Context(), productID)
	if err != nil {
		if errors.Is(err, store.ErrProductNotFound) {
			respondWithError(w, http.StatusNotFound, store.ErrProductNotFound.Error())
		} else {
			log.Printf("ERROR: GetProductByID store operation for ID %d failed: %v", productID, err)
			respondWithError(w, http.StatusInternalServerError, "Failed to retrieve product")
		}
		return
	}
	respondWithJSON(w, http.StatusOK, toAdminProductResponse(*product))
}

func (h *HTTPHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := parseIDParam(r, "productId")
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid product ID format")
		return
	}

	var input ProductInput
	if err := decodeJSON(r, &input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}

	if err := h.validate.Struct(input); err != nil {
		respondWithFieldErrors(w, fieldErrors(err))
		return
	}
	product, fields := input.toProduct(productID)
	if fields != nil {
		respondWithFieldErrors(w, fields)
		return
	}

	updatedProduct, err := h.productStore.UpdateProduct(r.Context(), product)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrProductNotFound):
			respondWithError(w, http.StatusNotFound, store.ErrProductNotFound.Error())
		case errors.Is(err, store.ErrCategoryNotFound):
			respondWithError(w, http.StatusBadRequest, "Invalid category_id: category does not exist.")
		default:
			log.Printf("ERROR: UpdateProduct store operation for ID %d failed: %v", productID, err)
			respondWithError(w, http.StatusInternalServerError, "Failed to update product")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, toAdminProductResponse(*updatedProduct))
}

func (h *HTTPHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := parseIDParam(r, "productId")
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid product ID format")
		return
	}

	err := h.productStore.DeleteProduct(r.Context(), productID)
	if err != nil {
		if errors.Is(err, store.ErrProductNotFound) {
			respondWithError(w, http.StatusNotFound, store.ErrProductNotFound.Error())
		} else {
			log.Printf("ERROR: DeleteProduct store operation for ID %d failed: %v", productID, err)
			respondWithError(w, http.StatusInternalServerError, "Failed to delete product")
		}
		return
	}

	respondWithJSON(w, http.StatusNoContent, nil)
}

// RegisterAdminRoutes sets up catalog maintenance endpoints under /api/admin.
func (h *HTTPHandler) RegisterAdminRoutes(r chi.Router) {
	r.Route("/api/admin/categories", func(r chi.Router) {
		r.Post("/", h.CreateCategory)     // POST /api/admin/categories
		r.Get("/", h.AdminListCategories) // GET /api/admin/categories
		r.Route("/{categoryId}", func(r chi.Router) {
			r.Get("/", h.GetCategoryByID)   // GET /api/admin/categories/{categoryId}
			r.Put("/", h.UpdateCategory)    // PUT /api/admin/categories/{categoryId}
			r.Delete("/", h.DeleteCategory) // DELETE /api/admin/categories/{categoryId}
		})
	})

	r.Route("/api/admin/products", func(r chi.Router) {
		r.Post("/", h.CreateProduct)    // POST /api/admin/products
		r.Get("/", h.AdminListProducts) // GET /api/admin/products
		r.Route("/{productId}", func(r chi.Router) {
			r.Get("/", h.AdminGetProduct) // GET /api/admin/products/{productId}
			r.Put("/", h.UpdateProduct)   // PUT /api/admin/products/{productId}
			r.Delete("/", h.DeleteProduct)
		})
	})
}
