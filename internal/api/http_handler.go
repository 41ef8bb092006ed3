package api

import (
	"encoding/json"
	"errors"
	"log"
	"math"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"storefront-service/internal/domain"
	"storefront-service/internal/store"
)

// HandlerConfig holds the settings the HTTP handlers need.
type HandlerConfig struct {
	CartKey     string // Session key the cart is stored under
	PageSize    int    // Default page size for product listings
	MaxPageSize int    // Upper bound for the page_size query parameter
}

// HTTPHandler holds dependencies for HTTP handlers.
type HTTPHandler struct {
	categoryStore store.CategoryStorer
	productStore  store.ProductStorer
	validate      *validator.Validate
	cfg           HandlerConfig
}

// NewHTTPHandler creates a new HTTPHandler with dependencies.
func NewHTTPHandler(cs store.CategoryStorer, ps store.ProductStorer, cfg HandlerConfig) *HTTPHandler {
	if cfg.CartKey == "" {
		cfg.CartKey = "cart"
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 10
	}
	if cfg.MaxPageSize < cfg.PageSize {
		cfg.MaxPageSize = cfg.PageSize
	}
	return &HTTPHandler{
		categoryStore: cs,
		productStore:  ps,
		validate:      newValidator(),
		cfg:           cfg,
	}
}

// newValidator reports field errors under their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// --- Helpers ---

// ErrorResponse defines the structure for JSON error responses.
type ErrorResponse struct {
	Error  string              `json:"error"`
	Fields map[string][]string `json:"fields,omitempty"` // Per-field validation messages
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{Error: message})
}

func respondWithFieldErrors(w http.ResponseWriter, fields map[string][]string) {
	respondWithJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Fields: fields})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	if code == http.StatusNoContent {
		w.WriteHeader(code)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			log.Printf("ERROR: Failed to encode JSON response: %v", err)
		}
	}
}

// fieldErrors turns validator output into messages keyed by JSON field name.
func fieldErrors(err error) map[string][]string {
	fields := make(map[string][]string)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		fields["non_field_errors"] = []string{err.Error()}
		return fields
	}
	for _, fe := range verrs {
		fields[fe.Field()] = append(fields[fe.Field()], fieldMessage(fe))
	}
	return fields
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "min", "gte":
		return "Ensure this value is greater than or equal to " + fe.Param() + "."
	case "gt":
		return "Ensure this value is greater than " + fe.Param() + "."
	case "max":
		return "Ensure this field has no more than " + fe.Param() + " characters."
	default:
		return "Invalid value."
	}
}

// decodeJSON reads the request body into dst, rejecting trailing data.
func decodeJSON(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("body must contain a single JSON object")
	}
	return nil
}

func parseIDParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// --- Response bodies ---

// CategoryResponse is the public representation of a category.
type CategoryResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// ProductResponse is the public representation of a product. Prices are fixed
// two-decimal strings.
type ProductResponse struct {
	ID          int64             `json:"id"`
	Name        string            `json:"name"`
	Slug        string            `json:"slug"`
	Description string            `json:"description"`
	Price       string            `json:"price"`
	Image       string            `json:"image"`
	Available   bool              `json:"available"`
	Category    *CategoryResponse `json:"category"`
}

func toCategoryResponse(c domain.Category) CategoryResponse {
	return CategoryResponse{ID: c.ID, Name: c.Name, Slug: c.Slug}
}

func toProductResponse(p domain.Product) ProductResponse {
	resp := ProductResponse{
		ID:          p.ID,
		Name:        p.Name,
		Slug:        p.Slug,
		Description: p.Description,
		Price:       domain.FormatPrice(p.Price),
		Image:       p.Image,
		Available:   p.Available,
	}
	if p.Category != nil {
		c := toCategoryResponse(*p.Category)
		resp.Category = &c
	}
	return resp
}

// PageResponse is a page of results with links to its neighbours.
type PageResponse[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

const invalidPageMessage = "Invalid page."

// pageParams reads page and page_size from the query string. Page numbers start at 1.
func (h *HTTPHandler) pageParams(q url.Values) (page, size int, ok bool) {
	page = 1
	if s := q.Get("page"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return 0, 0, false
		}
		page = n
	}
	size = h.cfg.PageSize
	if s := q.Get("page_size"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			size = n
		}
	}
	if size > h.cfg.MaxPageSize {
		size = h.cfg.MaxPageSize
	}
	if page > math.MaxInt/size {
		return 0, 0, false
	}
	return page, size, true
}

// orderingOrDefault drops unknown orderings so the listing falls back to name order.
func orderingOrDefault(s string) string {
	if !store.ValidOrdering(s) {
		return ""
	}
	return s
}

// pageLink returns the absolute URL of another page of the current listing.
func pageLink(r *http.Request, page int) *string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	q := r.URL.Query()
	if page == 1 {
		q.Del("page")
	} else {
		q.Set("page", strconv.Itoa(page))
	}
	u := url.URL{Scheme: scheme, Host: r.Host, Path: r.URL.Path, RawQuery: q.Encode()}
	link := u.String()
	return &link
}

// --- Catalog Handlers ---

// ListProducts serves available products, optionally filtered by category slug and
// sorted by name or price. An unknown ordering is ignored.
func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, size, ok := h.pageParams(q)
	if !ok {
		respondWithError(w, http.StatusNotFound, invalidPageMessage)
		return
	}

	available := true
	params := store.ListProductsParams{
		Limit:     size,
		Offset:    (page - 1) * size,
		Available: &available,
		Ordering:  orderingOrDefault(q.Get("ordering")),
	}
	if slug := q.Get("category"); slug != "" {
		params.CategorySlug = &slug
	}

	products, totalCount, err := h.productStore.ListProducts(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: ListProducts store operation failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve products")
		return
	}

	numPages := (totalCount + size - 1) / size
	if numPages == 0 {
		numPages = 1
	}
	if page > numPages {
		respondWithError(w, http.StatusNotFound, invalidPageMessage)
		return
	}

	resp := PageResponse[ProductResponse]{
		Count:   totalCount,
		Results: make([]ProductResponse, 0, len(products)),
	}
	for _, p := range products {
		resp.Results = append(resp.Results, toProductResponse(p))
	}
	if page < numPages {
		resp.Next = pageLink(r, page+1)
	}
	if page > 1 {
		resp.Previous = pageLink(r, page-1)
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// GetProduct serves a single available product.
func (h *HTTPHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
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
	if !product.Available {
		respondWithError(w, http.StatusNotFound, store.ErrProductNotFound.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, toProductResponse(*product))
}

// ListCategories serves every category ordered by name.
func (h *HTTPHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, _, err := h.categoryStore.ListCategories(r.Context(), store.ListCategoriesParams{})
	if err != nil {
		log.Printf("ERROR: ListCategories store operation failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve categories")
		return
	}
	resp := make([]CategoryResponse, 0, len(categories))
	for _, c := range categories {
		resp = append(resp, toCategoryResponse(c))
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// --- Route Registration ---

// RegisterRoutes sets up the public JSON API. Cart routes expect the session
// middleware to run first.
func (h *HTTPHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)           // GET /api/products/
		r.Get("/{productId}/", h.GetProduct) // GET /api/products/{id}/
		r.Get("/{productId}", h.GetProduct)
	})

	r.Get("/api/categories/", h.ListCategories)

	r.Route("/api/cart", func(r chi.Router) {
		r.Get("/", h.GetCart)                       // GET /api/cart/
		r.Post("/", h.AddToCart)                    // POST /api/cart/
		r.Delete("/{productId}/", h.RemoveFromCart) // DELETE /api/cart/{product_id}/
		r.Delete("/{productId}", h.RemoveFromCart)
	})
}
