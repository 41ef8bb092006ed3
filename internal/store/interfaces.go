package store

import (
	"context"

	"storefront-service/internal/domain"
)

// ListCategoriesParams holds parameters for listing categories.
// A zero Limit returns every category.
type ListCategoriesParams struct {
	Limit  int
	Offset int
}

// CategoryStorer defines the database operations for categories.
type CategoryStorer interface {
	CreateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error)
	GetCategoryByID(ctx context.Context, id int64) (*domain.Category, error)
	GetCategoryBySlug(ctx context.Context, slug string) (*domain.Category, error)
	ListCategories(ctx context.Context, params ListCategoriesParams) ([]domain.Category, int, error) // Returns categories and total count for pagination
	UpdateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error)
	DeleteCategory(ctx context.Context, id int64) error
}

// Accepted values for ListProductsParams.Ordering.
const (
	OrderByName      = "name"
	OrderByNameDesc  = "-name"
	OrderByPrice     = "price"
	OrderByPriceDesc = "-price"
)

// ListProductsParams holds parameters for listing products (pagination, filtering, sorting).
// A zero Limit disables pagination.
type ListProductsParams struct {
	Limit        int
	Offset       int
	Available    *bool   // Filter by availability; nil lists everything
	CategoryID   *int64  // Filter by category id
	CategorySlug *string // Filter by category slug
	ProductIDs   []int64 // For fetching specific products by their IDs
	Ordering     string  // One of name, -name, price, -price; empty means name
}

// ProductStorer defines the database operations for products.
type ProductStorer interface {
	CreateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, id int64) (*domain.Product, error)
	// GetAvailableProduct looks a product up by id and slug, and only returns it when it is available.
	GetAvailableProduct(ctx context.Context, id int64, slug string) (*domain.Product, error)
	ListProducts(ctx context.Context, params ListProductsParams) ([]domain.Product, int, error) // Returns products and total count
	UpdateProduct(ctx context.Context, product *domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
}

// ValidOrdering reports whether s is an accepted product ordering.
func ValidOrdering(s string) bool {
	_, ok := productOrderings[s]
	return ok || s == ""
}

var productOrderings = map[string]string{
	OrderByName:      "p.name ASC",
	OrderByNameDesc:  "p.name DESC",
	OrderByPrice:     "p.price ASC",
	OrderByPriceDesc: "p.price DESC",
}
