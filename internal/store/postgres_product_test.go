package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-service/internal/domain"
)

var productRowColumns = []string{
	"id", "category_id", "category_name", "category_slug", "name", "slug", "description", "image",
	"price", "available", "created_at", "updated_at",
}

func productRow(rows *sqlmock.Rows, id int64, name, price string, now time.Time) *sqlmock.Rows {
	return rows.AddRow(id, int64(1), "Books", "books", name, "slug-"+name, "desc", "", price, true, now, now)
}

func TestPostgresStore_CreateProduct(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	now := time.Now().Truncate(time.Millisecond)
	toCreate := &domain.Product{
		CategoryID: 1,
		Name:       "Go Book",
		Slug:       "go-book",
		Price:      decimal.RequireFromString("10.00"),
		Available:  true,
	}

	query := regexp.QuoteMeta(`INSERT INTO products (category_id, name, slug, description, image, price, available)`)
	rows := sqlmock.NewRows(productRowColumns).
		AddRow(int64(7), int64(1), "Books", "books", "Go Book", "go-book", "", "", "10.00", true, now, now)

	mock.ExpectQuery(query).
		WithArgs(int64(1), "Go Book", "go-book", "", "", sqlmock.AnyArg(), true).
		WillReturnRows(rows)

	created, err := store.CreateProduct(context.Background(), toCreate)

	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, int64(7), created.ID)
	assert.Equal(t, "10.00", domain.FormatPrice(created.Price))
	require.NotNil(t, created.Category)
	assert.Equal(t, domain.Category{ID: 1, Name: "Books", Slug: "books"}, *created.Category)
	assert.WithinDuration(t, now, created.CreatedAt, time.Second)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateProduct_UnknownCategory(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO products`)).
		WillReturnError(&pq.Error{Code: "23503", Constraint: "products_category_id_fkey"})

	_, err := store.CreateProduct(context.Background(), &domain.Product{CategoryID: 42, Name: "x", Slug: "x"})
	assert.True(t, errors.Is(err, ErrCategoryNotFound), "Error should be ErrCategoryNotFound")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetProductByID(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	now := time.Now()
	query := regexp.QuoteMeta(`FROM products p JOIN categories c ON c.id = p.category_id WHERE p.id = $1;`)

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(int64(3)).
			WillReturnRows(productRow(sqlmock.NewRows(productRowColumns), 3, "Widget", "4.50", now))

		product, err := store.GetProductByID(context.Background(), 3)
		require.NoError(t, err)
		assert.Equal(t, "Widget", product.Name)
		assert.True(t, decimal.RequireFromString("4.5").Equal(product.Price))
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(int64(4)).WillReturnError(sql.ErrNoRows)

		_, err := store.GetProductByID(context.Background(), 4)
		assert.ErrorIs(t, err, ErrProductNotFound)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetAvailableProduct(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	query := regexp.QuoteMeta(`WHERE p.id = $1 AND p.slug = $2 AND p.available = TRUE;`)
	mock.ExpectQuery(query).WithArgs(int64(3), "hidden").WillReturnError(sql.ErrNoRows)

	_, err := store.GetAvailableProduct(context.Background(), 3, "hidden")
	assert.ErrorIs(t, err, ErrProductNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListProducts_FiltersAndOrdering(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	now := time.Now()
	params := ListProductsParams{
		Limit:        2,
		Offset:       2,
		Available:    PtrTo(true),
		CategorySlug: PtrTo("books"),
		Ordering:     OrderByPriceDesc,
	}

	countQuery := regexp.QuoteMeta(`SELECT COUNT(*) FROM products p JOIN categories c ON c.id = p.category_id WHERE p.available = $1 AND c.slug = $2`)
	dataQuery := regexp.QuoteMeta(`WHERE p.available = $1 AND c.slug = $2 ORDER BY p.price DESC, p.id ASC LIMIT $3 OFFSET $4`)

	mock.ExpectQuery(countQuery).WithArgs(true, "books").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	rows := sqlmock.NewRows(productRowColumns)
	productRow(rows, 9, "Cheap", "1.00", now)
	mock.ExpectQuery(dataQuery).WithArgs(true, "books", 2, 2).WillReturnRows(rows)

	products, total, err := store.ListProducts(context.Background(), params)

	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, products, 1)
	assert.Equal(t, int64(9), products[0].ID)
	assert.Equal(t, "books", products[0].Category.Slug)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListProducts_ByIDs(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	now := time.Now()
	countQuery := regexp.QuoteMeta(`WHERE p.id = ANY($1)`)
	dataQuery := regexp.QuoteMeta(`WHERE p.id = ANY($1) ORDER BY p.name ASC, p.id ASC`) + `$`

	mock.ExpectQuery(countQuery).WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	rows := sqlmock.NewRows(productRowColumns)
	productRow(rows, 1, "A", "1.00", now)
	productRow(rows, 2, "B", "2.00", now)
	mock.ExpectQuery(dataQuery).WithArgs(sqlmock.AnyArg()).WillReturnRows(rows)

	products, total, err := store.ListProducts(context.Background(), ListProductsParams{ProductIDs: []int64{2, 1}})

	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, products, 2)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListProducts_InvalidOrdering(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	_, _, err := store.ListProducts(context.Background(), ListProductsParams{Ordering: "stock"})
	assert.ErrorIs(t, err, ErrInvalidOrdering)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateProduct_NotFound(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	query := regexp.QuoteMeta(`UPDATE products`)
	mock.ExpectQuery(query).
		WithArgs(int64(1), "Go Book", "go-book", "", "", sqlmock.AnyArg(), false, int64(99)).
		WillReturnError(sql.ErrNoRows)

	_, err := store.UpdateProduct(context.Background(), &domain.Product{
		ID: 99, CategoryID: 1, Name: "Go Book", Slug: "go-book", Price: decimal.NewFromInt(3),
	})
	assert.ErrorIs(t, err, ErrProductNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteProduct(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	query := regexp.QuoteMeta(`DELETE FROM products WHERE id = $1;`)
	mock.ExpectExec(query).WithArgs(int64(5)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).WithArgs(int64(6)).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.DeleteProduct(context.Background(), 5))
	assert.ErrorIs(t, store.DeleteProduct(context.Background(), 6), ErrProductNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}
