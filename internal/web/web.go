// Package web serves the server-rendered storefront: the catalog listing,
// product pages and the session cart.
package web

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"storefront-service/internal/cart"
	"storefront-service/internal/domain"
	"storefront-service/internal/session"
	"storefront-service/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

// MaxFormQuantity is the largest quantity the add-to-cart form offers.
const MaxFormQuantity = 20

var errNoSession = errors.New("web: request has no session")

// Config holds the settings of the HTML surface.
type Config struct {
	CartKey  string // Session key the cart is stored under
	PageSize int    // Products per catalog page
}

// Handler renders the storefront pages.
type Handler struct {
	categoryStore store.CategoryStorer
	productStore  store.ProductStorer
	validate      *validator.Validate
	pages         map[string]*template.Template
	cfg           Config
	logger        *log.Logger
}

// NewHandler parses the embedded templates and returns a Handler.
func NewHandler(cs store.CategoryStorer, ps store.ProductStorer, cfg Config, logger *log.Logger) (*Handler, error) {
	if cfg.CartKey == "" {
		cfg.CartKey = "cart"
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 6
	}
	if logger == nil {
		logger = log.Default()
	}

	funcs := template.FuncMap{"price": domain.FormatPrice}
	pages := make(map[string]*template.Template)
	for _, name := range []string{"list.html", "detail.html", "cart.html"} {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/base.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("web: failed to parse template %s: %w", name, err)
		}
		pages[name] = t
	}

	return &Handler{
		categoryStore: cs,
		productStore:  ps,
		validate:      validator.New(),
		pages:         pages,
		cfg:           cfg,
		logger:        logger,
	}, nil
}

// RegisterRoutes sets up the routes for the storefront pages.
// The routes need the session middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.ProductList)
	r.Get("/cart/", h.CartDetail)
	r.Post("/cart/add/{productId}/", h.CartAdd)
	r.Post("/cart/remove/{productId}/", h.CartRemove)
	r.Get("/{categorySlug}/", h.ProductList)
	r.Get("/{productId}/{slug}/", h.ProductDetail)
}

// Layout is the data every page gets: the visitor's cart summary and the
// category navigation.
type Layout struct {
	CartLen    int
	CartTotal  string
	Categories []domain.Category
	Category   *domain.Category // Current category, if any
}

type listPage struct {
	Layout
	Products []domain.Product
	Page     int
	NumPages int
}

func (p listPage) HasPrevious() bool { return p.Page > 1 }
func (p listPage) HasNext() bool     { return p.Page < p.NumPages }
func (p listPage) PreviousPage() int { return p.Page - 1 }
func (p listPage) NextPage() int     { return p.Page + 1 }

type detailPage struct {
	Layout
	Product    *domain.Product
	Quantities []int
}

type cartLine struct {
	cart.Item
	Quantities []int
}

type cartPage struct {
	Layout
	Lines []cartLine
	Total string
}

// cartAddForm is the add-to-cart form posted by the product and cart pages.
type cartAddForm struct {
	Quantity int `validate:"min=1,max=20"`
	Override bool
}

func quantityChoices() []int {
	q := make([]int, MaxFormQuantity)
	for i := range q {
		q[i] = i + 1
	}
	return q
}

func (h *Handler) cartFromRequest(r *http.Request) (*cart.Cart, error) {
	sess := session.FromContext(r.Context())
	if sess == nil {
		return nil, errNoSession
	}
	return cart.New(sess, h.cfg.CartKey)
}

// layout builds the shared page data.
func (h *Handler) layout(r *http.Request) (Layout, *cart.Cart, error) {
	c, err := h.cartFromRequest(r)
	if err != nil {
		return Layout{}, nil, err
	}
	categories, _, err := h.categoryStore.ListCategories(r.Context(), store.ListCategoriesParams{})
	if err != nil {
		return Layout{}, nil, err
	}
	return Layout{
		CartLen:    c.Len(),
		CartTotal:  domain.FormatPrice(c.TotalPrice()),
		Categories: categories,
	}, c, nil
}

func (h *Handler) render(w http.ResponseWriter, page string, data interface{}) {
	var buf bytes.Buffer
	if err := h.pages[page].ExecuteTemplate(&buf, "base", data); err != nil {
		h.logger.Printf("ERROR: Failed to render %s: %v", page, err)
		h.serverError(w)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Printf("WARN: Failed to write %s response: %v", page, err)
	}
}

func (h *Handler) serverError(w http.ResponseWriter) {
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// ProductList renders available products, optionally narrowed to one category.
// A page that is not a number shows the first page; a page out of range shows the last one.
func (h *Handler) ProductList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	layout, _, err := h.layout(r)
	if err != nil {
		h.logger.Printf("ERROR: ProductList failed to build page context: %v", err)
		h.serverError(w)
		return
	}

	available := true
	params := store.ListProductsParams{Limit: h.cfg.PageSize, Available: &available}

	if slug := chi.URLParam(r, "categorySlug"); slug != "" {
		category, err := h.categoryStore.GetCategoryBySlug(ctx, slug)
		if err != nil {
			if errors.Is(err, store.ErrCategoryNotFound) {
				http.NotFound(w, r)
				return
			}
			h.logger.Printf("ERROR: ProductList failed to load category %q: %v", slug, err)
			h.serverError(w)
			return
		}
		layout.Category = category
		params.CategoryID = &category.ID
	}

	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil {
		page = 1
	}

	list := func(page int) ([]domain.Product, int, error) {
		params.Offset = (page - 1) * h.cfg.PageSize
		return h.productStore.ListProducts(ctx, params)
	}

	// Pages below 1 or with an offset beyond int range count with the first page.
	queried := page
	if queried < 1 || queried > math.MaxInt/h.cfg.PageSize {
		queried = 1
	}
	products, total, err := list(queried)
	if err == nil {
		numPages := max((total+h.cfg.PageSize-1)/h.cfg.PageSize, 1)
		if page < 1 || page > numPages {
			page = numPages
			if page != queried {
				products, total, err = list(page)
			}
		}
	}
	if err != nil {
		h.logger.Printf("ERROR: ProductList store operation failed: %v", err)
		h.serverError(w)
		return
	}

	h.render(w, "list.html", listPage{
		Layout:   layout,
		Products: products,
		Page:     page,
		NumPages: max((total+h.cfg.PageSize-1)/h.cfg.PageSize, 1),
	})
}

// ProductDetail renders one available product with its add-to-cart form.
func (h *Handler) ProductDetail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "productId"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	product, err := h.productStore.GetAvailableProduct(r.Context(), id, chi.URLParam(r, "slug"))
	if err != nil {
		if errors.Is(err, store.ErrProductNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Printf("ERROR: ProductDetail failed to load product %d: %v", id, err)
		h.serverError(w)
		return
	}

	layout, _, err := h.layout(r)
	if err != nil {
		h.logger.Printf("ERROR: ProductDetail failed to build page context: %v", err)
		h.serverError(w)
		return
	}
	h.render(w, "detail.html", detailPage{Layout: layout, Product: product, Quantities: quantityChoices()})
}

// CartDetail renders the cart with a quantity form per line.
func (h *Handler) CartDetail(w http.ResponseWriter, r *http.Request) {
	layout, c, err := h.layout(r)
	if err != nil {
		h.logger.Printf("ERROR: CartDetail failed to build page context: %v", err)
		h.serverError(w)
		return
	}

	items, err := c.Items(r.Context(), h.productStore)
	if err != nil {
		h.logger.Printf("ERROR: CartDetail failed to resolve cart items: %v", err)
		h.serverError(w)
		return
	}

	lines := make([]cartLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, cartLine{Item: item, Quantities: quantityChoices()})
	}
	h.render(w, "cart.html", cartPage{Layout: layout, Lines: lines, Total: layout.CartTotal})
}

// productForCart loads the product named in the URL, answering 404 when it does not exist.
func (h *Handler) productForCart(w http.ResponseWriter, r *http.Request) (*domain.Product, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "productId"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return nil, false
	}
	product, err := h.productStore.GetProductByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrProductNotFound) {
			http.NotFound(w, r)
			return nil, false
		}
		h.logger.Printf("ERROR: Failed to load product %d for cart: %v", id, err)
		h.serverError(w)
		return nil, false
	}
	return product, true
}

// CartAdd applies the add-to-cart form. An invalid form leaves the cart as it
// was; either way the visitor is sent to the cart page.
func (h *Handler) CartAdd(w http.ResponseWriter, r *http.Request) {
	product, ok := h.productForCart(w, r)
	if !ok {
		return
	}

	form, valid := h.parseCartAddForm(r)
	if valid {
		c, err := h.cartFromRequest(r)
		if err == nil {
			err = c.Add(product, form.Quantity, form.Override)
		}
		if err != nil {
			h.logger.Printf("ERROR: CartAdd failed for product %d: %v", product.ID, err)
			h.serverError(w)
			return
		}
	}
	http.Redirect(w, r, "/cart/", http.StatusSeeOther)
}

// CartRemove drops a product from the cart and returns to the cart page.
func (h *Handler) CartRemove(w http.ResponseWriter, r *http.Request) {
	product, ok := h.productForCart(w, r)
	if !ok {
		return
	}

	c, err := h.cartFromRequest(r)
	if err == nil {
		err = c.Remove(product.ID)
	}
	if err != nil {
		h.logger.Printf("ERROR: CartRemove failed for product %d: %v", product.ID, err)
		h.serverError(w)
		return
	}
	http.Redirect(w, r, "/cart/", http.StatusSeeOther)
}

func (h *Handler) parseCartAddForm(r *http.Request) (cartAddForm, bool) {
	var form cartAddForm
	if err := r.ParseForm(); err != nil {
		return form, false
	}
	quantity, err := strconv.Atoi(r.PostFormValue("quantity"))
	if err != nil {
		return form, false
	}
	form.Quantity = quantity

	switch v := r.PostFormValue("override"); v {
	case "", "on":
		form.Override = v == "on"
	default:
		override, err := strconv.ParseBool(v)
		if err != nil {
			return form, false
		}
		form.Override = override
	}

	if err := h.validate.Struct(form); err != nil {
		return form, false
	}
	return form, true
}
