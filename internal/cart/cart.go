// Package cart implements the per-visitor shopping cart kept in the session.
//
// A cart maps product ids to a quantity and the unit price seen when the product
// was first added. Every mutation is written straight back to the session.
package cart

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"storefront-service/internal/domain"
	"storefront-service/internal/store"
)

var (
	ErrInvalidQuantity = errors.New("cart: quantity must be at least 1")
	ErrInvalidProduct  = errors.New("cart: product must have an id and a non-negative price")
	ErrCorrupt         = errors.New("cart: stored cart is corrupt")
)

// Storage is the slice of the session the cart needs.
type Storage interface {
	Get(key string, dst any) (bool, error)
	Set(key string, v any) error
}

// ProductLookup resolves cart entries to catalog products.
type ProductLookup interface {
	ListProducts(ctx context.Context, params store.ListProductsParams) ([]domain.Product, int, error)
}

// Item is a cart line enriched with its catalog product.
type Item struct {
	Product    domain.Product
	Price      decimal.Decimal
	Quantity   int
	TotalPrice decimal.Decimal
}

type entry struct {
	Quantity int
	Price    decimal.Decimal
}

// Cart is bound to one session for the duration of a request.
type Cart struct {
	storage Storage
	key     string
	entries entries
}

// New loads the cart stored under key, or creates and stores an empty one.
func New(storage Storage, key string) (*Cart, error) {
	c := &Cart{storage: storage, key: key}
	found, err := storage.Get(key, &c.entries)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if !found {
		c.entries = entries{}
		if err := c.save(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Add puts quantity units of product in the cart. With override the stored quantity
// is replaced, otherwise it is increased. The unit price is captured only when the
// product enters the cart.
func (c *Cart) Add(product *domain.Product, quantity int, override bool) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	if product == nil || product.ID <= 0 || product.Price.IsNegative() {
		return ErrInvalidProduct
	}

	id := strconv.FormatInt(product.ID, 10)
	e, ok := c.entries.get(id)
	switch {
	case !ok:
		c.entries.put(id, &entry{Quantity: quantity, Price: product.Price})
	case override:
		e.Quantity = quantity
	default:
		e.Quantity += quantity
	}
	return c.save()
}

// Remove drops a product from the cart. Removing an absent product is a no-op.
func (c *Cart) Remove(productID int64) error {
	c.entries.remove(strconv.FormatInt(productID, 10))
	return c.save()
}

// Clear empties the cart.
func (c *Cart) Clear() error {
	c.entries = entries{}
	return c.save()
}

// Items returns the cart lines in the order products were added. Products that no
// longer exist in the catalog are skipped.
func (c *Cart) Items(ctx context.Context, lookup ProductLookup) ([]Item, error) {
	ids := make([]int64, 0, len(c.entries.order))
	for _, key := range c.entries.order {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return []Item{}, nil
	}

	products, _, err := lookup.ListProducts(ctx, store.ListProductsParams{ProductIDs: ids})
	if err != nil {
		return nil, fmt.Errorf("cart: failed to resolve products: %w", err)
	}
	byID := make(map[int64]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	items := make([]Item, 0, len(ids))
	for _, id := range ids {
		product, ok := byID[id]
		if !ok {
			continue
		}
		e, _ := c.entries.get(strconv.FormatInt(id, 10))
		items = append(items, Item{
			Product:    product,
			Price:      e.Price,
			Quantity:   e.Quantity,
			TotalPrice: e.Price.Mul(decimal.NewFromInt(int64(e.Quantity))),
		})
	}
	return items, nil
}

// TotalPrice sums price × quantity over every entry.
func (c *Cart) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, key := range c.entries.order {
		e := c.entries.items[key]
		total = total.Add(e.Price.Mul(decimal.NewFromInt(int64(e.Quantity))))
	}
	return total
}

// Len is the number of units in the cart, not the number of distinct products.
func (c *Cart) Len() int {
	n := 0
	for _, e := range c.entries.items {
		n += e.Quantity
	}
	return n
}

// Count is the number of distinct products in the cart.
func (c *Cart) Count() int {
	return len(c.entries.order)
}

// Quantity returns how many units of a product are in the cart.
func (c *Cart) Quantity(productID int64) int {
	if e, ok := c.entries.get(strconv.FormatInt(productID, 10)); ok {
		return e.Quantity
	}
	return 0
}

func (c *Cart) save() error {
	if err := c.storage.Set(c.key, c.entries); err != nil {
		return fmt.Errorf("cart: failed to save: %w", err)
	}
	return nil
}

// entries keeps insertion order across the JSON round trip. It is stored as
// {"<id>": {"quantity": 2, "price": "10.00"}, ...}.
type entries struct {
	order []string
	items map[string]*entry
}

func (es *entries) get(id string) (*entry, bool) {
	e, ok := es.items[id]
	return e, ok
}

func (es *entries) put(id string, e *entry) {
	if es.items == nil {
		es.items = make(map[string]*entry)
	}
	if _, ok := es.items[id]; !ok {
		es.order = append(es.order, id)
	}
	es.items[id] = e
}

func (es *entries) remove(id string) {
	if _, ok := es.items[id]; !ok {
		return
	}
	delete(es.items, id)
	for i, key := range es.order {
		if key == id {
			es.order = append(es.order[:i:i], es.order[i+1:]...)
			break
		}
	}
}

type storedEntry struct {
	Quantity int    `json:"quantity"`
	Price    string `json:"price"`
}

func (es entries) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range es.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		e := es.items[id]
		val, err := json.Marshal(storedEntry{Quantity: e.Quantity, Price: domain.FormatPrice(e.Price)})
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (es *entries) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*es = entries{}
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}

	out := entries{items: make(map[string]*entry)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		id, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected product id, got %v", tok)
		}
		var se storedEntry
		if err := dec.Decode(&se); err != nil {
			return fmt.Errorf("product %s: %w", id, err)
		}
		price, err := decimal.NewFromString(se.Price)
		if err != nil {
			return fmt.Errorf("product %s: invalid price %q", id, se.Price)
		}
		if se.Quantity < 1 {
			return fmt.Errorf("product %s: invalid quantity %d", id, se.Quantity)
		}
		out.put(id, &entry{Quantity: se.Quantity, Price: price})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*es = out
	return nil
}
