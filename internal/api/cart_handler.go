package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"storefront-service/internal/cart"
	"storefront-service/internal/domain"
	"storefront-service/internal/session"
	"storefront-service/internal/store"
)

var errNoSession = errors.New("api: request has no session")

// CartLengthHeader carries the cart length on responses without a body.
const CartLengthHeader = "X-Cart-Length"

// CartItemResponse is one line of the cart.
type CartItemResponse struct {
	ProductID  int64  `json:"product_id"`
	Name       string `json:"name"`
	Price      string `json:"price"`
	Quantity   int    `json:"quantity"`
	TotalPrice string `json:"total_price"`
}

// CartResponse is the whole cart.
type CartResponse struct {
	Items      []CartItemResponse `json:"items"`
	TotalPrice string             `json:"total_price"`
}

// CartAddInput is the body of POST /api/cart/.
type CartAddInput struct {
	ProductID        *int64 `json:"product_id" validate:"required,gt=0"`
	Quantity         *int   `json:"quantity" validate:"required,min=1"`
	OverrideQuantity bool   `json:"override_quantity"`
}

// CartUpdateResponse reports the outcome of a cart mutation.
type CartUpdateResponse struct {
	Message    string `json:"message"`
	CartLength int    `json:"cart_length"`
}

// cartFromRequest binds a cart to the session the session middleware attached.
func (h *HTTPHandler) cartFromRequest(r *http.Request) (*cart.Cart, error) {
	sess := session.FromContext(r.Context())
	if sess == nil {
		return nil, errNoSession
	}
	return cart.New(sess, h.cfg.CartKey)
}

func (h *HTTPHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.cartFromRequest(r)
	if err != nil {
		log.Printf("ERROR: GetCart failed to load cart: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to load cart")
		return
	}

	items, err := c.Items(r.Context(), h.productStore)
	if err != nil {
		log.Printf("ERROR: GetCart failed to resolve cart items: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to load cart")
		return
	}

	resp := CartResponse{
		Items:      make([]CartItemResponse, 0, len(items)),
		TotalPrice: domain.FormatPrice(c.TotalPrice()),
	}
	for _, item := range items {
		resp.Items = append(resp.Items, CartItemResponse{
			ProductID:  item.Product.ID,
			Name:       item.Product.Name,
			Price:      domain.FormatPrice(item.Price),
			Quantity:   item.Quantity,
			TotalPrice: domain.FormatPrice(item.TotalPrice),
		})
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// AddToCart sets the quantity of an available product in the cart. The stored
// quantity is always replaced; override_quantity is accepted but not consulted.
func (h *HTTPHandler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var input CartAddInput
	if err := decodeJSON(r, &input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}

	if err := h.validate.Struct(input); err != nil {
		respondWithFieldErrors(w, fieldErrors(err))
		return
	}

	product, err := h.productStore.GetProductByID(r.Context(), *input.ProductID)
	if err != nil && !errors.Is(err, store.ErrProductNotFound) {
		log.Printf("ERROR: AddToCart failed to look up product %d: %v", *input.ProductID, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to update cart")
		return
	}
	if err != nil || !product.Available {
		respondWithFieldErrors(w, map[string][]string{
			"product_id": {"Product not found or not available."},
		})
		return
	}

	c, err := h.cartFromRequest(r)
	if err != nil {
		log.Printf("ERROR: AddToCart failed to load cart: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to update cart")
		return
	}
	if err := c.Add(product, *input.Quantity, true); err != nil {
		log.Printf("ERROR: AddToCart failed to add product %d: %v", product.ID, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to update cart")
		return
	}

	respondWithJSON(w, http.StatusOK, CartUpdateResponse{
		Message:    "Item added/updated successfully",
		CartLength: c.Len(),
	})
}

// RemoveFromCart drops a product from the cart. The product must exist in the
// catalog. The response has no body; the new cart length is sent in CartLengthHeader.
func (h *HTTPHandler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	productID, ok := parseIDParam(r, "productId")
	if !ok {
		respondWithError(w, http.StatusNotFound, store.ErrProductNotFound.Error())
		return
	}

	if _, err := h.productStore.GetProductByID(r.Context(), productID); err != nil {
		if errors.Is(err, store.ErrProductNotFound) {
			respondWithError(w, http.StatusNotFound, store.ErrProductNotFound.Error())
		} else {
			log.Printf("ERROR: RemoveFromCart failed to look up product %d: %v", productID, err)
			respondWithError(w, http.StatusInternalServerError, "Failed to update cart")
		}
		return
	}

	c, err := h.cartFromRequest(r)
	if err != nil {
		log.Printf("ERROR: RemoveFromCart failed to load cart: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to update cart")
		return
	}
	if err := c.Remove(productID); err != nil {
		log.Printf("ERROR: RemoveFromCart failed to remove product %d: %v", productID, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to update cart")
		return
	}

	w.Header().Set(CartLengthHeader, strconv.Itoa(c.Len()))
	respondWithJSON(w, http.StatusNoContent, nil)
}
