package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/storefront/internal/cartsync"
	"github.com/utafrali/storefront/internal/checkout"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/engine"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/pkg/middleware"
	"github.com/utafrali/storefront/pkg/validator"
)

// Sessions hands out the engine of a session. *session.Registry satisfies it.
type Sessions interface {
	Get(ctx context.Context, sessionID string) *engine.Engine
}

// OrderPlacer submits a cart as an order. *checkout.Service satisfies it.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, cart checkout.Cart, customer checkout.Customer) (*checkout.Order, error)
}

// CartSyncer adopts the server-held cart. *cartsync.Syncer satisfies it.
type CartSyncer interface {
	MergeFromServer(ctx context.Context, cart cartsync.Cart, token string) ([]domain.CartLine, error)
}

// CartHandler handles HTTP requests for cart endpoints.
type CartHandler struct {
	sessions Sessions
	orders   OrderPlacer
	syncer   CartSyncer
	logger   *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler. syncer may be nil when no
// cart sync API is configured.
func NewCartHandler(sessions Sessions, orders OrderPlacer, syncer CartSyncer, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		sessions: sessions,
		orders:   orders,
		syncer:   syncer,
		logger:   logger,
	}
}

// --- Request DTOs ---

// AddItemRequest is the JSON request body for adding an item to the cart.
// Price is display text such as "Rs. 120".
type AddItemRequest struct {
	Name   string `json:"name" validate:"required,max=500"`
	Price  string `json:"price" validate:"required,max=64"`
	Image  string `json:"image"`
	Weight string `json:"weight"`
}

// UpdateQuantityRequest is the JSON request body for updating a line's quantity.
type UpdateQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required,lte=9999"`
}

// SetCartRequest is the JSON request body for replacing the whole cart.
type SetCartRequest struct {
	Items []domain.CartLine `json:"items"`
}

// OrderResponse is returned by a successful checkout.
type OrderResponse struct {
	OrderID string       `json:"order_id"`
	Order   engine.State `json:"order"`
	Cart    engine.State `json:"cart"`
}

// --- Handlers ---

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	httputil.WriteData(w, http.StatusOK, h.cart(r).State())
}

// GetTotals handles GET /api/v1/cart/totals
func (h *CartHandler) GetTotals(w http.ResponseWriter, r *http.Request) {
	httputil.WriteData(w, http.StatusOK, h.cart(r).CalculateTotals())
}

// AddItem handles POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	cart := h.cart(r)
	if !cart.AddItem(r.Context(), req.Name, req.Price, req.Image, req.Weight) {
		h.writeError(w, r, apperrors.Unprocessable("item not added: unreadable price or line quantity at its maximum"))
		return
	}
	httputil.WriteData(w, http.StatusOK, cart.State())
}

// UpdateItemQuantity handles PUT /api/v1/cart/items/{index}
func (h *CartHandler) UpdateItemQuantity(w http.ResponseWriter, r *http.Request) {
	idx, ok := httputil.ParseIndex(w, chi.URLParam(r, "index"))
	if !ok {
		return
	}
	var req UpdateQuantityRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	cart := h.cart(r)
	cart.UpdateQuantity(r.Context(), idx, *req.Quantity)
	httputil.WriteData(w, http.StatusOK, cart.State())
}

// RemoveItem handles DELETE /api/v1/cart/items/{index}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	idx, ok := httputil.ParseIndex(w, chi.URLParam(r, "index"))
	if !ok {
		return
	}

	cart := h.cart(r)
	cart.RemoveItem(r.Context(), idx)
	httputil.WriteData(w, http.StatusOK, cart.State())
}

// SetCart handles PUT /api/v1/cart
func (h *CartHandler) SetCart(w http.ResponseWriter, r *http.Request) {
	var req SetCartRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	cart := h.cart(r)
	cart.SetCart(r.Context(), req.Items)
	httputil.WriteData(w, http.StatusOK, cart.State())
}

// ClearCart handles DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	cart := h.cart(r)
	cart.ClearCart(r.Context())
	httputil.WriteData(w, http.StatusOK, cart.State())
}

// SyncCart handles POST /api/v1/cart/sync. The server-held cart replaces the
// local one; on failure the local cart is unchanged.
func (h *CartHandler) SyncCart(w http.ResponseWriter, r *http.Request) {
	if h.syncer == nil {
		h.writeError(w, r, apperrors.Unavailable("cart sync", errors.New("no cart sync API configured")))
		return
	}

	cart := h.cart(r)
	token := middleware.BearerTokenFromContext(r.Context())
	if _, err := h.syncer.MergeFromServer(r.Context(), cart, token); err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, cart.State())
}

// Checkout handles POST /api/v1/cart/checkout
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var customer checkout.Customer
	if err := validator.DecodeAndValidate(r, &customer); err != nil {
		h.writeError(w, r, err)
		return
	}

	cart := h.cart(r)
	order, err := h.orders.PlaceOrder(r.Context(), cart, customer)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	httputil.WriteData(w, http.StatusCreated, OrderResponse{
		OrderID: order.ID,
		Order: engine.State{
			Items:  order.Items,
			Count:  order.ItemCount,
			Totals: order.Totals,
		},
		Cart: cart.State(),
	})
}

// cart returns the engine of the request's session. Session middleware
// guarantees the ID is present.
func (h *CartHandler) cart(r *http.Request) *engine.Engine {
	return h.sessions.Get(r.Context(), logger.SessionIDFromContext(r.Context()))
}

func (h *CartHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.WriteError(w, r, err, h.logger)
}
