// Package checkout submits the current cart as an order to the order API.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/engine"
	"github.com/utafrali/storefront/internal/event"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httpclient"
	"github.com/utafrali/storefront/pkg/tracing"
	"github.com/utafrali/storefront/pkg/validator"
)

const serviceName = "order-api"

// IdempotencyKeyHeader carries a key unique to one checkout attempt.
const IdempotencyKeyHeader = "Idempotency-Key"

// Address is a shipping address.
type Address struct {
	FullName    string `json:"full_name" validate:"required"`
	AddressLine string `json:"address_line" validate:"required"`
	City        string `json:"city" validate:"required"`
	State       string `json:"state"`
	PostalCode  string `json:"postal_code" validate:"required"`
	Country     string `json:"country" validate:"required"`
}

// Customer holds the contact and shipping details sent with an order.
type Customer struct {
	Name            string  `json:"name" validate:"required"`
	Email           string  `json:"email" validate:"required,email"`
	Phone           string  `json:"phone" validate:"required"`
	ShippingAddress Address `json:"shipping_address"`
}

// Order is the result of a successful submission.
type Order struct {
	ID        string             `json:"order_id"`
	Items     []domain.CartLine  `json:"items"`
	ItemCount int                `json:"item_count"`
	Totals    domain.OrderTotals `json:"totals"`
}

// Cart is the part of the engine checkout needs.
type Cart interface {
	Key() string
	State() engine.State
	ClearCart(ctx context.Context)
}

// OrderPublisher announces submitted orders. *event.Publisher satisfies it.
type OrderPublisher interface {
	PublishOrderSubmitted(ctx context.Context, data event.OrderSubmittedData) error
}

// orderItem is a cart line as the order API expects it: the unit price goes
// out as "price".
type orderItem struct {
	Name     string      `json:"name"`
	Price    json.Number `json:"price"`
	Image    string      `json:"image,omitempty"`
	Weight   string      `json:"weight"`
	Quantity int         `json:"quantity"`
}

type createOrderRequest struct {
	Items    []orderItem        `json:"items"`
	Totals   domain.OrderTotals `json:"totals"`
	Customer Customer           `json:"customer"`
}

// createOrderResponse accepts both a bare {"order_id"} body and one wrapped
// in the {"data"} envelope.
type createOrderResponse struct {
	OrderID string `json:"order_id"`
	Data    struct {
		OrderID string `json:"order_id"`
	} `json:"data"`
}

func (r createOrderResponse) id() string {
	if r.OrderID != "" {
		return r.OrderID
	}
	return r.Data.OrderID
}

// Service places orders for carts.
type Service struct {
	doer      httpclient.Doer
	ordersURL string
	publisher OrderPublisher
	logger    *slog.Logger
}

// NewService creates a checkout Service posting to the order API at baseURL.
// publisher may be nil when events are disabled.
func NewService(doer httpclient.Doer, baseURL string, publisher OrderPublisher, logger *slog.Logger) *Service {
	return &Service{
		doer:      doer,
		ordersURL: strings.TrimRight(baseURL, "/") + "/api/v1/orders",
		publisher: publisher,
		logger:    logger,
	}
}

// PlaceOrder submits the cart with the customer's details and returns the
// created order. The cart is cleared only after the order API accepted the
// order; on any failure it is left as it was.
func (s *Service) PlaceOrder(ctx context.Context, cart Cart, customer Customer) (*Order, error) {
	ctx, span := tracing.Tracer("storefront/checkout").Start(ctx, "checkout.PlaceOrder")
	defer span.End()

	order, err := s.placeOrder(ctx, cart, customer)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("storefront.order_id", order.ID),
		attribute.Int("storefront.item_count", order.ItemCount),
	)
	return order, nil
}

func (s *Service) placeOrder(ctx context.Context, cart Cart, customer Customer) (*Order, error) {
	if err := validator.Validate(customer); err != nil {
		return nil, err
	}

	state := cart.State()
	lines := state.Items
	if len(lines) == 0 {
		return nil, apperrors.EmptyCart()
	}
	order := &Order{
		Items:     lines,
		ItemCount: state.Count,
		Totals:    state.Totals,
	}

	req := createOrderRequest{
		Items:    make([]orderItem, len(lines)),
		Totals:   order.Totals,
		Customer: customer,
	}
	for i, l := range lines {
		req.Items[i] = orderItem{
			Name:     l.Name,
			Price:    json.Number(l.UnitPrice.String()),
			Image:    l.Image,
			Weight:   l.Weight,
			Quantity: l.Quantity,
		}
	}

	// Creating an order is not idempotent: send once, and let the order API
	// deduplicate on the key if an intermediary repeats the request.
	idempotencyKey := uuid.NewString()
	header := http.Header{}
	header.Set(IdempotencyKeyHeader, idempotencyKey)

	var resp createOrderResponse
	err := httpclient.SendJSON(httpclient.WithoutRetry(ctx), s.doer, serviceName, http.MethodPost, s.ordersURL, header, req, &resp)
	if err != nil {
		s.logger.WarnContext(ctx, "order submission failed, cart kept",
			slog.String("cart_key", cart.Key()),
			slog.String("idempotency_key", idempotencyKey),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("submit order: %w", err)
	}
	order.ID = resp.id()
	if order.ID == "" {
		return nil, apperrors.Unavailable(serviceName, errors.New("response carried no order id"))
	}

	cart.ClearCart(ctx)

	if s.publisher != nil {
		data := event.OrderSubmittedData{
			OrderID:   order.ID,
			CartKey:   cart.Key(),
			Items:     order.Items,
			ItemCount: order.ItemCount,
			Totals:    order.Totals,
		}
		if err := s.publisher.PublishOrderSubmitted(ctx, data); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish order.submitted event",
				slog.String("order_id", order.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "order submitted",
		slog.String("order_id", order.ID),
		slog.String("cart_key", cart.Key()),
		slog.Int("item_count", order.ItemCount),
		slog.String("total", domain.FormatPrice(order.Totals.Total)),
	)
	return order, nil
}
