package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/engine"
	"github.com/utafrali/storefront/internal/event"
	"github.com/utafrali/storefront/internal/storage/memory"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httpclient"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/pkg/validator"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishOrderSubmitted(ctx context.Context, data event.OrderSubmittedData) error {
	args := m.Called(ctx, data)
	return args.Error(0)
}

func testCustomer() Customer {
	return Customer{
		Name:  "Asha Rao",
		Email: "asha@example.com",
		Phone: "+91 98450 00000",
		ShippingAddress: Address{
			FullName:    "Asha Rao",
			AddressLine: "12 MG Road",
			City:        "Bengaluru",
			State:       "KA",
			PostalCode:  "560001",
			Country:     "IN",
		},
	}
}

func filledCart(t *testing.T) *engine.Engine {
	t.Helper()
	e := engine.New(context.Background(), memory.NewStore(), "s1:cart", engine.WithLogger(logger.Discard()))
	require.True(t, e.AddItem(context.Background(), "Ghee", "Rs. 200", "ghee.png", "500 Gms"))
	require.True(t, e.AddItem(context.Background(), "Ghee", "Rs. 200", "ghee.png", "500 Gms"))
	return e
}

func newTestService(url string, pub OrderPublisher) *Service {
	cfg := httpclient.DefaultConfig()
	cfg.MaxRetries = 0
	return NewService(httpclient.New(cfg), url, pub, logger.Discard())
}

func TestPlaceOrder_Success(t *testing.T) {
	var got map[string]json.RawMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/orders", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"order_id":"ord-42"}}`))
	}))
	defer server.Close()

	pub := new(mockPublisher)
	pub.On("PublishOrderSubmitted", mock.Anything, mock.MatchedBy(func(d event.OrderSubmittedData) bool {
		return d.OrderID == "ord-42" && d.CartKey == "s1:cart" && d.ItemCount == 2 && len(d.Items) == 1
	})).Return(nil)

	cart := filledCart(t)
	order, err := newTestService(server.URL, pub).PlaceOrder(context.Background(), cart, testCustomer())

	require.NoError(t, err)
	assert.Equal(t, "ord-42", order.ID)
	assert.Equal(t, 2, order.ItemCount)
	assert.Equal(t, "470", order.Totals.Total.String())
	assert.True(t, cart.IsEmpty())
	assert.Equal(t, 0, cart.Count())
	pub.AssertExpectations(t)

	assert.JSONEq(t, `[{"name":"Ghee","price":200,"image":"ghee.png","weight":"500 Gms","quantity":2}]`, string(got["items"]))
	assert.JSONEq(t, `{"subtotal":400,"shipping":50,"tax":20,"total":470}`, string(got["totals"]))
	assert.Contains(t, string(got["customer"]), `"postal_code":"560001"`)
}

func TestPlaceOrder_BareResponseBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"order_id":"ord-7"}`))
	}))
	defer server.Close()

	order, err := newTestService(server.URL, nil).PlaceOrder(context.Background(), filledCart(t), testCustomer())

	require.NoError(t, err)
	assert.Equal(t, "ord-7", order.ID)
}

func TestPlaceOrder_EmptyCart(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	cart := engine.New(context.Background(), memory.NewStore(), "s1:cart", engine.WithLogger(logger.Discard()))
	_, err := newTestService(server.URL, nil).PlaceOrder(context.Background(), cart, testCustomer())

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrEmptyCart))
	assert.False(t, called)
}

func TestPlaceOrder_InvalidCustomer(t *testing.T) {
	customer := testCustomer()
	customer.Email = "not-an-email"
	customer.ShippingAddress.City = ""

	_, err := newTestService("http://unused", nil).PlaceOrder(context.Background(), filledCart(t), customer)

	var verr *validator.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields(), 2)
}

func TestPlaceOrder_NetworkFailureKeepsCart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	pub := new(mockPublisher)
	cart := filledCart(t)
	_, err := newTestService(url, pub).PlaceOrder(context.Background(), cart, testCustomer())

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrUnavailable))
	assert.Equal(t, 2, cart.Count())
	assert.Len(t, cart.Cart(), 1)
	pub.AssertNotCalled(t, "PublishOrderSubmitted", mock.Anything, mock.Anything)
}

func TestPlaceOrder_RejectedOrderKeepsCart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":{"code":"OUT_OF_STOCK","message":"Ghee is out of stock"}}`))
	}))
	defer server.Close()

	cart := filledCart(t)
	_, err := newTestService(server.URL, nil).PlaceOrder(context.Background(), cart, testCustomer())

	require.Error(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, apperrors.HTTPStatus(err))
	assert.Equal(t, 2, cart.Count())
}

func TestPlaceOrder_MissingOrderID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	cart := filledCart(t)
	_, err := newTestService(server.URL, nil).PlaceOrder(context.Background(), cart, testCustomer())

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrUnavailable))
	assert.Equal(t, 2, cart.Count())
}

func TestPlaceOrder_PublishFailureStillSucceeds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"order_id":"ord-9"}`))
	}))
	defer server.Close()

	pub := new(mockPublisher)
	pub.On("PublishOrderSubmitted", mock.Anything, mock.Anything).Return(errors.New("kafka down"))

	cart := filledCart(t)
	order, err := newTestService(server.URL, pub).PlaceOrder(context.Background(), cart, testCustomer())

	require.NoError(t, err)
	assert.Equal(t, "ord-9", order.ID)
	assert.True(t, cart.IsEmpty())
}

func TestPlaceOrder_SendsOnceWithIdempotencyKey(t *testing.T) {
	var posts int32
	var keys []string
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&posts, 1)
		mu.Lock()
		keys = append(keys, r.Header.Get(IdempotencyKeyHeader))
		mu.Unlock()
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	retrying := httpclient.New(httpclient.Config{
		Timeout:         5 * time.Second,
		MaxRetries:      2,
		RetryWaitMin:    time.Millisecond,
		RetryWaitMax:    5 * time.Millisecond,
		MaxConnsPerHost: 10,
	})
	svc := NewService(retrying, server.URL, nil, logger.Discard())

	cart := filledCart(t)
	_, err := svc.PlaceOrder(context.Background(), cart, testCustomer())
	require.Error(t, err)
	_, err = svc.PlaceOrder(context.Background(), cart, testCustomer())
	require.Error(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&posts))
	require.Len(t, keys, 2)
	assert.NotEmpty(t, keys[0])
	assert.NotEqual(t, keys[0], keys[1], "each checkout attempt gets its own key")
	assert.Equal(t, 2, cart.State().Count)
}

func TestPlaceOrder_OrderMatchesOneCartSnapshot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"order_id":"ord-1"}`))
	}))
	defer server.Close()

	ctx := context.Background()
	svc := newTestService(server.URL, nil)
	cart := filledCart(t)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				cart.AddItem(ctx, "Atta", "Rs. 300", "", "5 Kg")
			}
		}
	}()

	for i := 0; i < 20; i++ {
		order, err := svc.PlaceOrder(ctx, cart, testCustomer())
		if errors.Is(err, apperrors.ErrEmptyCart) {
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, domain.ItemCount(order.Items), order.ItemCount)
		want := domain.CalculateTotals(order.Items, domain.DefaultTotalsPolicy())
		assert.True(t, want.Total.Equal(order.Totals.Total), "totals %s do not match items %s", order.Totals.Total, want.Total)
	}
	close(stop)
	wg.Wait()
}
