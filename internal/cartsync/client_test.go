package cartsync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httpclient"
)

func testClient(url string) *Client {
	cfg := httpclient.DefaultConfig()
	cfg.MaxRetries = 0
	return NewClient(httpclient.New(cfg), url+"/")
}

func TestClient_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/cart", r.URL.Path)
		assert.Equal(t, "Bearer opaque-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"items":[
			{"name":"Ghee","price":499.5,"image":"g.png","weight":"500 Gms","quantity":2},
			{"name":"Ghee","price":499.5,"image":"g.png","weight":"500 Gms","quantity":1},
			{"name":"Paneer","price":120,"quantity":0}
		]}}`))
	}))
	defer server.Close()

	lines, err := testClient(server.URL).Fetch(context.Background(), "opaque-token")

	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "Ghee", lines[0].Name)
	assert.Equal(t, 3, lines[0].Quantity)
	assert.True(t, lines[0].UnitPrice.Equal(decimal.RequireFromString("499.5")))
	assert.Equal(t, domain.DefaultWeight, lines[1].Weight)
	assert.Equal(t, 1, lines[1].Quantity)
}

func TestClient_FetchUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"expired"}}`))
	}))
	defer server.Close()

	_, err := testClient(server.URL).Fetch(context.Background(), "stale")

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))
}

func TestClient_Replace(t *testing.T) {
	var got struct {
		Items []map[string]any `json:"items"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	lines := []domain.CartLine{{Name: "Atta", UnitPrice: decimal.NewFromInt(300), Weight: "5 Kg", Quantity: 2}}
	err := testClient(server.URL).Replace(context.Background(), "tok", lines)

	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Atta", got.Items[0]["name"])
	assert.Equal(t, float64(300), got.Items[0]["price"])
	assert.Equal(t, float64(2), got.Items[0]["quantity"])
}

func TestClient_ReplaceEmptyCartSendsArray(t *testing.T) {
	var raw map[string]json.RawMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	require.NoError(t, testClient(server.URL).Replace(context.Background(), "tok", nil))
	assert.JSONEq(t, `[]`, string(raw["items"]))
}

func TestClient_ServerDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := testClient(url).Fetch(context.Background(), "tok")

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrUnavailable))
}
