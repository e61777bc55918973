// Package cartsync mirrors carts of authenticated shoppers to the server-held
// cart: fetching it after login and pushing local changes in the background.
package cartsync

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/pkg/httpclient"
)

const serviceName = "cart-sync-api"

// cartBody is the wire shape of the server cart, inside the {data} envelope
// on responses.
type cartBody struct {
	Items []domain.CartLine `json:"items"`
}

type cartEnvelope struct {
	Data cartBody `json:"data"`
}

// Client talks to the cart sync API. The bearer token is opaque and forwarded
// as is.
type Client struct {
	doer    httpclient.Doer
	baseURL string
}

// NewClient creates a Client for the API rooted at baseURL.
func NewClient(doer httpclient.Doer, baseURL string) *Client {
	return &Client{doer: doer, baseURL: strings.TrimRight(baseURL, "/")}
}

// Fetch returns the server-held cart, normalized the same way SetCart input
// is.
func (c *Client) Fetch(ctx context.Context, token string) ([]domain.CartLine, error) {
	var env cartEnvelope
	if err := httpclient.SendJSON(ctx, c.doer, serviceName, http.MethodGet, c.cartURL(), authHeader(token), nil, &env); err != nil {
		return nil, fmt.Errorf("fetch server cart: %w", err)
	}
	return domain.NormalizeLines(env.Data.Items), nil
}

// Replace overwrites the server-held cart with lines.
func (c *Client) Replace(ctx context.Context, token string, lines []domain.CartLine) error {
	body := cartBody{Items: domain.CloneLines(lines)}
	if err := httpclient.SendJSON(ctx, c.doer, serviceName, http.MethodPut, c.cartURL(), authHeader(token), body, nil); err != nil {
		return fmt.Errorf("replace server cart: %w", err)
	}
	return nil
}

// Ping checks that the API answers at all; any HTTP response counts.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL, http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func (c *Client) cartURL() string {
	return c.baseURL + "/api/v1/cart"
}

func authHeader(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}
