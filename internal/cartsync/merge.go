package cartsync

import (
	"context"
	"log/slog"

	"github.com/utafrali/storefront/internal/domain"
)

// Cart is the part of the engine a merge needs.
type Cart interface {
	Key() string
	SetCart(ctx context.Context, lines []domain.CartLine)
}

// Fetcher reads the server-held cart. *Client satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, token string) ([]domain.CartLine, error)
}

// Syncer adopts the server cart after login and keeps it updated afterwards.
type Syncer struct {
	fetcher Fetcher
	pusher  *Pusher
	logger  *slog.Logger
}

// NewSyncer creates a Syncer. pusher may be nil, in which case local changes
// are not mirrored back.
func NewSyncer(fetcher Fetcher, pusher *Pusher, logger *slog.Logger) *Syncer {
	return &Syncer{fetcher: fetcher, pusher: pusher, logger: logger}
}

// MergeFromServer replaces the local cart with the server cart: the last
// fetched cart wins. On any fetch error the local cart is left untouched and
// the error is returned. After a successful merge, further local changes are
// pushed to the server with token.
func (s *Syncer) MergeFromServer(ctx context.Context, cart Cart, token string) ([]domain.CartLine, error) {
	lines, err := s.fetcher.Fetch(ctx, token)
	if err != nil {
		s.logger.WarnContext(ctx, "server cart fetch failed, keeping local cart",
			slog.String("cart_key", cart.Key()),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	cart.SetCart(ctx, lines)
	if s.pusher != nil {
		s.pusher.Authorize(cart.Key(), token)
	}

	s.logger.InfoContext(ctx, "adopted server cart",
		slog.String("cart_key", cart.Key()),
		slog.Int("lines", len(lines)),
	)
	return lines, nil
}
