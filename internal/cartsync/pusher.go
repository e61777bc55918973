package cartsync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/engine"
)

var pushesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storefront_cart_sync_pushes_total",
		Help: "Background pushes of local carts to the server cart, by result",
	},
	[]string{"result"},
)

// Replacer overwrites a server-held cart. *Client satisfies it.
type Replacer interface {
	Replace(ctx context.Context, token string, lines []domain.CartLine) error
}

type pendingPush struct {
	token string
	lines []domain.CartLine
}

// Pusher is an engine.Observer that mirrors changes of authorized carts to
// the server. CartChanged only records the latest snapshot per cart; Run
// pushes them, rate limited. A snapshot superseded before it was pushed is
// dropped, so the server sees the last write.
type Pusher struct {
	replacer Replacer
	limiter  *rate.Limiter
	timeout  time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	tokens  map[string]string
	pending map[string]pendingPush
	wake    chan struct{}
}

// NewPusher creates a Pusher allowing perSecond pushes per second.
func NewPusher(replacer Replacer, perSecond float64, logger *slog.Logger) *Pusher {
	if perSecond <= 0 {
		perSecond = 1
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &Pusher{
		replacer: replacer,
		limiter:  rate.NewLimiter(rate.Limit(perSecond), burst),
		timeout:  10 * time.Second,
		logger:   logger,
		tokens:   make(map[string]string),
		pending:  make(map[string]pendingPush),
		wake:     make(chan struct{}, 1),
	}
}

// Authorize enables pushing for the cart stored under cartKey.
func (p *Pusher) Authorize(cartKey, token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokens[cartKey] = token
}

// Revoke stops pushing for cartKey and drops any queued snapshot.
func (p *Pusher) Revoke(cartKey string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.tokens, cartKey)
	delete(p.pending, cartKey)
}

// CartChanged implements engine.Observer. It never blocks.
func (p *Pusher) CartChanged(_ context.Context, change engine.Change) {
	p.mu.Lock()
	token, ok := p.tokens[change.Key]
	if ok {
		p.pending[change.Key] = pendingPush{token: token, lines: change.Lines}
	}
	p.mu.Unlock()

	if !ok {
		return
	}
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of carts waiting to be pushed.
func (p *Pusher) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Run pushes queued snapshots until ctx is canceled.
func (p *Pusher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		}

		for {
			key, push, ok := p.next()
			if !ok {
				break
			}
			if err := p.limiter.Wait(ctx); err != nil {
				return
			}
			p.push(ctx, key, push)
		}
	}
}

// next pops one pending push.
func (p *Pusher) next() (string, pendingPush, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, push := range p.pending {
		delete(p.pending, key)
		return key, push, true
	}
	return "", pendingPush{}, false
}

func (p *Pusher) push(ctx context.Context, key string, push pendingPush) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.replacer.Replace(ctx, push.token, push.lines); err != nil {
		pushesTotal.WithLabelValues("error").Inc()
		p.logger.WarnContext(ctx, "cart sync push failed",
			slog.String("cart_key", key),
			slog.Int("lines", len(push.lines)),
			slog.String("error", err.Error()),
		)
		return
	}
	pushesTotal.WithLabelValues("ok").Inc()
	p.logger.DebugContext(ctx, "cart pushed to server",
		slog.String("cart_key", key),
		slog.Int("lines", len(push.lines)),
	)
}
