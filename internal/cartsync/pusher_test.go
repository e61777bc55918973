package cartsync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/engine"
	"github.com/utafrali/storefront/internal/session"
	"github.com/utafrali/storefront/internal/storage/memory"
	"github.com/utafrali/storefront/pkg/logger"
)

type replaceCall struct {
	token string
	lines []domain.CartLine
}

type recordingReplacer struct {
	mu    sync.Mutex
	calls []replaceCall
	err   error
}

func (r *recordingReplacer) Replace(_ context.Context, token string, lines []domain.CartLine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, replaceCall{token: token, lines: lines})
	return r.err
}

func (r *recordingReplacer) snapshot() []replaceCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]replaceCall(nil), r.calls...)
}

func change(key string, qty int) engine.Change {
	return engine.Change{
		Key: key,
		Op:  engine.OpUpdateQuantity,
		Lines: []domain.CartLine{
			{Name: "Ghee", UnitPrice: decimal.NewFromInt(100), Weight: domain.DefaultWeight, Quantity: qty},
		},
		Count: qty,
	}
}

func TestPusher_IgnoresUnauthorizedCarts(t *testing.T) {
	p := NewPusher(&recordingReplacer{}, 10, logger.Discard())

	p.CartChanged(context.Background(), change("anon:cart", 1))

	assert.Equal(t, 0, p.Pending())
}

func TestPusher_SupersededSnapshotsAreDropped(t *testing.T) {
	rec := &recordingReplacer{}
	p := NewPusher(rec, 100, logger.Discard())
	p.Authorize("s1:cart", "tok")

	p.CartChanged(context.Background(), change("s1:cart", 1))
	p.CartChanged(context.Background(), change("s1:cart", 2))
	p.CartChanged(context.Background(), change("s1:cart", 5))
	assert.Equal(t, 1, p.Pending())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	calls := rec.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "tok", calls[0].token)
	assert.Equal(t, 5, calls[0].lines[0].Quantity)
}

func TestPusher_PushesEachCart(t *testing.T) {
	rec := &recordingReplacer{}
	p := NewPusher(rec, 100, logger.Discard())
	p.Authorize("a:cart", "tok-a")
	p.Authorize("b:cart", "tok-b")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.CartChanged(context.Background(), change("a:cart", 1))
	p.CartChanged(context.Background(), change("b:cart", 2))

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, time.Second, 5*time.Millisecond)

	tokens := map[string]bool{}
	for _, c := range rec.snapshot() {
		tokens[c.token] = true
	}
	assert.Equal(t, map[string]bool{"tok-a": true, "tok-b": true}, tokens)
}

func TestPusher_RevokeDropsQueuedSnapshot(t *testing.T) {
	p := NewPusher(&recordingReplacer{}, 10, logger.Discard())
	p.Authorize("s1:cart", "tok")
	p.CartChanged(context.Background(), change("s1:cart", 1))
	require.Equal(t, 1, p.Pending())

	p.Revoke("s1:cart")
	assert.Equal(t, 0, p.Pending())

	p.CartChanged(context.Background(), change("s1:cart", 2))
	assert.Equal(t, 0, p.Pending())
}

func TestPusher_FailureIsCounted(t *testing.T) {
	rec := &recordingReplacer{err: errors.New("server cart down")}
	p := NewPusher(rec, 100, logger.Discard())
	p.Authorize("s1:cart", "tok")

	before := testutil.ToFloat64(pushesTotal.WithLabelValues("error"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)
	p.CartChanged(context.Background(), change("s1:cart", 1))

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(pushesTotal.WithLabelValues("error")) == before+1
	}, time.Second, 5*time.Millisecond)
}

func TestPusher_RunStopsOnCancel(t *testing.T) {
	p := NewPusher(&recordingReplacer{}, 1, logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestPusher_RevokedWhenSessionLeavesRegistry(t *testing.T) {
	ctx := context.Background()
	p := NewPusher(&recordingReplacer{}, 10, logger.Discard())
	registry := session.NewRegistry(memory.NewStore(),
		engine.WithLogger(logger.Discard()),
		engine.WithObserver(p),
	)
	registry.OnEvict(p.Revoke)

	cart := registry.Get(ctx, "s1")
	p.Authorize(cart.Key(), "tok")
	require.True(t, cart.AddItem(ctx, "Ghee", "Rs. 100", "", ""))
	require.Equal(t, 1, p.Pending())

	registry.Forget("s1")
	assert.Equal(t, 0, p.Pending())

	// The reloaded engine is no longer authorized to push.
	require.True(t, registry.Get(ctx, "s1").AddItem(ctx, "Ghee", "Rs. 100", "", ""))
	assert.Equal(t, 0, p.Pending())
}
