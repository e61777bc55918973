// Package engine holds the cart engine: the authoritative line list of one
// shopper, mirrored to durable storage after every mutation.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/storage"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// Op names a cart mutation.
type Op string

const (
	OpAdd            Op = "add"
	OpRemove         Op = "remove"
	OpUpdateQuantity Op = "update_quantity"
	OpSet            Op = "set"
	OpClear          Op = "clear"
)

// Change describes the cart right after a mutation.
type Change struct {
	Key    string
	Op     Op
	Lines  []domain.CartLine
	Count  int
	Totals domain.OrderTotals
}

// Observer is notified after each applied mutation. Observers must not block:
// anything that talks to the network queues the change and returns.
type Observer interface {
	CartChanged(ctx context.Context, change Change)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, change Change)

// CartChanged calls f.
func (f ObserverFunc) CartChanged(ctx context.Context, change Change) { f(ctx, change) }

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTotalsPolicy overrides the shipping and tax constants.
func WithTotalsPolicy(p domain.TotalsPolicy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithObserver registers an observer for applied mutations.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

// Engine owns one cart. Its operations never return errors: invalid
// arguments are no-ops and storage failures are logged while the in-memory
// cart stays authoritative.
type Engine struct {
	mu        sync.Mutex
	store     storage.Store
	key       string
	lines     []domain.CartLine
	count     int
	policy    domain.TotalsPolicy
	logger    *slog.Logger
	observers []Observer
}

// New creates an engine for the snapshot stored under key and loads it. An
// absent or unreadable snapshot yields an empty cart.
func New(ctx context.Context, store storage.Store, key string, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		key:    key,
		lines:  []domain.CartLine{},
		policy: domain.DefaultTotalsPolicy(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.load(ctx)
	return e
}

func (e *Engine) load(ctx context.Context) {
	raw, err := e.store.Get(ctx, e.key)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			e.logger.ErrorContext(ctx, "failed to read cart snapshot, starting empty",
				slog.String("key", e.key),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	lines, err := domain.DecodeLines([]byte(raw))
	if err != nil {
		snapshotDiscardedTotal.Inc()
		e.logger.WarnContext(ctx, "discarding unreadable cart snapshot",
			slog.String("key", e.key),
			slog.String("error", err.Error()),
		)
		return
	}

	e.lines = lines
	e.count = domain.ItemCount(lines)
}

// Key returns the storage key this engine persists under.
func (e *Engine) Key() string {
	return e.key
}

// AddItem adds one unit of the product identified by name and weight. An
// empty weight means domain.DefaultWeight. priceText is display text such as
// "Rs. 50"; when it cannot be parsed, name is empty, or the line already
// holds domain.MaxLineQuantity units, nothing changes and AddItem returns
// false.
func (e *Engine) AddItem(ctx context.Context, name, priceText, image, weight string) bool {
	if weight == "" {
		weight = domain.DefaultWeight
	}
	if name == "" {
		e.reject(ctx, OpAdd, "empty_name", slog.String("price", priceText))
		return false
	}

	price, err := domain.ParsePrice(priceText)
	if err != nil {
		e.reject(ctx, OpAdd, "invalid_price",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		return false
	}

	e.mu.Lock()
	if i := domain.FindLine(e.lines, name, weight); i >= 0 {
		if e.lines[i].Quantity >= domain.MaxLineQuantity {
			e.mu.Unlock()
			e.reject(ctx, OpAdd, "quantity_at_max", slog.String("name", name), slog.String("weight", weight))
			return false
		}
		e.lines[i].Quantity++
	} else {
		e.lines = append(e.lines, domain.CartLine{
			Name:      name,
			UnitPrice: price,
			Image:     image,
			Weight:    weight,
			Quantity:  1,
		})
	}
	e.count++
	change := e.commitLocked(ctx, OpAdd)
	e.mu.Unlock()

	e.notify(ctx, change)
	return true
}

// RemoveItem deletes the line at index. An out-of-range index is a no-op.
func (e *Engine) RemoveItem(ctx context.Context, index int) {
	e.mu.Lock()
	if index < 0 || index >= len(e.lines) {
		n := len(e.lines)
		e.mu.Unlock()
		e.reject(ctx, OpRemove, "index_out_of_range", slog.Int("index", index), slog.Int("lines", n))
		return
	}

	e.count -= e.lines[index].Quantity
	e.lines = append(e.lines[:index], e.lines[index+1:]...)
	change := e.commitLocked(ctx, OpRemove)
	e.mu.Unlock()

	e.notify(ctx, change)
}

// UpdateQuantity sets the quantity of the line at index. Quantities outside
// [1, domain.MaxLineQuantity] and out-of-range indexes are no-ops; use
// RemoveItem to drop a line.
func (e *Engine) UpdateQuantity(ctx context.Context, index, quantity int) {
	if quantity < 1 {
		e.reject(ctx, OpUpdateQuantity, "quantity_below_one", slog.Int("index", index), slog.Int("quantity", quantity))
		return
	}
	if quantity > domain.MaxLineQuantity {
		e.reject(ctx, OpUpdateQuantity, "quantity_above_max", slog.Int("index", index), slog.Int("quantity", quantity))
		return
	}

	e.mu.Lock()
	if index < 0 || index >= len(e.lines) {
		n := len(e.lines)
		e.mu.Unlock()
		e.reject(ctx, OpUpdateQuantity, "index_out_of_range", slog.Int("index", index), slog.Int("lines", n))
		return
	}

	e.count += quantity - e.lines[index].Quantity
	e.lines[index].Quantity = quantity
	change := e.commitLocked(ctx, OpUpdateQuantity)
	e.mu.Unlock()

	e.notify(ctx, change)
}

// SetCart replaces the cart wholesale, for example with a server-held cart
// fetched after login. The input is normalized with domain.NormalizeLines and
// the item counter is recomputed.
func (e *Engine) SetCart(ctx context.Context, lines []domain.CartLine) {
	normalized := domain.NormalizeLines(lines)

	e.mu.Lock()
	e.lines = normalized
	e.count = domain.ItemCount(normalized)
	change := e.commitLocked(ctx, OpSet)
	e.mu.Unlock()

	e.notify(ctx, change)
}

// ClearCart empties the cart.
func (e *Engine) ClearCart(ctx context.Context) {
	e.mu.Lock()
	e.lines = []domain.CartLine{}
	e.count = 0
	change := e.commitLocked(ctx, OpClear)
	e.mu.Unlock()

	e.notify(ctx, change)
}

// State is a consistent view of the cart: lines, counter and totals read
// together.
type State struct {
	Items  []domain.CartLine  `json:"items"`
	Count  int                `json:"count"`
	Totals domain.OrderTotals `json:"totals"`
}

// State returns the lines, item count and totals under a single lock.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{
		Items:  domain.CloneLines(e.lines),
		Count:  e.count,
		Totals: domain.CalculateTotals(e.lines, e.policy),
	}
}

// Cart returns a copy of the lines in display order.
func (e *Engine) Cart() []domain.CartLine {
	e.mu.Lock()
	defer e.mu.Unlock()
	return domain.CloneLines(e.lines)
}

// Count returns the running item counter: the sum of all line quantities.
func (e *Engine) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}

// CalculateTotals returns the totals breakdown of the current cart.
func (e *Engine) CalculateTotals() domain.OrderTotals {
	e.mu.Lock()
	defer e.mu.Unlock()
	return domain.CalculateTotals(e.lines, e.policy)
}

// IsEmpty reports whether the cart has no lines.
func (e *Engine) IsEmpty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.lines) == 0
}

// commitLocked persists the current lines and builds the change record.
// e.mu must be held.
func (e *Engine) commitLocked(ctx context.Context, op Op) Change {
	mutationsTotal.WithLabelValues(string(op)).Inc()
	e.persistLocked(ctx)
	return Change{
		Key:    e.key,
		Op:     op,
		Lines:  domain.CloneLines(e.lines),
		Count:  e.count,
		Totals: domain.CalculateTotals(e.lines, e.policy),
	}
}

// persistLocked writes the full snapshot. Failures are logged only.
func (e *Engine) persistLocked(ctx context.Context) {
	data, err := domain.EncodeLines(e.lines)
	if err == nil {
		err = e.store.Set(ctx, e.key, string(data))
	}
	if err != nil {
		persistFailuresTotal.Inc()
		e.logger.ErrorContext(ctx, "failed to persist cart snapshot",
			slog.String("key", e.key),
			slog.Int("lines", len(e.lines)),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) notify(ctx context.Context, change Change) {
	for _, o := range e.observers {
		e.safeNotify(ctx, o, change)
	}
}

func (e *Engine) safeNotify(ctx context.Context, o Observer, change Change) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.ErrorContext(ctx, "cart observer panicked",
				slog.String("key", e.key),
				slog.String("op", string(change.Op)),
				slog.Any("panic", rec),
			)
		}
	}()
	o.CartChanged(ctx, change)
}

func (e *Engine) reject(ctx context.Context, op Op, reason string, attrs ...slog.Attr) {
	rejectedTotal.WithLabelValues(string(op), reason).Inc()
	args := []any{slog.String("key", e.key), slog.String("op", string(op)), slog.String("reason", reason)}
	for _, a := range attrs {
		args = append(args, a)
	}
	e.logger.WarnContext(ctx, "cart mutation rejected", args...)
}
