package cart

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/store"
)

const DefaultIdleTimeout = 30 * time.Minute

// Adder is handed to components outside the cart view (product cards, the
// add-item event consumer) so they can put products in a session's cart.
type Adder interface {
	AddItem(ctx context.Context, session string, p domain.Product, quantity int) error
}

// Snapshot is a read-only view of a session's cart.
type Snapshot struct {
	Session   string
	Items     []domain.LineItem
	Total     decimal.Decimal
	ItemCount int
}

type entry struct {
	manager  *Manager
	lastSeen atomic.Int64 // unix nanos
}

func (e *entry) touch(now time.Time) { e.lastSeen.Store(now.UnixNano()) }

// Registry activates one Manager per session, loading its cart from the
// mirror the first time the session is seen. Sessions idle for longer than
// Options.IdleTimeout are dropped and reload from the mirror on next use.
type Registry struct {
	opts     Options
	mu       sync.RWMutex
	managers map[string]*entry
	sfg      singleflight.Group // collapses concurrent activations of one session
	now      func() time.Time
}

func NewRegistry(opts Options) *Registry {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	return &Registry{
		opts:     opts,
		managers: make(map[string]*entry),
		now:      time.Now,
	}
}

func (r *Registry) Get(ctx context.Context, session string) (*Manager, error) {
	if m, ok := r.lookup(session); ok {
		return m, nil
	}

	v, err, _ := r.sfg.Do(session, func() (interface{}, error) {
		if m, ok := r.lookup(session); ok {
			return m, nil
		}

		cart, err := r.load(ctx, session)
		if err != nil {
			return nil, err
		}

		e := &entry{manager: newManager(session, cart, r.opts)}
		e.touch(r.now())
		r.mu.Lock()
		r.managers[session] = e
		r.mu.Unlock()
		return e.manager, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Manager), nil
}

// Snapshot reads a session's cart without activating it. An active session
// answers from memory; otherwise the mirror is read and nothing is cached.
func (r *Registry) Snapshot(ctx context.Context, session string) (Snapshot, error) {
	if m, ok := r.lookup(session); ok {
		m.mu.Lock()
		defer m.mu.Unlock()
		return snapshotOf(session, m.cart), nil
	}

	cart, err := r.load(ctx, session)
	if err != nil {
		return Snapshot{}, err
	}
	return snapshotOf(session, cart), nil
}

func (r *Registry) AddItem(ctx context.Context, session string, p domain.Product, quantity int) error {
	m, err := r.Get(ctx, session)
	if err != nil {
		return err
	}
	return m.AddItem(ctx, p, quantity)
}

// Release drops the in-memory manager; the next Get reloads from the mirror.
func (r *Registry) Release(session string) {
	r.mu.Lock()
	delete(r.managers, session)
	r.mu.Unlock()
}

// Active is the number of sessions held in memory.
func (r *Registry) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.managers)
}

// EvictIdle drops sessions not used within the idle timeout. A manager in
// the middle of an operation is skipped until the next sweep.
func (r *Registry) EvictIdle() int {
	cutoff := r.now().Add(-r.opts.IdleTimeout).UnixNano()

	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for session, e := range r.managers {
		if e.lastSeen.Load() > cutoff {
			continue
		}
		if !e.manager.mu.TryLock() {
			continue
		}
		delete(r.managers, session)
		e.manager.mu.Unlock()
		evicted++
	}

	if evicted > 0 {
		if r.opts.Metrics != nil {
			r.opts.Metrics.SessionsEvicted.Add(float64(evicted))
		}
		r.opts.Logger.Debug("evicted idle carts",
			zap.Int("evicted", evicted),
			zap.Int("active", len(r.managers)))
	}
	return evicted
}

// RunEvictor sweeps idle sessions every interval until ctx is cancelled.
func (r *Registry) RunEvictor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.EvictIdle()
		case <-ctx.Done():
			return
		}
	}
}

func (r *Registry) lookup(session string) (*Manager, bool) {
	r.mu.RLock()
	e, ok := r.managers[session]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	e.touch(r.now())
	return e.manager, true
}

// load reads the mirror. A cart that cannot be decoded is discarded and the
// mirror reset to empty instead of failing the session.
func (r *Registry) load(ctx context.Context, session string) (domain.Cart, error) {
	cart, err := r.opts.Mirror.Load(ctx, session)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, store.ErrMalformedState) {
		return domain.Cart{}, err
	}

	r.opts.Logger.Warn("discarding malformed cart state",
		zap.String("session_id", session),
		zap.Error(err))
	if r.opts.Metrics != nil {
		r.opts.Metrics.StateResets.Inc()
	}
	if err := r.opts.Mirror.Reset(ctx, session); err != nil {
		return domain.Cart{}, err
	}
	return domain.Cart{}, nil
}

func snapshotOf(session string, c domain.Cart) Snapshot {
	items := domain.NewCart(c.Items).Items
	if items == nil {
		items = []domain.LineItem{}
	}
	return Snapshot{
		Session:   session,
		Items:     items,
		Total:     c.Total(),
		ItemCount: c.ItemCount(),
	}
}
