package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-storefront/internal/cart"
	"github.com/ariefcatur/go-storefront/internal/catalog"
	kafkax "github.com/ariefcatur/go-storefront/internal/kafka"
	"github.com/ariefcatur/go-storefront/internal/logx"
	"github.com/ariefcatur/go-storefront/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memItems is an in-memory ItemStore with the same optimistic check as Repo.
type memItems struct {
	mu    sync.Mutex
	items map[string]Item
	seq   int
	fail  error

	failTransition error
}

func newMemItems() *memItems { return &memItems{items: map[string]Item{}} }

func (m *memItems) Insert(_ context.Context, a Anomaly) (Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return Item{}, m.fail
	}
	if it, ok := m.items[a.ID]; ok {
		return it, nil
	}
	m.seq++
	id := a.ID
	if id == "" {
		id = fmt.Sprintf("item-%d", m.seq)
	}
	now := time.Now().UTC()
	it := Item{
		ID: id, Kind: a.Kind, OrderID: a.OrderID, UserID: a.UserID,
		ProductID: a.ProductID, Quantity: a.Quantity, Status: StatusPending, Reason: a.cause(),
		OrderedAt: a.OrderedAt, CreatedAt: now, UpdatedAt: now,
	}
	m.items[it.ID] = it
	return it, nil
}

func (m *memItems) Get(_ context.Context, id string) (Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	return it, nil
}

func (m *memItems) Transition(_ context.Context, prev Item, to Status, reason string, attempts int) (Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !CanTransition(prev.Status, to) {
		return Item{}, errors.New("illegal transition")
	}
	if m.failTransition != nil {
		return Item{}, m.failTransition
	}
	cur := m.items[prev.ID]
	if cur.Status != prev.Status || cur.Attempts != prev.Attempts {
		return Item{}, ErrConflict
	}
	cur.Status, cur.Reason, cur.Attempts, cur.UpdatedAt = to, reason, attempts, time.Now().UTC()
	m.items[cur.ID] = cur
	return cur, nil
}

func (m *memItems) ListPending(_ context.Context, before time.Time, limit int) ([]Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Item
	for _, it := range m.items {
		if it.Status == StatusPending && !it.UpdatedAt.After(before) && len(out) < limit {
			out = append(out, it)
		}
	}
	return out, nil
}

type fixture struct {
	w       *Worker
	items   *memItems
	catalog *catalog.Store
	carts   *cart.Store
	rdb     *redis.Client
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := fixture{items: newMemItems(), catalog: catalog.NewStore(rdb), carts: cart.NewStore(rdb), rdb: rdb}
	f.w = &Worker{
		Items:       f.items,
		Inventory:   f.catalog,
		Carts:       f.carts,
		Redis:       rdb,
		Logger:      logx.Discard(),
		MaxAttempts: 3,
	}
	return f
}

func (f fixture) product(t *testing.T, stock int) catalog.Product {
	t.Helper()
	p, err := f.catalog.Create(context.Background(), catalog.ProductInput{
		Name: "Lamp", Price: decimal.NewFromInt(10), Stock: stock,
	})
	require.NoError(t, err)
	return p
}

func TestProcessStockDecrementResolves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, 5)

	it, err := f.items.Insert(ctx, Anomaly{Kind: KindStockDecrement, OrderID: "o-1", UserID: "u-1", ProductID: p.ID, Quantity: 2})
	require.NoError(t, err)

	got, err := f.w.Process(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, got.Status)
	assert.Equal(t, 1, got.Attempts)

	left, err := f.catalog.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, left.Stock)

	again, err := f.w.Process(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestProcessTreatsAppliedDecrementAsResolved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, 5)

	_, err := f.catalog.Decrement(ctx, "o-1", p.ID, 2)
	require.NoError(t, err)
	it, err := f.items.Insert(ctx, Anomaly{Kind: KindStockDecrement, OrderID: "o-1", ProductID: p.ID, Quantity: 2})
	require.NoError(t, err)

	got, err := f.w.Process(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, got.Status)

	left, err := f.catalog.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, left.Stock)
}

func TestProcessEscalatesAfterMaxAttempts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, 1)

	it, err := f.items.Insert(ctx, Anomaly{Kind: KindStockDecrement, OrderID: "o-1", ProductID: p.ID, Quantity: 4})
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		got, err := f.w.Process(ctx, it.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, got.Status)
		assert.Equal(t, i, got.Attempts)
		assert.Contains(t, got.Reason, "insufficient stock")
	}
	got, err := f.w.Process(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusEscalated, got.Status)

	// Escalated items wait for an operator.
	same, err := f.w.Process(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, same.Attempts)

	// The operator restocks and retries.
	stock := 10
	_, err = f.catalog.Update(ctx, p.ID, catalog.ProductPatch{Stock: &stock})
	require.NoError(t, err)
	got, err = f.w.Retry(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, got.Status)
	assert.Equal(t, 4, got.Attempts)

	left, err := f.catalog.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, left.Stock)
}

func TestProcessCartClear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.carts.Add(ctx, "u-1", "p-1", 1)
	require.NoError(t, err)

	stale, err := f.items.Insert(ctx, Anomaly{Kind: KindCartClear, OrderID: "o-1", UserID: "u-1", OrderedAt: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	got, err := f.w.Process(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, got.Status)
	assert.Equal(t, reasonSuperseded, got.Reason)
	c, err := f.carts.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.Len(t, c.Items, 1, "a cart changed after the order is kept")

	fresh, err := f.items.Insert(ctx, Anomaly{Kind: KindCartClear, OrderID: "o-2", UserID: "u-1", OrderedAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	got, err = f.w.Process(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, "cart cleared", got.Reason)
	c, err = f.carts.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.Empty(t, c.Items)
}

func TestProcessUnknownItem(t *testing.T) {
	f := newFixture(t)
	_, err := f.w.Process(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func requiredMessage(t *testing.T, p RequiredPayload) (kafkago.Message, kafkax.Envelope) {
	t.Helper()
	env, err := kafkax.NewEnvelope(EventReconciliationRequired, "test", p.OrderID, p)
	require.NoError(t, err)
	return kafkago.Message{Value: kafkax.MustMarshal(env)}, env
}

func TestHandleMessageDedups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, 5)

	it, err := f.items.Insert(ctx, Anomaly{Kind: KindStockDecrement, OrderID: "o-1", ProductID: p.ID, Quantity: 1})
	require.NoError(t, err)
	msg, env := requiredMessage(t, RequiredPayload{ItemID: it.ID, Kind: KindStockDecrement, OrderID: "o-1", ProductID: p.ID, Quantity: 1})

	require.NoError(t, f.w.HandleMessage(ctx, msg))
	require.NoError(t, f.w.HandleMessage(ctx, msg))

	got, err := f.items.Get(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, got.Status)
	assert.Equal(t, 1, got.Attempts)

	n, err := f.rdb.Exists(ctx, redisx.DedupKey(dedupService, env.EventID)).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestHandleMessageRecordsMissingItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, 5)

	msg, _ := requiredMessage(t, RequiredPayload{Kind: KindStockDecrement, OrderID: "o-7", UserID: "u-1", ProductID: p.ID, Quantity: 2, Cause: "timeout"})
	require.NoError(t, f.w.HandleMessage(ctx, msg))

	require.Len(t, f.items.items, 1)
	for _, it := range f.items.items {
		assert.Equal(t, StatusResolved, it.Status)
		assert.Equal(t, "o-7", it.OrderID)
	}
	left, err := f.catalog.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, left.Stock)
}

func TestHandleMessageReleasesClaimOnFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.items.fail = errors.New("db down")

	msg, env := requiredMessage(t, RequiredPayload{Kind: KindCartClear, OrderID: "o-1", UserID: "u-1"})
	require.Error(t, f.w.HandleMessage(ctx, msg))

	n, err := f.rdb.Exists(ctx, redisx.DedupKey(dedupService, env.EventID)).Result()
	require.NoError(t, err)
	assert.Zero(t, n)

	f.items.fail = nil
	require.NoError(t, f.w.HandleMessage(ctx, msg))
	assert.Len(t, f.items.items, 1)
}

func TestHandleMessageRedeliveryRecordsOneItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, 5)
	f.items.failTransition = errors.New("db down")

	msg, env := requiredMessage(t, RequiredPayload{Kind: KindStockDecrement, OrderID: "o-3", UserID: "u-1", ProductID: p.ID, Quantity: 1})
	require.Error(t, f.w.HandleMessage(ctx, msg))
	require.Len(t, f.items.items, 1)

	f.items.failTransition = nil
	require.NoError(t, f.w.HandleMessage(ctx, msg))
	require.Len(t, f.items.items, 1)

	got, err := f.items.Get(ctx, EventItemID(env.EventID))
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, got.Status)
	left, err := f.catalog.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, left.Stock)
}

func TestHandleMessageIgnoresOtherEvents(t *testing.T) {
	f := newFixture(t)
	env, err := kafkax.NewEnvelope("OrderPlaced", "test", "o-1", map[string]string{})
	require.NoError(t, err)
	require.NoError(t, f.w.HandleMessage(context.Background(), kafkago.Message{Value: kafkax.MustMarshal(env)}))
	require.NoError(t, f.w.HandleMessage(context.Background(), kafkago.Message{Value: []byte("not json")}))
	assert.Empty(t, f.items.items)
}

func TestSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, 5)

	for _, o := range []string{"o-1", "o-2"} {
		_, err := f.items.Insert(ctx, Anomaly{Kind: KindStockDecrement, OrderID: o, ProductID: p.ID, Quantity: 1})
		require.NoError(t, err)
	}

	f.w.now = func() time.Time { return time.Now().Add(-time.Hour) }
	n, err := f.w.Sweep(ctx, time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n, "fresh items are left to the consumer")

	f.w.now = func() time.Time { return time.Now().Add(time.Hour) }
	n, err = f.w.Sweep(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	left, err := f.catalog.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, left.Stock)
}

func TestTransitions(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusResolved))
	assert.True(t, CanTransition(StatusPending, StatusEscalated))
	assert.True(t, CanTransition(StatusPending, StatusPending))
	assert.True(t, CanTransition(StatusEscalated, StatusResolved))
	assert.False(t, CanTransition(StatusResolved, StatusPending))
	assert.False(t, CanTransition(StatusEscalated, StatusPending))

	_, ok := ParseStatus("ESCALATED")
	assert.True(t, ok)
	_, ok = ParseStatus("DONE")
	assert.False(t, ok)
}
