package cart

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *time.Time) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore(rdb)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestGetEmpty(t *testing.T) {
	s, _ := newTestStore(t)
	c, err := s.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", c.UserID)
	assert.Empty(t, c.Items)
	assert.NotNil(t, c.Items)
}

func TestAddMergesAndKeepsOrder(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Add(ctx, "u1", "p1", 1)
	require.NoError(t, err)
	_, err = s.Add(ctx, "u1", "p2", 2)
	require.NoError(t, err)
	c, err := s.Add(ctx, "u1", "p1", 3)
	require.NoError(t, err)

	assert.Equal(t, []Line{{ProductID: "p1", Quantity: 4}, {ProductID: "p2", Quantity: 2}}, c.Items)

	got, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, c.Items, got.Items)

	_, err = s.Add(ctx, "u1", "p3", 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestUpdateAndRemove(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Update(ctx, "u1", "p1", 2)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Remove(ctx, "u1", "p1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Add(ctx, "u1", "p1", 1)
	require.NoError(t, err)
	_, err = s.Add(ctx, "u1", "p2", 1)
	require.NoError(t, err)

	c, err := s.Update(ctx, "u1", "p2", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, c.Items[1].Quantity)

	_, err = s.Update(ctx, "u1", "p9", 5)
	assert.ErrorIs(t, err, ErrLineNotFound)

	c, err = s.Remove(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.Equal(t, []Line{{ProductID: "p2", Quantity: 5}}, c.Items)
}

func TestClear(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Clear(ctx, "nobody"))

	_, err := s.Add(ctx, "u1", "p1", 1)
	require.NoError(t, err)
	require.NoError(t, s.Clear(ctx, "u1"))

	c, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, c.Items)
}

func TestClearIfUnchangedSince(t *testing.T) {
	s, now := newTestStore(t)
	ctx := context.Background()
	orderedAt := *now

	_, err := s.Add(ctx, "u1", "p1", 1)
	require.NoError(t, err)

	// Cart untouched since the order: cleared.
	ok, err := s.ClearIfUnchangedSince(ctx, "u1", orderedAt)
	require.NoError(t, err)
	assert.True(t, ok)

	// Absent cart counts as cleared.
	ok, err = s.ClearIfUnchangedSince(ctx, "u1", orderedAt)
	require.NoError(t, err)
	assert.True(t, ok)

	// User built a new cart after the order: kept.
	*now = orderedAt.Add(time.Minute)
	_, err = s.Add(ctx, "u1", "p7", 2)
	require.NoError(t, err)

	ok, err = s.ClearIfUnchangedSince(ctx, "u1", orderedAt)
	require.NoError(t, err)
	assert.False(t, ok)

	c, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, c.Items, 1)
}
