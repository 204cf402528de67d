package cache

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dusk-indust/briefing/internal/collab"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeClock is a settable Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// storeFactories lets every behavioural test run against both backends.
func storeFactories(t *testing.T) map[string]func(Clock) Store {
	return map[string]func(Clock) Store{
		"memory": func(c Clock) Store { return NewMemStore(c) },
		"sqlite": func(c Clock) Store {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cache", "briefing.db"), c)
			require.NoError(t, err)
			return s
		},
	}
}

func TestStore_SetGetExpire(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			clock := newFakeClock()
			store := newStore(clock.Now)
			defer store.Close()
			ctx := context.Background()

			_, ok, err := store.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, store.Set(ctx, "k", json.RawMessage(`{"v":1}`), time.Hour))
			got, ok, err := store.Get(ctx, "k")
			require.NoError(t, err)
			require.True(t, ok)
			assert.JSONEq(t, `{"v":1}`, string(got))

			require.NoError(t, store.Set(ctx, "k", json.RawMessage(`{"v":2}`), time.Hour))
			got, _, err = store.Get(ctx, "k")
			require.NoError(t, err)
			assert.JSONEq(t, `{"v":2}`, string(got))

			clock.Advance(time.Hour)
			_, ok, err = store.Get(ctx, "k")
			require.NoError(t, err)
			assert.False(t, ok, "entry expires at its TTL")
		})
	}
}

func TestStore_NoExpiryAndPurge(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			clock := newFakeClock()
			store := newStore(clock.Now)
			defer store.Close()
			ctx := context.Background()

			require.NoError(t, store.Set(ctx, "forever", json.RawMessage(`{}`), 0))
			require.NoError(t, store.Set(ctx, "a", json.RawMessage(`{}`), time.Minute))
			require.NoError(t, store.Set(ctx, "b", json.RawMessage(`{}`), time.Minute))

			clock.Advance(24 * time.Hour)
			n, err := store.Purge(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			_, ok, err := store.Get(ctx, "forever")
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "briefing.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, Key("Atlas"), json.RawMessage(`{"name":"Atlas"}`), time.Hour))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path, nil)
	require.NoError(t, err)
	defer s.Close()
	got, ok, err := s.Get(ctx, Key("atlas"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"name":"Atlas"}`, string(got))
}

func TestKey(t *testing.T) {
	assert.Equal(t, "entity:v2:figure_02", Key("  Figure 02 "))
	assert.Equal(t, Key("OPTIMUS"), Key("optimus"))
}

type countingAnalyzer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingAnalyzer) Analyze(ctx context.Context, e collab.Entity) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return json.RawMessage(`{"name":"` + e.Name + `"}`), nil
}

func TestAnalyzer_HitSkipsRemoteCall(t *testing.T) {
	next := &countingAnalyzer{}
	a := NewAnalyzer(next, NewMemStore(nil), 0, zaptest.NewLogger(t))
	ctx := context.Background()

	first, err := a.Analyze(ctx, collab.Entity{ID: "atlas", Name: "Atlas"})
	require.NoError(t, err)
	second, err := a.Analyze(ctx, collab.Entity{ID: "atlas", Name: " atlas"})
	require.NoError(t, err)

	assert.JSONEq(t, string(first), string(second))
	assert.Equal(t, 1, next.calls)
	hits, misses := a.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestAnalyzer_FailuresAreNotCached(t *testing.T) {
	next := &countingAnalyzer{err: errors.New("upstream down")}
	store := NewMemStore(nil)
	a := NewAnalyzer(next, store, time.Hour, nil)

	_, err := a.Analyze(context.Background(), collab.Entity{ID: "x", Name: "X"})
	require.EqualError(t, err, "upstream down")
	assert.Equal(t, 0, store.Len())

	next.err = nil
	_, err = a.Analyze(context.Background(), collab.Entity{ID: "x", Name: "X"})
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
	assert.Equal(t, 1, store.Len())
}

// brokenStore fails every operation.
type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (json.RawMessage, bool, error) {
	return nil, false, errors.New("disk on fire")
}
func (brokenStore) Set(context.Context, string, json.RawMessage, time.Duration) error {
	return errors.New("disk on fire")
}
func (brokenStore) Purge(context.Context) (int, error) { return 0, nil }
func (brokenStore) Close() error                       { return nil }

func TestAnalyzer_StoreFailureNeverFailsAnalysis(t *testing.T) {
	next := &countingAnalyzer{}
	a := NewAnalyzer(next, brokenStore{}, 0, zaptest.NewLogger(t))

	got, err := a.Analyze(context.Background(), collab.Entity{ID: "atlas", Name: "Atlas"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Atlas"}`, string(got))
}
