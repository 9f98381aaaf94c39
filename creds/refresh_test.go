package creds

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acksell/dynawire/transport"
)

func metadataExpiring(id string, expires time.Time) Metadata {
	return Metadata{Key: Key{ID: id, Secret: "secret"}, Expires: &expires}
}

func TestCheckRefresh(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		expires time.Time
		want    refreshState
	}{
		{"already expired", now.Add(-time.Minute), refreshRequired},
		{"inside the expired threshold", now.Add(5 * time.Minute), refreshRequired},
		{"inside the soon threshold", now.Add(12 * time.Minute), refreshSoon},
		{"fresh", now.Add(time.Hour), refreshNone},
		{"exactly at the soon threshold", now.Add(15 * time.Minute), refreshNone},
		{"exactly at the expired threshold", now.Add(10 * time.Minute), refreshSoon},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, checkRefresh(tt.expires, now))
		})
	}
}

func TestRefresherSingleFlight(t *testing.T) {
	t.Run("concurrent mandatory refreshes share one fetch", func(t *testing.T) {
		var calls atomic.Int32
		gate := make(chan struct{})
		expires := time.Now().Add(time.Hour)
		r := newRefresher("test", func(ctx context.Context, _ transport.HTTP) (Metadata, error) {
			calls.Add(1)
			select {
			case <-gate:
			case <-ctx.Done():
				return Metadata{}, ctx.Err()
			}
			return metadataExpiring("AKID", expires), nil
		})

		const waiters = 5
		type result struct {
			md  Metadata
			err error
		}
		results := make(chan result, waiters)
		var wg sync.WaitGroup
		for range waiters {
			wg.Add(1)
			go func() {
				defer wg.Done()
				md, err := r.get(context.Background(), nil)
				results <- result{md, err}
			}()
		}
		require.Eventually(t, func() bool {
			r.mu.Lock()
			defer r.mu.Unlock()
			return r.flight != nil && r.flight.waiters == waiters
		}, time.Second, time.Millisecond)
		close(gate)
		wg.Wait()

		assert.Equal(t, int32(1), calls.Load())
		for range waiters {
			got := <-results
			require.NoError(t, got.err)
			assert.Equal(t, "AKID", got.md.Key.ID)
		}
	})

	t.Run("fetch failure reaches every waiter", func(t *testing.T) {
		boom := errors.New("metadata service down")
		gate := make(chan struct{})
		r := newRefresher("test", func(ctx context.Context, _ transport.HTTP) (Metadata, error) {
			select {
			case <-gate:
			case <-ctx.Done():
			}
			return Metadata{}, boom
		})

		errs := make(chan error, 2)
		var wg sync.WaitGroup
		for range 2 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := r.get(context.Background(), nil)
				errs <- err
			}()
		}
		require.Eventually(t, func() bool {
			r.mu.Lock()
			defer r.mu.Unlock()
			return r.flight != nil && r.flight.waiters == 2
		}, time.Second, time.Millisecond)
		close(gate)
		wg.Wait()

		assert.ErrorIs(t, <-errs, boom)
		assert.ErrorIs(t, <-errs, boom)
	})

	t.Run("expiring soon serves the cached key and refreshes behind it", func(t *testing.T) {
		var calls atomic.Int32
		fresh := metadataExpiring("NEW", time.Now().Add(2*time.Hour))
		r := newRefresher("test", func(ctx context.Context, _ transport.HTTP) (Metadata, error) {
			calls.Add(1)
			return fresh, nil
		})
		soon := metadataExpiring("OLD", time.Now().Add(12*time.Minute))
		r.cur = &soon

		md, err := r.get(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, "OLD", md.Key.ID)

		require.Eventually(t, func() bool {
			r.mu.Lock()
			defer r.mu.Unlock()
			return r.cur != nil && r.cur.Key.ID == "NEW"
		}, time.Second, time.Millisecond)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("background failure is swallowed and the cached key survives", func(t *testing.T) {
		r := newRefresher("test", func(ctx context.Context, _ transport.HTTP) (Metadata, error) {
			return Metadata{}, errors.New("flaky")
		})
		soon := metadataExpiring("OLD", time.Now().Add(12*time.Minute))
		r.cur = &soon

		md, err := r.get(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, "OLD", md.Key.ID)

		require.Eventually(t, func() bool {
			r.mu.Lock()
			defer r.mu.Unlock()
			return r.flight == nil
		}, time.Second, time.Millisecond)
		r.mu.Lock()
		defer r.mu.Unlock()
		assert.Equal(t, "OLD", r.cur.Key.ID)
	})

	t.Run("abandoning one waiter keeps the fetch alive for the rest", func(t *testing.T) {
		var calls atomic.Int32
		gate := make(chan struct{})
		expires := time.Now().Add(time.Hour)
		r := newRefresher("test", func(ctx context.Context, _ transport.HTTP) (Metadata, error) {
			calls.Add(1)
			select {
			case <-gate:
			case <-ctx.Done():
				return Metadata{}, ctx.Err()
			}
			return metadataExpiring("AKID", expires), nil
		})

		cancellable, cancel := context.WithCancel(context.Background())
		abandoned := make(chan error, 1)
		go func() {
			_, err := r.get(cancellable, nil)
			abandoned <- err
		}()
		type result struct {
			md  Metadata
			err error
		}
		patient := make(chan result, 1)
		go func() {
			md, err := r.get(context.Background(), nil)
			patient <- result{md, err}
		}()
		require.Eventually(t, func() bool {
			r.mu.Lock()
			defer r.mu.Unlock()
			return r.flight != nil && r.flight.waiters == 2
		}, time.Second, time.Millisecond)

		cancel()
		assert.ErrorIs(t, <-abandoned, context.Canceled)

		close(gate)
		got := <-patient
		require.NoError(t, got.err)
		assert.Equal(t, "AKID", got.md.Key.ID)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("last waiter cancelling cancels the fetch", func(t *testing.T) {
		fetchCancelled := make(chan struct{})
		r := newRefresher("test", func(ctx context.Context, _ transport.HTTP) (Metadata, error) {
			<-ctx.Done()
			close(fetchCancelled)
			return Metadata{}, ctx.Err()
		})

		ctx, cancel := context.WithCancel(context.Background())
		got := make(chan error, 1)
		go func() {
			_, err := r.get(ctx, nil)
			got <- err
		}()
		require.Eventually(t, func() bool {
			r.mu.Lock()
			defer r.mu.Unlock()
			return r.flight != nil && r.flight.waiters == 1
		}, time.Second, time.Millisecond)

		cancel()
		assert.ErrorIs(t, <-got, context.Canceled)
		select {
		case <-fetchCancelled:
		case <-time.After(time.Second):
			t.Fatal("fetch was not cancelled after the last waiter left")
		}
	})

	t.Run("invalidate clears the cached value", func(t *testing.T) {
		var calls atomic.Int32
		expires := time.Now().Add(time.Hour)
		r := newRefresher("test", func(ctx context.Context, _ transport.HTTP) (Metadata, error) {
			calls.Add(1)
			return metadataExpiring("AKID", expires), nil
		})

		_, err := r.get(context.Background(), nil)
		require.NoError(t, err)
		_, err = r.get(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, int32(1), calls.Load())

		assert.True(t, r.invalidate())
		assert.False(t, r.invalidate())

		_, err = r.get(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, int32(2), calls.Load())
	})
}

func TestRefresherInstall(t *testing.T) {
	t.Run("keeps whichever metadata expires later", func(t *testing.T) {
		r := newRefresher[Metadata]("test", nil)
		earlier := metadataExpiring("EARLY", time.Now().Add(30*time.Minute))
		later := metadataExpiring("LATE", time.Now().Add(2*time.Hour))

		r.installLocked(earlier)
		r.installLocked(later)
		assert.Equal(t, "LATE", r.cur.Key.ID)

		r.installLocked(earlier)
		assert.Equal(t, "LATE", r.cur.Key.ID)
	})

	t.Run("anything beats nothing", func(t *testing.T) {
		r := newRefresher[Metadata]("test", nil)
		md := metadataExpiring("AKID", time.Now().Add(time.Minute))
		r.installLocked(md)
		require.NotNil(t, r.cur)
		assert.Equal(t, "AKID", r.cur.Key.ID)
	})
}
