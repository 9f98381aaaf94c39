package creds

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/acksell/dynawire/transport"
)

type refreshState int

const (
	refreshNone refreshState = iota
	refreshSoon
	refreshRequired
)

func checkRefresh(expires, now time.Time) refreshState {
	diff := expires.Sub(now)
	if diff < expiredThreshold {
		return refreshRequired
	}
	if diff < expiresSoonThreshold {
		return refreshSoon
	}
	return refreshNone
}

// expiring is anything a refresher can cache. A value that reports no
// expiry never goes stale.
type expiring interface {
	expiresAt() (time.Time, bool)
}

func (m Metadata) expiresAt() (time.Time, bool) {
	if m.Expires == nil {
		return time.Time{}, false
	}
	return *m.Expires, true
}

// refresher keeps a cached value fresh through a fetch function.
//
// In the mandatory window (no value yet, or too close to expiry) callers
// block on a single shared fetch: the first caller starts it, everyone else
// joins it, and all of them see the same result or the same error. In the
// expiring-soon window callers get the cached value immediately and a
// best-effort background fetch is started if none is running; its failure
// is only logged.
//
// A caller abandoning a shared fetch does not cancel it for the others.
// The fetch is cancelled only when the last waiter is gone, and a
// background fetch with no waiters runs to completion.
type refresher[T expiring] struct {
	name  string
	fetch func(context.Context, transport.HTTP) (T, error)
	log   zerolog.Logger
	now   func() time.Time

	mu     sync.Mutex
	cur    *T
	flight *refreshFlight[T]
}

type refreshFlight[T expiring] struct {
	done    chan struct{}
	val     T
	err     error
	cancel  context.CancelFunc
	waiters int
}

func newRefresher[T expiring](name string, fetch func(context.Context, transport.HTTP) (T, error)) *refresher[T] {
	return &refresher[T]{
		name:  name,
		fetch: fetch,
		log:   zerolog.Nop(),
		now:   time.Now,
	}
}

func (r *refresher[T]) get(ctx context.Context, ht transport.HTTP) (T, error) {
	r.mu.Lock()
	switch r.stateLocked() {
	case refreshNone:
		cur := *r.cur
		r.mu.Unlock()
		return cur, nil
	case refreshSoon:
		if r.flight == nil {
			r.log.Debug().Str("refresher", r.name).Msg("starting early refresh")
			r.startLocked(ht)
		}
		cur := *r.cur
		r.mu.Unlock()
		return cur, nil
	}

	fl := r.flight
	if fl == nil {
		r.log.Debug().Str("refresher", r.name).Msg("starting mandatory refresh")
		fl = r.startLocked(ht)
	} else {
		r.log.Debug().Str("refresher", r.name).Msg("joining active refresh")
	}
	fl.waiters++
	r.mu.Unlock()

	select {
	case <-fl.done:
		r.mu.Lock()
		fl.waiters--
		cur := r.cur
		r.mu.Unlock()
		if fl.err != nil {
			var zero T
			return zero, fl.err
		}
		if cur != nil {
			return *cur, nil
		}
		// Invalidated between completion and here; the fetched value is
		// still the freshest thing we have.
		return fl.val, nil
	case <-ctx.Done():
		r.mu.Lock()
		fl.waiters--
		if fl.waiters == 0 && r.flight == fl {
			fl.cancel()
			r.flight = nil
		}
		r.mu.Unlock()
		var zero T
		return zero, ctx.Err()
	}
}

func (r *refresher[T]) invalidate() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	had := r.cur != nil
	r.cur = nil
	return had
}

func (r *refresher[T]) stateLocked() refreshState {
	if r.cur == nil {
		return refreshRequired
	}
	expires, ok := (*r.cur).expiresAt()
	if !ok {
		return refreshNone
	}
	return checkRefresh(expires, r.now())
}

func (r *refresher[T]) startLocked(ht transport.HTTP) *refreshFlight[T] {
	fctx, cancel := context.WithCancel(context.Background())
	fl := &refreshFlight[T]{done: make(chan struct{}), cancel: cancel}
	r.flight = fl
	go func() {
		defer cancel()
		val, err := r.fetch(fctx, ht)
		r.mu.Lock()
		if r.flight == fl {
			r.flight = nil
		}
		fl.val, fl.err = val, err
		if err == nil {
			r.installLocked(val)
		} else {
			r.log.Debug().Str("refresher", r.name).Err(err).Msg("refresh failed")
		}
		close(fl.done)
		r.mu.Unlock()
	}()
	return fl
}

// installLocked keeps whichever value expires later, so a slow stale fetch
// never clobbers a fresher one.
func (r *refresher[T]) installLocked(val T) {
	if r.cur != nil {
		newExpires, newOK := val.expiresAt()
		curExpires, curOK := (*r.cur).expiresAt()
		if newOK && curOK && !newExpires.After(curExpires) {
			return
		}
	}
	r.cur = &val
}
