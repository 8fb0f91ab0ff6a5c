package client

import (
	"context"
	"time"
)

// DefaultRevalidateInterval is how often an authenticated session is
// re-confirmed against the server.
const DefaultRevalidateInterval = 30 * time.Minute

// Revalidator drives periodic and visibility-triggered session
// revalidation. Both triggers race into the same Store.Validate; the
// store's epoch counter keeps them from interleaving with logout. The
// periodic timer only runs while authenticated and is torn down when
// authentication ends or Stop is called.
type Revalidator struct {
	store    *Store
	interval time.Duration

	visible chan struct{}
	stop    chan struct{}
	done    chan struct{}
}

// NewRevalidator wires a revalidator to store. interval <= 0 selects
// the default.
func NewRevalidator(store *Store, interval time.Duration) *Revalidator {
	if interval <= 0 {
		interval = DefaultRevalidateInterval
	}
	return &Revalidator{
		store:    store,
		interval: interval,
		visible:  make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the revalidation loop. Call Stop to tear it down.
func (r *Revalidator) Start() {
	go r.run()
}

// NotifyVisible signals a tab-refocus. Coalesced: signalling while a
// notification is pending is a no-op.
func (r *Revalidator) NotifyVisible() {
	select {
	case r.visible <- struct{}{}:
	default:
	}
}

// Stop cancels the loop and waits for it to exit.
func (r *Revalidator) Stop() {
	close(r.stop)
	<-r.done
}

func (r *Revalidator) run() {
	defer close(r.done)

	updates, cancel := r.store.Subscribe()
	defer cancel()

	var ticker *time.Ticker
	var tick <-chan time.Time
	stopTicker := func() {
		if ticker != nil {
			ticker.Stop()
			ticker = nil
			tick = nil
		}
	}
	defer stopTicker()

	if r.store.State().IsAuthenticated {
		ticker = time.NewTicker(r.interval)
		tick = ticker.C
	}

	for {
		select {
		case <-r.stop:
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			// The timer only lives while authenticated.
			if snap.IsAuthenticated && ticker == nil {
				ticker = time.NewTicker(r.interval)
				tick = ticker.C
			} else if !snap.IsAuthenticated && !snap.IsLoading {
				stopTicker()
			}
		case <-tick:
			r.revalidate()
		case <-r.visible:
			if r.store.State().IsAuthenticated {
				r.revalidate()
			}
		}
	}
}

func (r *Revalidator) revalidate() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.store.Validate(ctx)
}
