package fastview

import (
	"sync"

	channerics "github.com/niceyeti/channerics/channels"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Register fans a single ele-update channel out to any number of subscribers. Each
// subscriber holds the updates it has not yet taken, keyed by ele-id, so a slow
// subscriber skips intermediate values but never misses the latest one.
type Register struct {
	mu     sync.Mutex
	latest map[string]EleUpdate
	subs   map[*Subscription]struct{}
}

// NewRegister consumes updates until done is closed or updates is closed.
func NewRegister(
	done <-chan struct{},
	updates <-chan []EleUpdate,
) *Register {
	reg := &Register{
		latest: map[string]EleUpdate{},
		subs:   map[*Subscription]struct{}{},
	}

	go func() {
		for batch := range channerics.OrDone(done, updates) {
			reg.post(batch)
		}
	}()
	return reg
}

func (reg *Register) post(batch []EleUpdate) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for _, update := range batch {
		reg.latest[update.EleId] = update
	}
	for sub := range reg.subs {
		sub.post(batch)
	}
}

// Subscribe returns a subscription whose pending updates start at the latest value of
// every element seen so far, which brings a page rendered from an older frame up to date.
func (reg *Register) Subscribe() *Subscription {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	sub := &Subscription{pending: maps.Clone(reg.latest)}
	reg.subs[sub] = struct{}{}
	return sub
}

// Unsubscribe stops delivery to sub.
func (reg *Register) Unsubscribe(sub *Subscription) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.subs, sub)
}

// Subscribers returns the number of active subscriptions.
func (reg *Register) Subscribers() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.subs)
}

// Subscription is one subscriber's coalesced view of the update stream.
type Subscription struct {
	mu      sync.Mutex
	pending map[string]EleUpdate
}

func (sub *Subscription) post(batch []EleUpdate) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	for _, update := range batch {
		sub.pending[update.EleId] = update
	}
}

// Take returns and clears the pending updates, ordered by ele-id.
func (sub *Subscription) Take() []EleUpdate {
	sub.mu.Lock()
	pending := sub.pending
	sub.pending = map[string]EleUpdate{}
	sub.mu.Unlock()

	updates := maps.Values(pending)
	slices.SortFunc(updates, func(a, b EleUpdate) int {
		switch {
		case a.EleId < b.EleId:
			return -1
		case a.EleId > b.EleId:
			return 1
		}
		return 0
	})
	return updates
}
