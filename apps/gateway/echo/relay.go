package echogw

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/victorpuello/kampus-sub004/core/live"
)

// Relay fans reconciled snapshots out to any number of SSE subscribers.
// It also doubles as the feed's activity gate: while nobody subscribes,
// the orchestrator skips its poll ticks.
type Relay struct {
	mu   sync.Mutex
	subs map[chan []byte]struct{}
}

func NewRelay() *Relay {
	return &Relay{subs: make(map[chan []byte]struct{})}
}

// Broadcast encodes a snapshot once and hands it to every subscriber.
// A slow subscriber misses the event rather than blocking the feed.
func (r *Relay) Broadcast(snap *live.Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for ch := range r.subs {
		select {
		case ch <- data:
		default:
		}
	}
}

func (r *Relay) HasSubscribers() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs) > 0
}

func (r *Relay) subscribe() chan []byte {
	ch := make(chan []byte, 4)
	r.mu.Lock()
	r.subs[ch] = struct{}{}
	r.mu.Unlock()
	return ch
}

func (r *Relay) unsubscribe(ch chan []byte) {
	r.mu.Lock()
	delete(r.subs, ch)
	r.mu.Unlock()
}

func snapshotEvent(data []byte) []byte {
	return []byte(fmt.Sprintf("event: snapshot\ndata: %s\n\n", data))
}
