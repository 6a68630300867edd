package web

import (
	"context"
	"sync"

	"github.com/setsuna-project/setsuna/internal/engine"
)

// subscriberBuffer is the per-client event queue depth. Clients that fall
// behind lose events rather than stalling the broadcast loop.
const subscriberBuffer = 16

// hub fans one engine event stream out to any number of websocket clients.
type hub struct {
	source <-chan engine.Event

	mu   sync.Mutex
	subs map[chan engine.Event]struct{}
}

func newHub(source <-chan engine.Event) *hub {
	return &hub{
		source: source,
		subs:   make(map[chan engine.Event]struct{}),
	}
}

// run consumes the source stream until ctx is cancelled or the stream closes.
func (h *hub) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-h.source:
			if !ok {
				return
			}
			h.broadcast(ev)
		}
	}
}

func (h *hub) broadcast(ev engine.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// subscribe registers a new client queue.
func (h *hub) subscribe() chan engine.Event {
	ch := make(chan engine.Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *hub) unsubscribe(ch chan engine.Event) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}
