package terminal

import "sync"

const (
	// maxBacklog is the bounded rolling byte backlog a Hub retains for
	// priming newly attached subscribers, truncated from the front.
	maxBacklog = 50_000

	// subscriberChanSize bounds how far a subscriber can lag before the hub
	// starts dropping its chunks.
	subscriberChanSize = 256
)

// Subscriber is the delivery handle returned by Hub.Subscribe. Chunks is a
// buffered channel of output chunks in publish order; Done closes once the
// subscriber can no longer receive (overflow-dropped, or the hub closed).
type Subscriber struct {
	Chunks <-chan []byte
	chunks chan []byte
	done   chan struct{}
}

// Hub multiplexes one Terminal's PTY output to a dynamic set of
// subscribers, retaining a bounded replay buffer so a freshly attached
// subscriber can be primed with recent output.
//
// Concurrency: Subscribe/Unsubscribe may race with publish; a subscriber
// removed during a publish either receives that chunk or does not, but
// never partially, because delivery to each subscriber happens while
// holding the hub's lock.
type Hub struct {
	mu          sync.Mutex
	backlog     []byte
	subscribers map[*Subscriber]struct{}
	closed      bool
}

func newHub() *Hub {
	return &Hub{
		subscribers: make(map[*Subscriber]struct{}),
	}
}

// Subscribe registers a new subscriber and primes it with the current
// backlog as a single first delivery, strictly before any subsequent
// chunk.
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{
		chunks: make(chan []byte, subscriberChanSize),
		done:   make(chan struct{}),
	}
	sub.Chunks = sub.chunks

	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.backlog) > 0 {
		primed := make([]byte, len(h.backlog))
		copy(primed, h.backlog)
		// Sent as one chunk without blocking the Subscribe caller: the
		// channel is sized generously and no publish can race with it for
		// this subscriber before Subscribe returns.
		sub.chunks <- primed
	}

	if h.closed {
		close(sub.chunks)
		close(sub.done)
		return sub
	}

	h.subscribers[sub] = struct{}{}
	return sub
}

// Unsubscribe removes sub from the subscriber set. After Unsubscribe
// returns, no further chunks are delivered to sub. Removing the last
// subscriber is permitted; the terminal keeps running and the backlog
// keeps filling.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	_, present := h.subscribers[sub]
	delete(h.subscribers, sub)
	h.mu.Unlock()

	if present {
		closeSubscriber(sub)
	}
}

// publish appends data to the backlog (front-truncated to maxBacklog) and
// delivers it to every subscriber. Called only by the Terminal's pump
// goroutine; never blocks on a slow subscriber — a full channel drops the
// chunk for that subscriber rather than stalling the pump.
func (h *Hub) publish(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.backlog = append(h.backlog, data...)
	if len(h.backlog) > maxBacklog {
		h.backlog = append([]byte(nil), h.backlog[len(h.backlog)-maxBacklog:]...)
	}

	for sub := range h.subscribers {
		select {
		case sub.chunks <- data:
		default:
			// Subscriber's channel is full: drop it rather than stall the
			// pump. Future publishes become no-ops for it since it's
			// removed from the set below.
			delete(h.subscribers, sub)
			closeSubscriber(sub)
		}
	}
}

// closeAll unsubscribes every subscriber and marks the hub closed so any
// subsequent Subscribe gets an already-closed handle instead of blocking
// forever.
func (h *Hub) closeAll() {
	h.mu.Lock()
	subs := h.subscribers
	h.subscribers = make(map[*Subscriber]struct{})
	h.closed = true
	h.mu.Unlock()

	for sub := range subs {
		closeSubscriber(sub)
	}
}

func closeSubscriber(sub *Subscriber) {
	select {
	case <-sub.done:
	default:
		close(sub.done)
		close(sub.chunks)
	}
}

// Done returns a channel closed once the subscriber has been removed
// (explicitly, by overflow, or because the hub closed).
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}
