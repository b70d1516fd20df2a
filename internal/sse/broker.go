// Package sse implements a Server-Sent Events broker for refresh notifications.
package sse

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/starford/paperfeed/internal/metrics"
)

// Event types.
const (
	EventRefreshed          = "recommendations.refreshed"
	EventCredentialsChanged = "credentials.changed"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// RefreshEvent is the payload of EventRefreshed.
type RefreshEvent struct {
	Backend             string `json:"backend"`
	LastRefresh         string `json:"last_refresh"`
	SeedCount           int    `json:"seed_count"`
	RecommendationCount int    `json:"recommendation_count"`
}

// Broker manages SSE client connections and broadcasts events.
//
// A single internal loop owns the client set and the credentials throttle
// timestamp. Public methods talk to it over channels.
type Broker struct {
	credsMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	credsCh       chan struct{}
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker. Credentials-changed events closer together
// than credsThrottle are dropped.
func NewBroker(credsThrottle time.Duration) *Broker {
	if credsThrottle <= 0 {
		credsThrottle = 2 * time.Second
	}

	b := &Broker{
		credsMin:      credsThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		credsCh:       make(chan struct{}, 16),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var lastCreds time.Time

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Slow client; drop rather than block the loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			metrics.SSEClients.Set(0)
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}
			metrics.SSEClients.Set(float64(len(clients)))

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
				metrics.SSEClients.Set(float64(len(clients)))
			}

		case event := <-b.publishCh:
			broadcast(event)

		case <-b.credsCh:
			now := time.Now()
			if now.Sub(lastCreds) >= b.credsMin {
				lastCreds = now
				broadcast(Event{Type: EventCredentialsChanged, Data: map[string]string{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishRefresh announces a regenerated recommendation set.
func (b *Broker) PublishRefresh(ev RefreshEvent) {
	b.Publish(Event{Type: EventRefreshed, Data: ev})
}

// PublishCredentialsChanged announces an edit of the credentials file.
// Bursts are collapsed into one event per throttle window.
func (b *Broker) PublishCredentialsChanged() {
	if b.closed.Load() {
		return
	}
	select {
	case b.credsCh <- struct{}{}:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
