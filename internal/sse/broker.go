// Package sse pushes visitor state changes to browsers as Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
)

// Event is one message on a topic's stream
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type subscription struct {
	topic string
	ch    chan []byte
}

type publication struct {
	topic string
	event Event
}

// Broker fans events out to subscribers of a topic (a visitor session id).
// One goroutine owns the subscriber map; public methods talk to it over channels.
type Broker struct {
	subscribeCh   chan subscription
	unsubscribeCh chan subscription
	publishCh     chan publication
	closeTopicCh  chan string
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

func NewBroker() *Broker {
	b := &Broker{
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan subscription),
		publishCh:     make(chan publication, 256),
		closeTopicCh:  make(chan string, 16),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	topics := make(map[string]map[chan []byte]struct{})

	for {
		select {
		case <-b.stopCh:
			for _, clients := range topics {
				for ch := range clients {
					close(ch)
				}
			}
			return

		case sub := <-b.subscribeCh:
			clients, ok := topics[sub.topic]
			if !ok {
				clients = make(map[chan []byte]struct{})
				topics[sub.topic] = clients
			}
			clients[sub.ch] = struct{}{}

		case sub := <-b.unsubscribeCh:
			clients := topics[sub.topic]
			if _, ok := clients[sub.ch]; ok {
				delete(clients, sub.ch)
				close(sub.ch)
				if len(clients) == 0 {
					delete(topics, sub.topic)
				}
			}

		case topic := <-b.closeTopicCh:
			for ch := range topics[topic] {
				close(ch)
			}
			delete(topics, topic)

		case pub := <-b.publishCh:
			raw, err := encode(pub.event)
			if err != nil {
				continue
			}
			for ch := range topics[pub.topic] {
				select {
				case ch <- raw:
				default:
					// slow client; it will catch up from the next snapshot
				}
			}

		case resp := <-b.countReqCh:
			n := 0
			for _, clients := range topics {
				n += len(clients)
			}
			resp <- n
		}
	}
}

func encode(e Event) ([]byte, error) {
	payload, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", e.Type, payload)), nil
}

// Close stops the broker and closes every subscriber channel
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client for topic
func (b *Broker) Subscribe(topic string) chan []byte {
	ch := make(chan []byte, 16)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.subscribeCh <- subscription{topic: topic, ch: ch}:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel
func (b *Broker) Unsubscribe(topic string, ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- subscription{topic: topic, ch: ch}:
	case <-b.stopped:
	}
}

// CloseTopic disconnects every client of topic
func (b *Broker) CloseTopic(topic string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.closeTopicCh <- topic:
	case <-b.stopped:
	}
}

// Publish sends an event to the topic's clients without waiting on them
func (b *Broker) Publish(topic string, event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- publication{topic: topic, event: event}:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients across topics
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

// Serve streams topic to the client, starting with initial so the page can render at once
func (b *Broker) Serve(w http.ResponseWriter, r *http.Request, topic string, initial Event) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch := b.Subscribe(topic)
	defer b.Unsubscribe(topic, ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if raw, err := encode(initial); err == nil {
		_, _ = w.Write(raw)
	}
	flusher.Flush()

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
