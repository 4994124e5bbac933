package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lehigh-university-libraries/artscan/internal/storage"
)

// EventWriter persists batches of events
type EventWriter interface {
	InsertEvents(ctx context.Context, rows []storage.EventRow) error
}

// StoreSink buffers events and writes them in batches from one goroutine.
// Events are dropped when the buffer is full.
type StoreSink struct {
	writer   EventWriter
	events   chan Event
	interval time.Duration

	mu      sync.Mutex
	closed  bool
	dropped int

	done chan struct{}
}

const storeBatchSize = 64

func NewStoreSink(writer EventWriter, buffer int, interval time.Duration) *StoreSink {
	if buffer <= 0 {
		buffer = 1024
	}
	if interval <= 0 {
		interval = time.Second
	}
	s := &StoreSink{
		writer:   writer,
		events:   make(chan Event, buffer),
		interval: interval,
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *StoreSink) Send(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	select {
	case s.events <- e:
	default:
		s.dropped++
		if s.dropped == 1 || s.dropped%100 == 0 {
			slog.Warn("Analytics buffer full, dropping events", "dropped", s.dropped)
		}
	}
}

// Dropped returns how many events were discarded because the buffer was full
func (s *StoreSink) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close flushes buffered events and stops the writer goroutine
func (s *StoreSink) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	s.mu.Unlock()
	<-s.done
}

func (s *StoreSink) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	batch := make([]storage.EventRow, 0, storeBatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.writer.InsertEvents(ctx, batch); err != nil {
			slog.Error("Failed to store analytics events", "count", len(batch), "error", err)
		}
		cancel()
		batch = batch[:0]
	}

	for {
		select {
		case e, ok := <-s.events:
			if !ok {
				flush()
				return
			}
			batch = append(batch, storage.EventRow{
				SessionID: e.SessionID,
				Name:      e.Name,
				Payload:   e.Payload,
				CreatedAt: e.Timestamp,
			})
			if len(batch) >= storeBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
