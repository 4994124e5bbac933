package narration

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrInterrupted is what a Synthesizer returns when its context is cancelled mid-speech
var ErrInterrupted = errors.New("narration interrupted")

// Synthesizer speaks text until done or until ctx is cancelled
type Synthesizer interface {
	Speak(ctx context.Context, text, lang string) error
}

// Controller runs at most one narration session at a time
type Controller struct {
	synth    Synthesizer
	onChange func(narrating bool)

	// opMu serializes Start and Stop so a new session never overlaps the previous one
	opMu sync.Mutex

	mu      sync.Mutex
	current *session
}

type session struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Controller
type Option func(*Controller)

// WithOnChange registers a callback fired whenever the narrating flag flips
func WithOnChange(fn func(narrating bool)) Option {
	return func(c *Controller) { c.onChange = fn }
}

func NewController(synth Synthesizer, opts ...Option) *Controller {
	c := &Controller{synth: synth}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start stops any active session, waits for it to finish, then speaks text
func (c *Controller) Start(text, lang string) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{cancel: cancel, done: make(chan struct{})}

	c.mu.Lock()
	c.current = s
	c.mu.Unlock()
	c.notify(true)

	go c.run(ctx, s, text, lang)
}

// Stop ends the active session, if any, and returns once its audio has stopped
func (c *Controller) Stop() {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.stopLocked()
}

// Narrating reports whether a session is active
func (c *Controller) Narrating() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

func (c *Controller) stopLocked() {
	c.mu.Lock()
	s := c.current
	c.current = nil
	c.mu.Unlock()

	if s == nil {
		return
	}
	s.cancel()
	<-s.done
	c.notify(false)
}

func (c *Controller) run(ctx context.Context, s *session, text, lang string) {
	defer close(s.done)
	defer s.cancel()

	err := c.synth.Speak(ctx, text, lang)
	if err != nil && ctx.Err() == nil && !errors.Is(err, ErrInterrupted) {
		slog.Error("Narration failed", "error", err)
	}

	c.mu.Lock()
	finished := c.current == s
	if finished {
		c.current = nil
	}
	c.mu.Unlock()

	if finished {
		c.notify(false)
	}
}

func (c *Controller) notify(narrating bool) {
	if c.onChange != nil {
		c.onChange(narrating)
	}
}
