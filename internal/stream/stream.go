// Package stream fans identity domain events out to in-process subscribers
// and, when configured, bridges them onto NATS for external consumers.
package stream

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"authcore.dev/internal/identity"
)

// Stream fan-outs identity events to all active subscribers.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan identity.Event
	next int

	nc      *nats.Conn
	subject string
	log     zerolog.Logger
}

// Option configures a Stream.
type Option func(*Stream)

// WithNATS bridges every published event onto the given subject. A nil
// connection disables the bridge.
func WithNATS(nc *nats.Conn, subject string) Option {
	return func(s *Stream) {
		s.nc = nc
		s.subject = subject
	}
}

// WithLogger sets the logger used for bridge failures.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Stream) { s.log = l }
}

// New initialises an empty stream.
func New(opts ...Option) *Stream {
	s := &Stream{
		subs: make(map[int]chan identity.Event),
		log:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan identity.Event {
	ch := make(chan identity.Event, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers and the NATS bridge.
func (s *Stream) Publish(evt identity.Event) {
	s.mu.RLock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
	s.mu.RUnlock()

	if s.nc == nil {
		return
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		s.log.Warn().Err(err).Str("type", evt.Type).Msg("event encode failed")
		return
	}
	if err := s.nc.Publish(s.subject, payload); err != nil {
		s.log.Warn().Err(err).Str("type", evt.Type).Msg("event publish failed")
	}
}
