// Package realtime is an in-process publish/subscribe broker keyed by
// channel name. It carries chat envelopes between support sessions: every
// subscriber of a channel receives every envelope published to it after
// it subscribed, in publish order.
package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/aanand-mishra/studyabroad-api/internal/types"
)

var (
	ErrClosed       = errors.New("realtime: broker closed")
	ErrEmptyChannel = errors.New("realtime: channel name is empty")
)

type subscriber struct {
	ch   chan types.Envelope
	once sync.Once

	// stop ends the goroutine watching the subscriber's context; done is
	// closed once it has returned.
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func (s *subscriber) halt() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Broker fans published envelopes out to subscribers. Each subscriber has
// its own buffered queue; a subscriber whose queue is full misses the
// envelope rather than stalling the publisher.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscriber]struct{}
	buffer int
	closed bool
	log    *slog.Logger
}

// New returns a broker whose subscriber queues hold buffer envelopes.
func New(buffer int, log *slog.Logger) *Broker {
	if buffer <= 0 {
		buffer = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Broker{
		subs:   make(map[string]map[*subscriber]struct{}),
		buffer: buffer,
		log:    log,
	}
}

// Subscribe registers a subscriber on channel. The returned stream is
// closed once unsubscribe is called or ctx is done, whichever comes
// first. unsubscribe may be called more than once.
func (b *Broker) Subscribe(ctx context.Context, channel string) (<-chan types.Envelope, func(), error) {
	if channel == "" {
		return nil, nil, ErrEmptyChannel
	}

	s := &subscriber{
		ch:   make(chan types.Envelope, b.buffer),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, nil, ErrClosed
	}
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[*subscriber]struct{})
	}
	b.subs[channel][s] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() {
		s.halt()
		b.remove(channel, s)
	}

	go func() {
		defer close(s.done)
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-s.stop:
		}
	}()

	b.log.Debug("subscribed", slog.String("channel", channel))
	return s.ch, unsubscribe, nil
}

func (b *Broker) remove(channel string, s *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if set, ok := b.subs[channel]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(b.subs, channel)
		}
	}
	// closing under the write lock keeps Publish (read lock) from sending
	// on a closed queue
	s.once.Do(func() { close(s.ch) })
}

// Publish delivers env to every current subscriber of channel. It never
// blocks on a slow subscriber.
func (b *Broker) Publish(ctx context.Context, channel string, env types.Envelope) error {
	if channel == "" {
		return ErrEmptyChannel
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}

	for s := range b.subs[channel] {
		select {
		case s.ch <- env:
		default:
			b.log.Warn("subscriber queue full, dropping message",
				slog.String("channel", channel),
				slog.String("message_id", env.Data.ID))
		}
	}
	return nil
}

// Subscribers returns the number of subscribers of channel.
func (b *Broker) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}

// Close ends every subscription and stops their context watchers. Later
// Subscribe and Publish calls fail with ErrClosed.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for channel, set := range b.subs {
		for s := range set {
			s.halt()
			s.once.Do(func() { close(s.ch) })
		}
		delete(b.subs, channel)
	}
}
