package pubsub

import (
	"context"
	"sync"
)

// MemoryBus is an in-process Bus for tests and single-node development.
type MemoryBus struct {
	mu     sync.Mutex
	subs   map[string]map[*memorySub]struct{}
	closed bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: map[string]map[*memorySub]struct{}{}}
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	for s := range b.subs[topic] {
		msg := append([]byte(nil), payload...)
		select {
		case s.out <- msg:
		default:
			// slow subscriber; drop like redis pub/sub would under backpressure
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	s := &memorySub{bus: b, topic: topic, out: make(chan []byte, 64)}
	if b.subs[topic] == nil {
		b.subs[topic] = map[*memorySub]struct{}{}
	}
	b.subs[topic][s] = struct{}{}
	return s, nil
}

// Subscribers reports how many subscriptions are open on topic.
func (b *MemoryBus) Subscribers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic])
}

func (b *MemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, set := range b.subs {
		for s := range set {
			s.closed = true
			close(s.out)
		}
	}
	b.subs = map[string]map[*memorySub]struct{}{}
}

type memorySub struct {
	bus    *MemoryBus
	topic  string
	out    chan []byte
	closed bool // guarded by bus.mu
}

func (s *memorySub) Messages() <-chan []byte { return s.out }

func (s *memorySub) Close() error {
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	delete(b.subs[s.topic], s)
	if len(b.subs[s.topic]) == 0 {
		delete(b.subs, s.topic)
	}
	close(s.out)
	return nil
}
