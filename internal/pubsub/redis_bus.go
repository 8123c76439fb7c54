package pubsub

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

type RedisBus struct {
	rdb *redis.Client
}

func NewRedisBus(rdb *redis.Client) *RedisBus { return &RedisBus{rdb: rdb} }

func (b *RedisBus) Publish(ctx context.Context, topic string, payload []byte) error {
	return b.rdb.Publish(ctx, topic, payload).Err()
}

// Subscribe waits for the subscription to be confirmed so that nothing
// published after it returns is missed.
func (b *RedisBus) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	ps := b.rdb.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	s := &redisSub{ps: ps, out: make(chan []byte, 64), stop: make(chan struct{})}
	go s.pump()
	return s, nil
}

type redisSub struct {
	ps   *redis.PubSub
	out  chan []byte
	stop chan struct{}
	once sync.Once
}

func (s *redisSub) pump() {
	defer close(s.out)
	in := s.ps.Channel()
	for {
		select {
		case <-s.stop:
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			select {
			case s.out <- []byte(m.Payload):
			case <-s.stop:
				return
			}
		}
	}
}

func (s *redisSub) Messages() <-chan []byte { return s.out }

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() {
		close(s.stop)
		err = s.ps.Close()
	})
	return err
}
