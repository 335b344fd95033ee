package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/playmatatu/duels/internal/models"
)

// Event is one row change as carried on the push channel.
type Event struct {
	Event string           `json:"event"`
	Row   models.Challenge `json:"row"`
}

// Subscription delivers events until Close.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// Channel is a best-effort push channel of challenge row changes.
type Channel interface {
	Subscribe(ctx context.Context) (Subscription, error)
}

// RedisChannel publishes and subscribes over one Redis pub/sub channel.
type RedisChannel struct {
	rdb  *redis.Client
	name string
}

func NewRedisChannel(rdb *redis.Client, name string) *RedisChannel {
	return &RedisChannel{rdb: rdb, name: name}
}

func (r *RedisChannel) Publish(ctx context.Context, event string, row models.Challenge) error {
	payload, err := json.Marshal(Event{Event: event, Row: row})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return r.rdb.Publish(ctx, r.name, payload).Err()
}

func (r *RedisChannel) Subscribe(ctx context.Context) (Subscription, error) {
	ps := r.rdb.Subscribe(ctx, r.name)
	// wait for the subscription confirmation so no event published after
	// Subscribe returns is missed
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", r.name, err)
	}

	sub := &redisSubscription{
		ps:     ps,
		events: make(chan Event, 16),
		done:   make(chan struct{}),
	}
	go sub.pump()
	return sub, nil
}

type redisSubscription struct {
	ps     *redis.PubSub
	events chan Event
	done   chan struct{}
	once   sync.Once
}

func (s *redisSubscription) pump() {
	defer close(s.events)
	for msg := range s.ps.Channel() {
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			log.Printf("[REALTIME] invalid event payload: %v", err)
			continue
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

func (s *redisSubscription) Events() <-chan Event { return s.events }

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}

// Local is an in-process channel for single-node runs with the memory store
// and for tests.
type Local struct {
	mu   sync.Mutex
	subs map[*localSubscription]struct{}
}

func NewLocal() *Local {
	return &Local{subs: make(map[*localSubscription]struct{})}
}

func (l *Local) Publish(ctx context.Context, event string, row models.Challenge) error {
	ev := Event{Event: event, Row: row.Clone()}
	l.mu.Lock()
	defer l.mu.Unlock()
	for s := range l.subs {
		select {
		case s.events <- ev:
		default:
			log.Printf("[REALTIME] subscriber buffer full, dropping %s for %s", event, row.ID)
		}
	}
	return nil
}

func (l *Local) Subscribe(ctx context.Context) (Subscription, error) {
	s := &localSubscription{owner: l, events: make(chan Event, 64)}
	l.mu.Lock()
	l.subs[s] = struct{}{}
	l.mu.Unlock()
	return s, nil
}

type localSubscription struct {
	owner  *Local
	events chan Event
	once   sync.Once
}

func (s *localSubscription) Events() <-chan Event { return s.events }

func (s *localSubscription) Close() error {
	s.once.Do(func() {
		s.owner.mu.Lock()
		delete(s.owner.subs, s)
		close(s.events)
		s.owner.mu.Unlock()
	})
	return nil
}
