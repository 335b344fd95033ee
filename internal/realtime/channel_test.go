package realtime

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/playmatatu/duels/internal/models"
)

func receive(t *testing.T, sub Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatal("events closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
	}
	return Event{}
}

func TestLocalFanOutAndClose(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()
	a, _ := l.Subscribe(ctx)
	b, _ := l.Subscribe(ctx)

	l.Publish(ctx, EventInsert, models.Challenge{ID: "c1"})
	if ev := receive(t, a); ev.Event != EventInsert || ev.Row.ID != "c1" {
		t.Errorf("a got %+v", ev)
	}
	receive(t, b)

	b.Close()
	b.Close()
	if _, ok := <-b.Events(); ok {
		t.Error("closed subscription still open")
	}
	l.Publish(ctx, EventUpdate, models.Challenge{ID: "c2"})
	if ev := receive(t, a); ev.Row.ID != "c2" {
		t.Errorf("a got %+v", ev)
	}
}

func TestRedisChannelRoundTrip(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	ch := NewRedisChannel(rdb, "test_events_"+uuid.NewString())
	ctx := context.Background()
	sub, err := ch.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	row := models.Challenge{ID: "c1", GameID: "trivia", InitiatorResult: models.MetricBag{"crowns": 2}}
	if err := ch.Publish(ctx, EventUpdate, row); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	ev := receive(t, sub)
	if ev.Event != EventUpdate || ev.Row.ID != "c1" || ev.Row.InitiatorResult["crowns"] != 2.0 {
		t.Errorf("got %+v", ev)
	}
}
