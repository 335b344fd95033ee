package inbox

import (
	"context"
	"testing"
	"time"

	"github.com/playmatatu/duels/internal/models"
)

func TestMemoryDedupesByRecipientAndKey(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	msg := models.InboxMessage{ID: "1", RecipientID: "bob", DedupeKey: "c1:new"}

	ok, err := m.AddMessage(ctx, msg)
	if err != nil || !ok {
		t.Fatalf("first AddMessage = %v, %v", ok, err)
	}
	msg.ID = "2"
	if ok, _ := m.AddMessage(ctx, msg); ok {
		t.Error("duplicate key was inserted")
	}

	other := msg
	other.RecipientID = "alice"
	if ok, _ := m.AddMessage(ctx, other); !ok {
		t.Error("same key for another recipient should insert")
	}

	list, _ := m.List(ctx, "bob", 0)
	if len(list) != 1 {
		t.Errorf("bob has %d messages, want 1", len(list))
	}
}

func TestMemoryListNewestFirst(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Now()
	for i, key := range []string{"a", "b", "c"} {
		m.AddMessage(ctx, models.InboxMessage{
			ID: key, RecipientID: "u", DedupeKey: key,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	list, err := m.List(ctx, "u", 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != "c" || list[1].ID != "b" {
		t.Errorf("List = %+v", list)
	}
}

func TestMemoryListEmptyIsNotNil(t *testing.T) {
	list, err := NewMemory().List(context.Background(), "nobody", 10)
	if err != nil || list == nil {
		t.Errorf("List = %v, %v; want empty slice", list, err)
	}
}
