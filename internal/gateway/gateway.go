// Package gateway implements challenge.Gateway over Postgres and over
// process memory.
package gateway

import (
	"context"
	"log"
	"time"

	"github.com/playmatatu/duels/internal/models"
)

const (
	EventInsert = "insert"
	EventUpdate = "update"
)

// Publisher pushes row events to subscribed sessions.
type Publisher interface {
	Publish(ctx context.Context, event string, row models.Challenge) error
}

const publishTimeout = 2 * time.Second

// publish is best effort: the row is already stored, a lost event only
// delays the other party until its next refetch. Acknowledgment writes are
// not published.
func publish(ctx context.Context, pub Publisher, event string, row models.Challenge) {
	if pub == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := pub.Publish(pctx, event, row); err != nil {
		log.Printf("[GATEWAY] publish %s for %s failed: %v", event, row.ID, err)
	}
}
