package gateway

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/playmatatu/duels/internal/challenge"
	"github.com/playmatatu/duels/internal/database"
	"github.com/playmatatu/duels/internal/migrations"
	"github.com/playmatatu/duels/internal/models"
)

// openTestDB connects to TEST_DATABASE_URL and applies migrations. The
// tests use fresh user ids so they can share a database.
func openTestDB(t *testing.T) *Postgres {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	if err := migrations.RunMigrations(url); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	db, err := database.Connect(url, 4, 2)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgres(db, 24*time.Hour, nil)
}

func TestPostgresLifecycle(t *testing.T) {
	p := openTestDB(t)
	ctx := context.Background()
	a, b := "a-"+uuid.NewString(), "b-"+uuid.NewString()

	if _, err := p.db.ExecContext(ctx,
		`INSERT INTO profiles (id, display_name) VALUES ($1, 'Ann'), ($2, 'Ben')`, a, b); err != nil {
		t.Fatalf("seed profiles: %v", err)
	}

	c, err := p.Create(ctx, "trivia", a, b)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.Initiator == nil || c.Opponent == nil || c.Opponent.DisplayName != "Ben" {
		t.Errorf("profiles not attached: %+v %+v", c.Initiator, c.Opponent)
	}

	if _, err := p.SubmitResult(ctx, c.ID, b, models.MetricBag{"crowns": 1}); !challenge.IsSequenceError(err) {
		t.Errorf("early opponent err = %v", err)
	}
	if _, err := p.SubmitResult(ctx, c.ID, a, models.MetricBag{"crowns": 2, "score": 40}); err != nil {
		t.Fatalf("initiator submit: %v", err)
	}
	again, err := p.SubmitResult(ctx, c.ID, a, models.MetricBag{"crowns": 9})
	if err != nil || again.InitiatorResult["crowns"] != 2.0 {
		t.Errorf("repeat submit = %v, %v", again, err)
	}

	done, err := p.SubmitResult(ctx, c.ID, b, models.MetricBag{"crowns": 3, "score": 10})
	if err != nil {
		t.Fatalf("opponent submit: %v", err)
	}
	if done.Status != models.StatusCompleted || done.WinnerID() == nil || *done.WinnerID() != b {
		t.Errorf("resolved row = %+v", done)
	}

	if err := p.MarkAcknowledged(ctx, c.ID, models.AckOpponentOutcome); err != nil {
		t.Fatalf("ack: %v", err)
	}
	rows, err := p.FetchForUser(ctx, b, "trivia")
	if err != nil || len(rows) != 1 {
		t.Fatalf("fetch = %v, %v", rows, err)
	}
	if !rows[0].NotifiedOpponentResult || rows[0].NotifiedInitiatorResult {
		t.Errorf("flags = %+v", rows[0])
	}
}

func TestPostgresTieAndNotFound(t *testing.T) {
	p := openTestDB(t)
	ctx := context.Background()
	a, b := "a-"+uuid.NewString(), "b-"+uuid.NewString()

	c, err := p.Create(ctx, "typing", a, b)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	bag := models.MetricBag{"wpm": 80, "accuracy": 0.95}
	p.SubmitResult(ctx, c.ID, a, bag)
	done, err := p.SubmitResult(ctx, c.ID, b, bag.Clone())
	if err != nil {
		t.Fatalf("opponent submit: %v", err)
	}
	if done.Outcome.Kind != models.OutcomeTie || done.WinnerID() != nil {
		t.Errorf("outcome = %+v", done.Outcome)
	}

	if _, err := p.SubmitResult(ctx, "not-a-uuid", a, bag); !errors.Is(err, challenge.ErrNotFound) {
		t.Errorf("bad id err = %v", err)
	}
	if err := p.MarkAcknowledged(ctx, uuid.NewString(), models.AckOpponentNew); !errors.Is(err, challenge.ErrNotFound) {
		t.Errorf("ack missing err = %v", err)
	}
}
