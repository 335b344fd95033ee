package models

import (
	"testing"
	"time"
)

func TestChallengePhase(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name string
		c    Challenge
		want Phase
	}{
		{"fresh", Challenge{Status: StatusPending}, PhaseCreated},
		{"initiator played", Challenge{Status: StatusPending, InitiatorCompletedAt: &now}, PhaseAwaitingOpponent},
		{"both played", Challenge{Status: StatusCompleted, InitiatorCompletedAt: &now, OpponentCompletedAt: &now}, PhaseResolved},
		// status alone never resolves a challenge
		{"completed without results", Challenge{Status: StatusCompleted}, PhaseCreated},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.c.Phase(); got != tc.want {
				t.Errorf("Phase() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestWinnerID(t *testing.T) {
	c := Challenge{Outcome: Outcome{Kind: OutcomeTie}}
	if c.WinnerID() != nil {
		t.Error("tie should have nil winner")
	}
	c.Outcome = Outcome{}
	if c.WinnerID() != nil {
		t.Error("not computed should have nil winner")
	}
	c.Outcome = Outcome{Kind: OutcomeWinner, WinnerID: "u2"}
	if w := c.WinnerID(); w == nil || *w != "u2" {
		t.Errorf("WinnerID = %v, want u2", w)
	}
}

func TestMetricBagScan(t *testing.T) {
	var b MetricBag
	if err := b.Scan([]byte(`{"score":50,"crowns":2,"perfect":true}`)); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if b["score"].(float64) != 50 || b["perfect"] != true {
		t.Errorf("unexpected bag %v", b)
	}
	if err := b.Scan(nil); err != nil || b != nil {
		t.Errorf("Scan(nil) = %v, bag %v", err, b)
	}
	if err := b.Scan(42); err == nil {
		t.Error("Scan(int) should fail")
	}
}

func TestProgressIsMonotonicAcrossLifecycle(t *testing.T) {
	now := time.Now()
	c := Challenge{Status: StatusPending}
	prev := c.Progress()
	steps := []func(){
		func() { c.SetAcknowledged(AckOpponentNew) },
		func() { c.InitiatorCompletedAt = &now },
		func() { c.OpponentCompletedAt = &now; c.Status = StatusCompleted },
		func() { c.SetAcknowledged(AckInitiatorOutcome) },
		func() { c.SetAcknowledged(AckOpponentOutcome) },
	}
	for i, step := range steps {
		step()
		if p := c.Progress(); p <= prev {
			t.Fatalf("step %d: progress %d did not exceed %d", i, p, prev)
		} else {
			prev = p
		}
	}
}

func TestCloneDoesNotShareBags(t *testing.T) {
	c := Challenge{InitiatorResult: MetricBag{"score": 1.0}}
	cp := c.Clone()
	cp.InitiatorResult["score"] = 2.0
	if c.InitiatorResult["score"] != 1.0 {
		t.Error("Clone shared the result map")
	}
}
