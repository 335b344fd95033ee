package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/playmatatu/duels/internal/api/handlers"
	"github.com/playmatatu/duels/internal/challenge"
	"github.com/playmatatu/duels/internal/config"
	"github.com/playmatatu/duels/internal/gateway"
	"github.com/playmatatu/duels/internal/inbox"
	"github.com/playmatatu/duels/internal/models"
	"github.com/playmatatu/duels/internal/notify"
)

const testSecret = "test-secret"

type server struct {
	router *gin.Engine
	synth  *notify.Synthesizer
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{Environment: "test", JWTSecret: testSecret, FrontendURL: "http://example.test"}

	gw := gateway.NewMemory(time.Hour, nil)
	gw.PutProfile(models.Profile{ID: "alice", DisplayName: "Alice"})
	gw.PutProfile(models.Profile{ID: "bob", DisplayName: "Bob"})
	box := inbox.NewMemory()
	synth := notify.NewSynthesizer(box, gw, time.Second)
	mgr := challenge.NewManager(gw, synth, nil, time.Second)
	t.Cleanup(mgr.Close)

	r := gin.New()
	SetupRoutes(r, cfg, Dependencies{Manager: mgr, Inbox: box})
	return &server{router: r, synth: synth}
}

func (s *server) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		tok, err := handlers.IssueToken(testSecret, user, time.Hour)
		if err != nil {
			t.Fatalf("IssueToken: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestChallengeFlowOverHTTP(t *testing.T) {
	s := newServer(t)

	w := s.do(t, "POST", "/api/v1/challenges", "alice", gin.H{"game_id": "trivia", "opponent_id": "bob"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d body = %s", w.Code, w.Body)
	}
	var created struct{ ID string }
	json.Unmarshal(w.Body.Bytes(), &created)

	w = s.do(t, "GET", "/api/v1/challenges", "bob", nil)
	var view challenge.View
	json.Unmarshal(w.Body.Bytes(), &view)
	if w.Code != http.StatusOK || len(view.PendingReceived) != 1 {
		t.Fatalf("bob list = %d %s", w.Code, w.Body)
	}

	// opponent may not go first
	w = s.do(t, "POST", "/api/v1/challenges/"+created.ID+"/result", "bob", gin.H{"metrics": gin.H{"crowns": 3}})
	if w.Code != http.StatusConflict {
		t.Errorf("early opponent status = %d, want 409", w.Code)
	}

	w = s.do(t, "POST", "/api/v1/challenges/"+created.ID+"/result", "alice", gin.H{"metrics": gin.H{"crowns": 2, "score": 50}})
	if w.Code != http.StatusOK {
		t.Fatalf("alice result = %d %s", w.Code, w.Body)
	}
	w = s.do(t, "POST", "/api/v1/challenges/"+created.ID+"/result", "bob", gin.H{"metrics": gin.H{"crowns": 3, "score": 10}})
	var res struct {
		Phase    string  `json:"phase"`
		WinnerID *string `json:"winner_id"`
	}
	json.Unmarshal(w.Body.Bytes(), &res)
	if w.Code != http.StatusOK || res.Phase != "resolved" || res.WinnerID == nil || *res.WinnerID != "bob" {
		t.Fatalf("bob result = %d %s", w.Code, w.Body)
	}

	s.do(t, "GET", "/api/v1/challenges?game_id=trivia", "bob", nil)
	s.synth.Wait()

	w = s.do(t, "GET", "/api/v1/inbox", "bob", nil)
	var inboxRes struct {
		Messages []models.InboxMessage `json:"messages"`
	}
	json.Unmarshal(w.Body.Bytes(), &inboxRes)
	// one for the new challenge, one for the win
	if len(inboxRes.Messages) != 2 {
		t.Fatalf("bob inbox = %s", w.Body)
	}
	rewarded := 0
	for _, m := range inboxRes.Messages {
		if m.RewardHint != nil {
			rewarded++
		}
	}
	if rewarded != 1 {
		t.Errorf("rewarded messages = %d, want 1", rewarded)
	}
}

func TestErrorStatuses(t *testing.T) {
	s := newServer(t)
	w := s.do(t, "POST", "/api/v1/challenges", "alice", gin.H{"game_id": "trivia", "opponent_id": "bob"})
	var created struct{ ID string }
	json.Unmarshal(w.Body.Bytes(), &created)

	cases := []struct {
		name   string
		method string
		path   string
		user   string
		body   any
		want   int
	}{
		{"no token", "GET", "/api/v1/challenges", "", nil, http.StatusUnauthorized},
		{"unknown game", "POST", "/api/v1/challenges", "alice", gin.H{"game_id": "chess", "opponent_id": "bob"}, http.StatusBadRequest},
		{"self challenge", "POST", "/api/v1/challenges", "alice", gin.H{"game_id": "trivia", "opponent_id": "alice"}, http.StatusBadRequest},
		{"missing fields", "POST", "/api/v1/challenges", "alice", gin.H{}, http.StatusBadRequest},
		{"outsider", "POST", "/api/v1/challenges/" + created.ID + "/result", "mallory", gin.H{"metrics": gin.H{"crowns": 1}}, http.StatusForbidden},
		{"not found", "POST", "/api/v1/challenges/nope/result", "alice", gin.H{"metrics": gin.H{"crowns": 1}}, http.StatusNotFound},
		{"empty metrics", "POST", "/api/v1/challenges/" + created.ID + "/result", "alice", gin.H{"metrics": gin.H{}}, http.StatusBadRequest},
		{"bad game filter", "GET", "/api/v1/challenges?game_id=chess", "alice", nil, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if w := s.do(t, tc.method, tc.path, tc.user, tc.body); w.Code != tc.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tc.want, w.Body)
			}
		})
	}
}

func TestPublicRoutes(t *testing.T) {
	s := newServer(t)
	for _, path := range []string{"/api/v1/health", "/api/v1/games", "/metrics"} {
		if w := s.do(t, "GET", path, "", nil); w.Code != http.StatusOK {
			t.Errorf("GET %s = %d", path, w.Code)
		}
	}
}

type failingGateway struct{ *gateway.Memory }

func (failingGateway) Create(ctx context.Context, gameID, initiatorID, opponentID string) (*models.Challenge, error) {
	return nil, &challenge.StoreError{Op: "create", Err: context.DeadlineExceeded}
}

func TestStoreErrorIs503(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{Environment: "test", JWTSecret: testSecret}
	mgr := challenge.NewManager(failingGateway{gateway.NewMemory(time.Hour, nil)}, nil, nil, time.Second)
	defer mgr.Close()
	r := gin.New()
	SetupRoutes(r, cfg, Dependencies{Manager: mgr, Inbox: inbox.NewMemory()})
	s := &server{router: r}

	w := s.do(t, "POST", "/api/v1/challenges", "alice", gin.H{"game_id": "trivia", "opponent_id": "bob"})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}
