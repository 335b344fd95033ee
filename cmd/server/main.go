package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/playmatatu/duels/internal/api"
	"github.com/playmatatu/duels/internal/challenge"
	"github.com/playmatatu/duels/internal/config"
	"github.com/playmatatu/duels/internal/database"
	"github.com/playmatatu/duels/internal/gateway"
	"github.com/playmatatu/duels/internal/inbox"
	"github.com/playmatatu/duels/internal/migrations"
	"github.com/playmatatu/duels/internal/models"
	"github.com/playmatatu/duels/internal/notify"
	"github.com/playmatatu/duels/internal/realtime"
	"github.com/playmatatu/duels/internal/redis"
	"github.com/playmatatu/duels/internal/ws"
)

// challengeStore is what both gateway implementations provide.
type challengeStore interface {
	challenge.Gateway
	notify.Acknowledger
}

type messageStore interface {
	notify.Inbox
	List(ctx context.Context, recipientID string, limit int) ([]models.InboxMessage, error)
}

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		gw      challengeStore
		box     messageStore
		channel realtime.Channel
	)

	if cfg.UseMemoryStore() {
		log.Println("[CHALLENGE] using in-memory challenge store (development only)")
		local := realtime.NewLocal()
		mem := gateway.NewMemory(cfg.ChallengeTTL(), local)
		gw, box, channel = mem, inbox.NewMemory(), local
	} else {
		db, err := database.Connect(cfg.DatabaseURL, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		if cfg.MigrateOnStart {
			log.Println("↗ Running DB migrations on startup...")
			if err := migrations.RunMigrations(cfg.DatabaseURL); err != nil {
				log.Fatalf("Failed to run migrations: %v", err)
			}
		}

		rdb, err := redis.Connect(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer rdb.Close()

		events := realtime.NewRedisChannel(rdb, cfg.RealtimeChannel)
		gw, box, channel = gateway.NewPostgres(db, cfg.ChallengeTTL(), events), inbox.NewPostgres(db), events
	}

	synth := notify.NewSynthesizer(box, gw, cfg.AckWriteTimeout())
	hub := ws.NewHub()
	mgr := challenge.NewManager(gw, synth, hub, cfg.FetchTimeout())
	hub.OnLastDisconnect = mgr.Forget
	go hub.Run(ctx)
	go mgr.RunIdleEviction(ctx, cfg.CacheIdleTTL())

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	api.SetupRoutes(router, cfg, api.Dependencies{
		Manager:  mgr,
		Inbox:    box,
		Sessions: ws.NewSessions(hub, mgr, channel),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("Starting duels server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[ERROR] server shutdown: %v", err)
	}

	// pending acknowledgment writes must land before the store closes
	synth.Wait()
	mgr.Close()
}
