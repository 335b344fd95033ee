package main

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/playmatatu/duels/internal/api/handlers"
	"github.com/playmatatu/duels/internal/config"
	"github.com/playmatatu/duels/internal/database"
	"github.com/playmatatu/duels/internal/models"
)

const upsertProfile = `
	INSERT INTO profiles (id, display_name, avatar_url)
	VALUES (:id, :display_name, :avatar_url)
	ON CONFLICT (id) DO UPDATE
	SET display_name = EXCLUDED.display_name,
	    avatar_url = EXCLUDED.avatar_url,
	    updated_at = NOW()`

func main() {
	cfg := config.Load()

	db, err := database.Connect(cfg.DatabaseURL, 2, 1)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// SEED_PROFILES=id:Name,id:Name
	list := os.Getenv("SEED_PROFILES")
	if list == "" {
		list = "alice:Alice,bob:Bob"
		log.Printf("Using default profiles: %s", list)
	}
	if cfg.JWTSecret == "change-me-in-production" {
		log.Printf("WARNING: Using default JWT secret. Set JWT_SECRET env var in production!")
	}

	for _, entry := range strings.Split(list, ",") {
		id, name, _ := strings.Cut(strings.TrimSpace(entry), ":")
		if id == "" {
			continue
		}
		if name == "" {
			name = id
		}
		p := models.Profile{ID: id, DisplayName: name}
		if _, err := db.NamedExec(upsertProfile, p); err != nil {
			log.Fatalf("Failed to upsert profile %s: %v", id, err)
		}

		token, err := handlers.IssueToken(cfg.JWTSecret, id, 30*24*time.Hour)
		if err != nil {
			log.Fatalf("Failed to issue token for %s: %v", id, err)
		}
		log.Printf("✓ Profile %s (%s) created/updated", id, name)
		log.Printf("  Token: %s", token)
	}
}
