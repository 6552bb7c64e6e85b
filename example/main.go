package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"github.com/aadithya-v/ims"
	"github.com/aadithya-v/ims/store"
)

func main() {
	username := flag.String("username", os.Getenv("IMS_USERNAME"), "IMS username")
	password := flag.String("password", os.Getenv("IMS_PASSWORD"), "IMS password")
	query := flag.String("search", "", "search the first event's incidents")
	redisAddr := flag.String("redis", "", "cache in Redis at this address instead of SQLite")
	flag.Parse()

	// Option 1: Zero-config (SQLite)
	// Set IMS_BAG_URL; everything else has a default.
	cfg, err := ims.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()
	cfg.Logger = logger

	// Option 2: Shared cache (Redis)
	if *redisAddr != "" {
		redisStore, err := store.NewRedisFromConfig(store.RedisConfig{Addr: *redisAddr})
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisStore.Close()
		cfg.Store = redisStore
	}

	client, err := ims.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize IMS client: %v", err)
	}
	defer client.Close()

	client.OnSessionChange(func() {
		if user := client.User(); user != nil {
			fmt.Printf("Logged in as %s until %s\n", user, user.Credentials.Expiration.Format(time.RFC1123))
		} else {
			fmt.Println("Logged out")
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if !client.IsLoggedIn() {
		if *username == "" || *password == "" {
			log.Fatal("Not logged in: -username and -password required")
		}
		ok, err := client.Login(ctx, *username, *password)
		if err != nil {
			log.Fatalf("Failed to log in: %v", err)
		}
		if !ok {
			log.Fatal("Invalid credentials")
		}
	}

	events, err := client.Events(ctx)
	if err != nil {
		if errors.Is(err, ims.ErrUnauthorized) {
			log.Fatal("Credentials rejected by server; log in again")
		}
		log.Fatalf("Failed to load events: %v", err)
	}
	if len(events) == 0 {
		fmt.Println("No events")
		return
	}

	for _, event := range events {
		incidents, err := client.Incidents(ctx, event.ID)
		if err != nil {
			log.Printf("Failed to load incidents for %s: %v", event, err)
			continue
		}
		fmt.Printf("%s (%s): %d incidents\n", event, event.ID, len(incidents))
	}

	if *query == "" {
		return
	}

	event := events[0]
	results, err := client.Search(ctx, event.ID, *query)
	if err != nil {
		log.Fatalf("Failed to search %s: %v", event, err)
	}
	for _, incident := range results {
		state, _ := incident.State.Text()
		summary := ""
		if incident.Summary != nil {
			summary = *incident.Summary
		}
		fmt.Printf("  #%d [%s] %s\n", incident.Number, state, summary)
	}
}
