package main

import (
	"context"
	"flag"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/UkralStul/confession-feed/internal/api"
	"github.com/UkralStul/confession-feed/internal/config"
	"github.com/UkralStul/confession-feed/internal/domain"
	"github.com/UkralStul/confession-feed/internal/storage"
	"github.com/UkralStul/confession-feed/internal/storage/inmemory"
	"github.com/UkralStul/confession-feed/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	storageType := flag.String("storage", "", "Storage type (in-memory or postgres)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *storageType != "" {
		cfg.Server.Storage = *storageType
	}

	var store storage.Storage

	log.Printf("Starting server with %s storage", cfg.Server.Storage)
	if cfg.Server.Storage == "postgres" {
		if cfg.Server.DatabaseURL == "" {
			log.Fatal("DATABASE_URL must be set for postgres storage")
		}
		store, err = postgres.New(cfg.Server.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to connect to postgres: %v", err)
		}
	} else {
		store = inmemory.New()
		fillWithMockData(store)
	}

	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Mount("/", api.New(store).Routes())

	log.Printf("serving the confession API on http://localhost:%s/confessions", cfg.Server.Port)
	if err := http.ListenAndServe(":"+cfg.Server.Port, router); err != nil {
		log.Fatalf("server failed to start: %v", err)
	}
}

func fillWithMockData(s storage.Storage) {
	ctx := context.Background()

	for _, u := range []domain.User{
		{ID: "user-1", DisplayName: "Quiet Fox"},
		{ID: "user-2", DisplayName: "Night Owl"},
		{ID: "user-3", DisplayName: "Paper Crane"},
	} {
		u := u
		if _, err := s.UpsertUser(ctx, &u); err != nil {
			log.Fatalf("fillWithMockData: failed to create user %s: %v", u.ID, err)
		}
	}

	first, err := s.CreateConfession(ctx, &domain.Confession{
		AuthorID: "user-1",
		Content:  "I have been pretending to understand the quarterly report for two years.",
	})
	if err != nil {
		log.Fatalf("fillWithMockData: failed to create confession: %v", err)
	}

	second, err := s.CreateConfession(ctx, &domain.Confession{
		AuthorID: "user-2",
		Content:  "I eat the last cookie and blame the dog. We do not have a dog.",
	})
	if err != nil {
		log.Fatalf("fillWithMockData: failed to create confession: %v", err)
	}

	c1, err := s.CreateComment(ctx, &domain.Comment{
		ConfessionID: first.ID,
		AuthorID:     "user-3",
		Content:      "Nobody understands it. You are in good company.",
	})
	if err != nil {
		log.Fatalf("fillWithMockData: failed to create comment: %v", err)
	}

	reply, err := s.CreateChildComment(ctx, &domain.ChildComment{
		CommentID: c1.ID,
		AuthorID:  "user-1",
		Content:   "That is oddly comforting.",
	})
	if err != nil {
		log.Fatalf("fillWithMockData: failed to create reply: %v", err)
	}

	for _, like := range []struct {
		actor   string
		subject domain.Subject
	}{
		{"user-2", domain.Subject{Kind: domain.SubjectConfession, ID: first.ID}},
		{"user-3", domain.Subject{Kind: domain.SubjectConfession, ID: first.ID}},
		{"user-1", domain.Subject{Kind: domain.SubjectConfession, ID: second.ID}},
		{"user-1", domain.Subject{Kind: domain.SubjectComment, ID: c1.ID}},
		{"user-2", domain.Subject{Kind: domain.SubjectChildComment, ID: reply.ID}},
	} {
		l, err := domain.NewLike(like.actor, like.subject)
		if err != nil {
			log.Fatalf("fillWithMockData: %v", err)
		}
		if _, err := s.CreateLike(ctx, &l); err != nil {
			log.Fatalf("fillWithMockData: failed to create like: %v", err)
		}
	}

	log.Printf("Mock data filled successfully. Created confessions %s and %s", first.ID, second.ID)
}
