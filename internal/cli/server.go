package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"endurance-quiz-service/internal/app"
	"endurance-quiz-service/internal/broadcast"
	"endurance-quiz-service/internal/config"
	"endurance-quiz-service/internal/domain"
	"endurance-quiz-service/internal/generator"
	"endurance-quiz-service/internal/infra/memory"
	pgstorage "endurance-quiz-service/internal/infra/postgres"
	"endurance-quiz-service/internal/infra/rabbit"
	redisinfra "endurance-quiz-service/internal/infra/redis"
	transport "endurance-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz coordinator server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)
	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)

	var store app.Storage
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		store = pgstorage.NewStorage(pool)

		if redisClient != nil {
			store = redisinfra.NewQuizCache(redisClient, store, quizTTL)
		} else {
			store = memory.NewQuizCache(store, quizTTL)
		}
	} else {
		mem := memory.NewStorage()
		seedSampleQuiz(ctx, mem)
		store = mem
	}

	hub := broadcast.NewHub()
	broadcasters := broadcast.Fanout{hub}
	if cfg.Rabbit.URL != "" {
		rb, err := rabbit.NewBroadcaster(cfg.Rabbit.URL, cfg.Rabbit.Exchange)
		if err != nil {
			return err
		}
		defer rb.Close()
		broadcasters = append(broadcasters, rb)
	}
	if redisClient != nil {
		broadcasters = append(broadcasters, redisinfra.NewSnapshotMirror(redisClient, redisTTL))
	}

	service := app.NewQuizService(store, generator.NewStatic(sampleQuestionBank()), broadcasters)
	wsHandler := transport.NewWSHandler(service, hub)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quiz coordinator on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// seedSampleQuiz loads demo content for storage-less runs.
func seedSampleQuiz(ctx context.Context, store *memory.Storage) {
	_, err := store.SaveQuiz(ctx, domain.Quiz{
		ID:                 "quiz-1",
		Title:              "Warm-up",
		TimePerQuestionSec: 30,
		Status:             domain.StatusCreated,
		Questions: []domain.Question{
			{
				ID:           "q1",
				Text:         "What is 2 + 2?",
				Options:      []string{"3", "4", "5"},
				CorrectIndex: 1,
				Points:       1,
			},
			{
				ID:           "q2",
				Text:         "How many continents are there?",
				Options:      []string{"5", "6", "7", "8"},
				CorrectIndex: 2,
				Points:       2,
			},
		},
	})
	if err != nil {
		log.Printf("seed sample quiz: %v", err)
	}
}

func sampleQuestionBank() []domain.Question {
	return []domain.Question{
		{
			Text:         "Which planet is known as the Red Planet?",
			Options:      []string{"Venus", "Mars", "Jupiter", "Mercury"},
			CorrectIndex: 1,
		},
		{
			Text:         "What is the largest ocean on Earth?",
			Options:      []string{"Atlantic", "Indian", "Arctic", "Pacific"},
			CorrectIndex: 3,
		},
		{
			Text:         "Which element has the chemical symbol O?",
			Options:      []string{"Gold", "Oxygen", "Osmium", "Iron"},
			CorrectIndex: 1,
		},
		{
			Text:         "How many sides does a hexagon have?",
			Options:      []string{"5", "6", "7", "8"},
			CorrectIndex: 1,
		},
		{
			Text:         "What is the capital of Japan?",
			Options:      []string{"Osaka", "Kyoto", "Tokyo", "Nagoya"},
			CorrectIndex: 2,
		},
	}
}
