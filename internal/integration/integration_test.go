package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"endurance-quiz-service/internal/app"
	"endurance-quiz-service/internal/domain"
	"endurance-quiz-service/internal/generator"
	pgstorage "endurance-quiz-service/internal/infra/postgres"
	pgmigrations "endurance-quiz-service/internal/infra/postgres/migrations"
	infraredis "endurance-quiz-service/internal/infra/redis"
)

func TestQuizLifecycleEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	runMigrations(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	store := infraredis.NewQuizCache(redisClient, pgstorage.NewStorage(pool), 5*time.Minute)
	service := app.NewQuizService(store, generator.NewStatic(nil), app.NopBroadcaster{})

	quiz, err := service.CreateQuiz(ctx, domain.Quiz{
		Title: "endurance round",
		Questions: []domain.Question{
			{Text: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectIndex: 1, Points: 1},
			{Text: "How many continents are there?", Options: []string{"5", "6", "7"}, CorrectIndex: 2, Points: 2},
		},
	})
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}

	if _, err := service.Join(ctx, quiz.ID, domain.Player{ID: "u1", Name: "Alice"}); err != nil {
		t.Fatalf("join alice: %v", err)
	}
	if _, err := service.Join(ctx, quiz.ID, domain.Player{ID: "u2", Name: "Bob"}); err != nil {
		t.Fatalf("join bob: %v", err)
	}

	state, err := service.Start(ctx, quiz.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if state.CurrentIndex != 0 {
		t.Fatalf("expected first question open, got %+v", state)
	}

	q1 := state.CurrentQuestion
	if _, err := service.SubmitAnswer(ctx, domain.AnswerSubmission{
		PlayerID: "u1", QuizID: quiz.ID, QuestionID: q1.ID, SelectedOption: q1.CorrectIndex,
	}); err != nil {
		t.Fatalf("alice answers q1: %v", err)
	}
	state, err = service.SubmitAnswer(ctx, domain.AnswerSubmission{
		PlayerID: "u2", QuizID: quiz.ID, QuestionID: q1.ID, SelectedOption: 0,
	})
	if err != nil {
		t.Fatalf("bob answers q1: %v", err)
	}
	if state.CurrentIndex != 1 {
		t.Fatalf("expected advancement to second question, got %+v", state)
	}

	// Duplicate submissions are rejected even after a round trip through
	// postgres.
	if _, err := service.SubmitAnswer(ctx, domain.AnswerSubmission{
		PlayerID: "u1", QuizID: quiz.ID, QuestionID: q1.ID, SelectedOption: 0,
	}); !domain.IsValidation(err) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}

	q2 := state.CurrentQuestion
	if _, err := service.SubmitAnswer(ctx, domain.AnswerSubmission{
		PlayerID: "u1", QuizID: quiz.ID, QuestionID: q2.ID, SelectedOption: q2.CorrectIndex,
	}); err != nil {
		t.Fatalf("alice answers q2: %v", err)
	}
	state, err = service.SubmitAnswer(ctx, domain.AnswerSubmission{
		PlayerID: "u2", QuizID: quiz.ID, QuestionID: q2.ID, SelectedOption: q2.CorrectIndex,
	})
	if err != nil {
		t.Fatalf("bob answers q2: %v", err)
	}

	if state.Scores["u1"] != 3 || state.Scores["u2"] != 2 {
		t.Fatalf("expected final scores u1:3 u2:2, got %v", state.Scores)
	}

	final, err := service.GetQuiz(ctx, quiz.ID)
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if final.Status != domain.StatusFinished {
		t.Fatalf("expected FINISHED, got %s", final.Status)
	}

	// Scores survive in the persisted roster.
	roster, err := store.Roster(ctx, quiz.ID)
	if err != nil {
		t.Fatalf("roster: %v", err)
	}
	scores := map[string]int{}
	for _, entry := range roster {
		scores[entry.Player.ID] = entry.Score
	}
	if scores["u1"] != 3 || scores["u2"] != 2 {
		t.Fatalf("expected persisted scores u1:3 u2:2, got %v", scores)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func runMigrations(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
