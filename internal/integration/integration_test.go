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
	"go.uber.org/zap"

	"trivia-service/internal/app"
	"trivia-service/internal/domain"
	"trivia-service/internal/fanout"
	"trivia-service/internal/game"
	pgloader "trivia-service/internal/infra/postgres"
	pgmigrations "trivia-service/internal/infra/postgres/migrations"
	infraredis "trivia-service/internal/infra/redis"
	"trivia-service/internal/question"
)

func TestGameLifecycleEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedActivities(t, ctx, pgURL, sampleActivities())

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

	log := zap.NewNop()
	loader := pgloader.NewActivityLoader(pool)
	activityRepo := infraredis.NewActivityRepository(redisClient, loader, 5*time.Minute)
	store := infraredis.NewGameStore(redisClient, 5*time.Minute)
	bank := question.NewBank(activityRepo, log)
	fm := fanout.NewManager(log)
	registry := game.NewRegistry(log)

	cfg := domain.GameConfig{
		Questions:  2,
		AnswerTime: 300 * time.Millisecond,
		RevealTime: 100 * time.Millisecond,
		Capacity:   6,
		MinPlayers: 2,
	}
	service := app.NewGameService(store, registry, bank, fm, cfg, log)

	session, err := service.CreateGame(ctx, "u1", "Alice")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := service.Join(ctx, session.ID, "u2", "Bob"); err != nil {
		t.Fatalf("join: %v", err)
	}

	// register channels so broadcasts have somewhere to land
	aliceCh := fanout.NewChannel()
	bobCh := fanout.NewChannel()
	fm.Register("u1", aliceCh)
	fm.Register("u2", bobCh)
	go drain(aliceCh)
	go drain(bobCh)

	if err := service.Start(ctx, session.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	// the liveness marker reflects the running session
	marker, err := redisClient.Get(ctx, "trivia:game:"+session.ID).Result()
	if err != nil {
		t.Fatalf("liveness marker: %v", err)
	}
	if marker == string(domain.PhaseLobby) {
		t.Fatalf("marker still shows the lobby after start")
	}

	// the activity pool must now be cached in redis
	if n, err := redisClient.Exists(ctx, "trivia:activities:pool").Result(); err != nil || n == 0 {
		t.Fatalf("activity pool not cached (n=%d err=%v)", n, err)
	}

	m, ok := registry.Get(session.ID)
	if !ok {
		t.Fatalf("running game missing from registry")
	}
	select {
	case <-m.Done():
	case <-time.After(10 * time.Second):
		t.Fatalf("game never finished")
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		saved, ok := store.Get(session.ID)
		if ok && saved.Phase == domain.PhaseFinished {
			if len(saved.Players) != 2 {
				t.Fatalf("expected both players archived, got %d", len(saved.Players))
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("final state never archived")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, ok := registry.Get(session.ID); ok {
		t.Fatalf("finished game still registered")
	}
}

func drain(ch *fanout.Channel) {
	for range ch.Events() {
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "trivia", "POSTGRES_PASSWORD": "triviapass", "POSTGRES_DB": "triviadb"},
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
	dsn := fmt.Sprintf("postgres://trivia:triviapass@%s:%s/triviadb?sslmode=disable", host, port.Port())
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

func seedActivities(t *testing.T, ctx context.Context, dsn string, activities []domain.Activity) {
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

	for _, a := range activities {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO activities (id, description, cost, icon_id, question_acceptable) VALUES (?, ?, ?, ?, TRUE)
			 ON CONFLICT (id) DO UPDATE SET description=EXCLUDED.description, cost=EXCLUDED.cost`,
			a.ID, a.Description, a.Cost, a.IconID); err != nil {
			t.Fatalf("insert activity %s: %v", a.ID, err)
		}
	}
}

func sampleActivities() []domain.Activity {
	var pool []domain.Activity
	for i := int64(1); i <= 9; i++ {
		pool = append(pool, domain.Activity{
			ID:          fmt.Sprintf("act-%d", i),
			Description: fmt.Sprintf("Running appliance number %d for an hour.", i),
			Cost:        i * 100,
		})
	}
	for i := int64(1); i <= 5; i++ {
		pool = append(pool, domain.Activity{
			ID:          fmt.Sprintf("big-%d", i),
			Description: fmt.Sprintf("Heating variant number %d.", i),
			Cost:        i * 1000,
		})
	}
	return pool
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
