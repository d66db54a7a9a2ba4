// Package main runs the gymstats predictions MCP server over stdio (for local Cursor use).
// It restores the ensemble the service last saved, so point it at the same snapshot store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/2beens/gymstats-predictor/internal/config"
	"github.com/2beens/gymstats-predictor/internal/db"
	gymstatsmcp "github.com/2beens/gymstats-predictor/internal/gymstats/mcp"
	"github.com/2beens/gymstats-predictor/internal/gymstats/pipeline"
	"github.com/2beens/gymstats-predictor/internal/gymstats/snapshots"
	"github.com/2beens/gymstats-predictor/internal/gymstats/workouts"
)

func main() {
	env := flag.String("env", "development", "environment [production | development | test]")
	configPath := flag.String("config", "./config.toml", "path to TOML config file")
	train := flag.Bool("train", false, "train on the recorded workouts when no snapshot is found")
	flag.Parse()

	cfg, err := config.Load(*env, *configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx := context.Background()
	secrets, err := config.LoadSecrets(ctx)
	if err != nil {
		log.Fatalf("load secrets: %v", err)
	}

	dbPool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
		DBHost:         cfg.PostgresHost,
		DBPort:         cfg.PostgresPort,
		DBName:         cfg.PostgresDB,
		DBUser:         secrets.PostgresUser,
		DBPassword:     secrets.PostgresPassword,
		TracingEnabled: false,
	})
	if err != nil {
		log.Fatalf("db pool: %v", err)
	}
	defer dbPool.Close()

	store, err := snapshotStore(cfg, secrets, dbPool)
	if err != nil {
		log.Fatalf("snapshot store: %v", err)
	}

	sessionsRepo := workouts.NewRepo(dbPool)
	predictor := pipeline.New(pipeline.Params{Snapshots: store})
	defer predictor.Close()

	if err := restore(ctx, predictor, sessionsRepo, *train); err != nil {
		log.Fatal(err)
	}

	server := gymstatsmcp.NewServer(sessionsRepo, predictor)
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		log.Fatal(err)
	}
}

func snapshotStore(cfg *config.Config, secrets config.Secrets, dbPool *pgxpool.Pool) (snapshots.Store, error) {
	switch cfg.SnapshotStore {
	case config.SnapshotStorePostgres:
		return snapshots.NewPsqlStore(dbPool), nil
	case config.SnapshotStoreRedis:
		return snapshots.NewRedisStore(redis.NewClient(&redis.Options{
			Addr:     net.JoinHostPort(cfg.RedisHost, cfg.RedisPort),
			Password: secrets.RedisPassword,
		})), nil
	case config.SnapshotStoreDisk:
		store, err := snapshots.NewDiskStore(cfg.SnapshotDir)
		if err != nil {
			return nil, fmt.Errorf("new disk snapshot store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown snapshot store: %s", cfg.SnapshotStore)
	}
}

func restore(ctx context.Context, predictor *pipeline.Pipeline, repo *workouts.Repo, train bool) error {
	err := predictor.LoadSnapshot(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, snapshots.ErrSnapshotNotFound) || !train {
		// the tools still answer, predict calls report the predictor is not initialized
		log.Printf("ensemble not restored: %v", err)
		return nil
	}

	sessions, err := repo.ListSessions(ctx, workouts.ListParams{OnlyProd: true, ExcludeTestingData: true})
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	res, err := predictor.Initialize(ctx, sessions, pipeline.User{})
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	log.Printf("predictor initialized: status=%s, samples=%d", res.Status, res.TrainingSamples)
	return nil
}
