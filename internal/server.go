package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/IBM/pgxpoolprometheus"
	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"

	"github.com/2beens/gymstats-predictor/internal/cache"
	"github.com/2beens/gymstats-predictor/internal/config"
	"github.com/2beens/gymstats-predictor/internal/db"
	"github.com/2beens/gymstats-predictor/internal/gymstats"
	"github.com/2beens/gymstats-predictor/internal/gymstats/learning"
	"github.com/2beens/gymstats-predictor/internal/gymstats/pipeline"
	"github.com/2beens/gymstats-predictor/internal/gymstats/snapshots"
	"github.com/2beens/gymstats-predictor/internal/gymstats/workouts"
	"github.com/2beens/gymstats-predictor/internal/middleware"
	"github.com/2beens/gymstats-predictor/internal/telemetry/metrics"
	"github.com/2beens/gymstats-predictor/internal/telemetry/tracing"
	"github.com/2beens/gymstats-predictor/pkg"
)

type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server

	config      *config.Config
	dbPool      *pgxpool.Pool
	redisClient *redis.Client
	predictor   *pipeline.Pipeline

	// metrics
	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
	otelShutdown   func()
}

type NewServerParams struct {
	Config  *config.Config
	Secrets config.Secrets
}

func NewServer(
	ctx context.Context,
	params NewServerParams,
) (*Server, error) {
	dbPool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
		DBHost:         params.Config.PostgresHost,
		DBPort:         params.Config.PostgresPort,
		DBName:         params.Config.PostgresDB,
		DBUser:         params.Secrets.PostgresUser,
		DBPassword:     params.Secrets.PostgresPassword,
		TracingEnabled: params.Secrets.HoneycombEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("new db pool: %w", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		log.Warnf("failed to ping db: %s", err)
	}

	pgxpoolCollector := pgxpoolprometheus.NewCollector(
		dbPool,
		map[string]string{"db_name": params.Config.PostgresDB},
	)
	promRegistry := metrics.SetupPrometheus(pgxpoolCollector)
	metricsManager := metrics.NewManager("gymstats", "predictor", promRegistry)
	metricsManager.GaugeLifeSignal.Set(0)

	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(params.Config.RedisHost, params.Config.RedisPort),
		Password: params.Secrets.RedisPassword,
		DB:       0, // use default DB
	})

	rdbStatus := rdb.Ping(ctx)
	if err := rdbStatus.Err(); err != nil {
		log.Errorf("--> failed to ping redis: %s", err)
	} else {
		log.Debugf("redis ping: %s", rdbStatus.Val())
	}

	// use honeycomb distro to setup OpenTelemetry SDK
	otelShutdown, err := tracing.HoneycombSetup(params.Secrets.HoneycombEnabled, params.Secrets.OtelServiceName, rdb)
	if err != nil {
		return nil, err
	}

	snapshotStore, err := newSnapshotStore(params.Config, dbPool, rdb)
	if err != nil {
		return nil, err
	}

	predictor := pipeline.New(pipeline.Params{
		Snapshots: snapshotStore,
		Cache:     cache.NewPredictionCache(params.Config.CacheSizeMB*1024*1024, params.Config.CacheTTL),
		Metrics:   metricsManager,
		Learning: learning.Params{
			Metrics: metricsManager,
		},
	})

	// restore the last trained ensemble, a fresh install starts uninitialized
	if err := predictor.LoadSnapshot(ctx); err != nil {
		if errors.Is(err, snapshots.ErrSnapshotNotFound) {
			log.Infoln("no ensemble snapshot found, waiting for initialize")
		} else {
			log.Errorf("load ensemble snapshot: %s", err)
		}
	} else {
		log.Infoln("ensemble restored from snapshot")
	}

	return &Server{
		config:      params.Config,
		dbPool:      dbPool,
		redisClient: rdb,
		predictor:   predictor,

		// telemetry
		metricsManager: metricsManager,
		promRegistry:   promRegistry,
		otelShutdown:   otelShutdown,
	}, nil
}

func newSnapshotStore(cfg *config.Config, dbPool *pgxpool.Pool, rdb *redis.Client) (snapshots.Store, error) {
	switch cfg.SnapshotStore {
	case config.SnapshotStorePostgres:
		return snapshots.NewPsqlStore(dbPool), nil
	case config.SnapshotStoreRedis:
		return snapshots.NewRedisStore(rdb), nil
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

func (s *Server) routerSetup() *mux.Router {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("gymstats-predictor-router"))

	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		pkg.WriteTextResponseOK(w, "I'm OK, thanks ;)")
	}).Methods("GET").Name("root")

	reqRateLimiter := redis_rate.NewLimiter(s.redisClient)
	predictionsHandler := gymstats.NewHandler(
		workouts.NewRepo(s.dbPool),
		s.predictor,
	)
	predictionsHandler.SetupRoutes(r, reqRateLimiter, s.config.InitializeRateLimitPerMin)

	// all the rest - unhandled paths
	r.HandleFunc("/{unknown}", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}).Methods("GET", "POST", "PUT", "OPTIONS").Name("unknown")

	r.Use(middleware.PanicRecovery(s.metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.metricsManager))
	r.Use(middleware.Cors(s.config.AllowedOrigins...))
	r.Use(middleware.DrainAndCloseRequest())

	return r
}

func (s *Server) Serve(host string, port int) {
	router := s.routerSetup()

	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler: router,
		Addr:    ipAndPort,
		// initialize trains the whole ensemble inside the request
		WriteTimeout: 5 * time.Minute,
		ReadTimeout:  time.Minute,
		ConnState:    s.connStateMetrics,
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.InstrumentMetricHandler(
		s.promRegistry,
		promhttp.HandlerFor(s.promRegistry, promhttp.HandlerOpts{}),
	))
	metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)
	s.metricsHttpServer = &http.Server{
		Addr:              metricsAddr,
		Handler:           metricsRouter,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof(" > server listening on: [%s]", ipAndPort)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("main service, listen and serve: %s", err)
		}
	}()

	go func() {
		log.Debugf(" > metrics listening on: [%s]", metricsAddr)
		err := s.metricsHttpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics service, listen and serve: %s", err)
		}
	}()

	s.metricsManager.GaugeLifeSignal.Set(1)
}

func (s *Server) GracefulShutdown() {
	log.Debug("graceful shutdown initiated ...")

	s.metricsManager.GaugeLifeSignal.Set(0)

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	// stop taking requests before the predictor goes away
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Error(" >>> failed to gracefully shutdown http server")
		}
		log.Warnln("server shut down")
	}

	if err := s.predictor.SaveSnapshot(ctx); err != nil {
		if errors.Is(err, pipeline.ErrNoTrainedModel) {
			log.Debugln("no trained ensemble to snapshot")
		} else {
			log.Errorf("save ensemble snapshot: %s", err)
		}
	}
	s.predictor.Close()

	s.otelShutdown()
	log.Trace("otel shut down ...")

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			log.Errorf("failed to close redis client conn: %s", err)
		}
	}

	if s.dbPool != nil {
		log.Debugln("closing db pool ...")
		s.dbPool.Close() // blocking operation
		log.Debugln("db pool closed")
	}

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}

	if s.metricsHttpServer != nil {
		if err := s.metricsHttpServer.Shutdown(ctx); err != nil {
			log.Error(" >>> failed to gracefully shutdown metrics http server")
		}
		log.Warnln("metrics server shut down")
	}
}

func (s *Server) connStateMetrics(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.metricsManager.GaugeRequests.Add(1)
	case http.StateClosed:
		s.metricsManager.GaugeRequests.Add(-1)
	default:
		// do nothing
	}
}
