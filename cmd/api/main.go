package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bryanwahyu/st22-gateway/internal/application"
	appdumps "github.com/bryanwahyu/st22-gateway/internal/application/dumps"
	"github.com/bryanwahyu/st22-gateway/internal/config"
	domain "github.com/bryanwahyu/st22-gateway/internal/domain/dumps"
	"github.com/bryanwahyu/st22-gateway/internal/infra/ai/provider"
	mysqlp "github.com/bryanwahyu/st22-gateway/internal/infra/db/mysql"
	postgresp "github.com/bryanwahyu/st22-gateway/internal/infra/db/postgres"
	sqlitep "github.com/bryanwahyu/st22-gateway/internal/infra/db/sqlite"
	"github.com/bryanwahyu/st22-gateway/internal/infra/httpserver"
	minioStore "github.com/bryanwahyu/st22-gateway/internal/infra/storage"
	"github.com/bryanwahyu/st22-gateway/internal/logging"
	"github.com/bryanwahyu/st22-gateway/internal/middleware"
)

// store is a Repository that can also report its health
type store interface {
	domain.Repository
	Ping(ctx context.Context) error
}

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer logger.Sync()

	if missing := cfg.LLM.Missing(); len(missing) > 0 {
		logger.Warn("LLM provider is not fully configured, analysis calls will fail",
			zap.String("provider", cfg.LLM.Provider),
			zap.String("missing", strings.Join(missing, ", ")))
	}

	ctx := context.Background()

	repo, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal("store init error", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}
	defer closeStore()

	svc := appdumps.NewService(provider.New(&cfg.LLM, logger), repo, cfg.LLM.MaxConcurrent, logger)

	handler := httpserver.NewRouter(svc, httpserver.Options{
		Log:            logger,
		APIKeys:        cfg.Auth.APIKeys,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		RateLimitRPS:   cfg.RateLimit.RequestsPerSecond,
		RateLimitBurst: cfg.RateLimit.Burst,
		Health: map[string]middleware.HealthChecker{
			cfg.Storage.Driver: middleware.PingChecker(repo.Ping),
		},
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening",
			zap.String("addr", addr),
			zap.String("provider", cfg.LLM.ProviderKind()),
			zap.String("storage", cfg.Storage.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down server")

	ctx2, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}

// openStore connects the backend named by storage.driver
func openStore(ctx context.Context, cfg *config.Config) (store, func(), error) {
	clock := application.SystemClock{}

	var (
		db  *sql.DB
		err error
	)
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		if db, err = sqlitep.Connect(ctx, cfg.Storage.Path); err != nil {
			return nil, nil, err
		}
		return sqlitep.NewAnalysisRepository(db, clock), func() { db.Close() }, nil
	case config.DriverMySQL:
		if db, err = mysqlp.Connect(ctx, cfg.MySQLDSN()); err != nil {
			return nil, nil, err
		}
		return mysqlp.NewAnalysisRepository(db, clock), func() { db.Close() }, nil
	case config.DriverPostgres:
		if db, err = postgresp.Connect(ctx, cfg.PostgresDSN()); err != nil {
			return nil, nil, err
		}
		return postgresp.NewAnalysisRepository(db, clock), func() { db.Close() }, nil
	case config.DriverMinio:
		m := cfg.Storage.Minio
		s, err := minioStore.New(ctx, m.Endpoint, m.Region, m.BucketName, m.AccessKey, m.SecretKey, m.UseSSL, clock)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q (want %s, %s, %s or %s)",
			cfg.Storage.Driver, config.DriverSQLite, config.DriverMySQL, config.DriverPostgres, config.DriverMinio)
	}
}
