package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/parkgate/internal/config"
	"github.com/BrandonDHaskell/parkgate/internal/db"
	"github.com/BrandonDHaskell/parkgate/internal/events"
	"github.com/BrandonDHaskell/parkgate/internal/grpcapi"
	"github.com/BrandonDHaskell/parkgate/internal/httpapi"
	"github.com/BrandonDHaskell/parkgate/internal/logging"
	"github.com/BrandonDHaskell/parkgate/internal/metrics"
	"github.com/BrandonDHaskell/parkgate/internal/parkgate/service"
	"github.com/BrandonDHaskell/parkgate/internal/parkgate/store"
	"github.com/BrandonDHaskell/parkgate/internal/parkgate/store/memory"
	pgstore "github.com/BrandonDHaskell/parkgate/internal/parkgate/store/postgres"
	sqlitestore "github.com/BrandonDHaskell/parkgate/internal/parkgate/store/sqlite"
	"github.com/BrandonDHaskell/parkgate/internal/ratelimit"
)

// backend bundles the store implementations for one engine.
type backend struct {
	gate      store.GateStore
	heartbeat store.HeartbeatStore
	pinger    store.Pinger
	close     func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "parkgate-server: %v\n", err)
		os.Exit(2)
	}

	logger := logging.New(cfg.Env, cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	policy, err := service.ParseDirectionPolicy(cfg.DirectionPolicy)
	if err != nil {
		return err
	}

	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer be.close()

	m := metrics.New()

	gateSvc := service.NewGateService(be.gate, service.GateConfig{
		RatePerHour:     cfg.RatePerHour,
		DirectionPolicy: policy,
		StoreTimeout:    cfg.StoreTimeout,
		MaxAttempts:     cfg.MaxAttempts,
	}, logger.Named("gate")).WithRecorder(m)

	if cfg.AMQPURL != "" {
		pub, err := events.Dial(cfg.AMQPURL, cfg.AMQPExchange, logger.Named("events"))
		if err != nil {
			// Publishing is best effort; the gate keeps working without it.
			logger.Error("decision publishing disabled", zap.Error(err))
		} else {
			defer func() { _ = pub.Close() }()
			gateSvc.WithPublisher(pub)
		}
	}

	var limiter ratelimit.Limiter
	if cfg.RedisAddr != "" && cfg.RateLimitPerMinute > 0 {
		client, err := ratelimit.Connect(cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		limiter = ratelimit.NewRedisLimiter(client, cfg.RateLimitPerMinute, time.Minute)
		logger.Info("reader rate limit enabled", zap.Int("per_minute", cfg.RateLimitPerMinute))
	}

	pruner := service.NewHeartbeatPruner(be.heartbeat, service.PrunerConfig{
		RetentionDays: cfg.HeartbeatRetentionDays,
		OfflineAfter:  cfg.ReaderOfflineAfter,
		Interval:      cfg.PruneInterval,
	}, logger.Named("pruner"))
	pruner.Start(ctx)
	defer pruner.Stop()

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:           logger.Named("http"),
		Addr:             cfg.HTTPAddr,
		GateService:      gateSvc,
		HeartbeatService: service.NewHeartbeatService(be.heartbeat),
		Pinger:           be.pinger,
		Metrics:          m,
		Limiter:          limiter,
	})

	errCh := make(chan error, 2)

	var grpcSrv *grpcapi.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		grpcSrv = grpcapi.New(be.pinger, logger.Named("grpc"))
		go grpcSrv.Watch(ctx, 10*time.Second)
		go func() {
			if err := grpcSrv.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.Store))
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if grpcSrv != nil {
		grpcSrv.Shutdown()
	}
	return srv.Shutdown(shutdownCtx)
}

func openBackend(ctx context.Context, cfg config.Config, logger *zap.Logger) (*backend, error) {
	switch cfg.Store {
	case "memory":
		ms := memory.New()
		if cfg.Env == "dev" {
			seedMemory(ms)
			logger.Info("dev seed loaded into memory store")
		}
		return &backend{gate: ms, heartbeat: ms, pinger: ms, close: func() {}}, nil

	case "postgres":
		conn, err := db.OpenPostgres(ctx, db.PostgresConfig{DSN: cfg.PostgresDSN})
		if err != nil {
			return nil, err
		}
		gs := pgstore.NewGateStore(conn)
		return &backend{
			gate:      gs,
			heartbeat: pgstore.NewHeartbeatStore(conn),
			pinger:    gs,
			close:     func() { _ = conn.Close() },
		}, nil

	default:
		conn, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env})
		if err != nil {
			return nil, err
		}
		if cfg.Env == "dev" {
			if err := db.SeedDev(ctx, conn); err != nil {
				_ = conn.Close()
				return nil, err
			}
		}
		writer := db.NewWorker(conn)
		gs := sqlitestore.NewGateStore(conn, writer)
		return &backend{
			gate:      gs,
			heartbeat: sqlitestore.NewHeartbeatStore(conn, writer),
			pinger:    gs,
			close: func() {
				writer.Close()
				_ = conn.Close()
			},
		}, nil
	}
}

// seedMemory mirrors db.SeedDev for the in-memory store.
func seedMemory(ms *memory.Store) {
	ms.PutReader(store.Reader{ID: "gate-in-1", Name: "Main Gate Entry", Direction: store.DirectionEntry})
	ms.PutReader(store.Reader{ID: "gate-out-1", Name: "Main Gate Exit", Direction: store.DirectionExit})

	lapsed := time.Now().UTC().AddDate(0, -1, 0)
	ms.PutCard(store.Card{UID: "04A1B2C3", OwnerName: "Dev Driver", VehiclePlate: "B 1234 XYZ"})
	ms.PutCard(store.Card{UID: "04D4E5F6", OwnerName: "Blocked Driver", VehiclePlate: "B 5678 XYZ", Status: store.CardBlocked})
	ms.PutCard(store.Card{UID: "04AA0001", OwnerName: "Lost Card", VehiclePlate: "D 1111 AB", Status: store.CardLost})
	ms.PutCard(store.Card{UID: "04AA0002", OwnerName: "Lapsed Subscriber", VehiclePlate: "D 2222 AB", ExpiresAt: &lapsed})
}
