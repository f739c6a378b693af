package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"

	"github.com/auralis-ai/guardian/internal/dotenv"
	"github.com/auralis-ai/guardian/pkg/guardian/bus"
	"github.com/auralis-ai/guardian/pkg/guardian/claims"
	"github.com/auralis-ai/guardian/pkg/guardian/config"
	"github.com/auralis-ai/guardian/pkg/guardian/mediaroom"
	guardianserver "github.com/auralis-ai/guardian/pkg/guardian/server"
	"github.com/auralis-ai/guardian/pkg/guardian/store"
	"github.com/auralis-ai/guardian/pkg/guardian/takeover"
)

type guardianDeps struct {
	loadConfig   func() (config.Config, error)
	openStore    func(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, error)
	openRedis    func(ctx context.Context, cfg config.Config, logger *slog.Logger) (*redis.Client, error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultGuardianDeps() guardianDeps {
	return guardianDeps{
		loadConfig: config.LoadFromEnv,
		openStore:  openPostgres,
		openRedis:  openRedis,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

// connectBackoff bounds startup waits on Postgres and Redis. Kubernetes may
// start the coordinator before its dependencies accept connections.
func connectBackoff() retry.Backoff {
	b := retry.NewFibonacci(500 * time.Millisecond)
	b = retry.WithCappedDuration(5*time.Second, b)
	b = retry.WithMaxDuration(45*time.Second, b)
	return b
}

func openPostgres(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, error) {
	var st *store.Postgres
	err := retry.Do(ctx, connectBackoff(), func(ctx context.Context) error {
		var err error
		st, err = store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Warn("postgres connect failed, retrying", "error", err)
			return retry.RetryableError(err)
		}
		if err := st.Ping(ctx); err != nil {
			st.Close()
			logger.Warn("postgres ping failed, retrying", "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := store.Migrate(ctx, cfg.DatabaseURL); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return st, nil
}

func openRedis(ctx context.Context, cfg config.Config, logger *slog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	err = retry.Do(ctx, connectBackoff(), func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis ping failed, retrying", "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		// ReadTimeout is deliberately not set: it would kill long-lived
		// status streams. Slow request bodies are bounded per handler.
	}
}

type redisPinger struct{ client *redis.Client }

func (p redisPinger) Ping(ctx context.Context) error { return p.client.Ping(ctx).Err() }

func runGuardian(ctx context.Context, logger *slog.Logger, deps guardianDeps) error {
	if deps.loadConfig == nil {
		return errors.New("missing loadConfig dependency")
	}
	if deps.openStore == nil || deps.openRedis == nil {
		return errors.New("missing store/redis dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	st, err := deps.openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	rdb, err := deps.openRedis(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rdb.Close()

	var rooms *mediaroom.Client
	if cfg.MediaRoomConfigured() {
		rooms = mediaroom.NewClient(mediaroom.Config{
			HostURL:   cfg.MediaRoomHostURL,
			WSURL:     cfg.MediaRoomWSURL,
			APIKey:    cfg.MediaRoomAPIKey,
			APISecret: cfg.MediaRoomSecret,
			TokenTTL:  cfg.MediaRoomTokenTTL,
		}, nil)
	} else {
		rooms = mediaroom.NewClient(mediaroom.Config{}, nil)
		logger.Warn("media room credentials not configured, token issuance disabled")
	}

	srv := guardianserver.New(cfg, guardianserver.Deps{
		Store:           st,
		Bus:             bus.NewRedis(rdb, cfg.StreamBufferEvents, logger),
		Claims:          claims.NewRegistry(rdb, cfg.ClaimTTL, st, logger),
		Rooms:           rooms,
		TakeoverLimiter: takeover.NewWindowLimiter(rdb, cfg.TakeoverLimit, cfg.TakeoverWindow),
		RedisPing:       redisPinger{client: rdb},
	}, logger)

	httpSrv := buildHTTPServer(cfg, srv.Handler())

	logger.Info("starting guardian coordinator", "addr", cfg.Addr)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	srv.SetDraining(true)
	srv.DrainStreams(context.Background(), cfg.ShutdownGracePeriod)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("guardian stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps guardianDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(stderr, nil))

	if err := dotenv.LoadFile(".env"); err != nil {
		fmt.Fprintf(stderr, "guardian: %v\n", err)
		return 1
	}

	if err := runGuardian(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "guardian: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultGuardianDeps()))
}
