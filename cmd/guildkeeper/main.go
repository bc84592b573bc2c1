package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"guildkeeper/internal/bot"
	"guildkeeper/internal/config"
	"guildkeeper/internal/metrics"
	"guildkeeper/internal/modules/audit"
	"guildkeeper/internal/storage"
	"guildkeeper/internal/storage/postgres"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	app := &cli.Command{
		Name:  "guildkeeper",
		Usage: "Discord community bot",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML config (overrides CONFIG_PATH)",
			},
		},
		Action: runBot,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Connect to Discord and serve events",
				Action: runBot,
			},
			{
				Name:   "migrate",
				Usage:  "Apply pending database migrations and exit",
				Action: migrate,
			},
			{
				Name:  "commands",
				Usage: "Manage slash commands",
				Commands: []*cli.Command{
					{
						Name:   "sync",
						Usage:  "Register the slash command catalogue and exit",
						Action: syncCommands,
					},
				},
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

// runtime holds what every subcommand opens.
type runtime struct {
	cfg       config.Config
	logger    *zap.Logger
	store     *storage.Store
	documents storage.Documents
	closers   []func()
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	_ = r.logger.Sync()
}

func open(ctx context.Context, c *cli.Command) (*runtime, error) {
	if path := c.String("config"); path != "" {
		if err := os.Setenv("CONFIG_PATH", path); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := config.BuildLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	rt := &runtime{cfg: cfg, logger: logger}

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	rt.store = store
	rt.closers = append(rt.closers, store.Close)
	if err := store.Migrate(); err != nil {
		rt.Close()
		return nil, fmt.Errorf("migrate storage: %w", err)
	}

	rt.documents = store
	if cfg.Documents.Driver == "postgres" {
		pg, err := postgres.New(ctx, cfg.Documents.DSN)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("open postgres documents: %w", err)
		}
		rt.closers = append(rt.closers, pg.Close)
		if err := pg.Migrate(ctx); err != nil {
			rt.Close()
			return nil, fmt.Errorf("migrate postgres documents: %w", err)
		}
		rt.documents = pg
	}
	logger.Info("storage ready", zap.String("documents", cfg.Documents.Driver))
	return rt, nil
}

func migrate(ctx context.Context, c *cli.Command) error {
	rt, err := open(ctx, c)
	if err != nil {
		return err
	}
	defer rt.Close()
	rt.logger.Info("migrations applied")
	return nil
}

func syncCommands(ctx context.Context, c *cli.Command) error {
	rt, err := open(ctx, c)
	if err != nil {
		return err
	}
	defer rt.Close()

	svc, err := bot.New(bot.Deps{Config: rt.cfg, Logger: rt.logger, Store: rt.store, Documents: rt.documents})
	if err != nil {
		return err
	}
	return svc.SyncCommands(ctx)
}

func runBot(ctx context.Context, c *cli.Command) error {
	rt, err := open(ctx, c)
	if err != nil {
		return err
	}
	defer rt.Close()
	logger := rt.logger

	m := metrics.New()
	auditLogger := audit.NewLogger(rt.store, logger.Named("audit"), m)

	svc, err := bot.New(bot.Deps{
		Config:    rt.cfg,
		Logger:    logger,
		Store:     rt.store,
		Documents: rt.documents,
		Metrics:   m,
		Audit:     auditLogger,
	})
	if err != nil {
		return fmt.Errorf("init bot: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := svc.Start(gctx); err != nil {
			return fmt.Errorf("start bot: %w", err)
		}
		logger.Info("bot started")
		<-gctx.Done()

		shutdown, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		svc.Close(shutdown)
		auditLogger.Close(shutdown)
		return nil
	})

	if rt.cfg.Health.Enabled {
		server := newHTTPServer(rt.cfg.Health.Addr, m)
		g.Go(func() error {
			logger.Info("health endpoint enabled", zap.String("addr", rt.cfg.Health.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("health server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdown, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdown)
		})
	}

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}

func newHTTPServer(addr string, m *metrics.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", m.Handler())
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}
