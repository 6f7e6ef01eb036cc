// Package cmd implements the skinscan command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/skinscan/internal/apiclient"
	"github.com/example/skinscan/internal/config"
	"github.com/example/skinscan/internal/consent"
	"github.com/example/skinscan/internal/flow"
	"github.com/example/skinscan/internal/journal"
	"github.com/example/skinscan/internal/logging"
	"github.com/example/skinscan/internal/session"
	"github.com/example/skinscan/internal/state"
)

var (
	cfgFile  string
	logLevel string
	jsonOut  bool
)

var rootCmd = &cobra.Command{
	Use:   "skinscan",
	Short: "Skin appearance scans from the command line",
	Long: `skinscan drives a scan session against the analysis service:
capture a photo, analyze it, optionally label the donated region and
manage consent and stored progress.

Examples:
  skinscan consent --donate
  skinscan scan --photo face.jpg --label redness_appearance=mild
  skinscan progress list
  skinscan stub-server --addr :8080`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./skinscan.yaml or ~/.config/skinscan/skinscan.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "print machine readable JSON")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// app is everything a client command needs, built from config.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	ctrl    *flow.Controller
	journal journal.Journal
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	_ = a.logger.Sync()
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger, err := logging.NewLogger(cfg.Log.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return cfg, logger, nil
}

// newApp wires the client side: state store, API client, session, consent,
// journal and the flow controller.
func newApp(ctx context.Context) (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}

	store, err := initState(ctx, a)
	if err != nil {
		a.Close()
		return nil, err
	}

	j, err := initJournal(ctx, a)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.journal = j

	client := apiclient.NewClient(cfg.Service.BaseURL, logger, apiclient.WithTimeout(cfg.Service.Timeout))
	a.ctrl = flow.NewController(flow.Deps{
		Sessions: session.NewProvider(client, store, logger),
		Consent:  consent.NewStore(client, store, cfg.Sync.Policy(), logger),
		API:      client,
		Journal:  j,
	}, logger)
	return a, nil
}

func initState(ctx context.Context, a *app) (state.Store, error) {
	opts := state.Options{Backend: a.cfg.State.Backend, Path: a.cfg.State.Path}
	if a.cfg.State.Backend == state.BackendRedis {
		client, err := initRedis(ctx, a.cfg.State.Redis)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		opts.KV = state.NewRedisKV(client)
		opts.Key = a.cfg.State.Redis.Key()
	}
	return state.New(opts)
}

func initRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

func initJournal(ctx context.Context, a *app) (journal.Journal, error) {
	if !a.cfg.Journal.Enabled() {
		return journal.Nop{}, nil
	}
	repo, err := journal.Open(a.cfg.Journal.DSN, a.cfg.Sync.Policy(), a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, repo.Close)

	migrateCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := repo.AutoMigrate(migrateCtx); err != nil {
		return nil, fmt.Errorf("journal migration failed: %w", err)
	}
	return repo, nil
}

// bootstrap establishes the session, which every client command needs first.
func (a *app) bootstrap(ctx context.Context) error {
	if _, err := a.ctrl.Bootstrap(ctx); err != nil {
		printError(err)
		return err
	}
	return nil
}

func warn(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "warning: "+format+"\n", args...)
}
