package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"example.com/labelengine/internal/compliance"
	"example.com/labelengine/internal/config"
	"example.com/labelengine/internal/copygen"
	"example.com/labelengine/internal/labels"
	"example.com/labelengine/internal/logger"
	"example.com/labelengine/internal/metrics"
	"example.com/labelengine/internal/status"
	"example.com/labelengine/internal/storage"
	"example.com/labelengine/internal/storage/memory"
	spg "example.com/labelengine/internal/storage/postgres"
	transport "example.com/labelengine/internal/transport/http"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

func main() {
	root := &cobra.Command{
		Use:     "label-api",
		Short:   "Label versioning, compliance review and status timeline service",
		Version: version,
		// Errors are printed once in main.
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var migrate bool
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), migrate)
		},
	}
	serveCmd.Flags().BoolVar(&migrate, "migrate", true, "Apply pending migrations before serving (postgres only)")

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQL migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context())
		},
	}

	rulesCmd := &cobra.Command{Use: "rules", Short: "Manage the compliance rule catalog"}
	importCmd := &cobra.Command{
		Use:   "import <catalog.json>",
		Short: "Upsert every rule of a JSON catalog in one transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImportRules(cmd.Context(), args[0])
		},
	}
	rulesCmd.AddCommand(importCmd)

	root.AddCommand(serveCmd, migrateCmd, rulesCmd)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cancel()
		os.Exit(1)
	}
}

func loadConfig() (config.Config, *logger.Logger, error) {
	cfg := config.Parse()
	if err := cfg.Validate(); err != nil {
		return cfg, nil, fmt.Errorf("config: %w", err)
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	return cfg, log, nil
}

// openStore connects the configured backend. The returned store is not yet observed.
func openStore(ctx context.Context, cfg config.Config, log *logger.Logger, migrate bool) (storage.Store, error) {
	if cfg.Storage == config.StorageInMemory {
		log.Warn().Msg("using in-memory storage; data is lost on exit")
		return memory.New(), nil
	}

	db, err := spg.Connect(ctx, cfg.PostgresDSN, int32(cfg.DBMaxConns))
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if err := db.Ready(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	log.Info().Msg("db: connected")

	if migrate {
		applied, err := db.RunMigrations(ctx, cfg.MigrationsDir)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
		log.Info().Strs("applied", applied).Msg("db: migrations up to date")
	}
	return db, nil
}

func runServe(ctx context.Context, migrate bool) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	policy, err := compliance.ParseGatePolicy(cfg.GatePolicy)
	if err != nil {
		return err
	}

	raw, err := openStore(ctx, cfg, log, migrate)
	if err != nil {
		return err
	}
	defer raw.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	store := storage.Observe(raw, log, m)

	var provider copygen.Provider
	if cfg.OpenAIKey != "" {
		p, err := copygen.NewOpenAI(copygen.OpenAIConfig{APIKey: cfg.OpenAIKey, Model: cfg.OpenAIModel, URL: cfg.OpenAIURL})
		if err != nil {
			return err
		}
		provider = p
	} else {
		log.Info().Msg("copygen: no API key, template copy only")
	}
	gen := copygen.NewGenerator(provider, cfg.CopyGenTimeout, log, m)

	if cfg.WizardKey == "" {
		log.Warn().Msg("WIZARD_KEY not set; authoring endpoints are unprotected")
	}

	engine := compliance.New(compliance.Deps{Store: store, Log: log, Metrics: m, Policy: policy})
	deps := &transport.ServerDeps{
		Cfg:        cfg,
		Store:      store,
		Labels:     labels.New(labels.Deps{Store: store, Log: log, Metrics: m, Generator: gen}),
		Compliance: engine,
		Status:     status.New(status.Deps{Store: store, Gate: engine, Log: log, Metrics: m}),
		Log:        log,
		Metrics:    m,
		Gatherer:   reg,
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           deps.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.CopyGenTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.LogServerStart(srv.Addr, cfg.Storage)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	log.LogServerShutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMigrate(ctx context.Context) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Storage != config.StorageFromPostgres {
		return fmt.Errorf("migrate requires STORAGE=%s", config.StorageFromPostgres)
	}
	db, err := openStore(ctx, cfg, log, true)
	if err != nil {
		return err
	}
	db.Close()
	return nil
}

func runImportRules(ctx context.Context, path string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	rules, err := compliance.DecodeCatalog(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	raw, err := openStore(ctx, cfg, log, false)
	if err != nil {
		return err
	}
	defer raw.Close()

	m := metrics.NewNop()
	engine := compliance.New(compliance.Deps{Store: storage.Observe(raw, log, m), Log: log, Metrics: m})
	n, err := engine.ImportRules(ctx, rules)
	if err != nil {
		return err
	}
	log.Info().Int("rules", n).Str("file", path).Msg("rule catalog imported")
	return nil
}
