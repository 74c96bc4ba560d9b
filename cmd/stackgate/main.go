// stackgate is the gateway daemon. It serves the CloudFormation-style query
// API over HTTP, authenticates callers with SigV4 against the encrypted
// keystore, and forwards stack operations to the orchestration engine over
// gRPC. Administrative subcommands manage signing keys and the audit log.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/stackgate/stackgate/internal/audit"
	"github.com/stackgate/stackgate/internal/config"
	"github.com/stackgate/stackgate/internal/engine"
	"github.com/stackgate/stackgate/internal/gateway"
	"github.com/stackgate/stackgate/internal/keystore"
	"github.com/stackgate/stackgate/internal/logging"
	"github.com/stackgate/stackgate/internal/metrics"
	"github.com/stackgate/stackgate/internal/notify"
	"github.com/stackgate/stackgate/internal/policy"
	"github.com/stackgate/stackgate/internal/template"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := &cobra.Command{
		Use:          "stackgate",
		Short:        "stackgate — CloudFormation-compatible gateway for the stack engine",
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newKeysCmd())
	rootCmd.AddCommand(newAuditCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway",
		Long: `Start the HTTP gateway. All settings come from STACKGATE_* environment
variables; see the config package for the full list. The serving loop runs
until SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cfg)
		},
	}
}

func serve(cfg *config.Config) error {
	logger := newLogger(cfg)

	var m *metrics.Metrics
	if cfg.Server.MetricsEnabled {
		m = metrics.New()
	}

	engOpts := engine.Options{
		Addr:        cfg.Engine.Addr,
		CACert:      cfg.Engine.CACert,
		CallTimeout: cfg.Engine.CallTimeout,
		Logger:      logger,
	}
	if m != nil {
		engOpts.Observer = m
	}
	eng, err := engine.Dial(engOpts)
	if err != nil {
		return err
	}
	defer eng.Close()

	// Opening the audit database first creates the state directory the
	// keystore lives in.
	auditDB, err := audit.Open(cfg.State.Dir)
	if err != nil {
		return err
	}
	defer auditDB.Close()
	auditLog, err := audit.NewLogger(auditDB)
	if err != nil {
		return err
	}

	var keys *keystore.Store
	if cfg.Auth.Mode == "sigv4" {
		path := cfg.Auth.KeystoreFile
		if path == "" {
			path = filepath.Join(cfg.State.Dir, keystore.DefaultFileName)
		}
		keys, err = keystore.OpenOrCreate(path, cfg.Auth.Passphrase)
		if err != nil {
			return err
		}
		defer keys.Close()
		logger.Info().Str("path", path).Int("keys", len(keys.List())).Msg("keystore unlocked")
	} else {
		logger.Warn().
			Str("tenant", cfg.Auth.DevTenant).
			Str("principal", cfg.Auth.DevPrincipal).
			Msg("authentication disabled, all requests run as the dev subject")
	}

	enforcer, err := policy.Load(context.Background(), cfg.State.PolicyDir, logger)
	if err != nil {
		return err
	}

	publisher, err := notify.Connect(cfg.Notify.URL, logger)
	if err != nil {
		return fmt.Errorf("connecting to event broker: %w", err)
	}
	defer publisher.Close()

	fetcher := template.NewFetcher(template.FetcherOptions{
		HTTPClient: &http.Client{Timeout: cfg.Template.FetchTimeout},
		MaxBytes:   cfg.Template.MaxBytes,
		Logger:     logger,
	})

	gwOpts := gateway.Options{
		Engine:          eng,
		Policy:          enforcer,
		Fetcher:         fetcher,
		Audit:           auditLog,
		Metrics:         m,
		Notify:          publisher,
		Logger:          logger,
		MaxSkew:         cfg.Auth.MaxSkew,
		MaxRequestBytes: cfg.Server.MaxRequestBytes,
		AuthDisabled:    cfg.Auth.Mode == "none",
		DevSubject: gateway.Subject{
			Tenant:    cfg.Auth.DevTenant,
			Principal: cfg.Auth.DevPrincipal,
		},
	}
	if keys != nil {
		gwOpts.Keys = keys
	}
	gw, err := gateway.New(gwOpts)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      gw.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if err := auditLog.Log(audit.EventServerStarted, "", "", "", "", map[string]string{"addr": srv.Addr}); err != nil {
		return fmt.Errorf("recording server start: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("engine", cfg.Engine.Addr).Msg("gateway listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("serving: %w", err)
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("draining connections: %w", err)
	}

	if err := auditLog.Log(audit.EventServerStopped, "", "", "", "", nil); err != nil {
		logger.Error().Err(err).Msg("audit append failed")
	}
	return nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.Log.Format == "json" {
		return logging.NewJSONLogger(os.Stderr, cfg.Log.Level, "stackgate")
	}
	return logging.NewLogger(cfg.Log.Level, "stackgate")
}
