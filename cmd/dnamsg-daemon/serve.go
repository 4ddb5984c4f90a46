// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sage-x-project/dna-messenger-core/internal/config"
	"github.com/sage-x-project/dna-messenger-core/internal/controlapi"
	"github.com/sage-x-project/dna-messenger-core/internal/engine"
	"github.com/sage-x-project/dna-messenger-core/internal/health"
	"github.com/sage-x-project/dna-messenger-core/internal/logger"
	"github.com/sage-x-project/dna-messenger-core/internal/metrics"
	"github.com/sage-x-project/dna-messenger-core/internal/pushgateway"
	"github.com/sage-x-project/dna-messenger-core/internal/store"
	"github.com/sage-x-project/dna-messenger-core/pkg/dnacrypto"
)

var (
	configDir   string
	environment string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dnamsg engine, control API, push gateway, and health/metrics endpoints",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&configDir, "config-dir", "config", "directory containing {env}.yaml/default.yaml/config.yaml")
	serveCmd.Flags().StringVar(&environment, "environment", "", "overrides automatic environment detection")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(config.LoaderOptions{ConfigDir: configDir, Environment: environment})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.NewLogger(os.Stdout, logger.ParseLevel(cfg.Logging.Level))
	logger.SetDefaultLogger(log)
	log.Info("starting dnamsg-daemon",
		logger.String("environment", cfg.Environment),
		logger.String("data_dir", cfg.Node.DataDir),
		logger.String("dht_mode", cfg.DHT.Mode),
	)

	deps, closeStore, err := buildEngineDeps(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	eng := engine.New(cfg.Node.DataDir, deps)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng.Start(ctx)
	defer eng.Destroy()

	checker := health.NewChecker(5 * time.Second)
	if cfg.Health.CacheTTL > 0 {
		checker.SetCacheTTL(cfg.Health.CacheTTL)
	}
	checker.SetLogger(log)
	eng.RegisterHealthChecks(checker)

	var healthSrv *health.Server
	if cfg.Health.Enabled {
		healthSrv = health.NewServer(checker, log, cfg.Health.Port)
		if err := healthSrv.Start(); err != nil {
			return fmt.Errorf("start health server: %w", err)
		}
		log.Info("health server listening", logger.Int("port", cfg.Health.Port))
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, metrics.Handler())
		metricsSrv = &http.Server{Addr: fmt.Sprintf(":%d", cfg.Metrics.Port), Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server error", logger.Error(err))
			}
		}()
		log.Info("metrics server listening", logger.Int("port", cfg.Metrics.Port))
	}

	var gateway *pushgateway.Gateway
	if cfg.Pushgateway.Enabled {
		gateway = pushgateway.New(log, nil)
	}

	controlSrv, err := controlapi.NewServer(eng, gateway, log, cfg.ControlAPI.ListenAddr, cfg.ControlAPI.TokenTTL)
	if err != nil {
		return fmt.Errorf("build control api: %w", err)
	}
	if err := controlSrv.Start(); err != nil {
		return fmt.Errorf("start control api: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := controlSrv.Stop(shutdownCtx); err != nil {
		log.Warn("control api shutdown error", logger.Error(err))
	}
	if gateway != nil {
		if err := gateway.Close(); err != nil {
			log.Warn("pushgateway close error", logger.Error(err))
		}
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn("metrics server shutdown error", logger.Error(err))
		}
	}
	if healthSrv != nil {
		if err := healthSrv.Stop(shutdownCtx); err != nil {
			log.Warn("health server shutdown error", logger.Error(err))
		}
	}

	log.Info("dnamsg-daemon stopped")
	return nil
}

// buildEngineDeps wires engine.Deps from cfg. The returned close func
// releases any backing resources (a postgres pool) opened here; it is a
// no-op for the in-memory backend.
func buildEngineDeps(cfg *config.Config, log logger.Logger) (engine.Deps, func(), error) {
	deps := engine.Deps{
		Kem:     dnacrypto.NewKem(),
		Dsa:     dnacrypto.NewDsa(),
		Log:     log,
		Workers: cfg.Workers.PoolSize,
	}

	closeFn := func() {}

	switch cfg.Store.Backend {
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		pg, err := store.NewPostgres(ctx, cfg.Store.DSN)
		if err != nil {
			return engine.Deps{}, closeFn, fmt.Errorf("connect postgres store: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return engine.Deps{}, closeFn, fmt.Errorf("migrate postgres store: %w", err)
		}
		scoped := pg.ForIdentity(cfg.Store.IdentityFingerprint)
		deps.ContactsDb = scoped
		deps.ProfileStore = scoped
		deps.MessageStore = scoped
		closeFn = pg.Close
	case "memory", "":
		mem := store.NewMemory()
		deps.ContactsDb = mem
		deps.ProfileStore = mem
		deps.MessageStore = mem
	default:
		return engine.Deps{}, closeFn, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	switch cfg.DHT.Mode {
	case "memory", "":
		// deps.Dht left nil; engine.New defaults it to dht.NewMemory().
	default:
		return engine.Deps{}, closeFn, fmt.Errorf("unsupported dht mode %q (only memory is wired)", cfg.DHT.Mode)
	}

	return deps, closeFn, nil
}
