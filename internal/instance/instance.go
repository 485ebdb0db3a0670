// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package instance assembles and runs a coffer instance from the loaded
// configuration: token ledger binding, development-mode seeding, the
// prometheus metrics listener, and signal-driven shutdown.
package instance

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // #nosec G108
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blinklabs-io/coffer"
	"github.com/blinklabs-io/coffer/identity"
	"github.com/blinklabs-io/coffer/internal/config"
	"github.com/blinklabs-io/coffer/roles"
	"github.com/blinklabs-io/coffer/token"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Run(cfg *config.Config, logger *slog.Logger) error {
	logger.Debug(fmt.Sprintf("config: %+v", cfg), "component", "instance")
	devMode := cfg.RunMode.IsDevMode()

	poolAddress, err := resolveAddress(
		cfg.PoolAddress,
		"coffer-dev-pool",
		devMode,
	)
	if err != nil {
		return fmt.Errorf("invalid pool address: %w", err)
	}
	tokenAddress, err := resolveAddress(
		cfg.TokenAddress,
		"coffer-dev-token",
		devMode,
	)
	if err != nil {
		return fmt.Errorf("invalid token address: %w", err)
	}
	factoryAddress, err := resolveAddress(
		cfg.FactoryAddress,
		"coffer-dev-factory",
		devMode,
	)
	if err != nil {
		return fmt.Errorf("invalid factory address: %w", err)
	}

	var instanceId [32]byte
	if cfg.InstanceId != "" {
		raw, err := hex.DecodeString(cfg.InstanceId)
		if err != nil || len(raw) != len(instanceId) {
			return fmt.Errorf("invalid instance id: %q", cfg.InstanceId)
		}
		copy(instanceId[:], raw)
	}

	// Parse shutdown timeout
	shutdownTimeout := 30 * time.Second // Default timeout
	if cfg.ShutdownTimeout != "" {
		shutdownTimeout, err = time.ParseDuration(cfg.ShutdownTimeout)
		if err != nil {
			return fmt.Errorf("invalid shutdown timeout: %w", err)
		}
	}

	ledger := token.NewMemoryLedger()
	dataDir := cfg.DataDir
	if devMode {
		// Development mode runs fully in memory with a seeded pool
		dataDir = ""
		if err := ledger.Mint(poolAddress, cfg.DevPoolBalance); err != nil {
			return fmt.Errorf("failed to seed dev pool: %w", err)
		}
	}

	opts := []coffer.ConfigOptionFunc{
		coffer.WithLogger(logger),
		coffer.WithDataDir(dataDir),
		coffer.WithTokenLedger(ledger),
		coffer.WithPoolAddress(poolAddress),
		coffer.WithTokenAddress(tokenAddress),
		coffer.WithFactoryAddress(factoryAddress),
		coffer.WithInstanceId(instanceId),
		// Enable metrics with default prometheus registry
		coffer.WithPrometheusRegistry(prometheus.DefaultRegisterer),
		coffer.WithTracing(cfg.Tracing),
		coffer.WithTracingStdout(cfg.TracingStdout),
	}
	if cfg.MinAmount > 0 && cfg.MaxAmount > 0 {
		opts = append(
			opts,
			coffer.WithAmountBounds(cfg.MinAmount, cfg.MaxAmount),
		)
	}
	if cfg.MinDeposit > 0 {
		opts = append(opts, coffer.WithMinDeposit(cfg.MinDeposit))
	}
	if cfg.RequiredExtraApprovals > 0 {
		opts = append(
			opts,
			coffer.WithRequiredExtraApprovals(cfg.RequiredExtraApprovals),
		)
	}
	if cfg.RequiredClosureApprovals > 0 {
		opts = append(
			opts,
			coffer.WithRequiredClosureApprovals(cfg.RequiredClosureApprovals),
		)
	}
	durationOpts := []struct {
		value  string
		option func(time.Duration) coffer.ConfigOptionFunc
		name   string
	}{
		{cfg.RevealDelay, coffer.WithRevealDelay, "reveal delay"},
		{cfg.PaymentWindow, coffer.WithPaymentWindow, "payment window"},
		{cfg.StaleLockWindow, coffer.WithStaleLockWindow, "stale lock window"},
		{cfg.ClosureWindow, coffer.WithClosureWindow, "closure window"},
	}
	for _, durationOpt := range durationOpts {
		if durationOpt.value == "" {
			continue
		}
		d, err := time.ParseDuration(durationOpt.value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", durationOpt.name, err)
		}
		opts = append(opts, durationOpt.option(d))
	}

	c, err := coffer.New(coffer.NewConfig(opts...))
	if err != nil {
		return err
	}
	if err := c.Start(); err != nil {
		return err
	}
	if devMode {
		if err := seedDevRoles(c, ledger, factoryAddress, logger); err != nil {
			return err
		}
	}

	// Metrics and debug listener
	http.Handle("/metrics", promhttp.Handler())
	logger.Info(
		"serving prometheus metrics on "+fmt.Sprintf(
			"%s:%d",
			cfg.BindAddr,
			cfg.MetricsPort,
		),
		"component",
		"instance",
	)
	metricsServer := &http.Server{
		Addr: fmt.Sprintf(
			"%s:%d",
			cfg.BindAddr,
			cfg.MetricsPort,
		),
		ReadHeaderTimeout: 60 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil &&
			err != http.ErrServerClosed {
			logger.Error(
				fmt.Sprintf("failed to start metrics listener: %s", err),
				"component", "instance",
			)
			os.Exit(1)
		}
	}()

	// Wait for interrupt/termination signal
	signalCtx, signalCtxStop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()
	<-signalCtx.Done()
	logger.Info("signal received, initiating graceful shutdown")

	// Shutdown metrics server
	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		shutdownTimeout,
	)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", "error", err)
	}

	// Shutdown instance
	if err := c.Stop(); err != nil {
		logger.Error("shutdown errors occurred", "error", err)
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// resolveAddress parses a configured address, deriving one from the given
// seed in development mode when the config leaves it empty
func resolveAddress(
	configured string,
	devSeed string,
	devMode bool,
) (identity.Address, error) {
	if configured != "" {
		return identity.ParseAddress(configured)
	}
	if devMode {
		return identity.AddressFromSeed(devSeed), nil
	}
	return identity.ZeroAddress, fmt.Errorf("address not configured")
}

// seedDevRoles bootstraps a full set of derived dev identities so every
// lifecycle operation can be exercised locally, and logs each identity
func seedDevRoles(
	c *coffer.Coffer,
	ledger *token.MemoryLedger,
	factoryAddress identity.Address,
	logger *slog.Logger,
) error {
	grants := map[roles.Role][]identity.Address{
		roles.RoleAdmin:     {identity.AddressFromSeed("coffer-dev-admin")},
		roles.RoleRequester: {identity.AddressFromSeed("coffer-dev-requester")},
		roles.RoleSecretary: {identity.AddressFromSeed("coffer-dev-secretary")},
		roles.RoleCommittee: {
			identity.AddressFromSeed("coffer-dev-committee-1"),
			identity.AddressFromSeed("coffer-dev-committee-2"),
			identity.AddressFromSeed("coffer-dev-committee-3"),
			identity.AddressFromSeed("coffer-dev-committee-4"),
		},
		roles.RoleFinance:  {identity.AddressFromSeed("coffer-dev-finance")},
		roles.RoleDirector: {identity.AddressFromSeed("coffer-dev-director")},
	}
	if err := c.Registry().Bootstrap(factoryAddress, grants); err != nil {
		return fmt.Errorf("failed to bootstrap dev roles: %w", err)
	}
	// Give the depositor dev identity a balance and a standing allowance
	// toward the pool
	depositor := identity.AddressFromSeed("coffer-dev-depositor")
	if err := ledger.Mint(depositor, 1_000_000); err != nil {
		return err
	}
	ledger.Approve(depositor, c.Vault().PoolAddress(), 1_000_000)
	for role, members := range grants {
		for _, member := range members {
			logger.Info(
				"dev identity",
				"component", "instance",
				"role", string(role),
				"address", member.String(),
			)
		}
	}
	logger.Info(
		"dev identity",
		"component", "instance",
		"role", "depositor",
		"address", depositor.String(),
	)
	return nil
}
