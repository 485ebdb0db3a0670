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

package coffer

import (
	"io"
	"log/slog"
	"time"

	"github.com/blinklabs-io/coffer/approval"
	"github.com/blinklabs-io/coffer/identity"
	"github.com/blinklabs-io/coffer/token"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	defaultMinAmount              = 1
	defaultMaxAmount              = 1_000_000
	defaultMaxDescriptionLen      = 500
	defaultMaxDocumentRefLen      = 200
	defaultMaxReasonLen           = 500
	defaultRevealDelay            = 10 * time.Minute
	defaultPaymentWindow          = 7 * 24 * time.Hour
	defaultStaleLockWindow        = 24 * time.Hour
	defaultClosureWindow          = 7 * 24 * time.Hour
	defaultRequiredExtraApprovals = 3
	defaultClosureApprovals       = 3
	defaultClosureApproverCap     = 10
	defaultMinDeposit             = 100
)

type Config struct {
	logger                   *slog.Logger
	promRegistry             prometheus.Registerer
	ledger                   token.Ledger
	clock                    approval.Clock
	dataDir                  string
	poolAddress              identity.Address
	tokenAddress             identity.Address
	factoryAddress           identity.Address
	instanceId               [32]byte
	minAmount                uint64
	maxAmount                uint64
	minDeposit               uint64
	maxDescriptionLen        int
	maxDocumentRefLen        int
	maxReasonLen             int
	revealDelay              time.Duration
	paymentWindow            time.Duration
	staleLockWindow          time.Duration
	closureWindow            time.Duration
	requiredExtraApprovals   int
	requiredClosureApprovals int
	closureApproverCap       int
	tracing                  bool
	tracingStdout            bool
}

// ConfigOptionFunc is a type that represents functions that modify the instance config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new coffer config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger:                   slog.New(slog.NewJSONHandler(io.Discard, nil)),
		minAmount:                defaultMinAmount,
		maxAmount:                defaultMaxAmount,
		minDeposit:               defaultMinDeposit,
		maxDescriptionLen:        defaultMaxDescriptionLen,
		maxDocumentRefLen:        defaultMaxDocumentRefLen,
		maxReasonLen:             defaultMaxReasonLen,
		revealDelay:              defaultRevealDelay,
		paymentWindow:            defaultPaymentWindow,
		staleLockWindow:          defaultStaleLockWindow,
		closureWindow:            defaultClosureWindow,
		requiredExtraApprovals:   defaultRequiredExtraApprovals,
		requiredClosureApprovals: defaultClosureApprovals,
		closureApproverCap:       defaultClosureApproverCap,
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithLogger specifies the logger to use. This defaults to discarding log output
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithDataDir specifies the persistent data directory to use. The default is to store everything in memory
func WithDataDir(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithTokenLedger specifies the external token ledger holding the pool balance
func WithTokenLedger(ledger token.Ledger) ConfigOptionFunc {
	return func(c *Config) {
		c.ledger = ledger
	}
}

// WithPoolAddress specifies the custodial pool address on the token ledger
func WithPoolAddress(addr identity.Address) ConfigOptionFunc {
	return func(c *Config) {
		c.poolAddress = addr
	}
}

// WithTokenAddress specifies the token collaborator's own address. It is only
// used to exclude the token from being named as a virtual payer
func WithTokenAddress(addr identity.Address) ConfigOptionFunc {
	return func(c *Config) {
		c.tokenAddress = addr
	}
}

// WithFactoryAddress specifies the identity allowed to perform the one-time
// role bootstrap
func WithFactoryAddress(addr identity.Address) ConfigOptionFunc {
	return func(c *Config) {
		c.factoryAddress = addr
	}
}

// WithInstanceId specifies the discriminator mixed into commitment digests so
// commitments cannot be replayed across instances
func WithInstanceId(id [32]byte) ConfigOptionFunc {
	return func(c *Config) {
		c.instanceId = id
	}
}

// WithRevealDelay specifies the minimum time between commit and reveal. This defaults to 10 minutes
func WithRevealDelay(d time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.revealDelay = d
	}
}

// WithPaymentWindow specifies the payment deadline window set at final approval. This defaults to 7 days
func WithPaymentWindow(d time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.paymentWindow = d
	}
}

// WithStaleLockWindow specifies how long a locked request may sit undistributed
// before anyone may force-release it. This defaults to 24 hours
func WithStaleLockWindow(d time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.staleLockWindow = d
	}
}

// WithClosureWindow specifies the execution deadline window for closures. This defaults to 7 days
func WithClosureWindow(d time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.closureWindow = d
	}
}

// WithAmountBounds specifies the per-recipient amount bounds. This defaults to [1, 1000000]
func WithAmountBounds(minAmount uint64, maxAmount uint64) ConfigOptionFunc {
	return func(c *Config) {
		c.minAmount = minAmount
		c.maxAmount = maxAmount
	}
}

// WithMinDeposit specifies the minimum deposit amount. This defaults to 100
func WithMinDeposit(amount uint64) ConfigOptionFunc {
	return func(c *Config) {
		c.minDeposit = amount
	}
}

// WithRequiredExtraApprovals specifies how many additional committee approvals
// are collected before the director may approve a request. This defaults to 3
func WithRequiredExtraApprovals(count int) ConfigOptionFunc {
	return func(c *Config) {
		c.requiredExtraApprovals = count
	}
}

// WithRequiredClosureApprovals specifies how many committee approvals a
// closure needs before the director may approve it. This defaults to 3
func WithRequiredClosureApprovals(count int) ConfigOptionFunc {
	return func(c *Config) {
		c.requiredClosureApprovals = count
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to. In most cases, prometheus.DefaultRegistry would be
// a good choice to get metrics working
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithClock specifies the time source used for reveal, deadline, and
// staleness calculations. This defaults to the system clock
func WithClock(clock approval.Clock) ConfigOptionFunc {
	return func(c *Config) {
		c.clock = clock
	}
}

// WithTracing enables tracing. By default, spans are submitted to a HTTP(s) endpoint using OTLP. This can be configured
// using the OTEL_EXPORTER_OTLP_* env vars documented in the README for [go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp]
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout. This also requires tracing to be enabled separately. This is mostly useful for debugging
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}
