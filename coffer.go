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

// Package coffer wires together the components of a pooled-fund custody
// instance: the role registry, the commitment store, the vault, and the
// approval and closure state machines, backed by a shared metadata store
// and event bus.
package coffer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/blinklabs-io/coffer/approval"
	"github.com/blinklabs-io/coffer/closure"
	"github.com/blinklabs-io/coffer/commitment"
	"github.com/blinklabs-io/coffer/database"
	"github.com/blinklabs-io/coffer/event"
	"github.com/blinklabs-io/coffer/guard"
	"github.com/blinklabs-io/coffer/identity"
	"github.com/blinklabs-io/coffer/roles"
	"github.com/blinklabs-io/coffer/vault"
)

// Coffer is one pooled-fund custody instance
type Coffer struct {
	config        Config
	eventBus      *event.EventBus
	db            *database.Database
	registry      *roles.Registry
	vault         *vault.Vault
	commitments   *commitment.Store
	guard         *guard.Guard
	approval      *approval.Engine
	closure       *closure.Engine
	shutdownFuncs []func(context.Context) error
	started       bool
	shutdownOnce  sync.Once
}

// New creates a coffer instance with the provided config
func New(cfg Config) (*Coffer, error) {
	c := &Coffer{
		config:   cfg,
		eventBus: event.NewEventBus(cfg.promRegistry, cfg.logger),
	}
	if err := c.configValidate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

func (c *Coffer) configValidate() error {
	if c.config.ledger == nil {
		return errors.New("no token ledger configured")
	}
	if c.config.poolAddress.IsZero() {
		return errors.New("no pool address configured")
	}
	if c.config.factoryAddress.IsZero() {
		return errors.New("no factory address configured")
	}
	if c.config.minAmount == 0 || c.config.minAmount > c.config.maxAmount {
		return fmt.Errorf(
			"invalid amount bounds: [%d, %d]",
			c.config.minAmount,
			c.config.maxAmount,
		)
	}
	if c.config.requiredExtraApprovals < 0 {
		return errors.New("required extra approvals cannot be negative")
	}
	if c.config.requiredClosureApprovals < 1 {
		return errors.New("at least one closure committee approval required")
	}
	if c.config.closureApproverCap < c.config.requiredClosureApprovals {
		return errors.New(
			"closure approver cap below required approval count",
		)
	}
	return nil
}

// Start opens the backing stores and builds the custody components,
// reloading any persisted state
func (c *Coffer) Start() error {
	if c.started {
		return errors.New("instance already started")
	}
	// Configure tracing
	if c.config.tracing {
		if err := c.setupTracing(); err != nil {
			return err
		}
	}
	// Load database
	db, err := database.New(&database.Config{
		Logger:  c.config.logger,
		DataDir: c.config.dataDir,
		Tracing: c.config.tracing,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	c.db = db
	c.guard = guard.New()
	c.commitments, err = commitment.NewStore(commitment.StoreConfig{
		Logger:      c.config.logger,
		Persistence: db,
		RevealDelay: c.config.revealDelay,
	})
	if err != nil {
		return fmt.Errorf("failed to load commitment store: %w", err)
	}
	c.registry, err = roles.NewRegistry(roles.Config{
		Logger:         c.config.logger,
		EventBus:       c.eventBus,
		Database:       db,
		PromRegistry:   c.config.promRegistry,
		FactoryAddress: c.config.factoryAddress,
	})
	if err != nil {
		return fmt.Errorf("failed to load role registry: %w", err)
	}
	c.vault, err = vault.New(vault.Config{
		Logger:       c.config.logger,
		EventBus:     c.eventBus,
		Database:     db,
		PromRegistry: c.config.promRegistry,
		Ledger:       c.config.ledger,
		PoolAddress:  c.config.poolAddress,
		MinDeposit:   c.config.minDeposit,
	})
	if err != nil {
		return fmt.Errorf("failed to load vault: %w", err)
	}
	c.approval, err = approval.NewEngine(approval.Config{
		Logger:                 c.config.logger,
		EventBus:               c.eventBus,
		Database:               db,
		PromRegistry:           c.config.promRegistry,
		Registry:               c.registry,
		Vault:                  c.vault,
		Commitments:            c.commitments,
		Guard:                  c.guard,
		Clock:                  c.config.clock,
		InstanceId:             c.config.instanceId,
		MinAmount:              c.config.minAmount,
		MaxAmount:              c.config.maxAmount,
		MaxDescriptionLen:      c.config.maxDescriptionLen,
		MaxDocumentRefLen:      c.config.maxDocumentRefLen,
		PaymentWindow:          c.config.paymentWindow,
		StaleLockWindow:        c.config.staleLockWindow,
		RequiredExtraApprovals: c.config.requiredExtraApprovals,
		PayerDenylist:          c.payerDenylist(),
	})
	if err != nil {
		return fmt.Errorf("failed to load approval engine: %w", err)
	}
	c.closure, err = closure.NewEngine(closure.Config{
		Logger:                     c.config.logger,
		EventBus:                   c.eventBus,
		Database:                   db,
		PromRegistry:               c.config.promRegistry,
		Registry:                   c.registry,
		Vault:                      c.vault,
		Commitments:                c.commitments,
		Guard:                      c.guard,
		Clock:                      c.config.clock,
		InstanceId:                 c.config.instanceId,
		RequiredCommitteeApprovals: c.config.requiredClosureApprovals,
		ApproverCap:                c.config.closureApproverCap,
		ClosureWindow:              c.config.closureWindow,
		MaxReasonLen:               c.config.maxReasonLen,
	})
	if err != nil {
		return fmt.Errorf("failed to load closure engine: %w", err)
	}
	c.started = true
	c.config.logger.Info(
		"instance started",
		"component", "coffer",
		"pool", c.config.poolAddress.String(),
		"data_dir", c.config.dataDir,
	)
	return nil
}

// payerDenylist builds the system-address denylist for virtual payer tags
func (c *Coffer) payerDenylist() []identity.Address {
	denylist := []identity.Address{
		c.config.poolAddress,
		c.config.factoryAddress,
	}
	if !c.config.tokenAddress.IsZero() {
		denylist = append(denylist, c.config.tokenAddress)
	}
	return denylist
}

// Stop shuts down the instance and closes the backing stores
func (c *Coffer) Stop() error {
	var err error
	c.shutdownOnce.Do(func() {
		err = c.shutdown()
	})
	return err
}

func (c *Coffer) shutdown() error {
	var ret error
	c.eventBus.Stop()
	if c.db != nil {
		ret = errors.Join(ret, c.db.Close())
	}
	ctx := context.Background()
	for _, fn := range c.shutdownFuncs {
		ret = errors.Join(ret, fn(ctx))
	}
	c.shutdownFuncs = nil
	return ret
}

// Approval returns the approval engine
func (c *Coffer) Approval() *approval.Engine {
	return c.approval
}

// Closure returns the closure engine
func (c *Coffer) Closure() *closure.Engine {
	return c.closure
}

// Registry returns the role registry
func (c *Coffer) Registry() *roles.Registry {
	return c.registry
}

// Vault returns the vault
func (c *Coffer) Vault() *vault.Vault {
	return c.vault
}

// EventBus returns the event bus
func (c *Coffer) EventBus() *event.EventBus {
	return c.eventBus
}

// Database returns the backing database
func (c *Coffer) Database() *database.Database {
	return c.db
}
