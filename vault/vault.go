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

// Package vault tracks custody of the pooled funds: the budget ceiling,
// the lifetime distributed total, and per-request fund reservations held
// against the pool balance on the external token ledger. The vault never
// holds balances itself; it only accounts for the pool address.
package vault

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/blinklabs-io/coffer/database"
	dbmodels "github.com/blinklabs-io/coffer/database/models"
	"github.com/blinklabs-io/coffer/event"
	"github.com/blinklabs-io/coffer/identity"
	"github.com/blinklabs-io/coffer/token"
	"github.com/blinklabs-io/coffer/validate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ErrPaused        = errors.New("instance is paused")
	ErrAlreadyLocked = errors.New("funds already locked for request")
	ErrNotLocked     = errors.New("no funds locked for request")
)

// SolvencyError indicates the pool balance has fallen below the aggregate
// locked total. This cannot happen through the custody core itself and
// means the pool address lost funds through an outside channel.
type SolvencyError struct {
	Balance uint64
	Locked  uint64
}

func (e SolvencyError) Error() string {
	return fmt.Sprintf(
		"pool balance %d below locked total %d",
		e.Balance,
		e.Locked,
	)
}

// InsufficientAvailableError indicates a request total exceeds the
// unlocked pool balance
type InsufficientAvailableError struct {
	Requested uint64
	Available uint64
}

func (e InsufficientAvailableError) Error() string {
	return fmt.Sprintf(
		"requested %d exceeds available pool balance %d",
		e.Requested,
		e.Available,
	)
}

// DepositTooSmallError indicates a deposit below the configured minimum
type DepositTooSmallError struct {
	Amount  uint64
	Minimum uint64
}

func (e DepositTooSmallError) Error() string {
	return fmt.Sprintf(
		"deposit %d below minimum %d",
		e.Amount,
		e.Minimum,
	)
}

type Config struct {
	Logger       *slog.Logger
	EventBus     *event.EventBus
	Database     *database.Database
	PromRegistry prometheus.Registerer
	Ledger       token.Ledger
	PoolAddress  identity.Address
	MinDeposit   uint64
}

type lockRecord struct {
	amount   uint64
	lockedAt time.Time
}

type vaultMetrics struct {
	lockedTotal      prometheus.Gauge
	distributedTotal prometheus.Gauge
	budgetCeiling    prometheus.Gauge
	deposits         prometheus.Counter
}

// Vault is the custody ledger for the pool address
type Vault struct {
	mu               sync.Mutex
	logger           *slog.Logger
	eventBus         *event.EventBus
	db               *database.Database
	ledger           token.Ledger
	poolAddress      identity.Address
	minDeposit       uint64
	budgetCeiling    uint64
	distributedTotal uint64
	lockedTotal      uint64
	locks            map[uint64]lockRecord
	paused           bool
	metrics          *vaultMetrics
}

// New creates a vault, reloading persisted custody state from the
// metadata store. On a fresh instance the budget ceiling is initialized
// from the current pool balance.
func New(cfg Config) (*Vault, error) {
	if cfg.Ledger == nil {
		return nil, errors.New("no token ledger provided")
	}
	v := &Vault{
		logger:      cfg.Logger,
		eventBus:    cfg.EventBus,
		db:          cfg.Database,
		ledger:      cfg.Ledger,
		poolAddress: cfg.PoolAddress,
		minDeposit:  cfg.MinDeposit,
		locks:       make(map[uint64]lockRecord),
	}
	if v.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		v.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.PromRegistry != nil {
		v.initMetrics(cfg.PromRegistry)
	}
	if err := v.load(); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *Vault) initMetrics(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	v.metrics = &vaultMetrics{
		lockedTotal: promautoFactory.NewGauge(
			prometheus.GaugeOpts{
				Name: "coffer_vault_locked_total",
				Help: "total funds locked against pending requests",
			},
		),
		distributedTotal: promautoFactory.NewGauge(
			prometheus.GaugeOpts{
				Name: "coffer_vault_distributed_total",
				Help: "lifetime total distributed from the pool",
			},
		),
		budgetCeiling: promautoFactory.NewGauge(
			prometheus.GaugeOpts{
				Name: "coffer_vault_budget_ceiling",
				Help: "current budget ceiling",
			},
		),
		deposits: promautoFactory.NewCounter(
			prometheus.CounterOpts{
				Name: "coffer_vault_deposits_total",
				Help: "deposits recorded into the pool",
			},
		),
	}
}

func (v *Vault) load() error {
	var state *dbmodels.InstanceState
	if v.db != nil {
		var err error
		state, err = v.db.GetInstanceState()
		if err != nil {
			return err
		}
	}
	if state == nil {
		// Fresh instance: the initial pool balance becomes the ceiling
		balance, err := v.ledger.BalanceOf(v.poolAddress)
		if err != nil {
			return fmt.Errorf("failed to read pool balance: %w", err)
		}
		v.budgetCeiling = balance
		if v.db != nil {
			if err := v.db.SetBudgetCeiling(balance); err != nil {
				return err
			}
		}
	} else {
		v.budgetCeiling = state.BudgetCeiling
		v.distributedTotal = state.DistributedTotal
		v.paused = state.Paused
	}
	if v.db != nil {
		lockRows, err := v.db.GetLockedAmounts()
		if err != nil {
			return err
		}
		for _, row := range lockRows {
			v.locks[row.RequestID] = lockRecord{
				amount:   row.Amount,
				lockedAt: row.LockedAt,
			}
			v.lockedTotal += row.Amount
		}
	}
	v.updateMetrics()
	return nil
}

// updateMetrics refreshes the custody gauges. The caller holds the lock.
func (v *Vault) updateMetrics() {
	if v.metrics == nil {
		return
	}
	v.metrics.lockedTotal.Set(float64(v.lockedTotal))
	v.metrics.distributedTotal.Set(float64(v.distributedTotal))
	v.metrics.budgetCeiling.Set(float64(v.budgetCeiling))
}

// Available returns the pool balance net of locked funds
func (v *Vault) Available() (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.available()
}

// available computes the unlocked pool balance. The caller holds the lock.
func (v *Vault) available() (uint64, error) {
	balance, err := v.ledger.BalanceOf(v.poolAddress)
	if err != nil {
		return 0, fmt.Errorf("failed to read pool balance: %w", err)
	}
	if balance < v.lockedTotal {
		return 0, SolvencyError{
			Balance: balance,
			Locked:  v.lockedTotal,
		}
	}
	return balance - v.lockedTotal, nil
}

// CheckAffordable verifies that a request total fits within both the
// unlocked pool balance and the remaining budget
func (v *Vault) CheckAffordable(total uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.checkAffordable(total)
}

// checkAffordable performs the affordability checks. The caller holds the
// lock.
func (v *Vault) checkAffordable(total uint64) error {
	available, err := v.available()
	if err != nil {
		return err
	}
	if total > available {
		return InsufficientAvailableError{
			Requested: total,
			Available: available,
		}
	}
	return validate.WithinBudget(
		total,
		v.distributedTotal,
		v.lockedTotal,
		v.budgetCeiling,
	)
}

// Lock reserves funds for a request. The affordability checks are
// re-evaluated at lock time since the pool balance may have changed since
// request creation.
func (v *Vault) Lock(requestId uint64, amount uint64, now time.Time) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.locks[requestId]; ok {
		return ErrAlreadyLocked
	}
	if err := v.checkAffordable(amount); err != nil {
		return err
	}
	if v.db != nil {
		err := v.db.SetLockedAmount(&dbmodels.LockedAmount{
			RequestID: requestId,
			Amount:    amount,
			LockedAt:  now,
		})
		if err != nil {
			return err
		}
	}
	v.locks[requestId] = lockRecord{
		amount:   amount,
		lockedAt: now,
	}
	v.lockedTotal += amount
	v.updateMetrics()
	v.logger.Info(
		"funds locked",
		"component", "vault",
		"request_id", requestId,
		"amount", amount,
	)
	return nil
}

// Unlock releases the reservation for a request without distributing
func (v *Vault) Unlock(requestId uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	record, ok := v.locks[requestId]
	if !ok {
		return ErrNotLocked
	}
	if v.db != nil {
		if err := v.db.DeleteLockedAmount(requestId); err != nil {
			return err
		}
	}
	delete(v.locks, requestId)
	v.lockedTotal -= record.amount
	v.updateMetrics()
	v.logger.Info(
		"funds unlocked",
		"component", "vault",
		"request_id", requestId,
		"amount", record.amount,
	)
	return nil
}

// ConsumeLock moves a reservation from locked to distributed. This is
// done before the outbound transfers so bookkeeping never lags custody;
// RestoreLock reverses it if a transfer fails.
func (v *Vault) ConsumeLock(requestId uint64) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	record, ok := v.locks[requestId]
	if !ok {
		return 0, ErrNotLocked
	}
	if v.db != nil {
		if err := v.db.DeleteLockedAmount(requestId); err != nil {
			return 0, err
		}
		if err := v.db.SetDistributedTotal(v.distributedTotal + record.amount); err != nil {
			return 0, err
		}
	}
	delete(v.locks, requestId)
	v.lockedTotal -= record.amount
	v.distributedTotal += record.amount
	v.updateMetrics()
	return record.amount, nil
}

// RestoreLock reinstates a reservation consumed by ConsumeLock after a
// failed distribution
func (v *Vault) RestoreLock(
	requestId uint64,
	amount uint64,
	lockedAt time.Time,
) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.locks[requestId]; ok {
		return ErrAlreadyLocked
	}
	if v.db != nil {
		err := v.db.SetLockedAmount(&dbmodels.LockedAmount{
			RequestID: requestId,
			Amount:    amount,
			LockedAt:  lockedAt,
		})
		if err != nil {
			return err
		}
		if err := v.db.SetDistributedTotal(v.distributedTotal - amount); err != nil {
			return err
		}
	}
	v.locks[requestId] = lockRecord{
		amount:   amount,
		lockedAt: lockedAt,
	}
	v.lockedTotal += amount
	v.distributedTotal -= amount
	v.updateMetrics()
	return nil
}

// LockRecord returns the reservation for a request, if present
func (v *Vault) LockRecord(requestId uint64) (uint64, time.Time, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	record, ok := v.locks[requestId]
	return record.amount, record.lockedAt, ok
}

// Deposit pulls pre-approved funds from the depositor into the pool and
// grows the budget ceiling by the deposited amount
func (v *Vault) Deposit(
	caller identity.Address,
	amount uint64,
) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.paused {
		return ErrPaused
	}
	if amount < v.minDeposit {
		return DepositTooSmallError{
			Amount:  amount,
			Minimum: v.minDeposit,
		}
	}
	if v.budgetCeiling > math.MaxUint64-amount {
		return validate.ErrBudgetOverflow
	}
	err := v.ledger.TransferFrom(
		v.poolAddress,
		caller,
		v.poolAddress,
		amount,
	)
	if err != nil {
		return fmt.Errorf("deposit transfer failed: %w", err)
	}
	oldCeiling := v.budgetCeiling
	v.budgetCeiling += amount
	if v.db != nil {
		if err := v.db.SetBudgetCeiling(v.budgetCeiling); err != nil {
			return err
		}
	}
	if v.metrics != nil {
		v.metrics.deposits.Inc()
	}
	v.updateMetrics()
	v.logger.Info(
		"deposit recorded",
		"component", "vault",
		"depositor", caller.String(),
		"amount", amount,
	)
	if v.eventBus != nil {
		v.eventBus.Publish(
			DepositEventType,
			event.NewEvent(
				DepositEventType,
				DepositEvent{
					Depositor: caller,
					Amount:    amount,
				},
			),
		)
		v.eventBus.Publish(
			BudgetUpdatedEventType,
			event.NewEvent(
				BudgetUpdatedEventType,
				BudgetUpdatedEvent{
					OldCeiling: oldCeiling,
					NewCeiling: v.budgetCeiling,
				},
			),
		)
	}
	return nil
}

// SweepAll transfers the entire pool balance to the given address and
// returns the amount swept. Used by closure execution.
func (v *Vault) SweepAll(to identity.Address) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	balance, err := v.ledger.BalanceOf(v.poolAddress)
	if err != nil {
		return 0, fmt.Errorf("failed to read pool balance: %w", err)
	}
	if balance == 0 {
		return 0, nil
	}
	if err := v.ledger.Transfer(v.poolAddress, to, balance); err != nil {
		return 0, fmt.Errorf("sweep transfer failed: %w", err)
	}
	v.logger.Info(
		"pool swept",
		"component", "vault",
		"to", to.String(),
		"amount", balance,
	)
	return balance, nil
}

// Pause permanently pauses the instance. There is no unpause.
func (v *Vault) Pause() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.paused {
		return nil
	}
	if v.db != nil {
		if err := v.db.SetPaused(true); err != nil {
			return err
		}
	}
	v.paused = true
	v.logger.Warn(
		"instance paused",
		"component", "vault",
	)
	return nil
}

// Paused returns whether the instance is paused
func (v *Vault) Paused() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.paused
}

// LockedTotal returns the aggregate locked amount
func (v *Vault) LockedTotal() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lockedTotal
}

// DistributedTotal returns the lifetime distributed total
func (v *Vault) DistributedTotal() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.distributedTotal
}

// BudgetCeiling returns the current budget ceiling
func (v *Vault) BudgetCeiling() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.budgetCeiling
}

// PoolAddress returns the pool address
func (v *Vault) PoolAddress() identity.Address {
	return v.poolAddress
}

// Transfer moves funds from the pool to a recipient on the token ledger.
// Used by the approval engine during distribution.
func (v *Vault) Transfer(to identity.Address, amount uint64) error {
	return v.ledger.Transfer(v.poolAddress, to, amount)
}

// Clawback pulls funds back from a recipient into the pool. Used to
// unwind already-applied transfers when a later transfer in the same
// distribution fails.
func (v *Vault) Clawback(from identity.Address, amount uint64) error {
	return v.ledger.Transfer(from, v.poolAddress, amount)
}
