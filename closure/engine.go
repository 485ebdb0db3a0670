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

package closure

import (
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/blinklabs-io/coffer/commitment"
	"github.com/blinklabs-io/coffer/database"
	"github.com/blinklabs-io/coffer/event"
	"github.com/blinklabs-io/coffer/guard"
	"github.com/blinklabs-io/coffer/identity"
	"github.com/blinklabs-io/coffer/roles"
	"github.com/blinklabs-io/coffer/validate"
	"github.com/blinklabs-io/coffer/vault"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Clock reports the current time. Injected so tests can drive the reveal
// and execution windows deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

type Config struct {
	Logger       *slog.Logger
	EventBus     *event.EventBus
	Database     *database.Database
	PromRegistry prometheus.Registerer
	Registry     *roles.Registry
	Vault        *vault.Vault
	Commitments  *commitment.Store
	Guard        *guard.Guard
	Clock        Clock
	InstanceId   [32]byte
	// RequiredCommitteeApprovals is the number of distinct committee
	// approvals needed before the director may approve
	RequiredCommitteeApprovals int
	// ApproverCap bounds the committee approver list
	ApproverCap    int
	ClosureWindow  time.Duration
	MaxReasonLen   int
}

type engineMetrics struct {
	transitions *prometheus.CounterVec
}

// Engine drives emergency-closure requests through their lifecycle
type Engine struct {
	mu                         sync.Mutex
	logger                     *slog.Logger
	eventBus                   *event.EventBus
	db                         *database.Database
	registry                   *roles.Registry
	vault                      *vault.Vault
	commitments                *commitment.Store
	guard                      *guard.Guard
	clock                      Clock
	instanceId                 [32]byte
	requiredCommitteeApprovals int
	approverCap                int
	closureWindow              time.Duration
	maxReasonLen               int
	closures                   map[uint64]*Closure
	nextId                     uint64
	// anyActive tracks whether any closure across the entire history is
	// non-terminal. Rebuilt by a full scan on load, never inferred from a
	// single most-recent pointer.
	anyActive bool
	metrics   *engineMetrics
}

// NewEngine creates a closure engine, reloading persisted closures from
// the metadata store
func NewEngine(cfg Config) (*Engine, error) {
	e := &Engine{
		logger:                     cfg.Logger,
		eventBus:                   cfg.EventBus,
		db:                         cfg.Database,
		registry:                   cfg.Registry,
		vault:                      cfg.Vault,
		commitments:                cfg.Commitments,
		guard:                      cfg.Guard,
		clock:                      cfg.Clock,
		instanceId:                 cfg.InstanceId,
		requiredCommitteeApprovals: cfg.RequiredCommitteeApprovals,
		approverCap:                cfg.ApproverCap,
		closureWindow:              cfg.ClosureWindow,
		maxReasonLen:               cfg.MaxReasonLen,
		closures:                   make(map[uint64]*Closure),
		nextId:                     1,
	}
	if e.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		e.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if e.clock == nil {
		e.clock = systemClock{}
	}
	if e.guard == nil {
		e.guard = guard.New()
	}
	if cfg.PromRegistry != nil {
		e.initMetrics(cfg.PromRegistry)
	}
	if e.db != nil {
		if err := e.load(); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *Engine) initMetrics(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	e.metrics = &engineMetrics{
		transitions: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coffer_closure_transitions_total",
				Help: "closure status transitions by resulting status",
			},
			[]string{"status"},
		),
	}
}

func (e *Engine) countTransition(status Status) {
	if e.metrics != nil {
		e.metrics.transitions.WithLabelValues(string(status)).Inc()
	}
}

// Initiate opens an emergency closure. Rejected while any closure in the
// entire history remains non-terminal.
func (e *Engine) Initiate(
	caller identity.Address,
	returnAddress identity.Address,
	reason string,
) (uint64, error) {
	if err := e.guard.Enter(); err != nil {
		return 0, err
	}
	defer e.guard.Exit()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.vault.Paused() {
		return 0, vault.ErrPaused
	}
	if !e.registry.HasRole(roles.RoleCommittee, caller) &&
		!e.registry.HasRole(roles.RoleDirector, caller) {
		return 0, roles.ErrNotAuthorized
	}
	if returnAddress.IsZero() || returnAddress.IsReserved() {
		return 0, ErrInvalidReturnAddress
	}
	if err := validate.Text(reason, e.maxReasonLen, true); err != nil {
		return 0, err
	}
	if e.anyActive {
		return 0, ErrClosureActive
	}
	now := e.clock.Now()
	closure := &Closure{
		Id:                e.nextId,
		Initiator:         caller,
		ReturnAddress:     returnAddress,
		Reason:            reason,
		Status:            StatusInitiated,
		CreatedAt:         now,
		UpdatedAt:         now,
		ExecutionDeadline: now.Add(e.closureWindow),
	}
	if err := e.persist(closure); err != nil {
		return 0, err
	}
	e.closures[closure.Id] = closure
	e.nextId++
	e.anyActive = true
	e.countTransition(StatusInitiated)
	e.logger.Info(
		"closure initiated",
		"component", "closure",
		"closure_id", closure.Id,
		"initiator", caller.String(),
		"return_address", returnAddress.String(),
	)
	if e.eventBus != nil {
		e.eventBus.Publish(
			InitiatedEventType,
			event.NewEvent(
				InitiatedEventType,
				InitiatedEvent{
					Id:            closure.Id,
					Initiator:     caller,
					ReturnAddress: returnAddress,
				},
			),
		)
	}
	return closure.Id, nil
}

// expectedRole returns the role expected to act at the closure's current
// stage. The caller holds the engine lock.
func (e *Engine) expectedRole(closure *Closure) (roles.Role, error) {
	switch closure.Status {
	case StatusInitiated, StatusPartiallyApproved:
		if len(closure.CommitteeApprovers) < e.requiredCommitteeApprovals {
			return roles.RoleCommittee, nil
		}
		return roles.RoleDirector, nil
	default:
		return "", StatusError{Status: closure.Status}
	}
}

// Commit records a closure approval commitment. A repeat commit from the
// same approver overwrites the prior one.
func (e *Engine) Commit(
	caller identity.Address,
	closureId uint64,
	digest [commitment.DigestSize]byte,
) error {
	if err := e.guard.Enter(); err != nil {
		return err
	}
	defer e.guard.Exit()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.vault.Paused() {
		return vault.ErrPaused
	}
	closure, ok := e.closures[closureId]
	if !ok {
		return ErrUnknownClosure
	}
	expectedRole, err := e.expectedRole(closure)
	if err != nil {
		return err
	}
	if !e.registry.HasRole(expectedRole, caller) {
		return roles.ErrNotAuthorized
	}
	key := commitment.Key{
		Kind:      commitment.SubjectClosure,
		SubjectId: closureId,
		Approver:  caller,
	}
	return e.commitments.Put(key, digest, e.clock.Now())
}

// Reveal completes a previously committed closure approval. The final
// director reveal executes the closure: sweep the pool to the return
// address and permanently pause the instance.
func (e *Engine) Reveal(
	caller identity.Address,
	closureId uint64,
	nonce [commitment.NonceSize]byte,
) error {
	if err := e.guard.Enter(); err != nil {
		return err
	}
	defer e.guard.Exit()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.vault.Paused() {
		return vault.ErrPaused
	}
	closure, ok := e.closures[closureId]
	if !ok {
		return ErrUnknownClosure
	}
	expectedRole, err := e.expectedRole(closure)
	if err != nil {
		return err
	}
	if !e.registry.HasRole(expectedRole, caller) {
		return roles.ErrNotAuthorized
	}
	now := e.clock.Now()
	key := commitment.Key{
		Kind:      commitment.SubjectClosure,
		SubjectId: closureId,
		Approver:  caller,
	}
	digest := commitment.Digest(
		caller,
		commitment.SubjectClosure,
		closureId,
		e.instanceId,
		nonce,
	)
	if err := e.commitments.Verify(key, digest, now); err != nil {
		return err
	}
	if expectedRole == roles.RoleCommittee {
		for _, approver := range closure.CommitteeApprovers {
			if caller == approver {
				return ErrDuplicateApprover
			}
		}
		if len(closure.CommitteeApprovers) >= e.approverCap {
			return ErrApproverCapReached
		}
		closure.CommitteeApprovers = append(
			closure.CommitteeApprovers,
			caller,
		)
		closure.Status = StatusPartiallyApproved
	} else {
		// A fully-approved closure must execute within its deadline;
		// past it the closure can only be cancelled
		if now.After(closure.ExecutionDeadline) {
			return DeadlinePassedError{
				Deadline: closure.ExecutionDeadline,
			}
		}
		closure.DirectorApprover = caller
		closure.Status = StatusFullyApproved
	}
	if err := e.commitments.Consume(key); err != nil {
		return err
	}
	closure.UpdatedAt = now
	if err := e.persist(closure); err != nil {
		return err
	}
	e.countTransition(closure.Status)
	e.logger.Info(
		"closure approval revealed",
		"component", "closure",
		"closure_id", closureId,
		"approver", caller.String(),
		"status", string(closure.Status),
	)
	if e.eventBus != nil {
		e.eventBus.Publish(
			ApprovedEventType,
			event.NewEvent(
				ApprovedEventType,
				ApprovedEvent{
					Id:        closureId,
					Approver:  caller,
					NewStatus: closure.Status,
				},
			),
		)
	}
	if closure.Status == StatusFullyApproved {
		// The director approval stands regardless of the execution
		// outcome. On sweep failure the closure stays fully approved and
		// can only be cancelled.
		if err := e.execute(closure, now); err != nil {
			e.logger.Error(
				"closure execution failed",
				"component", "closure",
				"closure_id", closureId,
				"error", err,
			)
			return err
		}
	}
	return nil
}

// execute sweeps the pool to the return address, records the swept
// amount, and permanently pauses the instance. The caller holds the
// engine lock.
func (e *Engine) execute(closure *Closure, now time.Time) error {
	swept, err := e.vault.SweepAll(closure.ReturnAddress)
	if err != nil {
		return err
	}
	closure.SweptAmount = swept
	closure.Status = StatusExecuted
	closure.UpdatedAt = now
	if err := e.persist(closure); err != nil {
		return err
	}
	e.anyActive = false
	if err := e.vault.Pause(); err != nil {
		return err
	}
	e.countTransition(StatusExecuted)
	e.logger.Warn(
		"closure executed",
		"component", "closure",
		"closure_id", closure.Id,
		"return_address", closure.ReturnAddress.String(),
		"swept", swept,
	)
	if e.eventBus != nil {
		e.eventBus.Publish(
			ExecutedEventType,
			event.NewEvent(
				ExecutedEventType,
				ExecutedEvent{
					Id:            closure.Id,
					ReturnAddress: closure.ReturnAddress,
					SweptAmount:   swept,
				},
			),
		)
	}
	return nil
}

// Cancel aborts a closure before execution. Callable by the initiator or
// an admin.
func (e *Engine) Cancel(caller identity.Address, closureId uint64) error {
	if err := e.guard.Enter(); err != nil {
		return err
	}
	defer e.guard.Exit()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.vault.Paused() {
		return vault.ErrPaused
	}
	closure, ok := e.closures[closureId]
	if !ok {
		return ErrUnknownClosure
	}
	if caller != closure.Initiator &&
		!e.registry.HasRole(roles.RoleAdmin, caller) {
		return roles.ErrNotAuthorized
	}
	if closure.Status.Terminal() {
		return StatusError{Status: closure.Status}
	}
	closure.Status = StatusCancelled
	closure.UpdatedAt = e.clock.Now()
	if err := e.persist(closure); err != nil {
		return err
	}
	e.rebuildAnyActive()
	e.countTransition(StatusCancelled)
	e.logger.Info(
		"closure cancelled",
		"component", "closure",
		"closure_id", closureId,
		"caller", caller.String(),
	)
	if e.eventBus != nil {
		e.eventBus.Publish(
			CancelledEventType,
			event.NewEvent(
				CancelledEventType,
				CancelledEvent{
					Id:     closureId,
					Caller: caller,
				},
			),
		)
	}
	return nil
}

// rebuildAnyActive recomputes the active flag by scanning the full
// closure history. The caller holds the engine lock.
func (e *Engine) rebuildAnyActive() {
	e.anyActive = false
	for _, closure := range e.closures {
		if !closure.Status.Terminal() {
			e.anyActive = true
			return
		}
	}
}

// Closure returns a copy of a closure record
func (e *Engine) Closure(closureId uint64) (Closure, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	closure, ok := e.closures[closureId]
	if !ok {
		return Closure{}, ErrUnknownClosure
	}
	return copyClosure(closure), nil
}

// Closures returns copies of all closure records in id order
func (e *Engine) Closures() []Closure {
	e.mu.Lock()
	defer e.mu.Unlock()
	ret := make([]Closure, 0, len(e.closures))
	for _, closure := range e.closures {
		ret = append(ret, copyClosure(closure))
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].Id < ret[j].Id
	})
	return ret
}

// ActiveClosure reports whether any closure in the history is
// non-terminal
func (e *Engine) ActiveClosure() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.anyActive
}
