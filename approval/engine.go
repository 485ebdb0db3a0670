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

// Package approval implements the request lifecycle: creation, the
// ordered commit-reveal approval stages, cancellation, fund locking at
// final approval, and distribution through the token ledger.
package approval

import (
	"fmt"
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

// Clock reports the current time. Injected so tests can drive the reveal,
// deadline, and staleness windows deterministically.
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
	// InstanceId discriminates commitment digests between instances so a
	// commitment captured on one instance cannot be replayed on another
	InstanceId             [32]byte
	MinAmount              uint64
	MaxAmount              uint64
	MaxDescriptionLen      int
	MaxDocumentRefLen      int
	PaymentWindow          time.Duration
	StaleLockWindow        time.Duration
	RequiredExtraApprovals int
	// PayerDenylist holds the system addresses a virtual payer tag may
	// never name (pool, token, factory)
	PayerDenylist []identity.Address
}

type engineMetrics struct {
	transitions *prometheus.CounterVec
}

// Engine drives disbursement requests through the approval lifecycle
type Engine struct {
	mu                     sync.Mutex
	logger                 *slog.Logger
	eventBus               *event.EventBus
	db                     *database.Database
	registry               *roles.Registry
	vault                  *vault.Vault
	commitments            *commitment.Store
	guard                  *guard.Guard
	clock                  Clock
	instanceId             [32]byte
	minAmount              uint64
	maxAmount              uint64
	maxDescriptionLen      int
	maxDocumentRefLen      int
	paymentWindow          time.Duration
	staleLockWindow        time.Duration
	requiredExtraApprovals int
	payerDenylist          []identity.Address
	requests               map[uint64]*Request
	nextId                 uint64
	metrics                *engineMetrics
}

// NewEngine creates an approval engine, reloading persisted requests from
// the metadata store
func NewEngine(cfg Config) (*Engine, error) {
	e := &Engine{
		logger:                 cfg.Logger,
		eventBus:               cfg.EventBus,
		db:                     cfg.Database,
		registry:               cfg.Registry,
		vault:                  cfg.Vault,
		commitments:            cfg.Commitments,
		guard:                  cfg.Guard,
		clock:                  cfg.Clock,
		instanceId:             cfg.InstanceId,
		minAmount:              cfg.MinAmount,
		maxAmount:              cfg.MaxAmount,
		maxDescriptionLen:      cfg.MaxDescriptionLen,
		maxDocumentRefLen:      cfg.MaxDocumentRefLen,
		paymentWindow:          cfg.PaymentWindow,
		staleLockWindow:        cfg.StaleLockWindow,
		requiredExtraApprovals: cfg.RequiredExtraApprovals,
		payerDenylist:          cfg.PayerDenylist,
		requests:               make(map[uint64]*Request),
		nextId:                 1,
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
				Name: "coffer_request_transitions_total",
				Help: "request status transitions by resulting status",
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

// Create records a new pending disbursement request. The recipients and
// amounts slices are parallel.
func (e *Engine) Create(
	caller identity.Address,
	recipients []identity.Address,
	amounts []uint64,
	description string,
	documentRef string,
	virtualPayer identity.Address,
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
	if !e.registry.HasRole(roles.RoleRequester, caller) {
		return 0, roles.ErrNotAuthorized
	}
	err := validate.Recipients(recipients, amounts, e.minAmount, e.maxAmount)
	if err != nil {
		return 0, err
	}
	total, err := validate.Sum(amounts)
	if err != nil {
		return 0, err
	}
	err = validate.Text(description, e.maxDescriptionLen, false)
	if err != nil {
		return 0, fmt.Errorf("description: %w", err)
	}
	err = validate.Text(documentRef, e.maxDocumentRefLen, true)
	if err != nil {
		return 0, fmt.Errorf("document reference: %w", err)
	}
	if !virtualPayer.IsZero() {
		err = validate.VirtualPayer(virtualPayer, e.payerDenylist)
		if err != nil {
			return 0, err
		}
	}
	if err := e.vault.CheckAffordable(total); err != nil {
		return 0, err
	}
	now := e.clock.Now()
	req := &Request{
		Id:           e.nextId,
		Requester:    caller,
		Recipients:   make([]Recipient, len(recipients)),
		Total:        total,
		Description:  description,
		DocumentRef:  documentRef,
		VirtualPayer: virtualPayer,
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for i := range recipients {
		req.Recipients[i] = Recipient{
			Address: recipients[i],
			Amount:  amounts[i],
		}
	}
	if err := e.persist(req); err != nil {
		return 0, err
	}
	e.requests[req.Id] = req
	e.nextId++
	e.countTransition(StatusPending)
	e.logger.Info(
		"request created",
		"component", "approval",
		"request_id", req.Id,
		"requester", caller.String(),
		"total", total,
		"recipients", len(recipients),
	)
	if e.eventBus != nil {
		e.eventBus.Publish(
			RequestCreatedEventType,
			event.NewEvent(
				RequestCreatedEventType,
				RequestCreatedEvent{
					Id:        req.Id,
					Requester: caller,
					Total:     total,
				},
			),
		)
	}
	return req.Id, nil
}

// expectedRole returns the role expected to act at the request's current
// stage. The caller holds the engine lock.
func (e *Engine) expectedRole(req *Request) (roles.Role, error) {
	switch req.Status {
	case StatusPending:
		return roles.RoleSecretary, nil
	case StatusSecretaryApproved:
		return roles.RoleCommittee, nil
	case StatusCommitteeApproved:
		return roles.RoleFinance, nil
	case StatusFinanceApproved:
		if len(req.ExtraApprovers) < e.requiredExtraApprovals {
			return roles.RoleCommittee, nil
		}
		return roles.RoleDirector, nil
	default:
		return "", StatusError{Status: req.Status}
	}
}

// Commit records an approval commitment for the request's current stage.
// A repeat commit from the same approver overwrites the prior one.
func (e *Engine) Commit(
	caller identity.Address,
	requestId uint64,
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
	req, ok := e.requests[requestId]
	if !ok {
		return ErrUnknownRequest
	}
	expectedRole, err := e.expectedRole(req)
	if err != nil {
		return err
	}
	if !e.registry.HasRole(expectedRole, caller) {
		return roles.ErrNotAuthorized
	}
	key := commitment.Key{
		Kind:      commitment.SubjectRequest,
		SubjectId: requestId,
		Approver:  caller,
	}
	return e.commitments.Put(key, digest, e.clock.Now())
}

// Reveal completes a previously committed approval. The engine recomputes
// the digest from the revealed nonce, requires an exact match and an
// elapsed reveal window, and advances the request one stage. The final
// director reveal locks funds and immediately attempts distribution.
func (e *Engine) Reveal(
	caller identity.Address,
	requestId uint64,
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
	req, ok := e.requests[requestId]
	if !ok {
		return ErrUnknownRequest
	}
	expectedRole, err := e.expectedRole(req)
	if err != nil {
		return err
	}
	if !e.registry.HasRole(expectedRole, caller) {
		return roles.ErrNotAuthorized
	}
	now := e.clock.Now()
	key := commitment.Key{
		Kind:      commitment.SubjectRequest,
		SubjectId: requestId,
		Approver:  caller,
	}
	digest := commitment.Digest(
		caller,
		commitment.SubjectRequest,
		requestId,
		e.instanceId,
		nonce,
	)
	if err := e.commitments.Verify(key, digest, now); err != nil {
		return err
	}
	if err := e.applyApproval(req, caller, now); err != nil {
		return err
	}
	if err := e.commitments.Consume(key); err != nil {
		return err
	}
	req.UpdatedAt = now
	if err := e.persist(req); err != nil {
		return err
	}
	e.countTransition(req.Status)
	e.logger.Info(
		"approval revealed",
		"component", "approval",
		"request_id", requestId,
		"approver", caller.String(),
		"status", string(req.Status),
	)
	if e.eventBus != nil {
		e.eventBus.Publish(
			StageApprovedEventType,
			event.NewEvent(
				StageApprovedEventType,
				StageApprovedEvent{
					Id:        requestId,
					Approver:  caller,
					NewStatus: req.Status,
				},
			),
		)
	}
	if req.Status == StatusDirectorApproved {
		// The approval above stands regardless of the distribution
		// outcome. On transfer failure the request stays locked and
		// director-approved, recoverable via Cancel or ReleaseStale.
		if err := e.distribute(req, now); err != nil {
			e.logger.Error(
				"distribution failed",
				"component", "approval",
				"request_id", requestId,
				"error", err,
			)
			return DistributionError{Id: requestId, Err: err}
		}
	}
	return nil
}

// applyApproval advances the request one stage for the given approver.
// The caller holds the engine lock and has already verified role and
// commitment.
func (e *Engine) applyApproval(
	req *Request,
	caller identity.Address,
	now time.Time,
) error {
	switch req.Status {
	case StatusPending:
		req.SecretaryApprover = caller
		req.Status = StatusSecretaryApproved
	case StatusSecretaryApproved:
		req.CommitteeApprover = caller
		req.Status = StatusCommitteeApproved
	case StatusCommitteeApproved:
		req.FinanceApprover = caller
		req.Status = StatusFinanceApproved
	case StatusFinanceApproved:
		if len(req.ExtraApprovers) < e.requiredExtraApprovals {
			// Additional committee approvers must be distinct from each
			// other and from the committee-stage approver
			if caller == req.CommitteeApprover {
				return ErrDuplicateApprover
			}
			for _, approver := range req.ExtraApprovers {
				if caller == approver {
					return ErrDuplicateApprover
				}
			}
			req.ExtraApprovers = append(req.ExtraApprovers, caller)
			return nil
		}
		// Final director approval: set the payment deadline and reserve
		// the funds before any distribution attempt
		req.DirectorApprover = caller
		req.Status = StatusDirectorApproved
		req.PaymentDeadline = now.Add(e.paymentWindow)
		if err := e.vault.Lock(req.Id, req.Total, now); err != nil {
			// Roll the in-memory transition back; nothing was persisted
			req.DirectorApprover = identity.ZeroAddress
			req.Status = StatusFinanceApproved
			req.PaymentDeadline = time.Time{}
			return err
		}
	default:
		return StatusError{Status: req.Status}
	}
	return nil
}

// distribute moves the locked reservation to the distributed total, then
// performs one outbound transfer per recipient. Custody bookkeeping moves
// before the transfers; the status flips to Distributed only after every
// transfer has succeeded, and the bookkeeping is restored if any fails.
// The caller holds the engine lock.
func (e *Engine) distribute(req *Request, now time.Time) error {
	if now.After(req.PaymentDeadline) {
		return DeadlinePassedError{Deadline: req.PaymentDeadline}
	}
	_, lockedAt, ok := e.vault.LockRecord(req.Id)
	if !ok {
		return vault.ErrNotLocked
	}
	amount, err := e.vault.ConsumeLock(req.Id)
	if err != nil {
		return err
	}
	for i, recipient := range req.Recipients {
		err := e.vault.Transfer(recipient.Address, recipient.Amount)
		if err != nil {
			// Unwind the transfers already applied, then restore the
			// reservation so the request can be cancelled or released
			for j := range i {
				done := req.Recipients[j]
				if undoErr := e.unwindTransfer(done); undoErr != nil {
					e.logger.Error(
						"failed to unwind partial distribution",
						"component", "approval",
						"request_id", req.Id,
						"recipient", done.Address.String(),
						"error", undoErr,
					)
				}
			}
			if restoreErr := e.vault.RestoreLock(req.Id, amount, lockedAt); restoreErr != nil {
				return fmt.Errorf(
					"transfer failed (%w) and lock restore failed: %w",
					err,
					restoreErr,
				)
			}
			return err
		}
	}
	req.Status = StatusDistributed
	req.UpdatedAt = now
	if err := e.persist(req); err != nil {
		return err
	}
	e.countTransition(StatusDistributed)
	e.logger.Info(
		"request distributed",
		"component", "approval",
		"request_id", req.Id,
		"total", req.Total,
	)
	if e.eventBus != nil {
		e.eventBus.Publish(
			DistributedEventType,
			event.NewEvent(
				DistributedEventType,
				DistributedEvent{
					Id:       req.Id,
					Total:    req.Total,
					Deadline: req.PaymentDeadline,
				},
			),
		)
	}
	return nil
}

// unwindTransfer claws back a completed recipient transfer after a later
// transfer in the same distribution failed
func (e *Engine) unwindTransfer(recipient Recipient) error {
	return e.vault.Clawback(recipient.Address, recipient.Amount)
}

// Cancel transitions a request to Cancelled and releases any reservation
// held for it. Callable by the original requester or an admin at any
// non-terminal stage.
func (e *Engine) Cancel(caller identity.Address, requestId uint64) error {
	if err := e.guard.Enter(); err != nil {
		return err
	}
	defer e.guard.Exit()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.vault.Paused() {
		return vault.ErrPaused
	}
	req, ok := e.requests[requestId]
	if !ok {
		return ErrUnknownRequest
	}
	if caller != req.Requester &&
		!e.registry.HasRole(roles.RoleAdmin, caller) {
		return roles.ErrNotAuthorized
	}
	if req.Status.Terminal() {
		return StatusError{Status: req.Status}
	}
	var unlocked uint64
	if amount, _, ok := e.vault.LockRecord(requestId); ok {
		if err := e.vault.Unlock(requestId); err != nil {
			return err
		}
		unlocked = amount
	}
	req.Status = StatusCancelled
	req.UpdatedAt = e.clock.Now()
	if err := e.persist(req); err != nil {
		return err
	}
	e.countTransition(StatusCancelled)
	e.logger.Info(
		"request cancelled",
		"component", "approval",
		"request_id", requestId,
		"caller", caller.String(),
		"unlocked", unlocked,
	)
	if e.eventBus != nil {
		e.eventBus.Publish(
			RequestCancelledEventType,
			event.NewEvent(
				RequestCancelledEventType,
				RequestCancelledEvent{
					Id:       requestId,
					Caller:   caller,
					Unlocked: unlocked,
				},
			),
		)
	}
	return nil
}

// ReleaseStale force-cancels a request stuck in the director-approved
// stage past the staleness window and releases its reservation. Callable
// by anyone.
func (e *Engine) ReleaseStale(
	caller identity.Address,
	requestId uint64,
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
	req, ok := e.requests[requestId]
	if !ok {
		return ErrUnknownRequest
	}
	if req.Status != StatusDirectorApproved {
		return StatusError{Status: req.Status}
	}
	amount, lockedAt, ok := e.vault.LockRecord(requestId)
	if !ok {
		return vault.ErrNotLocked
	}
	now := e.clock.Now()
	if elapsed := now.Sub(lockedAt); elapsed < e.staleLockWindow {
		return NotYetStaleError{Remaining: e.staleLockWindow - elapsed}
	}
	if err := e.vault.Unlock(requestId); err != nil {
		return err
	}
	req.Status = StatusCancelled
	req.UpdatedAt = now
	if err := e.persist(req); err != nil {
		return err
	}
	e.countTransition(StatusCancelled)
	e.logger.Info(
		"stale lock released",
		"component", "approval",
		"request_id", requestId,
		"caller", caller.String(),
		"released", amount,
	)
	if e.eventBus != nil {
		e.eventBus.Publish(
			StaleReleasedEventType,
			event.NewEvent(
				StaleReleasedEventType,
				StaleReleasedEvent{
					Id:       requestId,
					Caller:   caller,
					Released: amount,
				},
			),
		)
	}
	return nil
}

// Deposit adds funds to the pool through the vault. Exposed on the engine
// so the deposit shares the reentrancy guard with the other protected
// operations.
func (e *Engine) Deposit(caller identity.Address, amount uint64) error {
	if err := e.guard.Enter(); err != nil {
		return err
	}
	defer e.guard.Exit()
	return e.vault.Deposit(caller, amount)
}

// Request returns a copy of a request record
func (e *Engine) Request(requestId uint64) (Request, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	req, ok := e.requests[requestId]
	if !ok {
		return Request{}, ErrUnknownRequest
	}
	return copyRequest(req), nil
}

// Requests returns copies of all request records in id order
func (e *Engine) Requests() []Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	ret := make([]Request, 0, len(e.requests))
	for _, req := range e.requests {
		ret = append(ret, copyRequest(req))
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].Id < ret[j].Id
	})
	return ret
}

// RequestsByStatus returns copies of all requests with the given status
// in id order
func (e *Engine) RequestsByStatus(status Status) []Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	ret := []Request{}
	for _, req := range e.requests {
		if req.Status == status {
			ret = append(ret, copyRequest(req))
		}
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].Id < ret[j].Id
	})
	return ret
}
