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

// Package roles implements the role registry gating every operation of the
// approval and closure state machines. Membership is enumerable per role,
// the admin role administers all roles including itself, and initial
// memberships are seeded exactly once by the factory that provisioned the
// instance.
package roles

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/blinklabs-io/coffer/database"
	"github.com/blinklabs-io/coffer/event"
	"github.com/blinklabs-io/coffer/identity"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Role names the permission sets recognized by the instance
type Role string

const (
	RoleRequester Role = "requester"
	RoleSecretary Role = "secretary"
	RoleCommittee Role = "committee"
	RoleFinance   Role = "finance"
	RoleDirector  Role = "director"
	RoleAdmin     Role = "admin"
)

// AllRoles lists every recognized role
var AllRoles = []Role{
	RoleRequester,
	RoleSecretary,
	RoleCommittee,
	RoleFinance,
	RoleDirector,
	RoleAdmin,
}

var (
	ErrUnknownRole          = errors.New("unknown role")
	ErrNotAuthorized        = errors.New("caller is not authorized")
	ErrAlreadyMember        = errors.New("address already holds role")
	ErrNotMember            = errors.New("address does not hold role")
	ErrZeroMember           = errors.New("member address is zero")
	ErrLastAdmin            = errors.New("cannot remove the last admin")
	ErrAlreadyBootstrapped  = errors.New("instance roles already bootstrapped")
	ErrBootstrapNeedsAdmin  = errors.New("bootstrap must seed at least one admin")
)

type Config struct {
	Logger         *slog.Logger
	EventBus       *event.EventBus
	Database       *database.Database
	PromRegistry   prometheus.Registerer
	FactoryAddress identity.Address
}

type registryMetrics struct {
	roleMembers *prometheus.GaugeVec
}

// Registry tracks role memberships and the one-time bootstrap capability
type Registry struct {
	mu             sync.Mutex
	logger         *slog.Logger
	eventBus       *event.EventBus
	db             *database.Database
	factoryAddress identity.Address
	members        map[Role]map[identity.Address]struct{}
	bootstrapped   bool
	metrics        *registryMetrics
}

// NewRegistry creates a role registry, reloading any persisted memberships
// and the bootstrap-consumed flag from the metadata store
func NewRegistry(cfg Config) (*Registry, error) {
	r := &Registry{
		logger:         cfg.Logger,
		eventBus:       cfg.EventBus,
		db:             cfg.Database,
		factoryAddress: cfg.FactoryAddress,
		members:        make(map[Role]map[identity.Address]struct{}),
	}
	if r.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		r.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	for _, role := range AllRoles {
		r.members[role] = make(map[identity.Address]struct{})
	}
	if cfg.PromRegistry != nil {
		r.initMetrics(cfg.PromRegistry)
	}
	if r.db != nil {
		if err := r.load(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) initMetrics(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	r.metrics = &registryMetrics{
		roleMembers: promautoFactory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coffer_role_members",
				Help: "current role members by role",
			},
			[]string{"role"},
		),
	}
}

func (r *Registry) load() error {
	memberRows, err := r.db.GetRoleMembers()
	if err != nil {
		return err
	}
	for _, row := range memberRows {
		role := Role(row.Role)
		if _, ok := r.members[role]; !ok {
			// Skip memberships for roles this build does not recognize
			r.logger.Warn(
				"ignoring persisted membership for unknown role",
				"component", "roles",
				"role", row.Role,
			)
			continue
		}
		member, err := identity.NewAddress(row.Member)
		if err != nil {
			return err
		}
		r.members[role][member] = struct{}{}
		if r.metrics != nil {
			r.metrics.roleMembers.WithLabelValues(string(role)).Inc()
		}
	}
	state, err := r.db.GetInstanceState()
	if err != nil {
		return err
	}
	if state != nil {
		r.bootstrapped = state.Bootstrapped
	}
	return nil
}

// Bootstrap seeds the initial role memberships. It is callable only by the
// configured factory address and only once; the consumed flag persists
// across restarts.
func (r *Registry) Bootstrap(
	caller identity.Address,
	grants map[Role][]identity.Address,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.factoryAddress {
		return ErrNotAuthorized
	}
	if r.bootstrapped {
		return ErrAlreadyBootstrapped
	}
	if len(grants[RoleAdmin]) == 0 {
		return ErrBootstrapNeedsAdmin
	}
	for role, members := range grants {
		if _, ok := r.members[role]; !ok {
			return ErrUnknownRole
		}
		for _, member := range members {
			if member.IsZero() {
				return ErrZeroMember
			}
		}
	}
	for role, members := range grants {
		for _, member := range members {
			if err := r.addMember(role, member, caller); err != nil {
				return err
			}
		}
	}
	r.bootstrapped = true
	if r.db != nil {
		if err := r.db.SetBootstrapped(true); err != nil {
			return err
		}
	}
	r.logger.Info(
		"role registry bootstrapped",
		"component", "roles",
		"factory", caller.String(),
	)
	return nil
}

// Bootstrapped returns whether the one-time bootstrap has been consumed
func (r *Registry) Bootstrapped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bootstrapped
}

// Grant adds a member to a role. The caller must hold the admin role.
func (r *Registry) Grant(
	caller identity.Address,
	role Role,
	member identity.Address,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[role]; !ok {
		return ErrUnknownRole
	}
	if !r.hasRole(RoleAdmin, caller) {
		return ErrNotAuthorized
	}
	if member.IsZero() {
		return ErrZeroMember
	}
	if _, ok := r.members[role][member]; ok {
		return ErrAlreadyMember
	}
	return r.addMember(role, member, caller)
}

// Revoke removes a member from a role. The caller must hold the admin
// role. Removing the last admin is rejected so the instance cannot lock
// itself out.
func (r *Registry) Revoke(
	caller identity.Address,
	role Role,
	member identity.Address,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[role]; !ok {
		return ErrUnknownRole
	}
	if !r.hasRole(RoleAdmin, caller) {
		return ErrNotAuthorized
	}
	return r.removeMember(role, member, caller)
}

// Renounce removes the caller from a role they hold
func (r *Registry) Renounce(caller identity.Address, role Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[role]; !ok {
		return ErrUnknownRole
	}
	return r.removeMember(role, caller, caller)
}

// HasRole returns whether a member holds a role
func (r *Registry) HasRole(role Role, member identity.Address) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hasRole(role, member)
}

// Members returns the members of a role in deterministic order
func (r *Registry) Members(role Role) []identity.Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	ret := make([]identity.Address, 0, len(r.members[role]))
	for member := range r.members[role] {
		ret = append(ret, member)
	}
	sort.Slice(ret, func(i, j int) bool {
		return bytes.Compare(ret[i][:], ret[j][:]) < 0
	})
	return ret
}

// MemberCount returns the number of members holding a role
func (r *Registry) MemberCount(role Role) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members[role])
}

func (r *Registry) hasRole(role Role, member identity.Address) bool {
	_, ok := r.members[role][member]
	return ok
}

// addMember records a membership. The caller holds the registry lock.
func (r *Registry) addMember(
	role Role,
	member identity.Address,
	caller identity.Address,
) error {
	if _, ok := r.members[role][member]; ok {
		// Duplicate seed entries within a bootstrap collapse silently
		return nil
	}
	if r.db != nil {
		if err := r.db.AddRoleMember(string(role), member.Bytes()); err != nil {
			return err
		}
	}
	r.members[role][member] = struct{}{}
	if r.metrics != nil {
		r.metrics.roleMembers.WithLabelValues(string(role)).Inc()
	}
	r.logger.Info(
		"role granted",
		"component", "roles",
		"role", string(role),
		"member", member.String(),
	)
	if r.eventBus != nil {
		r.eventBus.Publish(
			GrantedEventType,
			event.NewEvent(
				GrantedEventType,
				GrantedEvent{
					Role:   role,
					Member: member,
					Caller: caller,
				},
			),
		)
	}
	return nil
}

// removeMember deletes a membership. The caller holds the registry lock.
func (r *Registry) removeMember(
	role Role,
	member identity.Address,
	caller identity.Address,
) error {
	if _, ok := r.members[role][member]; !ok {
		return ErrNotMember
	}
	if role == RoleAdmin && len(r.members[RoleAdmin]) == 1 {
		return ErrLastAdmin
	}
	if r.db != nil {
		if err := r.db.RemoveRoleMember(string(role), member.Bytes()); err != nil {
			return err
		}
	}
	delete(r.members[role], member)
	if r.metrics != nil {
		r.metrics.roleMembers.WithLabelValues(string(role)).Dec()
	}
	r.logger.Info(
		"role revoked",
		"component", "roles",
		"role", string(role),
		"member", member.String(),
	)
	if r.eventBus != nil {
		r.eventBus.Publish(
			RevokedEventType,
			event.NewEvent(
				RevokedEventType,
				RevokedEvent{
					Role:   role,
					Member: member,
					Caller: caller,
				},
			),
		)
	}
	return nil
}
