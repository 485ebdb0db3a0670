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

package closure_test

import (
	"sync"
	"testing"
	"time"

	"github.com/blinklabs-io/coffer/closure"
	"github.com/blinklabs-io/coffer/commitment"
	"github.com/blinklabs-io/coffer/guard"
	"github.com/blinklabs-io/coffer/identity"
	"github.com/blinklabs-io/coffer/roles"
	"github.com/blinklabs-io/coffer/token"
	"github.com/blinklabs-io/coffer/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testRevealDelay   = 10 * time.Minute
	testClosureWindow = 7 * 24 * time.Hour
)

var (
	testInstanceId = [32]byte{0x0a, 0x0b}
	testFactory    = identity.AddressFromSeed("closure-factory")
	testPool       = identity.AddressFromSeed("closure-pool")
	testReturn     = identity.AddressFromSeed("closure-return")
	testRequester  = identity.AddressFromSeed("closure-requester")
	testCommittee1 = identity.AddressFromSeed("closure-committee-1")
	testCommittee2 = identity.AddressFromSeed("closure-committee-2")
	testCommittee3 = identity.AddressFromSeed("closure-committee-3")
	testDirector   = identity.AddressFromSeed("closure-director")
	testAdmin      = identity.AddressFromSeed("closure-admin")
)

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func newMockClock() *mockClock {
	return &mockClock{now: time.Unix(1700000000, 0)}
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	engine   *closure.Engine
	ledger   *token.MemoryLedger
	vault    *vault.Vault
	registry *roles.Registry
	store    *commitment.Store
	clock    *mockClock
}

func newTestEnv(t *testing.T, poolBalance uint64) *testEnv {
	t.Helper()
	env := &testEnv{
		ledger: token.NewMemoryLedger(),
		clock:  newMockClock(),
	}
	require.NoError(t, env.ledger.Mint(testPool, poolBalance))
	var err error
	env.registry, err = roles.NewRegistry(roles.Config{
		FactoryAddress: testFactory,
	})
	require.NoError(t, err)
	env.vault, err = vault.New(vault.Config{
		Ledger:      env.ledger,
		PoolAddress: testPool,
	})
	require.NoError(t, err)
	err = env.registry.Bootstrap(
		testFactory,
		map[roles.Role][]identity.Address{
			roles.RoleAdmin:     {testAdmin},
			roles.RoleRequester: {testRequester},
			roles.RoleCommittee: {
				testCommittee1,
				testCommittee2,
				testCommittee3,
			},
			roles.RoleDirector: {testDirector},
		},
	)
	require.NoError(t, err)
	env.store, err = commitment.NewStore(commitment.StoreConfig{
		RevealDelay: testRevealDelay,
	})
	require.NoError(t, err)
	env.engine, err = closure.NewEngine(closure.Config{
		Registry:                   env.registry,
		Vault:                      env.vault,
		Commitments:                env.store,
		Guard:                      guard.New(),
		Clock:                      env.clock,
		InstanceId:                 testInstanceId,
		RequiredCommitteeApprovals: 2,
		ApproverCap:                10,
		ClosureWindow:              testClosureWindow,
		MaxReasonLen:               500,
	})
	require.NoError(t, err)
	return env
}

func testNonce(caller identity.Address, closureId uint64) [commitment.NonceSize]byte {
	var nonce [commitment.NonceSize]byte
	copy(nonce[:], caller[:])
	nonce[commitment.NonceSize-1] = byte(closureId)
	return nonce
}

func (env *testEnv) approve(
	t *testing.T,
	caller identity.Address,
	closureId uint64,
) error {
	t.Helper()
	nonce := testNonce(caller, closureId)
	digest := commitment.Digest(
		caller,
		commitment.SubjectClosure,
		closureId,
		testInstanceId,
		nonce,
	)
	if err := env.engine.Commit(caller, closureId, digest); err != nil {
		return err
	}
	env.clock.Advance(testRevealDelay)
	return env.engine.Reveal(caller, closureId, nonce)
}

func TestInitiate(t *testing.T) {
	env := newTestEnv(t, 1000)

	// Only committee members or the director may initiate
	_, err := env.engine.Initiate(testRequester, testReturn, "compromise")
	assert.ErrorIs(t, err, roles.ErrNotAuthorized)

	// Return address must be a regular address
	_, err = env.engine.Initiate(
		testCommittee1,
		identity.ZeroAddress,
		"compromise",
	)
	assert.ErrorIs(t, err, closure.ErrInvalidReturnAddress)
	var reserved identity.Address
	reserved[identity.AddressLength-1] = 0x02
	_, err = env.engine.Initiate(testCommittee1, reserved, "compromise")
	assert.ErrorIs(t, err, closure.ErrInvalidReturnAddress)

	closureId, err := env.engine.Initiate(
		testCommittee1,
		testReturn,
		"signing key compromise suspected",
	)
	require.NoError(t, err)
	c, err := env.engine.Closure(closureId)
	require.NoError(t, err)
	assert.Equal(t, closure.StatusInitiated, c.Status)
	assert.Equal(t, testCommittee1, c.Initiator)
	assert.Equal(
		t,
		env.clock.Now().Add(testClosureWindow),
		c.ExecutionDeadline,
	)
	assert.True(t, env.engine.ActiveClosure())

	// A second closure cannot open while one is active
	_, err = env.engine.Initiate(testDirector, testReturn, "")
	assert.ErrorIs(t, err, closure.ErrClosureActive)
}

func TestInitiateAfterCancel(t *testing.T) {
	env := newTestEnv(t, 1000)
	closureId, err := env.engine.Initiate(testCommittee1, testReturn, "first")
	require.NoError(t, err)
	require.NoError(t, env.engine.Cancel(testCommittee1, closureId))
	assert.False(t, env.engine.ActiveClosure())

	// A cancelled closure no longer blocks a new one, but a live one does
	// even after earlier closures have come and gone
	closureId2, err := env.engine.Initiate(testDirector, testReturn, "second")
	require.NoError(t, err)
	assert.NotEqual(t, closureId, closureId2)
	_, err = env.engine.Initiate(testCommittee1, testReturn, "third")
	assert.ErrorIs(t, err, closure.ErrClosureActive)
}

func TestFullClosureLifecycle(t *testing.T) {
	env := newTestEnv(t, 1000)
	closureId, err := env.engine.Initiate(
		testCommittee1,
		testReturn,
		"emergency recovery",
	)
	require.NoError(t, err)

	// The director cannot act until the committee approvals are in
	err = env.approve(t, testDirector, closureId)
	assert.ErrorIs(t, err, roles.ErrNotAuthorized)

	require.NoError(t, env.approve(t, testCommittee1, closureId))
	c, err := env.engine.Closure(closureId)
	require.NoError(t, err)
	assert.Equal(t, closure.StatusPartiallyApproved, c.Status)
	assert.Len(t, c.CommitteeApprovers, 1)

	// Committee members cannot approve twice
	err = env.approve(t, testCommittee1, closureId)
	assert.ErrorIs(t, err, closure.ErrDuplicateApprover)

	require.NoError(t, env.approve(t, testCommittee2, closureId))

	// Committee quota met: further committee approvals are out of turn
	err = env.approve(t, testCommittee3, closureId)
	assert.ErrorIs(t, err, roles.ErrNotAuthorized)

	// Director reveal executes the closure: sweep and permanent pause
	require.NoError(t, env.approve(t, testDirector, closureId))
	c, err = env.engine.Closure(closureId)
	require.NoError(t, err)
	assert.Equal(t, closure.StatusExecuted, c.Status)
	assert.Equal(t, testDirector, c.DirectorApprover)
	assert.Equal(t, uint64(1000), c.SweptAmount)
	balance, err := env.ledger.BalanceOf(testReturn)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), balance)
	balance, err = env.ledger.BalanceOf(testPool)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), balance)
	assert.True(t, env.vault.Paused())
	assert.False(t, env.engine.ActiveClosure())

	// Everything is shut after execution
	_, err = env.engine.Initiate(testCommittee1, testReturn, "again")
	assert.ErrorIs(t, err, vault.ErrPaused)
	err = env.engine.Cancel(testCommittee1, closureId)
	assert.ErrorIs(t, err, vault.ErrPaused)
}

func TestExecutionDeadline(t *testing.T) {
	env := newTestEnv(t, 1000)
	closureId, err := env.engine.Initiate(testCommittee1, testReturn, "")
	require.NoError(t, err)
	require.NoError(t, env.approve(t, testCommittee1, closureId))
	require.NoError(t, env.approve(t, testCommittee2, closureId))

	// The director arrives too late
	env.clock.Advance(testClosureWindow)
	err = env.approve(t, testDirector, closureId)
	var deadlineErr closure.DeadlinePassedError
	require.ErrorAs(t, err, &deadlineErr)
	c, err := env.engine.Closure(closureId)
	require.NoError(t, err)
	assert.Equal(t, closure.StatusPartiallyApproved, c.Status)
	assert.False(t, env.vault.Paused())

	// An expired closure can still be cancelled, unblocking a fresh one
	require.NoError(t, env.engine.Cancel(testAdmin, closureId))
	_, err = env.engine.Initiate(testCommittee1, testReturn, "retry")
	require.NoError(t, err)
}

func TestCancelAuthorization(t *testing.T) {
	env := newTestEnv(t, 1000)
	closureId, err := env.engine.Initiate(testCommittee1, testReturn, "")
	require.NoError(t, err)

	// Only the initiator or an admin may cancel
	err = env.engine.Cancel(testCommittee2, closureId)
	assert.ErrorIs(t, err, roles.ErrNotAuthorized)
	require.NoError(t, env.engine.Cancel(testAdmin, closureId))
	c, err := env.engine.Closure(closureId)
	require.NoError(t, err)
	assert.Equal(t, closure.StatusCancelled, c.Status)

	// Cancelled is absorbing
	err = env.engine.Cancel(testAdmin, closureId)
	var statusErr closure.StatusError
	assert.ErrorAs(t, err, &statusErr)

	// Unknown closure
	err = env.engine.Cancel(testAdmin, 999)
	assert.ErrorIs(t, err, closure.ErrUnknownClosure)
}

func TestRevealWrongNonce(t *testing.T) {
	env := newTestEnv(t, 1000)
	closureId, err := env.engine.Initiate(testCommittee1, testReturn, "")
	require.NoError(t, err)
	nonce := testNonce(testCommittee1, closureId)
	digest := commitment.Digest(
		testCommittee1,
		commitment.SubjectClosure,
		closureId,
		testInstanceId,
		nonce,
	)
	require.NoError(t, env.engine.Commit(testCommittee1, closureId, digest))
	env.clock.Advance(testRevealDelay)
	var wrongNonce [commitment.NonceSize]byte
	err = env.engine.Reveal(testCommittee1, closureId, wrongNonce)
	assert.ErrorIs(t, err, commitment.ErrDigestMismatch)
	c, err := env.engine.Closure(closureId)
	require.NoError(t, err)
	assert.Equal(t, closure.StatusInitiated, c.Status)
}
