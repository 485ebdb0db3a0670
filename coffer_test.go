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

package coffer_test

import (
	"sync"
	"testing"
	"time"

	"github.com/blinklabs-io/coffer"
	"github.com/blinklabs-io/coffer/approval"
	"github.com/blinklabs-io/coffer/commitment"
	"github.com/blinklabs-io/coffer/identity"
	"github.com/blinklabs-io/coffer/roles"
	"github.com/blinklabs-io/coffer/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testPool      = identity.AddressFromSeed("coffer-pool")
	testFactory   = identity.AddressFromSeed("coffer-factory")
	testAdmin     = identity.AddressFromSeed("coffer-admin")
	testRequester = identity.AddressFromSeed("coffer-requester")
	testSecretary = identity.AddressFromSeed("coffer-secretary")
	testRecipient = identity.AddressFromSeed("coffer-recipient")
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

func TestNewConfigValidation(t *testing.T) {
	ledger := token.NewMemoryLedger()
	testDefs := []struct {
		name string
		opts []coffer.ConfigOptionFunc
	}{
		{
			name: "missing ledger",
			opts: []coffer.ConfigOptionFunc{
				coffer.WithPoolAddress(testPool),
				coffer.WithFactoryAddress(testFactory),
			},
		},
		{
			name: "missing pool address",
			opts: []coffer.ConfigOptionFunc{
				coffer.WithTokenLedger(ledger),
				coffer.WithFactoryAddress(testFactory),
			},
		},
		{
			name: "missing factory address",
			opts: []coffer.ConfigOptionFunc{
				coffer.WithTokenLedger(ledger),
				coffer.WithPoolAddress(testPool),
			},
		},
		{
			name: "invalid amount bounds",
			opts: []coffer.ConfigOptionFunc{
				coffer.WithTokenLedger(ledger),
				coffer.WithPoolAddress(testPool),
				coffer.WithFactoryAddress(testFactory),
				coffer.WithAmountBounds(100, 10),
			},
		},
		{
			name: "no closure approvals",
			opts: []coffer.ConfigOptionFunc{
				coffer.WithTokenLedger(ledger),
				coffer.WithPoolAddress(testPool),
				coffer.WithFactoryAddress(testFactory),
				coffer.WithRequiredClosureApprovals(0),
			},
		},
		{
			name: "closure approvals above cap",
			opts: []coffer.ConfigOptionFunc{
				coffer.WithTokenLedger(ledger),
				coffer.WithPoolAddress(testPool),
				coffer.WithFactoryAddress(testFactory),
				coffer.WithRequiredClosureApprovals(20),
			},
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			_, err := coffer.New(coffer.NewConfig(testDef.opts...))
			assert.Error(t, err)
		})
	}
}

func TestStartStop(t *testing.T) {
	ledger := token.NewMemoryLedger()
	require.NoError(t, ledger.Mint(testPool, 1000))
	c, err := coffer.New(coffer.NewConfig(
		coffer.WithTokenLedger(ledger),
		coffer.WithPoolAddress(testPool),
		coffer.WithFactoryAddress(testFactory),
		coffer.WithDataDir(t.TempDir()),
	))
	require.NoError(t, err)
	require.NoError(t, c.Start())
	assert.NotNil(t, c.Approval())
	assert.NotNil(t, c.Closure())
	assert.NotNil(t, c.Registry())
	assert.NotNil(t, c.Vault())
	assert.NotNil(t, c.Database())
	assert.Equal(t, uint64(1000), c.Vault().BudgetCeiling())
	// Double start
	assert.Error(t, c.Start())
	require.NoError(t, c.Stop())
	// Stop is idempotent
	require.NoError(t, c.Stop())
}

// TestRestartReloadsState drives an instance partway through a request
// lifecycle, stops it, and verifies a fresh instance over the same data
// directory picks up exactly where it left off.
func TestRestartReloadsState(t *testing.T) {
	dataDir := t.TempDir()
	ledger := token.NewMemoryLedger()
	require.NoError(t, ledger.Mint(testPool, 1000))
	clock := newMockClock()
	revealDelay := 10 * time.Minute

	newInstance := func() *coffer.Coffer {
		c, err := coffer.New(coffer.NewConfig(
			coffer.WithTokenLedger(ledger),
			coffer.WithPoolAddress(testPool),
			coffer.WithFactoryAddress(testFactory),
			coffer.WithDataDir(dataDir),
			coffer.WithClock(clock),
			coffer.WithRevealDelay(revealDelay),
		))
		require.NoError(t, err)
		require.NoError(t, c.Start())
		return c
	}

	c := newInstance()
	err := c.Registry().Bootstrap(
		testFactory,
		map[roles.Role][]identity.Address{
			roles.RoleAdmin:     {testAdmin},
			roles.RoleRequester: {testRequester},
			roles.RoleSecretary: {testSecretary},
		},
	)
	require.NoError(t, err)
	requestId, err := c.Approval().Create(
		testRequester,
		[]identity.Address{testRecipient},
		[]uint64{100},
		"request surviving restart",
		"",
		identity.ZeroAddress,
	)
	require.NoError(t, err)
	// Leave a commitment pending across the restart
	nonce := [commitment.NonceSize]byte{0x42}
	digest := commitment.Digest(
		testSecretary,
		commitment.SubjectRequest,
		requestId,
		[32]byte{},
		nonce,
	)
	require.NoError(t, c.Approval().Commit(testSecretary, requestId, digest))
	require.NoError(t, c.Stop())

	c = newInstance()
	defer func() {
		require.NoError(t, c.Stop())
	}()
	assert.True(t, c.Registry().Bootstrapped())
	assert.True(t, c.Registry().HasRole(roles.RoleRequester, testRequester))
	assert.Equal(t, uint64(1000), c.Vault().BudgetCeiling())
	req, err := c.Approval().Request(requestId)
	require.NoError(t, err)
	assert.Equal(t, approval.StatusPending, req.Status)
	assert.Equal(t, testRequester, req.Requester)
	require.Len(t, req.Recipients, 1)
	assert.Equal(t, testRecipient, req.Recipients[0].Address)
	assert.Equal(t, uint64(100), req.Recipients[0].Amount)

	// The pending commitment survived and the reveal completes against it
	clock.Advance(revealDelay)
	require.NoError(t, c.Approval().Reveal(testSecretary, requestId, nonce))
	req, err = c.Approval().Request(requestId)
	require.NoError(t, err)
	assert.Equal(t, approval.StatusSecretaryApproved, req.Status)

	// Ids continue from where the first instance stopped
	requestId2, err := c.Approval().Create(
		testRequester,
		[]identity.Address{testRecipient},
		[]uint64{100},
		"second request",
		"",
		identity.ZeroAddress,
	)
	require.NoError(t, err)
	assert.Equal(t, requestId+1, requestId2)
}
