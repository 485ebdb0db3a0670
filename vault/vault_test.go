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

package vault_test

import (
	"testing"
	"time"

	"github.com/blinklabs-io/coffer/identity"
	"github.com/blinklabs-io/coffer/token"
	"github.com/blinklabs-io/coffer/validate"
	"github.com/blinklabs-io/coffer/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPool = identity.AddressFromSeed("test-pool")

func testVault(t *testing.T, poolBalance uint64) (*vault.Vault, *token.MemoryLedger) {
	t.Helper()
	ledger := token.NewMemoryLedger()
	require.NoError(t, ledger.Mint(testPool, poolBalance))
	v, err := vault.New(vault.Config{
		Ledger:      ledger,
		PoolAddress: testPool,
		MinDeposit:  100,
	})
	require.NoError(t, err)
	return v, ledger
}

func TestNewRequiresLedger(t *testing.T) {
	_, err := vault.New(vault.Config{PoolAddress: testPool})
	assert.Error(t, err)
}

func TestFreshInstanceCeilingFromBalance(t *testing.T) {
	v, _ := testVault(t, 1000)
	assert.Equal(t, uint64(1000), v.BudgetCeiling())
	assert.Equal(t, uint64(0), v.LockedTotal())
	assert.Equal(t, uint64(0), v.DistributedTotal())
	assert.False(t, v.Paused())
	available, err := v.Available()
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), available)
}

func TestLockUnlock(t *testing.T) {
	v, _ := testVault(t, 1000)
	now := time.Unix(1700000000, 0)
	require.NoError(t, v.Lock(1, 300, now))
	assert.Equal(t, uint64(300), v.LockedTotal())
	available, err := v.Available()
	require.NoError(t, err)
	assert.Equal(t, uint64(700), available)

	// Double lock for the same request
	assert.ErrorIs(t, v.Lock(1, 100, now), vault.ErrAlreadyLocked)

	// Lock beyond available
	err = v.Lock(2, 701, now)
	var insufficient vault.InsufficientAvailableError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, uint64(701), insufficient.Requested)
	assert.Equal(t, uint64(700), insufficient.Available)

	require.NoError(t, v.Unlock(1))
	assert.Equal(t, uint64(0), v.LockedTotal())
	assert.ErrorIs(t, v.Unlock(1), vault.ErrNotLocked)
}

func TestConsumeAndRestoreLock(t *testing.T) {
	v, _ := testVault(t, 1000)
	lockedAt := time.Unix(1700000000, 0)
	require.NoError(t, v.Lock(1, 300, lockedAt))

	amount, err := v.ConsumeLock(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), amount)
	assert.Equal(t, uint64(0), v.LockedTotal())
	assert.Equal(t, uint64(300), v.DistributedTotal())
	_, _, ok := v.LockRecord(1)
	assert.False(t, ok)

	// Restore reverses the bookkeeping exactly
	require.NoError(t, v.RestoreLock(1, 300, lockedAt))
	assert.Equal(t, uint64(300), v.LockedTotal())
	assert.Equal(t, uint64(0), v.DistributedTotal())
	gotAmount, gotLockedAt, ok := v.LockRecord(1)
	require.True(t, ok)
	assert.Equal(t, uint64(300), gotAmount)
	assert.Equal(t, lockedAt, gotLockedAt)

	_, err = v.ConsumeLock(2)
	assert.ErrorIs(t, err, vault.ErrNotLocked)
}

func TestCheckAffordableBudget(t *testing.T) {
	v, ledger := testVault(t, 1000)
	// Within both balance and budget
	require.NoError(t, v.CheckAffordable(1000))
	// Beyond the pool balance
	err := v.CheckAffordable(1001)
	var insufficient vault.InsufficientAvailableError
	assert.ErrorAs(t, err, &insufficient)
	// Outside funds raise the balance but not the ceiling: the budget
	// still binds
	require.NoError(t, ledger.Mint(testPool, 500))
	assert.ErrorIs(t, v.CheckAffordable(1200), validate.ErrBudgetExceeded)
	require.NoError(t, v.CheckAffordable(1000))
}

func TestSolvencyDetection(t *testing.T) {
	v, ledger := testVault(t, 1000)
	require.NoError(t, v.Lock(1, 800, time.Unix(1700000000, 0)))
	// Drain the pool out from under the vault
	elsewhere := identity.AddressFromSeed("elsewhere")
	require.NoError(t, ledger.Transfer(testPool, elsewhere, 500))
	_, err := v.Available()
	var solvency vault.SolvencyError
	require.ErrorAs(t, err, &solvency)
	assert.Equal(t, uint64(500), solvency.Balance)
	assert.Equal(t, uint64(800), solvency.Locked)
}

func TestDeposit(t *testing.T) {
	v, ledger := testVault(t, 1000)
	depositor := identity.AddressFromSeed("depositor")
	require.NoError(t, ledger.Mint(depositor, 500))
	ledger.Approve(depositor, testPool, 500)

	// Below minimum
	err := v.Deposit(depositor, 99)
	var tooSmall vault.DepositTooSmallError
	require.ErrorAs(t, err, &tooSmall)
	assert.Equal(t, uint64(100), tooSmall.Minimum)

	require.NoError(t, v.Deposit(depositor, 300))
	// Funds pulled into the pool and the ceiling grows by the deposit
	balance, err := ledger.BalanceOf(testPool)
	require.NoError(t, err)
	assert.Equal(t, uint64(1300), balance)
	assert.Equal(t, uint64(1300), v.BudgetCeiling())

	// Exhausted allowance surfaces as a failed transfer
	err = v.Deposit(depositor, 300)
	assert.ErrorIs(t, err, token.ErrInsufficientAllowance)
}

func TestSweepAll(t *testing.T) {
	v, ledger := testVault(t, 1000)
	dest := identity.AddressFromSeed("return-dest")
	swept, err := v.SweepAll(dest)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), swept)
	balance, err := ledger.BalanceOf(testPool)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), balance)
	balance, err = ledger.BalanceOf(dest)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), balance)

	// Sweeping an empty pool is a no-op
	swept, err = v.SweepAll(dest)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), swept)
}

func TestPause(t *testing.T) {
	v, ledger := testVault(t, 1000)
	depositor := identity.AddressFromSeed("depositor")
	require.NoError(t, ledger.Mint(depositor, 500))
	ledger.Approve(depositor, testPool, 500)

	require.NoError(t, v.Pause())
	assert.True(t, v.Paused())
	// Pause is idempotent
	require.NoError(t, v.Pause())
	// Deposits are rejected while paused
	assert.ErrorIs(t, v.Deposit(depositor, 300), vault.ErrPaused)
}
