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

package token_test

import (
	"testing"

	"github.com/blinklabs-io/coffer/identity"
	"github.com/blinklabs-io/coffer/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLedgerTransfer(t *testing.T) {
	ledger := token.NewMemoryLedger()
	alice := identity.AddressFromSeed("alice")
	bob := identity.AddressFromSeed("bob")
	require.NoError(t, ledger.Mint(alice, 1000))

	require.NoError(t, ledger.Transfer(alice, bob, 300))
	balance, err := ledger.BalanceOf(alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(700), balance)
	balance, err = ledger.BalanceOf(bob)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), balance)

	// Overdraw
	err = ledger.Transfer(alice, bob, 701)
	assert.ErrorIs(t, err, token.ErrInsufficientBalance)
}

func TestMemoryLedgerTransferFrom(t *testing.T) {
	ledger := token.NewMemoryLedger()
	owner := identity.AddressFromSeed("owner")
	spender := identity.AddressFromSeed("spender")
	dest := identity.AddressFromSeed("dest")
	require.NoError(t, ledger.Mint(owner, 1000))

	// No allowance yet
	err := ledger.TransferFrom(spender, owner, dest, 100)
	assert.ErrorIs(t, err, token.ErrInsufficientAllowance)

	ledger.Approve(owner, spender, 250)
	require.NoError(t, ledger.TransferFrom(spender, owner, dest, 100))
	balance, err := ledger.BalanceOf(dest)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), balance)

	// Allowance is decremented as it is spent
	require.NoError(t, ledger.TransferFrom(spender, owner, dest, 150))
	err = ledger.TransferFrom(spender, owner, dest, 1)
	assert.ErrorIs(t, err, token.ErrInsufficientAllowance)

	// Allowance is per spender: another identity cannot use it
	ledger.Approve(owner, spender, 100)
	other := identity.AddressFromSeed("other")
	err = ledger.TransferFrom(other, owner, dest, 50)
	assert.ErrorIs(t, err, token.ErrInsufficientAllowance)
}

func TestMemoryLedgerFailTransfersTo(t *testing.T) {
	ledger := token.NewMemoryLedger()
	alice := identity.AddressFromSeed("alice")
	bob := identity.AddressFromSeed("bob")
	require.NoError(t, ledger.Mint(alice, 1000))
	ledger.FailTransfersTo(bob)

	err := ledger.Transfer(alice, bob, 100)
	assert.ErrorIs(t, err, token.ErrTransferRejected)
	// Balances unchanged on rejection
	balance, err := ledger.BalanceOf(alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), balance)
}
