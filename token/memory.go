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

package token

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/blinklabs-io/coffer/identity"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient token balance")
	ErrInsufficientAllowance = errors.New("insufficient token allowance")
	ErrBalanceOverflow       = errors.New("token balance overflows")
	ErrTransferRejected      = errors.New("transfer rejected")
)

type allowanceKey struct {
	owner   identity.Address
	spender identity.Address
}

// MemoryLedger is a map-backed Ledger for tests and development mode.
// TransferFrom follows the allowance model: the owner must have approved
// the spender beforehand.
type MemoryLedger struct {
	mu         sync.Mutex
	balances   map[identity.Address]uint64
	allowances map[allowanceKey]uint64
	// failTo causes any transfer to a listed destination to fail. Used by
	// tests to exercise distribution-abort paths.
	failTo map[identity.Address]struct{}
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances:   make(map[identity.Address]uint64),
		allowances: make(map[allowanceKey]uint64),
		failTo:     make(map[identity.Address]struct{}),
	}
}

// Mint credits a balance out of thin air. Development/test helper, not part
// of the Ledger interface.
func (l *MemoryLedger) Mint(to identity.Address, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[to] > math.MaxUint64-amount {
		return ErrBalanceOverflow
	}
	l.balances[to] += amount
	return nil
}

// Approve lets owner authorize spender to pull up to amount via
// TransferFrom. Helper, not part of the Ledger interface.
func (l *MemoryLedger) Approve(
	owner identity.Address,
	spender identity.Address,
	amount uint64,
) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.allowances[allowanceKey{owner: owner, spender: spender}] = amount
}

// FailTransfersTo makes any future transfer to the given destination fail
// with ErrTransferRejected. Test helper.
func (l *MemoryLedger) FailTransfersTo(dest identity.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failTo[dest] = struct{}{}
}

func (l *MemoryLedger) BalanceOf(holder identity.Address) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[holder], nil
}

func (l *MemoryLedger) Transfer(
	from identity.Address,
	to identity.Address,
	amount uint64,
) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transfer(from, to, amount)
}

func (l *MemoryLedger) TransferFrom(
	spender identity.Address,
	from identity.Address,
	to identity.Address,
	amount uint64,
) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := allowanceKey{owner: from, spender: spender}
	if l.allowances[key] < amount {
		return fmt.Errorf(
			"%w: %d < %d",
			ErrInsufficientAllowance,
			l.allowances[key],
			amount,
		)
	}
	if err := l.transfer(from, to, amount); err != nil {
		return err
	}
	l.allowances[key] -= amount
	return nil
}

func (l *MemoryLedger) transfer(
	from identity.Address,
	to identity.Address,
	amount uint64,
) error {
	if _, ok := l.failTo[to]; ok {
		return fmt.Errorf("%w: destination %s", ErrTransferRejected, to)
	}
	if l.balances[from] < amount {
		return fmt.Errorf(
			"%w: %d < %d",
			ErrInsufficientBalance,
			l.balances[from],
			amount,
		)
	}
	if l.balances[to] > math.MaxUint64-amount {
		return ErrBalanceOverflow
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}
