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

// Package token defines the fungible-token collaborator interface consumed
// by the custody core, plus an in-memory implementation used by tests and
// development mode. The core never implements token semantics itself; any
// failure reported by the collaborator is fatal to the enclosing operation.
package token

import (
	"github.com/blinklabs-io/coffer/identity"
)

// Ledger is the interface to the external fungible-token ledger that holds
// all balances. The pool's funds live at the pool address on this ledger.
type Ledger interface {
	// BalanceOf returns the balance held by the given address
	BalanceOf(holder identity.Address) (uint64, error)
	// Transfer moves funds between two addresses
	Transfer(from identity.Address, to identity.Address, amount uint64) error
	// TransferFrom moves funds on behalf of a spender that the owner has
	// pre-approved (used for deposits into the pool)
	TransferFrom(
		spender identity.Address,
		from identity.Address,
		to identity.Address,
		amount uint64,
	) error
}
