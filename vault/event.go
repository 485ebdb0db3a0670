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

package vault

import (
	"github.com/blinklabs-io/coffer/event"
	"github.com/blinklabs-io/coffer/identity"
)

const (
	// DepositEventType is emitted when a deposit into the pool completes
	DepositEventType event.EventType = "vault.deposit"

	// BudgetUpdatedEventType is emitted when the budget ceiling changes
	BudgetUpdatedEventType event.EventType = "vault.budget_updated"
)

// DepositEvent contains details about a completed deposit
type DepositEvent struct {
	Depositor identity.Address
	Amount    uint64
}

// BudgetUpdatedEvent contains the budget ceiling before and after a change
type BudgetUpdatedEvent struct {
	OldCeiling uint64
	NewCeiling uint64
}
