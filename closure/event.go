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
	"github.com/blinklabs-io/coffer/event"
	"github.com/blinklabs-io/coffer/identity"
)

const (
	// InitiatedEventType is emitted when an emergency closure is opened
	InitiatedEventType event.EventType = "closure.initiated"

	// ApprovedEventType is emitted on every successful closure reveal
	ApprovedEventType event.EventType = "closure.approved"

	// CancelledEventType is emitted when a closure is cancelled before
	// execution
	CancelledEventType event.EventType = "closure.cancelled"

	// ExecutedEventType is emitted after the pool has been swept and the
	// instance permanently paused
	ExecutedEventType event.EventType = "closure.executed"
)

// InitiatedEvent contains details about a newly opened closure
type InitiatedEvent struct {
	Id            uint64
	Initiator     identity.Address
	ReturnAddress identity.Address
}

// ApprovedEvent contains details about a revealed closure approval
type ApprovedEvent struct {
	Id        uint64
	Approver  identity.Address
	NewStatus Status
}

// CancelledEvent contains details about a closure cancellation
type CancelledEvent struct {
	Id     uint64
	Caller identity.Address
}

// ExecutedEvent contains details about an executed closure
type ExecutedEvent struct {
	Id            uint64
	ReturnAddress identity.Address
	SweptAmount   uint64
}
