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

package approval

import (
	"time"

	"github.com/blinklabs-io/coffer/event"
	"github.com/blinklabs-io/coffer/identity"
)

const (
	// RequestCreatedEventType is emitted when a new request is recorded
	RequestCreatedEventType event.EventType = "approval.request_created"

	// StageApprovedEventType is emitted on every successful reveal,
	// including repeat committee approvals that do not advance the status
	StageApprovedEventType event.EventType = "approval.stage_approved"

	// RequestCancelledEventType is emitted when a request is cancelled,
	// whether by the requester, an admin, or a stale-lock release
	RequestCancelledEventType event.EventType = "approval.request_cancelled"

	// DistributedEventType is emitted when all outbound transfers for a
	// request have completed
	DistributedEventType event.EventType = "approval.distributed"

	// StaleReleasedEventType is emitted when a stuck reservation is
	// force-released after the staleness window
	StaleReleasedEventType event.EventType = "approval.stale_released"
)

// RequestCreatedEvent contains details about a newly created request
type RequestCreatedEvent struct {
	Id        uint64
	Requester identity.Address
	Total     uint64
}

// StageApprovedEvent contains details about a revealed approval
type StageApprovedEvent struct {
	Id        uint64
	Approver  identity.Address
	NewStatus Status
}

// RequestCancelledEvent contains details about a cancellation
type RequestCancelledEvent struct {
	Id       uint64
	Caller   identity.Address
	Unlocked uint64
}

// DistributedEvent contains details about a completed distribution
type DistributedEvent struct {
	Id       uint64
	Total    uint64
	Deadline time.Time
}

// StaleReleasedEvent contains details about a forced lock release
type StaleReleasedEvent struct {
	Id       uint64
	Caller   identity.Address
	Released uint64
}
