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

package roles

import (
	"github.com/blinklabs-io/coffer/event"
	"github.com/blinklabs-io/coffer/identity"
)

const (
	// GrantedEventType is emitted when a member is added to a role
	GrantedEventType event.EventType = "roles.granted"

	// RevokedEventType is emitted when a member is removed from a role,
	// including self-removal via Renounce
	RevokedEventType event.EventType = "roles.revoked"
)

// GrantedEvent contains details about a role grant
type GrantedEvent struct {
	Role   Role
	Member identity.Address
	Caller identity.Address
}

// RevokedEvent contains details about a role revocation
type RevokedEvent struct {
	Role   Role
	Member identity.Address
	Caller identity.Address
}
