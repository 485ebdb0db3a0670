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

package models

import (
	"time"
)

// LockedAmount is a fund reservation held against an approved request.
// Rows are sparse: created at final approval, deleted on distribution,
// cancellation, or stale release.
type LockedAmount struct {
	RequestID uint64 `gorm:"primarykey"`
	Amount    uint64 `gorm:"not null"`
	LockedAt  time.Time
}

// TableName returns the table name for LockedAmount
func (LockedAmount) TableName() string {
	return "locked_amount"
}

// RoleMember is one member of a named role
type RoleMember struct {
	ID     uint   `gorm:"primarykey"`
	Role   string `gorm:"uniqueIndex:role_member_idx;not null"`
	Member []byte `gorm:"uniqueIndex:role_member_idx;size:20;not null"`
}

// TableName returns the table name for RoleMember
func (RoleMember) TableName() string {
	return "role_member"
}

// InstanceState is the singleton row of instance-wide counters and flags
type InstanceState struct {
	ID               uint `gorm:"primarykey"`
	Bootstrapped     bool
	Paused           bool
	BudgetCeiling    uint64
	DistributedTotal uint64
}

// TableName returns the table name for InstanceState
func (InstanceState) TableName() string {
	return "instance_state"
}
