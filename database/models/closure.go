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

// ClosureRequest is an emergency-closure record. Like requests, closures
// are dense and append-only.
type ClosureRequest struct {
	ID                uint64 `gorm:"primarykey"`
	Initiator         []byte `gorm:"size:20;not null"`
	ReturnAddress     []byte `gorm:"size:20;not null"`
	Reason            string
	Status            string `gorm:"index;not null"`
	DirectorApprover  []byte `gorm:"size:20"`
	SweptAmount       uint64
	CreatedAt         time.Time
	UpdatedAt         time.Time
	ExecutionDeadline time.Time
}

// TableName returns the table name for ClosureRequest
func (ClosureRequest) TableName() string {
	return "closure_request"
}

// ClosureApproval is one committee approval on a closure request
type ClosureApproval struct {
	ID         uint   `gorm:"primarykey"`
	ClosureID  uint64 `gorm:"index;not null"`
	Approver   []byte `gorm:"size:20;not null"`
	ApprovedAt time.Time
}

// TableName returns the table name for ClosureApproval
func (ClosureApproval) TableName() string {
	return "closure_approval"
}
