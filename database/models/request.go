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

// Request is a disbursement request record. Requests are dense and
// append-only: ids are assigned sequentially and rows are never deleted.
type Request struct {
	ID                uint64 `gorm:"primarykey"`
	Requester         []byte `gorm:"size:20;not null"`
	Total             uint64 `gorm:"not null"`
	Description       string
	DocumentRef       string
	VirtualPayer      []byte `gorm:"size:20"`
	Status            string `gorm:"index;not null"`
	SecretaryApprover []byte `gorm:"size:20"`
	CommitteeApprover []byte `gorm:"size:20"`
	FinanceApprover   []byte `gorm:"size:20"`
	DirectorApprover  []byte `gorm:"size:20"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
	PaymentDeadline   *time.Time
}

// TableName returns the table name for Request
func (Request) TableName() string {
	return "request"
}

// RequestRecipient is one (recipient, amount) pair within a request,
// ordered by Idx.
type RequestRecipient struct {
	ID        uint   `gorm:"primarykey"`
	RequestID uint64 `gorm:"uniqueIndex:req_recipient_idx;not null"`
	Idx       int    `gorm:"uniqueIndex:req_recipient_idx;not null"`
	Address   []byte `gorm:"size:20;not null"`
	Amount    uint64 `gorm:"not null"`
}

// TableName returns the table name for RequestRecipient
func (RequestRecipient) TableName() string {
	return "request_recipient"
}

// RequestApproval is one additional committee approval recorded while a
// request sits in the finance-approved stage.
type RequestApproval struct {
	ID         uint   `gorm:"primarykey"`
	RequestID  uint64 `gorm:"index;not null"`
	Approver   []byte `gorm:"size:20;not null"`
	ApprovedAt time.Time
}

// TableName returns the table name for RequestApproval
func (RequestApproval) TableName() string {
	return "request_approval"
}
