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

	"github.com/blinklabs-io/coffer/identity"
)

// Status is a request's position in the approval lifecycle. Transitions
// are strictly ordered and never skip a stage; Distributed and Cancelled
// are absorbing.
type Status string

const (
	StatusPending           Status = "pending"
	StatusSecretaryApproved Status = "secretary_approved"
	StatusCommitteeApproved Status = "committee_approved"
	StatusFinanceApproved   Status = "finance_approved"
	StatusDirectorApproved  Status = "director_approved"
	StatusDistributed       Status = "distributed"
	StatusCancelled         Status = "cancelled"
)

// Terminal returns whether the status is absorbing
func (s Status) Terminal() bool {
	return s == StatusDistributed || s == StatusCancelled
}

// Recipient is one (address, amount) pair within a request
type Recipient struct {
	Address identity.Address
	Amount  uint64
}

// Request is a disbursement request record. Records are mutated only by
// the approval engine and become immutable once terminal.
type Request struct {
	Id          uint64
	Requester   identity.Address
	Recipients  []Recipient
	Total       uint64
	Description string
	DocumentRef string
	// VirtualPayer is an informational, non-custodial payer tag. Zero
	// when unset.
	VirtualPayer      identity.Address
	Status            Status
	SecretaryApprover identity.Address
	CommitteeApprover identity.Address
	FinanceApprover   identity.Address
	// ExtraApprovers are the additional committee approvals collected
	// while the request sits in the finance-approved stage
	ExtraApprovers   []identity.Address
	DirectorApprover identity.Address
	CreatedAt        time.Time
	UpdatedAt        time.Time
	// PaymentDeadline is set at final approval. Zero until then.
	PaymentDeadline time.Time
}

// copyRequest returns a deep copy safe to hand to callers
func copyRequest(r *Request) Request {
	ret := *r
	ret.Recipients = make([]Recipient, len(r.Recipients))
	copy(ret.Recipients, r.Recipients)
	ret.ExtraApprovers = make([]identity.Address, len(r.ExtraApprovers))
	copy(ret.ExtraApprovers, r.ExtraApprovers)
	return ret
}
