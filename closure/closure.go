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

// Package closure implements the emergency fund-recovery state machine:
// multiple committee approvals plus one director approval, collected with
// the same commit-reveal mechanics as the request lifecycle, followed by
// an immediate sweep of the pool and a permanent pause of the instance.
package closure

import (
	"errors"
	"fmt"
	"time"

	"github.com/blinklabs-io/coffer/identity"
)

// Status is a closure request's position in its lifecycle. Executed and
// Cancelled are absorbing; Cancelled is unreachable once Executed.
type Status string

const (
	StatusInitiated         Status = "initiated"
	StatusPartiallyApproved Status = "partially_approved"
	StatusFullyApproved     Status = "fully_approved"
	StatusExecuted          Status = "executed"
	StatusCancelled         Status = "cancelled"
)

// Terminal returns whether the status is absorbing
func (s Status) Terminal() bool {
	return s == StatusExecuted || s == StatusCancelled
}

// Closure is an emergency-closure record
type Closure struct {
	Id            uint64
	Initiator     identity.Address
	ReturnAddress identity.Address
	Reason        string
	Status        Status
	// CommitteeApprovers are collected first, up to the configured
	// requirement; the director approves last
	CommitteeApprovers []identity.Address
	DirectorApprover   identity.Address
	// SweptAmount records the pool balance recovered at execution
	SweptAmount       uint64
	CreatedAt         time.Time
	UpdatedAt         time.Time
	ExecutionDeadline time.Time
}

func copyClosure(c *Closure) Closure {
	ret := *c
	ret.CommitteeApprovers = make(
		[]identity.Address,
		len(c.CommitteeApprovers),
	)
	copy(ret.CommitteeApprovers, c.CommitteeApprovers)
	return ret
}

var (
	ErrUnknownClosure = errors.New("unknown closure request")
	ErrClosureActive  = errors.New(
		"another closure request is still active",
	)
	ErrInvalidReturnAddress = errors.New(
		"return address is zero or reserved",
	)
	ErrDuplicateApprover = errors.New(
		"approver has already approved this closure",
	)
	ErrApproverCapReached = errors.New(
		"closure approver list is at capacity",
	)
)

// StatusError indicates an operation invalid for the closure's current
// status
type StatusError struct {
	Status Status
}

func (e StatusError) Error() string {
	return fmt.Sprintf(
		"operation not valid for closure status %q",
		string(e.Status),
	)
}

// DeadlinePassedError indicates the execution deadline elapsed before the
// closure could execute
type DeadlinePassedError struct {
	Deadline time.Time
}

func (e DeadlinePassedError) Error() string {
	return fmt.Sprintf(
		"execution deadline %s has passed",
		e.Deadline.Format(time.RFC3339),
	)
}
