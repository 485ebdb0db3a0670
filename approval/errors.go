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
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnknownRequest    = errors.New("unknown request")
	ErrDuplicateApprover = errors.New(
		"approver has already approved this request",
	)
)

// StatusError indicates an operation invalid for the request's current
// status
type StatusError struct {
	Status Status
}

func (e StatusError) Error() string {
	return fmt.Sprintf(
		"operation not valid for request status %q",
		string(e.Status),
	)
}

// DeadlinePassedError indicates the payment deadline elapsed before
// distribution could complete
type DeadlinePassedError struct {
	Deadline time.Time
}

func (e DeadlinePassedError) Error() string {
	return fmt.Sprintf(
		"payment deadline %s has passed",
		e.Deadline.Format(time.RFC3339),
	)
}

// NotYetStaleError indicates a stale-release attempt before the staleness
// window has elapsed
type NotYetStaleError struct {
	Remaining time.Duration
}

func (e NotYetStaleError) Error() string {
	return fmt.Sprintf(
		"staleness window has not elapsed: %s remaining",
		e.Remaining,
	)
}

// DistributionError wraps a transfer failure during distribution. The
// final approval stands; the request stays locked until it is cancelled
// or force-released after the staleness window.
type DistributionError struct {
	Id  uint64
	Err error
}

func (e DistributionError) Error() string {
	return fmt.Sprintf("distribution of request %d failed: %s", e.Id, e.Err)
}

func (e DistributionError) Unwrap() error {
	return e.Err
}
