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

// Package validate provides the pure input checks shared by the approval
// and closure engines. Nothing in this package has side effects or touches
// engine state; every function either returns nil or a typed error.
package validate

import (
	"errors"
	"fmt"
	"math"

	"github.com/blinklabs-io/coffer/identity"
)

// MaxRecipients is the upper bound on recipients in a single request
const MaxRecipients = 10

var (
	ErrNoRecipients        = errors.New("request has no recipients")
	ErrTooManyRecipients   = errors.New("request exceeds recipient limit")
	ErrRecipientCountMismatch = errors.New(
		"recipient and amount counts differ",
	)
	ErrZeroRecipient      = errors.New("recipient address is zero")
	ErrDuplicateRecipient = errors.New("duplicate recipient address")
	ErrAmountOverflow     = errors.New("amount sum overflows")
	ErrBudgetOverflow     = errors.New("budget arithmetic overflows")
	ErrBudgetExceeded     = errors.New("total exceeds remaining budget")
	ErrEmptyText          = errors.New("text value is empty")
	ErrTextTooLong        = errors.New("text value exceeds length limit")
	ErrPayerZeroAddress   = errors.New("virtual payer is the zero address")
	ErrPayerReserved      = errors.New(
		"virtual payer is a reserved address",
	)
	ErrPayerSystemAddress = errors.New(
		"virtual payer is a system-controlled address",
	)
)

// AmountOutOfBoundsError reports a per-recipient amount outside the
// configured bounds.
type AmountOutOfBoundsError struct {
	Amount uint64
	Min    uint64
	Max    uint64
}

func (e AmountOutOfBoundsError) Error() string {
	return fmt.Sprintf(
		"amount %d outside bounds [%d, %d]",
		e.Amount,
		e.Min,
		e.Max,
	)
}

// Recipients checks the shape of a recipient/amount pair list: between one
// and MaxRecipients entries, matching lengths, non-zero pairwise-distinct
// addresses, and each amount within [minAmount, maxAmount].
func Recipients(
	recipients []identity.Address,
	amounts []uint64,
	minAmount uint64,
	maxAmount uint64,
) error {
	if len(recipients) == 0 {
		return ErrNoRecipients
	}
	if len(recipients) > MaxRecipients {
		return fmt.Errorf(
			"%w: %d > %d",
			ErrTooManyRecipients,
			len(recipients),
			MaxRecipients,
		)
	}
	if len(recipients) != len(amounts) {
		return fmt.Errorf(
			"%w: %d recipients, %d amounts",
			ErrRecipientCountMismatch,
			len(recipients),
			len(amounts),
		)
	}
	seen := make(map[identity.Address]struct{}, len(recipients))
	for i, addr := range recipients {
		if addr.IsZero() {
			return fmt.Errorf("%w (index %d)", ErrZeroRecipient, i)
		}
		if _, ok := seen[addr]; ok {
			return fmt.Errorf(
				"%w: %s (index %d)",
				ErrDuplicateRecipient,
				addr,
				i,
			)
		}
		seen[addr] = struct{}{}
		if amounts[i] < minAmount || amounts[i] > maxAmount {
			return AmountOutOfBoundsError{
				Amount: amounts[i],
				Min:    minAmount,
				Max:    maxAmount,
			}
		}
	}
	return nil
}

// Sum adds the given amounts with overflow detection
func Sum(amounts []uint64) (uint64, error) {
	var total uint64
	for _, amount := range amounts {
		if amount > math.MaxUint64-total {
			return 0, ErrAmountOverflow
		}
		total += amount
	}
	return total, nil
}

// Text checks a free-text field against a byte-length limit. An empty
// value is rejected unless allowEmpty is set.
func Text(s string, maxLen int, allowEmpty bool) error {
	if s == "" {
		if allowEmpty {
			return nil
		}
		return ErrEmptyText
	}
	if len(s) > maxLen {
		return fmt.Errorf(
			"%w: %d > %d bytes",
			ErrTextTooLong,
			len(s),
			maxLen,
		)
	}
	return nil
}

// WithinBudget checks that distributing total on top of what has already
// been distributed and what is currently locked stays within the budget
// ceiling. All intermediate sums are overflow-checked.
func WithinBudget(
	total uint64,
	distributed uint64,
	locked uint64,
	ceiling uint64,
) error {
	if distributed > math.MaxUint64-locked {
		return ErrBudgetOverflow
	}
	committed := distributed + locked
	if total > math.MaxUint64-committed {
		return ErrBudgetOverflow
	}
	if committed+total > ceiling {
		return fmt.Errorf(
			"%w: %d + %d > %d",
			ErrBudgetExceeded,
			committed,
			total,
			ceiling,
		)
	}
	return nil
}

// VirtualPayer checks an informational payer tag. The tag is non-custodial
// but must not name the zero address, a reserved low-value address, or any
// system-controlled address on the denylist (the pool, the token, the
// factory).
func VirtualPayer(
	payer identity.Address,
	denylist []identity.Address,
) error {
	if payer.IsZero() {
		return ErrPayerZeroAddress
	}
	if payer.IsReserved() {
		return ErrPayerReserved
	}
	for _, denied := range denylist {
		if payer == denied {
			return fmt.Errorf("%w: %s", ErrPayerSystemAddress, payer)
		}
	}
	return nil
}
