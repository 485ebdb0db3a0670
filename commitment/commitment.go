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

// Package commitment implements the two-phase commit-reveal protocol used
// by the approval and closure state machines. An approver first submits a
// digest binding their identity, the subject, the instance discriminator,
// and a secret nonce; only after the reveal window has elapsed can they
// reveal the nonce and have the approval take effect. This prevents other
// parties from copying or front-running an approval before it is final.
package commitment

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/blinklabs-io/coffer/identity"
	"golang.org/x/crypto/blake2b"
)

// SubjectKind discriminates which state machine a commitment belongs to
type SubjectKind uint8

const (
	SubjectRequest SubjectKind = 1
	SubjectClosure SubjectKind = 2
)

func (k SubjectKind) String() string {
	switch k {
	case SubjectRequest:
		return "request"
	case SubjectClosure:
		return "closure"
	default:
		return fmt.Sprintf("subject(%d)", uint8(k))
	}
}

// DigestSize is the size of a commitment digest in bytes
const DigestSize = 32

// NonceSize is the size of the secret nonce in bytes
const NonceSize = 32

var (
	ErrUnknownCommitment = errors.New("no commitment found for approver")
	ErrDigestMismatch    = errors.New(
		"revealed values do not match committed digest",
	)
)

// RevealTooEarlyError indicates a reveal attempted before the reveal
// window has elapsed.
type RevealTooEarlyError struct {
	Remaining time.Duration
}

func (e RevealTooEarlyError) Error() string {
	return fmt.Sprintf(
		"reveal window has not elapsed: %s remaining",
		e.Remaining,
	)
}

// Key identifies a commitment: one per (subject, approver) pair
type Key struct {
	Kind      SubjectKind
	SubjectId uint64
	Approver  identity.Address
}

// Commitment is a pending commit awaiting reveal
type Commitment struct {
	Digest      [DigestSize]byte
	CommittedAt time.Time
}

// Digest computes the commitment digest binding the approver identity, the
// subject, the instance discriminator, and the secret nonce. The layout is
// fixed so that independently-written clients produce identical digests.
func Digest(
	approver identity.Address,
	kind SubjectKind,
	subjectId uint64,
	instanceId [32]byte,
	nonce [NonceSize]byte,
) [DigestSize]byte {
	buf := make(
		[]byte,
		0,
		identity.AddressLength+1+8+len(instanceId)+NonceSize,
	)
	buf = append(buf, approver[:]...)
	buf = append(buf, byte(kind))
	buf = binary.BigEndian.AppendUint64(buf, subjectId)
	buf = append(buf, instanceId[:]...)
	buf = append(buf, nonce[:]...)
	return blake2b.Sum256(buf)
}
