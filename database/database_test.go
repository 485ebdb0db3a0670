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

package database_test

import (
	"testing"
	"time"

	"github.com/blinklabs-io/coffer/commitment"
	"github.com/blinklabs-io/coffer/database"
	"github.com/blinklabs-io/coffer/database/models"
	"github.com/blinklabs-io/coffer/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDatabase(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.New(&database.Config{
		DataDir: t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func TestRequestRoundTrip(t *testing.T) {
	db := testDatabase(t)
	requester := identity.AddressFromSeed("db-requester")
	recipientA := identity.AddressFromSeed("db-recipient-a")
	recipientB := identity.AddressFromSeed("db-recipient-b")
	approver := identity.AddressFromSeed("db-approver")
	createdAt := time.Unix(1700000000, 0).UTC()

	request := &models.Request{
		ID:          1,
		Requester:   requester.Bytes(),
		Total:       250,
		Description: "test request",
		DocumentRef: "doc-1",
		Status:      "pending",
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
	recipients := []models.RequestRecipient{
		{RequestID: 1, Idx: 0, Address: recipientA.Bytes(), Amount: 100},
		{RequestID: 1, Idx: 1, Address: recipientB.Bytes(), Amount: 150},
	}
	require.NoError(t, db.SetRequest(request, recipients, nil))

	requests, err := db.GetRequests()
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, uint64(1), requests[0].ID)
	assert.Equal(t, requester.Bytes(), requests[0].Requester)
	assert.Equal(t, uint64(250), requests[0].Total)
	assert.Equal(t, "pending", requests[0].Status)

	gotRecipients, err := db.GetRequestRecipients(1)
	require.NoError(t, err)
	require.Len(t, gotRecipients, 2)
	assert.Equal(t, recipientA.Bytes(), gotRecipients[0].Address)
	assert.Equal(t, uint64(100), gotRecipients[0].Amount)
	assert.Equal(t, recipientB.Bytes(), gotRecipients[1].Address)

	// Rewrite replaces children rather than accumulating them
	request.Status = "finance_approved"
	approvals := []models.RequestApproval{
		{RequestID: 1, Approver: approver.Bytes(), ApprovedAt: createdAt},
	}
	require.NoError(t, db.SetRequest(request, recipients, approvals))
	gotRecipients, err = db.GetRequestRecipients(1)
	require.NoError(t, err)
	assert.Len(t, gotRecipients, 2)
	gotApprovals, err := db.GetRequestApprovals(1)
	require.NoError(t, err)
	require.Len(t, gotApprovals, 1)
	assert.Equal(t, approver.Bytes(), gotApprovals[0].Approver)
	requests, err = db.GetRequests()
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, "finance_approved", requests[0].Status)
}

func TestClosureRoundTrip(t *testing.T) {
	db := testDatabase(t)
	initiator := identity.AddressFromSeed("db-initiator")
	returnAddr := identity.AddressFromSeed("db-return")
	approver := identity.AddressFromSeed("db-closure-approver")
	createdAt := time.Unix(1700000000, 0).UTC()

	closureRow := &models.ClosureRequest{
		ID:                1,
		Initiator:         initiator.Bytes(),
		ReturnAddress:     returnAddr.Bytes(),
		Reason:            "test closure",
		Status:            "initiated",
		CreatedAt:         createdAt,
		UpdatedAt:         createdAt,
		ExecutionDeadline: createdAt.Add(24 * time.Hour),
	}
	approvals := []models.ClosureApproval{
		{ClosureID: 1, Approver: approver.Bytes(), ApprovedAt: createdAt},
	}
	require.NoError(t, db.SetClosure(closureRow, approvals))

	closures, err := db.GetClosures()
	require.NoError(t, err)
	require.Len(t, closures, 1)
	assert.Equal(t, initiator.Bytes(), closures[0].Initiator)
	assert.Equal(t, "initiated", closures[0].Status)
	gotApprovals, err := db.GetClosureApprovals(1)
	require.NoError(t, err)
	require.Len(t, gotApprovals, 1)
	assert.Equal(t, approver.Bytes(), gotApprovals[0].Approver)
}

func TestRoleMembers(t *testing.T) {
	db := testDatabase(t)
	member1 := identity.AddressFromSeed("db-member-1")
	member2 := identity.AddressFromSeed("db-member-2")

	require.NoError(t, db.AddRoleMember("committee", member1.Bytes()))
	require.NoError(t, db.AddRoleMember("committee", member2.Bytes()))
	require.NoError(t, db.AddRoleMember("admin", member1.Bytes()))
	// Duplicate inserts collapse
	require.NoError(t, db.AddRoleMember("committee", member1.Bytes()))

	members, err := db.GetRoleMembers()
	require.NoError(t, err)
	assert.Len(t, members, 3)

	require.NoError(t, db.RemoveRoleMember("committee", member1.Bytes()))
	members, err = db.GetRoleMembers()
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestLockedAmounts(t *testing.T) {
	db := testDatabase(t)
	lockedAt := time.Unix(1700000000, 0).UTC()
	require.NoError(t, db.SetLockedAmount(&models.LockedAmount{
		RequestID: 1,
		Amount:    300,
		LockedAt:  lockedAt,
	}))
	require.NoError(t, db.SetLockedAmount(&models.LockedAmount{
		RequestID: 2,
		Amount:    500,
		LockedAt:  lockedAt,
	}))

	locks, err := db.GetLockedAmounts()
	require.NoError(t, err)
	require.Len(t, locks, 2)
	assert.Equal(t, uint64(300), locks[0].Amount)
	assert.Equal(t, uint64(500), locks[1].Amount)

	require.NoError(t, db.DeleteLockedAmount(1))
	locks, err = db.GetLockedAmounts()
	require.NoError(t, err)
	require.Len(t, locks, 1)
	assert.Equal(t, uint64(2), locks[0].RequestID)
}

func TestInstanceState(t *testing.T) {
	db := testDatabase(t)
	// Missing state reads as nil
	state, err := db.GetInstanceState()
	require.NoError(t, err)
	assert.Nil(t, state)

	// Single-column writers share the singleton row without clobbering
	// each other's fields
	require.NoError(t, db.SetBudgetCeiling(1000))
	require.NoError(t, db.SetBootstrapped(true))
	require.NoError(t, db.SetDistributedTotal(300))
	state, err = db.GetInstanceState()
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, uint64(1000), state.BudgetCeiling)
	assert.True(t, state.Bootstrapped)
	assert.Equal(t, uint64(300), state.DistributedTotal)
	assert.False(t, state.Paused)

	require.NoError(t, db.SetPaused(true))
	state, err = db.GetInstanceState()
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.True(t, state.Paused)
	assert.Equal(t, uint64(1000), state.BudgetCeiling)
}

func TestCommitmentsRoundTrip(t *testing.T) {
	db := testDatabase(t)
	approver := identity.AddressFromSeed("db-commit-approver")
	key := commitment.Key{
		Kind:      commitment.SubjectRequest,
		SubjectId: 42,
		Approver:  approver,
	}
	var digest [commitment.DigestSize]byte
	for i := range digest {
		digest[i] = byte(i)
	}
	committedAt := time.Unix(1700000000, 123456789)

	require.NoError(t, db.SetCommitment(key, digest, committedAt))
	entries, err := db.ListCommitments()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	entry, ok := entries[key]
	require.True(t, ok)
	assert.Equal(t, digest, entry.Digest)
	assert.Equal(t, committedAt.UnixNano(), entry.CommittedAt.UnixNano())

	require.NoError(t, db.DeleteCommitment(key))
	entries, err = db.ListCommitments()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dataDir := t.TempDir()
	db, err := database.New(&database.Config{DataDir: dataDir})
	require.NoError(t, err)
	requester := identity.AddressFromSeed("db-requester")
	require.NoError(t, db.SetRequest(&models.Request{
		ID:        1,
		Requester: requester.Bytes(),
		Total:     100,
		Status:    "pending",
	}, nil, nil))
	require.NoError(t, db.SetBudgetCeiling(1000))
	key := commitment.Key{
		Kind:      commitment.SubjectClosure,
		SubjectId: 1,
		Approver:  requester,
	}
	var digest [commitment.DigestSize]byte
	digest[0] = 0xff
	require.NoError(t, db.SetCommitment(key, digest, time.Unix(1700000000, 0)))
	require.NoError(t, db.Close())

	// Reopen from the same directory and observe the same state
	db, err = database.New(&database.Config{DataDir: dataDir})
	require.NoError(t, err)
	defer db.Close()
	requests, err := db.GetRequests()
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, uint64(100), requests[0].Total)
	state, err := db.GetInstanceState()
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, uint64(1000), state.BudgetCeiling)
	entries, err := db.ListCommitments()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, digest, entries[key].Digest)
}
