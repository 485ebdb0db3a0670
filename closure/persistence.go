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

package closure

import (
	"github.com/blinklabs-io/coffer/database/models"
	"github.com/blinklabs-io/coffer/identity"
)

// persist writes a closure through to the metadata store. The caller
// holds the engine lock. No-op when running without a database.
func (e *Engine) persist(closure *Closure) error {
	if e.db == nil {
		return nil
	}
	row := models.ClosureRequest{
		ID:                closure.Id,
		Initiator:         closure.Initiator.Bytes(),
		ReturnAddress:     closure.ReturnAddress.Bytes(),
		Reason:            closure.Reason,
		Status:            string(closure.Status),
		SweptAmount:       closure.SweptAmount,
		CreatedAt:         closure.CreatedAt,
		UpdatedAt:         closure.UpdatedAt,
		ExecutionDeadline: closure.ExecutionDeadline,
	}
	if !closure.DirectorApprover.IsZero() {
		row.DirectorApprover = closure.DirectorApprover.Bytes()
	}
	approvalRows := make(
		[]models.ClosureApproval,
		len(closure.CommitteeApprovers),
	)
	for i, approver := range closure.CommitteeApprovers {
		approvalRows[i] = models.ClosureApproval{
			ClosureID:  closure.Id,
			Approver:   approver.Bytes(),
			ApprovedAt: closure.UpdatedAt,
		}
	}
	return e.db.SetClosure(&row, approvalRows)
}

// load rebuilds the in-memory closure set from the metadata store,
// including the any-active flag via a full-history scan
func (e *Engine) load() error {
	rows, err := e.db.GetClosures()
	if err != nil {
		return err
	}
	for _, row := range rows {
		closure, err := e.closureFromRow(row)
		if err != nil {
			return err
		}
		e.closures[closure.Id] = closure
		if closure.Id >= e.nextId {
			e.nextId = closure.Id + 1
		}
	}
	e.rebuildAnyActive()
	return nil
}

func (e *Engine) closureFromRow(
	row models.ClosureRequest,
) (*Closure, error) {
	initiator, err := identity.NewAddress(row.Initiator)
	if err != nil {
		return nil, err
	}
	returnAddress, err := identity.NewAddress(row.ReturnAddress)
	if err != nil {
		return nil, err
	}
	closure := &Closure{
		Id:                row.ID,
		Initiator:         initiator,
		ReturnAddress:     returnAddress,
		Reason:            row.Reason,
		Status:            Status(row.Status),
		SweptAmount:       row.SweptAmount,
		CreatedAt:         row.CreatedAt,
		UpdatedAt:         row.UpdatedAt,
		ExecutionDeadline: row.ExecutionDeadline,
	}
	if len(row.DirectorApprover) > 0 {
		approver, err := identity.NewAddress(row.DirectorApprover)
		if err != nil {
			return nil, err
		}
		closure.DirectorApprover = approver
	}
	approvalRows, err := e.db.GetClosureApprovals(row.ID)
	if err != nil {
		return nil, err
	}
	closure.CommitteeApprovers = make(
		[]identity.Address,
		0,
		len(approvalRows),
	)
	for _, approvalRow := range approvalRows {
		approver, err := identity.NewAddress(approvalRow.Approver)
		if err != nil {
			return nil, err
		}
		closure.CommitteeApprovers = append(
			closure.CommitteeApprovers,
			approver,
		)
	}
	return closure, nil
}
