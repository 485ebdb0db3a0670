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

	"github.com/blinklabs-io/coffer/database/models"
	"github.com/blinklabs-io/coffer/identity"
)

// addressBytes returns the serialized address, or nil for the zero
// address so unset approver slots store as NULL
func addressBytes(addr identity.Address) []byte {
	if addr.IsZero() {
		return nil
	}
	return addr.Bytes()
}

func addressFromBytes(data []byte) (identity.Address, error) {
	if len(data) == 0 {
		return identity.ZeroAddress, nil
	}
	return identity.NewAddress(data)
}

// persist writes a request through to the metadata store. The caller
// holds the engine lock. No-op when running without a database.
func (e *Engine) persist(req *Request) error {
	if e.db == nil {
		return nil
	}
	row := models.Request{
		ID:                req.Id,
		Requester:         req.Requester.Bytes(),
		Total:             req.Total,
		Description:       req.Description,
		DocumentRef:       req.DocumentRef,
		VirtualPayer:      addressBytes(req.VirtualPayer),
		Status:            string(req.Status),
		SecretaryApprover: addressBytes(req.SecretaryApprover),
		CommitteeApprover: addressBytes(req.CommitteeApprover),
		FinanceApprover:   addressBytes(req.FinanceApprover),
		DirectorApprover:  addressBytes(req.DirectorApprover),
		CreatedAt:         req.CreatedAt,
		UpdatedAt:         req.UpdatedAt,
	}
	if !req.PaymentDeadline.IsZero() {
		deadline := req.PaymentDeadline
		row.PaymentDeadline = &deadline
	}
	recipientRows := make([]models.RequestRecipient, len(req.Recipients))
	for i, recipient := range req.Recipients {
		recipientRows[i] = models.RequestRecipient{
			RequestID: req.Id,
			Idx:       i,
			Address:   recipient.Address.Bytes(),
			Amount:    recipient.Amount,
		}
	}
	approvalRows := make([]models.RequestApproval, len(req.ExtraApprovers))
	for i, approver := range req.ExtraApprovers {
		approvalRows[i] = models.RequestApproval{
			RequestID:  req.Id,
			Approver:   approver.Bytes(),
			ApprovedAt: req.UpdatedAt,
		}
	}
	return e.db.SetRequest(&row, recipientRows, approvalRows)
}

// load rebuilds the in-memory request set from the metadata store
func (e *Engine) load() error {
	rows, err := e.db.GetRequests()
	if err != nil {
		return err
	}
	for _, row := range rows {
		req, err := e.requestFromRow(row)
		if err != nil {
			return err
		}
		e.requests[req.Id] = req
		if req.Id >= e.nextId {
			e.nextId = req.Id + 1
		}
	}
	return nil
}

func (e *Engine) requestFromRow(row models.Request) (*Request, error) {
	requester, err := identity.NewAddress(row.Requester)
	if err != nil {
		return nil, err
	}
	req := &Request{
		Id:          row.ID,
		Requester:   requester,
		Total:       row.Total,
		Description: row.Description,
		DocumentRef: row.DocumentRef,
		Status:      Status(row.Status),
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
	if req.VirtualPayer, err = addressFromBytes(row.VirtualPayer); err != nil {
		return nil, err
	}
	if req.SecretaryApprover, err = addressFromBytes(row.SecretaryApprover); err != nil {
		return nil, err
	}
	if req.CommitteeApprover, err = addressFromBytes(row.CommitteeApprover); err != nil {
		return nil, err
	}
	if req.FinanceApprover, err = addressFromBytes(row.FinanceApprover); err != nil {
		return nil, err
	}
	if req.DirectorApprover, err = addressFromBytes(row.DirectorApprover); err != nil {
		return nil, err
	}
	if row.PaymentDeadline != nil {
		req.PaymentDeadline = *row.PaymentDeadline
	} else {
		req.PaymentDeadline = time.Time{}
	}
	recipientRows, err := e.db.GetRequestRecipients(row.ID)
	if err != nil {
		return nil, err
	}
	req.Recipients = make([]Recipient, 0, len(recipientRows))
	for _, recipientRow := range recipientRows {
		addr, err := identity.NewAddress(recipientRow.Address)
		if err != nil {
			return nil, err
		}
		req.Recipients = append(req.Recipients, Recipient{
			Address: addr,
			Amount:  recipientRow.Amount,
		})
	}
	approvalRows, err := e.db.GetRequestApprovals(row.ID)
	if err != nil {
		return nil, err
	}
	req.ExtraApprovers = make([]identity.Address, 0, len(approvalRows))
	for _, approvalRow := range approvalRows {
		addr, err := identity.NewAddress(approvalRow.Approver)
		if err != nil {
			return nil, err
		}
		req.ExtraApprovers = append(req.ExtraApprovers, addr)
	}
	return req, nil
}
