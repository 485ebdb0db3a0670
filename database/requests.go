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

package database

import (
	"github.com/blinklabs-io/coffer/database/models"
	"gorm.io/gorm"
)

// SetRequest writes a full request record, replacing any existing
// recipients and extra approvals for the same request id. The write is
// wrapped in a transaction so a reload never observes a half-written
// request.
func (d *Database) SetRequest(
	request *models.Request,
	recipients []models.RequestRecipient,
	approvals []models.RequestApproval,
) error {
	return d.metadata.Transaction(func(tx *gorm.DB) error {
		if result := tx.Save(request); result.Error != nil {
			return result.Error
		}
		if result := tx.Where(
			"request_id = ?",
			request.ID,
		).Delete(&models.RequestRecipient{}); result.Error != nil {
			return result.Error
		}
		if len(recipients) > 0 {
			if result := tx.Create(&recipients); result.Error != nil {
				return result.Error
			}
		}
		if result := tx.Where(
			"request_id = ?",
			request.ID,
		).Delete(&models.RequestApproval{}); result.Error != nil {
			return result.Error
		}
		if len(approvals) > 0 {
			if result := tx.Create(&approvals); result.Error != nil {
				return result.Error
			}
		}
		return nil
	})
}

// GetRequests retrieves all request records in id order
func (d *Database) GetRequests() ([]models.Request, error) {
	var requests []models.Request
	if result := d.metadata.Order("id").Find(&requests); result.Error != nil {
		return nil, result.Error
	}
	return requests, nil
}

// GetRequestRecipients retrieves the recipients for a request in
// position order
func (d *Database) GetRequestRecipients(
	requestId uint64,
) ([]models.RequestRecipient, error) {
	var recipients []models.RequestRecipient
	if result := d.metadata.Where(
		"request_id = ?",
		requestId,
	).Order("idx").Find(&recipients); result.Error != nil {
		return nil, result.Error
	}
	return recipients, nil
}

// GetRequestApprovals retrieves the extra committee approvals for a
// request in the order they were recorded
func (d *Database) GetRequestApprovals(
	requestId uint64,
) ([]models.RequestApproval, error) {
	var approvals []models.RequestApproval
	if result := d.metadata.Where(
		"request_id = ?",
		requestId,
	).Order("id").Find(&approvals); result.Error != nil {
		return nil, result.Error
	}
	return approvals, nil
}
