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

// SetClosure writes a full closure record, replacing any existing
// committee approvals for the same closure id
func (d *Database) SetClosure(
	closure *models.ClosureRequest,
	approvals []models.ClosureApproval,
) error {
	return d.metadata.Transaction(func(tx *gorm.DB) error {
		if result := tx.Save(closure); result.Error != nil {
			return result.Error
		}
		if result := tx.Where(
			"closure_id = ?",
			closure.ID,
		).Delete(&models.ClosureApproval{}); result.Error != nil {
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

// GetClosures retrieves all closure records in id order
func (d *Database) GetClosures() ([]models.ClosureRequest, error) {
	var closures []models.ClosureRequest
	if result := d.metadata.Order("id").Find(&closures); result.Error != nil {
		return nil, result.Error
	}
	return closures, nil
}

// GetClosureApprovals retrieves the committee approvals for a closure in
// the order they were recorded
func (d *Database) GetClosureApprovals(
	closureId uint64,
) ([]models.ClosureApproval, error) {
	var approvals []models.ClosureApproval
	if result := d.metadata.Where(
		"closure_id = ?",
		closureId,
	).Order("id").Find(&approvals); result.Error != nil {
		return nil, result.Error
	}
	return approvals, nil
}
