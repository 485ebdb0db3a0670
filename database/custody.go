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
	"errors"

	"github.com/blinklabs-io/coffer/database/models"
	"gorm.io/gorm"
)

// instanceStateId is the fixed id of the singleton instance state row
const instanceStateId = 1

// SetLockedAmount records a fund reservation for a request
func (d *Database) SetLockedAmount(lock *models.LockedAmount) error {
	result := d.metadata.Save(lock)
	return result.Error
}

// DeleteLockedAmount removes the fund reservation for a request
func (d *Database) DeleteLockedAmount(requestId uint64) error {
	result := d.metadata.Where(
		"request_id = ?",
		requestId,
	).Delete(&models.LockedAmount{})
	return result.Error
}

// GetLockedAmounts retrieves all fund reservations
func (d *Database) GetLockedAmounts() ([]models.LockedAmount, error) {
	var locks []models.LockedAmount
	if result := d.metadata.Order("request_id").Find(&locks); result.Error != nil {
		return nil, result.Error
	}
	return locks, nil
}

// updateInstanceState sets a single column of the singleton instance
// state row, creating the row first if it doesn't exist. Single-column
// updates let the registry and the vault share the row without clobbering
// each other's fields.
func (d *Database) updateInstanceState(column string, value any) error {
	return d.metadata.Transaction(func(tx *gorm.DB) error {
		var state models.InstanceState
		if result := tx.FirstOrCreate(
			&state,
			models.InstanceState{ID: instanceStateId},
		); result.Error != nil {
			return result.Error
		}
		result := tx.Model(&models.InstanceState{}).
			Where("id = ?", instanceStateId).
			Update(column, value)
		return result.Error
	})
}

// SetBootstrapped records consumption of the one-time bootstrap capability
func (d *Database) SetBootstrapped(v bool) error {
	return d.updateInstanceState("bootstrapped", v)
}

// SetPaused records the instance paused flag
func (d *Database) SetPaused(v bool) error {
	return d.updateInstanceState("paused", v)
}

// SetBudgetCeiling records the budget ceiling
func (d *Database) SetBudgetCeiling(v uint64) error {
	return d.updateInstanceState("budget_ceiling", v)
}

// SetDistributedTotal records the lifetime distributed total
func (d *Database) SetDistributedTotal(v uint64) error {
	return d.updateInstanceState("distributed_total", v)
}

// SetInstanceState writes the singleton instance state row
func (d *Database) SetInstanceState(state *models.InstanceState) error {
	state.ID = instanceStateId
	result := d.metadata.Save(state)
	return result.Error
}

// GetInstanceState retrieves the singleton instance state row, or nil
// when none has been written yet
func (d *Database) GetInstanceState() (*models.InstanceState, error) {
	var state models.InstanceState
	if result := d.metadata.First(&state, instanceStateId); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &state, nil
}
