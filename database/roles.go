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
	"gorm.io/gorm/clause"
)

// AddRoleMember records a role membership. Adding an existing member is
// a no-op.
func (d *Database) AddRoleMember(role string, member []byte) error {
	result := d.metadata.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.RoleMember{
			Role:   role,
			Member: member,
		})
	return result.Error
}

// RemoveRoleMember removes a role membership
func (d *Database) RemoveRoleMember(role string, member []byte) error {
	result := d.metadata.Where(
		"role = ? AND member = ?",
		role,
		member,
	).Delete(&models.RoleMember{})
	return result.Error
}

// GetRoleMembers retrieves all role memberships
func (d *Database) GetRoleMembers() ([]models.RoleMember, error) {
	var members []models.RoleMember
	if result := d.metadata.Order("id").Find(&members); result.Error != nil {
		return nil, result.Error
	}
	return members, nil
}
