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

package guard_test

import (
	"testing"

	"github.com/blinklabs-io/coffer/guard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardEnterExit(t *testing.T) {
	g := guard.New()
	assert.False(t, g.Active())
	require.NoError(t, g.Enter())
	assert.True(t, g.Active())
	g.Exit()
	assert.False(t, g.Active())
}

func TestGuardRejectsNestedEnter(t *testing.T) {
	g := guard.New()
	require.NoError(t, g.Enter())
	// A second enter while held must fail immediately rather than block
	err := g.Enter()
	assert.ErrorIs(t, err, guard.ErrOperationInProgress)
	g.Exit()
	// Released, so enter succeeds again
	require.NoError(t, g.Enter())
	g.Exit()
}
