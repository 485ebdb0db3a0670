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

// Package guard provides the operation-in-progress flag shared by the
// approval and closure engines. Outbound token transfers can call back
// into the engines from a misbehaving token implementation; the guard
// rejects any such nested entry into the protected operation set.
package guard

import (
	"errors"
	"sync"
)

var ErrOperationInProgress = errors.New(
	"another protected operation is in progress",
)

// Guard is a non-blocking mutual exclusion flag. Unlike a mutex, a second
// Enter while the flag is held fails immediately instead of blocking, which
// is the behavior needed to reject reentrant callbacks.
type Guard struct {
	mu     sync.Mutex
	active bool
}

func New() *Guard {
	return &Guard{}
}

// Enter sets the in-progress flag. It fails with ErrOperationInProgress
// if the flag is already set. Callers must pair every successful Enter
// with an Exit, normally via defer.
func (g *Guard) Enter() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active {
		return ErrOperationInProgress
	}
	g.active = true
	return nil
}

// Exit clears the in-progress flag
func (g *Guard) Exit() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active = false
}

// Active returns whether a protected operation is currently in progress
func (g *Guard) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}
