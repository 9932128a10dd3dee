// Copyright 2024 Ewout Prangsma
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
//
// Author Ewout Prangsma
//

package util

import (
	"runtime"
	"sync/atomic"
)

// SpinLock is a lock for very short critical sections.
// It implements sync.Locker. The zero value is unlocked.
type SpinLock struct {
	locked atomic.Bool
}

const spinLockMaxBackoff = 64

// Lock the spinlock, yielding with exponential backoff while it is held.
func (l *SpinLock) Lock() {
	for backoff := 1; !l.TryLock(); backoff = min(backoff*2, spinLockMaxBackoff) {
		for i := 0; i < backoff; i++ {
			runtime.Gosched()
		}
	}
}

// TryLock locks the spinlock if it is free.
// Returns true when locked, false otherwise.
func (l *SpinLock) TryLock() bool {
	return l.locked.CompareAndSwap(false, true)
}

// Unlock the spinlock.
// Unlocking a free spinlock panics.
func (l *SpinLock) Unlock() {
	if !l.locked.CompareAndSwap(true, false) {
		panic("util: unlock of unlocked SpinLock")
	}
}
