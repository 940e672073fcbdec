// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package background provides the background-execution resources a tracker holds while it is
// tracking the device position.
package background

import (
	"errors"
	"sync"
)

// Handle identifies an acquired background resource. The zero value is never handed out.
type Handle uint64

// ErrUnavailable is returned when no background resource can be acquired.
var ErrUnavailable = errors.New("background execution resource unavailable")

// Tasks hands out background-execution resources. The onExpiring callback is invoked when the
// platform is about to suspend the process; it is never invoked from within Acquire and must
// release the handle itself.
type Tasks interface {
	Acquire(onExpiring func()) (Handle, error)
	Release(h Handle)
}

// Local is an in-process Tasks implementation for platforms without a suspend mechanism. Its
// handles never expire on their own, Expire simulates the platform doing so.
type Local struct {
	mu     sync.Mutex
	next   Handle
	leases map[Handle]func()
}

// NewLocal returns an empty Local.
func NewLocal() *Local {
	return &Local{leases: make(map[Handle]func())}
}

func (l *Local) Acquire(onExpiring func()) (Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	l.leases[l.next] = onExpiring
	return l.next, nil
}

func (l *Local) Release(h Handle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.leases, h)
}

// Held returns the number of currently held handles.
func (l *Local) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.leases)
}

// Expire invokes the expiring callbacks of all held handles.
func (l *Local) Expire() {
	l.mu.Lock()
	callbacks := make([]func(), 0, len(l.leases))
	for _, cb := range l.leases {
		if cb != nil {
			callbacks = append(callbacks, cb)
		}
	}
	l.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
}
