// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package background

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/waybar-location/internal/logger"
)

const (
	logindDest      = "org.freedesktop.login1"
	logindPath      = "/org/freedesktop/login1"
	logindInterface = "org.freedesktop.login1.Manager"
	inhibitMethod   = logindInterface + ".Inhibit"
	sleepMember     = "PrepareForSleep"

	inhibitWhat = "sleep"
	inhibitWho  = "waybar-location"
	inhibitWhy  = "Tracking the device position"
	inhibitMode = "delay"

	callTimeout      = 5 * time.Second
	signalBufferSize = 8
)

type lease struct {
	file       *os.File
	onExpiring func()
}

// Logind implements Tasks with systemd-logind "delay" sleep inhibitor locks. A lock delays
// system suspend until it is released; logind announces the suspend with the PrepareForSleep
// signal, which triggers the expiring callbacks.
type Logind struct {
	conn   *dbus.Conn
	logger *logger.Logger

	mu     sync.Mutex
	next   Handle
	leases map[Handle]lease
}

// NewLogind connects to the system bus and subscribes to the PrepareForSleep signal. The
// subscription ends when the context is cancelled.
func NewLogind(ctx context.Context, log *logger.Logger) (*Logind, error) {
	conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}
	if err = conn.AddMatchSignal(dbus.WithMatchInterface(logindInterface),
		dbus.WithMatchMember(sleepMember),
	); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to subscribe to dbus signal: %w", err)
	}

	l := &Logind{
		conn:   conn,
		logger: log,
		leases: make(map[Handle]lease),
	}

	sigCh := make(chan *dbus.Signal, signalBufferSize)
	conn.Signal(sigCh)
	log.Debug("subscribed to dbus signal", slog.String("interface", logindInterface),
		slog.String("member", sleepMember))
	go l.handleSleepSignals(ctx, sigCh)

	return l, nil
}

// Acquire takes a sleep delay lock from logind.
func (l *Logind) Acquire(onExpiring func()) (Handle, error) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	var fd dbus.UnixFD
	obj := l.conn.Object(logindDest, logindPath)
	if err := obj.CallWithContext(ctx, inhibitMethod, 0, inhibitWhat, inhibitWho, inhibitWhy,
		inhibitMode).Store(&fd); err != nil {
		return 0, fmt.Errorf("failed to take logind inhibitor lock: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	l.leases[l.next] = lease{
		file:       os.NewFile(uintptr(fd), "logind-inhibitor"),
		onExpiring: onExpiring,
	}
	l.logger.Debug("logind inhibitor lock acquired", slog.Uint64("handle", uint64(l.next)))
	return l.next, nil
}

// Release closes the inhibitor lock file descriptor, which releases the lock.
func (l *Logind) Release(h Handle) {
	l.mu.Lock()
	ls, ok := l.leases[h]
	delete(l.leases, h)
	l.mu.Unlock()
	if !ok {
		return
	}

	if err := ls.file.Close(); err != nil {
		l.logger.Error("failed to release logind inhibitor lock", logger.Err(err),
			slog.Uint64("handle", uint64(h)))
		return
	}
	l.logger.Debug("logind inhibitor lock released", slog.Uint64("handle", uint64(h)))
}

// Close closes the system bus connection. Held locks are released by the kernel once the
// process exits.
func (l *Logind) Close() error {
	return l.conn.Close()
}

// handleSleepSignals listens for PrepareForSleep signals until the context is cancelled or the
// connection is closed.
func (l *Logind) handleSleepSignals(ctx context.Context, sigCh chan *dbus.Signal) {
	defer l.conn.RemoveSignal(sigCh)
	for {
		select {
		case <-ctx.Done():
			return
		case sgn, ok := <-sigCh:
			if !ok {
				return
			}
			if isSleepAnnouncement(sgn) {
				l.logger.Debug("system is preparing for sleep, expiring background tasks")
				l.expire()
			}
		}
	}
}

// expire invokes all expiring callbacks outside the lock, since they call Release.
func (l *Logind) expire() {
	l.mu.Lock()
	callbacks := make([]func(), 0, len(l.leases))
	for _, ls := range l.leases {
		if ls.onExpiring != nil {
			callbacks = append(callbacks, ls.onExpiring)
		}
	}
	l.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
}

// isSleepAnnouncement reports whether the signal announces an upcoming suspend. PrepareForSleep
// carries a single boolean that is true before sleeping and false after resuming.
func isSleepAnnouncement(sgn *dbus.Signal) bool {
	if sgn == nil || sgn.Name != logindInterface+"."+sleepMember || len(sgn.Body) != 1 {
		return false
	}
	sleeping, ok := sgn.Body[0].(bool)
	return ok && sleeping
}
