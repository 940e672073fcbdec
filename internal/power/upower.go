// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package power answers whether the device currently runs on external power.
package power

import (
	"context"
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	upowerDest          = "org.freedesktop.UPower"
	displayDevicePath   = "/org/freedesktop/UPower/devices/DisplayDevice"
	devicePropertyState = "org.freedesktop.UPower.Device.State"
)

// UPower device states, see the UPower Device interface documentation.
const (
	StateUnknown uint32 = iota
	StateCharging
	StateDischarging
	StateEmpty
	StateFullyCharged
	StatePendingCharge
	StatePendingDischarge
)

// Charger reports whether the device is charging or fully charged.
type Charger interface {
	IsCharging(ctx context.Context) (bool, error)
}

// UPower queries the UPower display device over the system bus.
type UPower struct{}

// NewUPower returns a UPower charger.
func NewUPower() *UPower {
	return &UPower{}
}

// IsCharging opens a short-lived system bus connection and reads the state of the UPower
// display device.
func (u *UPower) IsCharging(ctx context.Context) (charging bool, err error) {
	conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("failed to connect to system bus: %w", err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close system bus: %w", closeErr))
		}
	}()

	prop, err := conn.Object(upowerDest, displayDevicePath).GetProperty(devicePropertyState)
	if err != nil {
		return false, fmt.Errorf("failed to read UPower device state: %w", err)
	}
	state, ok := prop.Value().(uint32)
	if !ok {
		return false, fmt.Errorf("unexpected UPower device state type %T", prop.Value())
	}
	return IsChargingState(state), nil
}

// IsChargingState reports whether the UPower device state counts as external power.
func IsChargingState(state uint32) bool {
	return state == StateCharging || state == StateFullyCharged
}

// Static is a Charger with a fixed answer, used when no power information is available.
type Static bool

func (s Static) IsCharging(context.Context) (bool, error) {
	return bool(s), nil
}
