// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package source holds helpers shared by the location source implementations.
package source

import (
	"errors"
	"io/fs"

	"github.com/wneessen/waybar-location/internal/location"
)

// StatusFromAccess translates the result of an access probe against a location receiver into
// the platform authorization status. A successful probe grants the always status, readOnly
// downgrades it to when-in-use.
func StatusFromAccess(err error, readOnly bool) location.PlatformStatus {
	switch {
	case err == nil && readOnly:
		return location.StatusWhenInUse
	case err == nil:
		return location.StatusAlways
	case errors.Is(err, fs.ErrPermission):
		return location.StatusDenied
	case errors.Is(err, fs.ErrNotExist):
		return location.StatusRestricted
	default:
		return location.StatusNotDetermined
	}
}
