// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package source

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
	"testing"

	"github.com/wneessen/waybar-location/internal/location"
)

func TestStatusFromAccess(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		readOnly bool
		want     location.PlatformStatus
	}{
		{"full access", nil, false, location.StatusAlways},
		{"read only access", nil, true, location.StatusWhenInUse},
		{"permission denied", fs.ErrPermission, false, location.StatusDenied},
		{"wrapped permission denied", fmt.Errorf("open: %w", syscall.EACCES), false, location.StatusDenied},
		{"device missing", &fs.PathError{Op: "open", Path: "/dev/ttyACM9", Err: syscall.ENOENT}, false, location.StatusRestricted},
		{"other failure", errors.New("connection refused"), false, location.StatusNotDetermined},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := StatusFromAccess(tc.err, tc.readOnly); got != tc.want {
				t.Errorf("expected status %s, got %s", tc.want, got)
			}
		})
	}
}
