// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package power

import "testing"

func TestIsChargingState(t *testing.T) {
	tests := []struct {
		name  string
		state uint32
		want  bool
	}{
		{"unknown", StateUnknown, false},
		{"charging", StateCharging, true},
		{"discharging", StateDischarging, false},
		{"empty", StateEmpty, false},
		{"fully charged", StateFullyCharged, true},
		{"pending charge", StatePendingCharge, false},
		{"pending discharge", StatePendingDischarge, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsChargingState(tc.state); got != tc.want {
				t.Errorf("expected %t for state %d, got %t", tc.want, tc.state, got)
			}
		})
	}
}

func TestStatic_IsCharging(t *testing.T) {
	charging, err := Static(true).IsCharging(t.Context())
	if err != nil {
		t.Fatalf("failed to query static charger: %s", err)
	}
	if !charging {
		t.Error("expected static charger to report charging")
	}
}
