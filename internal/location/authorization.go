// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package location

// PlatformStatus is the authorization status as reported by a concrete location source. Values
// outside the known constants are statuses a newer platform may introduce.
type PlatformStatus int

const (
	StatusNotDetermined PlatformStatus = iota
	StatusRestricted
	StatusDenied
	StatusWhenInUse
	StatusAlways
)

func (s PlatformStatus) String() string {
	switch s {
	case StatusNotDetermined:
		return "not-determined"
	case StatusRestricted:
		return "restricted"
	case StatusDenied:
		return "denied"
	case StatusWhenInUse:
		return "when-in-use"
	case StatusAlways:
		return "always"
	default:
		return "unknown"
	}
}

// AuthorizationState is the normalized authorization model consumers work with.
type AuthorizationState int

const (
	// AuthorizationUnknown is the state before any notification arrived.
	AuthorizationUnknown AuthorizationState = iota
	AuthorizationNotAllowed
	AuthorizationInUseOnly
	AuthorizationAlwaysAllowed
)

func (a AuthorizationState) String() string {
	switch a {
	case AuthorizationNotAllowed:
		return "not-allowed"
	case AuthorizationInUseOnly:
		return "in-use-only"
	case AuthorizationAlwaysAllowed:
		return "always-allowed"
	default:
		return "unknown"
	}
}

// MapAuthorization maps a platform status to the normalized authorization state. Anything that
// is not an explicit grant, including statuses unknown at build time, maps to NotAllowed.
func MapAuthorization(status PlatformStatus) AuthorizationState {
	switch status {
	case StatusWhenInUse:
		return AuthorizationInUseOnly
	case StatusAlways:
		return AuthorizationAlwaysAllowed
	default:
		return AuthorizationNotAllowed
	}
}
