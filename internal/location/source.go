// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package location

// AccuracyMode selects how much precision (and power) the source should spend.
type AccuracyMode int

const (
	// AccuracyBest is the standard mode.
	AccuracyBest AccuracyMode = iota
	// AccuracyBestForNavigation is the highest precision mode, only used on external power.
	AccuracyBestForNavigation
)

func (m AccuracyMode) String() string {
	if m == AccuracyBestForNavigation {
		return "best-for-navigation"
	}
	return "best"
}

// Handler receives everything a Source emits. Calls may arrive on any goroutine, but a source
// delivers the calls of one kind in the order it produced them.
type Handler interface {
	// OnSamples delivers a chronological batch of samples, the last one being the most recent.
	OnSamples(samples []Sample)
	OnError(err error)
	OnAuthorizationChange(status PlatformStatus)
}

// Source is a raw location source. None of the methods block on I/O: results and failures are
// reported asynchronously to the registered Handler. Start and Stop methods are idempotent.
type Source interface {
	Name() string
	SetHandler(h Handler)
	SetAccuracyMode(mode AccuracyMode)
	// RequestFreshFix asks for exactly one uncached fix.
	RequestFreshFix()
	StartAuthorizationUpgrade()
	StartContinuousUpdates()
	StopContinuousUpdates()
	StartSignificantChangeMonitoring()
	StopSignificantChangeMonitoring()
}
