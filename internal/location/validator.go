// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package location

import (
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	// AccuracyThreshold is the horizontal accuracy in meters below which a sample is always
	// accepted.
	AccuracyThreshold = 70
	// MaxSampleAge is the age below which an imprecise sample is still accepted.
	MaxSampleAge = 5 * time.Second
)

// Outcome is the result of validating a sample.
type Outcome int

const (
	OutcomeAccept Outcome = iota
	OutcomeRejectStale
)

func (o Outcome) String() string {
	if o == OutcomeAccept {
		return "accepted"
	}
	return "rejected_stale"
}

// Decision is the validation outcome plus the instruction to request a fresh, uncached fix
// from the source.
type Decision struct {
	Outcome         Outcome
	RequestFreshFix bool
}

// Accepted reports whether the sample should be published.
func (d Decision) Accepted() bool {
	return d.Outcome == OutcomeAccept
}

// Validator decides whether a raw sample is good enough to be published.
type Validator struct {
	clock clockwork.Clock
}

// NewValidator returns a Validator measuring sample age against the given clock. A nil clock
// uses the real time.
func NewValidator(clock clockwork.Clock) *Validator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Validator{clock: clock}
}

// Validate accepts every sample more accurate than AccuracyThreshold regardless of its age.
// Imprecise samples younger than MaxSampleAge are accepted too, but usually come from a cache
// of the receiver, so a fresh fix is requested. Everything else is stale.
func (v *Validator) Validate(s Sample) Decision {
	if s.HorizontalAccuracy < AccuracyThreshold {
		return Decision{Outcome: OutcomeAccept}
	}

	age := v.clock.Since(s.Timestamp)
	if age < 0 {
		age = -age
	}
	if age < MaxSampleAge {
		return Decision{Outcome: OutcomeAccept, RequestFreshFix: true}
	}
	return Decision{Outcome: OutcomeRejectStale}
}
