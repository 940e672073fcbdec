// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package location holds the position sample model, the sample validator, the authorization
// mapping and the contract between the tracker and a raw location source.
package location

import (
	"math"
	"time"
)

const (
	EarthRadius = 6371000.0 // meters

	// NotAvailable is used for speed and course when the receiver did not report them.
	NotAvailable = -1.0
)

// Sample is a single position fix as delivered by a location source. The zero value represents
// "no fix yet".
type Sample struct {
	Latitude  float64
	Longitude float64
	// Speed in meters per second, negative if unknown.
	Speed float64
	// Course over ground in degrees, negative if unknown.
	Course float64
	// HorizontalAccuracy in meters.
	HorizontalAccuracy int
	Timestamp          time.Time
}

// IsZero reports whether the sample is the "no fix yet" value.
func (s Sample) IsZero() bool {
	return s == Sample{}
}

// DistanceTo returns the great-circle distance in meters between two samples. We are using the
// Haversine formula on a spherical Earth.
func (s Sample) DistanceTo(other Sample) float64 {
	dLat := (s.Latitude - other.Latitude) * math.Pi / 180
	dLon := (s.Longitude - other.Longitude) * math.Pi / 180
	lat1 := s.Latitude * math.Pi / 180
	lat2 := other.Latitude * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadius * math.Asin(math.Sqrt(h))
}

// Valid checks if the sample coordinates are within the WGS84 bounds.
func (s Sample) Valid() bool {
	return s.Latitude >= -90 && s.Latitude <= 90 && s.Longitude >= -180 && s.Longitude <= 180
}

// ChangeDetector remembers the last reported sample and decides whether a new sample moved far
// enough to be reported in significant-change mode.
type ChangeDetector struct {
	Threshold float64 // meters

	last     Sample
	haveLast bool
}

// HasChanged reports whether the sample is the first one or lies further than the threshold
// away from the last reported sample.
func (d *ChangeDetector) HasChanged(s Sample) bool {
	if !d.haveLast {
		return true
	}
	return s.DistanceTo(d.last) > d.Threshold
}

// Update stores the given sample as the last reported one.
func (d *ChangeDetector) Update(s Sample) {
	d.last = s
	d.haveLast = true
}

// Reset forgets the last reported sample.
func (d *ChangeDetector) Reset() {
	d.last = Sample{}
	d.haveLast = false
}
