// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

import (
	"fmt"
	"strconv"

	"github.com/wneessen/waybar-location/internal/location"
	"github.com/wneessen/waybar-location/internal/vartype"
)

// Field identifies one of the displayed position fields.
type Field int

const (
	FieldLatitude Field = iota
	FieldLongitude
	FieldSpeed
	FieldCourse
	FieldAccuracy
	FieldTimestamp
)

// Fields lists all fields in display order.
var Fields = []Field{FieldLatitude, FieldLongitude, FieldSpeed, FieldCourse, FieldAccuracy, FieldTimestamp}

func (f Field) String() string {
	switch f {
	case FieldLatitude:
		return "latitude"
	case FieldLongitude:
		return "longitude"
	case FieldSpeed:
		return "speed"
	case FieldCourse:
		return "course"
	case FieldAccuracy:
		return "accuracy"
	case FieldTimestamp:
		return "timestamp"
	default:
		return "unknown"
	}
}

// DisplayState holds the formatted fields and the status message. A field without a value is
// unset, which is distinct from a field set to the empty string.
type DisplayState struct {
	Latitude  vartype.VarString
	Longitude vartype.VarString
	Speed     vartype.VarString
	Course    vartype.VarString
	Accuracy  vartype.VarString
	Timestamp vartype.VarString
	Status    string
}

// Field returns the value of the given field.
func (d DisplayState) Field(field Field) vartype.VarString {
	switch field {
	case FieldLatitude:
		return d.Latitude
	case FieldLongitude:
		return d.Longitude
	case FieldSpeed:
		return d.Speed
	case FieldCourse:
		return d.Course
	case FieldAccuracy:
		return d.Accuracy
	case FieldTimestamp:
		return d.Timestamp
	default:
		return vartype.VarString{}
	}
}

// merge overwrites the fields of d that are set in update. The status is left alone.
func (d *DisplayState) merge(update DisplayState) {
	for _, field := range Fields {
		value := update.Field(field)
		if !value.IsSet() {
			continue
		}
		switch field {
		case FieldLatitude:
			d.Latitude = value
		case FieldLongitude:
			d.Longitude = value
		case FieldSpeed:
			d.Speed = value
		case FieldCourse:
			d.Course = value
		case FieldAccuracy:
			d.Accuracy = value
		case FieldTimestamp:
			d.Timestamp = value
		}
	}
}

// Format renders a sample into display strings. Speed is only set while moving and course only
// when the receiver reported one.
func Format(sample location.Sample) DisplayState {
	state := DisplayState{
		Latitude:  vartype.NewVariable(fmt.Sprintf("%.6f", sample.Latitude)),
		Longitude: vartype.NewVariable(fmt.Sprintf("%.6f", sample.Longitude)),
		Accuracy:  vartype.NewVariable(fmt.Sprintf("%d mts.", sample.HorizontalAccuracy)),
		Timestamp: vartype.NewVariable(formatTimestamp(sample)),
	}
	if sample.Speed > 0 {
		state.Speed.Set(fmt.Sprintf("%.1f mts/sec", sample.Speed))
	}
	if sample.Course >= 0 {
		state.Course.Set(fmt.Sprintf("%.0f°", sample.Course))
	}
	return state
}

// formatTimestamp returns the whole Unix seconds of the sample. time.Time.Unix rounds towards
// negative infinity.
func formatTimestamp(sample location.Sample) string {
	return strconv.FormatInt(sample.Timestamp.Unix(), 10)
}
