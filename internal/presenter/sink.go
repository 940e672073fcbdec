// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

// Sink displays the position fields and the status message. Sinks are only called from the
// model's run loop.
type Sink interface {
	SetField(field Field, value string)
	// SetStatus raises the sink's alert for a non-empty status and clears it for an empty one.
	SetStatus(status string)
}

// MultiSink fans out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) SetField(field Field, value string) {
	for _, sink := range m {
		sink.SetField(field, value)
	}
}

func (m MultiSink) SetStatus(status string) {
	for _, sink := range m {
		sink.SetStatus(status)
	}
}
