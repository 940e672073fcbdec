// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package gpspoll implements a minimal gpsd client that connects, waits for a single TPV report
// and disconnects again. It is used wherever exactly one uncached fix is needed.
package gpspoll

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/wneessen/waybar-location/internal/location"
)

const (
	fallbackAccuracy3DFix = 10  // ~10 m typical consumer GPS in open sky
	fallbackAccuracy2DFix = 25  // worse than 3D, but still accurate enough
	fallbackAccuracyNoFix = 1e6 // effectively unusable
	watchTimeout          = time.Second * 2
)

var ErrNoTPV = errors.New("no TPV response received from GPSd")

// Client is a minimal GPSd client
type Client struct {
	Addr string
}

// Fix represents a single GPS fix from gpsd. Speed and Track are negative when gpsd did not
// report them.
type Fix struct {
	Lat   float64
	Lon   float64
	Alt   float64
	Acc   float64
	Speed float64
	Track float64
	Time  time.Time
	Mode  int
}

// tpvResponse matches the subset of gpsd's TPV report we care about. Speed and track are
// omitted by gpsd when unknown, hence the pointers.
type tpvResponse struct {
	Class string    `json:"class"`
	Time  time.Time `json:"time"`
	Lat   float64   `json:"lat"`
	Lon   float64   `json:"lon"`
	Alt   float64   `json:"alt"`
	Mode  int       `json:"mode"`
	Epx   float64   `json:"epx"`
	Epy   float64   `json:"epy"`
	Eph   float64   `json:"eph"`
	Speed *float64  `json:"speed"`
	Track *float64  `json:"track"`
}

// New constructs a new Client for the given host and port.
func New(host, port string) *Client {
	return &Client{
		Addr: net.JoinHostPort(host, port),
	}
}

// Probe checks whether gpsd accepts connections.
func (c *Client) Probe(ctx context.Context) error {
	dialer := &net.Dialer{Timeout: watchTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return fmt.Errorf("gpspoll: dial gpsd: %w", err)
	}
	return conn.Close()
}

// Poll connects to gpsd, enables a WATCH, and returns the first TPV report. The connection is
// closed before returning.
func (c *Client) Poll(ctx context.Context) (Fix, error) {
	var zero Fix

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return zero, fmt.Errorf("gpspoll: dial gpsd: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	// Respect context deadline if present, otherwise we add a safety net so we don't hang
	// forever if ctx has no deadline.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(watchTimeout))
	}

	if _, err = fmt.Fprint(conn, `?WATCH={"enable":true,"json":true}`+"\n"); err != nil {
		return zero, fmt.Errorf("gpspoll: write WATCH: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		var resp tpvResponse
		if err = json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			continue
		}
		if resp.Class != "TPV" {
			continue
		}
		return fixFromTPV(resp), nil
	}

	if err = scanner.Err(); err != nil {
		return zero, fmt.Errorf("failed to scan GPSd response: %w", err)
	}
	return zero, ErrNoTPV
}

// Has2DFix reports whether the fix has at least a 2D fix.
func (f Fix) Has2DFix() bool {
	return f.Mode >= 2
}

// Sample converts the fix into a location sample.
func (f Fix) Sample() location.Sample {
	return location.Sample{
		Latitude:           f.Lat,
		Longitude:          f.Lon,
		Speed:              f.Speed,
		Course:             f.Track,
		HorizontalAccuracy: int(f.Acc),
		Timestamp:          f.Time,
	}
}

func fixFromTPV(tpv tpvResponse) Fix {
	fix := Fix{
		Lat:   tpv.Lat,
		Lon:   tpv.Lon,
		Alt:   tpv.Alt,
		Acc:   HorizontalAccuracy(tpv.Eph, tpv.Epx, tpv.Epy, tpv.Mode),
		Speed: location.NotAvailable,
		Track: location.NotAvailable,
		Time:  tpv.Time,
		Mode:  tpv.Mode,
	}
	if tpv.Speed != nil {
		fix.Speed = *tpv.Speed
	}
	if tpv.Track != nil {
		fix.Track = *tpv.Track
	}
	return fix
}

// HorizontalAccuracy derives the horizontal accuracy in meters from gpsd's error estimates,
// falling back to typical values for the fix mode.
func HorizontalAccuracy(eph, epx, epy float64, mode int) float64 {
	switch {
	case eph > 0:
		return eph
	case epx > 0 && epy > 0:
		// sqrt(epx² + epy²)
		return math.Hypot(epx, epy)
	}
	switch mode {
	case 3:
		return fallbackAccuracy3DFix
	case 2:
		return fallbackAccuracy2DFix
	default:
		return fallbackAccuracyNoFix
	}
}
