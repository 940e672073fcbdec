// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package logger

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	t.Run("records at or above the level are written to stderr", func(t *testing.T) {
		reader, writer, err := os.Pipe()
		if err != nil {
			t.Fatalf("failed to create pipe: %s", err)
		}
		stderr := os.Stderr
		os.Stderr = writer
		t.Cleanup(func() { os.Stderr = stderr })

		l := New(slog.LevelWarn)
		l.Info("fix acquired")
		l.Warn("receiver lost fix", slog.String("source", "gpsd"))
		if err = writer.Close(); err != nil {
			t.Fatalf("failed to close pipe writer: %s", err)
		}
		out, err := io.ReadAll(reader)
		if err != nil {
			t.Fatalf("failed to read stderr: %s", err)
		}

		if strings.Contains(string(out), "fix acquired") {
			t.Errorf("did not expect info record below warn level, got: %q", out)
		}
		for _, want := range []string{"level=WARN", `msg="receiver lost fix"`, "source=gpsd"} {
			if !strings.Contains(string(out), want) {
				t.Errorf("expected stderr to contain %q, got: %q", want, out)
			}
		}
	})
}

func TestNewLogger(t *testing.T) {
	levels := []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError}
	for _, level := range levels {
		t.Run(level.String(), func(t *testing.T) {
			buf := bytes.NewBuffer(nil)
			l := NewLogger(level, buf)
			l.Debug("debug")
			l.Info("info")
			l.Warn("warn")
			l.Error("error")

			for _, record := range levels {
				logged := bytes.Contains(buf.Bytes(), []byte("level="+record.String()))
				if record >= level && !logged {
					t.Errorf("expected %s record to be logged", record)
				}
				if record < level && logged {
					t.Errorf("did not expect %s record to be logged", record)
				}
			}
		})
	}
}

func TestErr(t *testing.T) {
	t.Run("error attributes should be logged", func(t *testing.T) {
		buf := bytes.NewBuffer(nil)
		l := NewLogger(slog.LevelDebug, buf)
		want := "intentionally failing"
		l.Error("location source reported an error", Err(errors.New(want)))

		if !bytes.Contains(buf.Bytes(), []byte(`error="`+want+`"`)) {
			t.Errorf("expected error message to contain %q, got: %q", want, buf.String())
		}
	})
	t.Run("attribute key is error", func(t *testing.T) {
		attr := Err(errors.New("boom"))
		if attr.Key != "error" {
			t.Errorf("expected attribute key %q, got %q", "error", attr.Key)
		}
	})
}
