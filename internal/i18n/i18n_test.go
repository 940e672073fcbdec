// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package i18n

import "testing"

func TestNew(t *testing.T) {
	t.Run("new i18n provider with empty locale string succeeds", func(t *testing.T) {
		provider, err := New("")
		if err != nil {
			t.Fatalf("failed to create i18n provider: %s", err)
		}
		if provider == nil {
			t.Fatal("expected i18n provider to be non-nil")
		}
	})
	t.Run("german translation is used", func(t *testing.T) {
		provider, err := New("de")
		if err != nil {
			t.Fatalf("failed to create i18n provider: %s", err)
		}
		want := "Oh nein!"
		if got := provider.Get("Oh no!"); got != want {
			t.Errorf("expected translation %q, got %q", want, got)
		}
	})
	t.Run("unsupported language falls back to english", func(t *testing.T) {
		provider, err := New("ja")
		if err != nil {
			t.Fatalf("failed to create i18n provider: %s", err)
		}
		want := "Oh no!"
		if got := provider.Get("Oh no!"); got != want {
			t.Errorf("expected source text %q, got %q", want, got)
		}
	})
}
