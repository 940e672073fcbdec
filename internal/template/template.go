// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package template

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/vorlif/humanize"
	"github.com/vorlif/humanize/locale/de"
	"github.com/vorlif/spreak"
	"github.com/vorlif/spreak/localize"

	"github.com/wneessen/waybar-location/internal/config"
)

// Labels are the tooltip labels that are aligned by the label function.
var Labels = []localize.MsgID{
	"Latitude",
	"Longitude",
	"Speed",
	"Course",
	"Accuracy",
	"Timestamp",
	"Last fix",
}

// DisplayData is the data the templates are rendered with. Fields without a value carry the
// placeholder.
type DisplayData struct {
	Latitude  string
	Longitude string
	Speed     string
	Course    string
	Accuracy  string
	Timestamp string

	Status  string
	Alert   bool
	LastFix time.Time
}

type Templates struct {
	Text       *template.Template
	Tooltip    *template.Template
	localizer  *spreak.Localizer
	humanizer  *humanize.Humanizer
	labelWidth int
}

func New(conf *config.Config, loc *spreak.Localizer) (*Templates, error) {
	tpls := &Templates{
		localizer: loc,
		humanizer: newHumanizer(loc),
	}
	for _, label := range Labels {
		tpls.labelWidth = max(tpls.labelWidth, runewidth.StringWidth(loc.Get(label)))
	}

	tpl, err := template.New("text").Funcs(tpls.templateFuncMap()).Parse(conf.Templates.Text)
	if err != nil {
		return tpls, fmt.Errorf("failed to parse text template: %w", err)
	}
	tpls.Text = tpl

	tpl, err = template.New("tooltip").Funcs(tpls.templateFuncMap()).Parse(conf.Templates.Tooltip)
	if err != nil {
		return tpls, fmt.Errorf("failed to parse tooltip template: %w", err)
	}
	tpls.Tooltip = tpl

	return tpls, nil
}

// newHumanizer creates a humanizer for the localizer's language. English is built in, the other
// locales match the shipped translations.
func newHumanizer(loc *spreak.Localizer) *humanize.Humanizer {
	collection := humanize.MustNew(humanize.WithLocale(de.New()))
	return collection.CreateHumanizer(loc.Language())
}

func (t *Templates) templateFuncMap() template.FuncMap {
	return template.FuncMap{
		"timeFormat":    timeFormat,
		"naturalTime":   t.naturalTime,
		"localizedTime": t.localizedTime,
		"loc":           t.loc,
		"label":         t.label,
		"lc":            strings.ToLower,
		"uc":            strings.ToUpper,
	}
}

func (t *Templates) loc(val string) string {
	return t.localizer.Get(val)
}

// label localizes the value and pads it so that all labels end in the same column.
func (t *Templates) label(val string) string {
	text := t.localizer.Get(val) + ":"
	return runewidth.FillRight(text, t.labelWidth+2)
}

func (t *Templates) naturalTime(val time.Time) string {
	return t.humanizer.NaturalTime(val)
}

func (t *Templates) localizedTime(val time.Time) string {
	return t.humanizer.FormatTime(val, humanize.TimeFormat)
}

func timeFormat(val time.Time, fmt string) string {
	return val.Format(fmt)
}
