// Package format renders metric values for display according to their
// policy: decimal places, digit grouping via golang.org/x/text locale
// printers, and unit suffixes.
package format

import (
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/mboyd/reckon/internal/metric"
)

// Formatter renders values for human output. The zero value is usable.
type Formatter struct {
	// AbsentText is printed for absent values. Defaults to "—".
	AbsentText string
}

// Format renders v per its policy.
func (f *Formatter) Format(v metric.Value) string {
	if v.IsAbsent() {
		if f.AbsentText != "" {
			return f.AbsentText
		}
		return "—"
	}
	if v.IsSeries() {
		parts := make([]string, len(v.Items()))
		for i, item := range v.Items() {
			parts[i] = f.Format(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}

	pol := v.Policy()
	text := f.render(v, pol)
	if unit := v.Unit(); unit != "" {
		return text + " " + unit
	}
	return text
}

func (f *Formatter) render(v metric.Value, pol metric.Policy) string {
	rounded := v.Round(pol)
	if !pol.Grouping {
		return rounded.Decimal().Text('f')
	}

	// Grouped output goes through the locale printer. x/text formats
	// float64; values that overflow float64 fall back to plain text.
	fl, ok := rounded.Float64()
	if !ok || math.IsInf(fl, 0) {
		return rounded.Decimal().Text('f')
	}

	tag, err := language.Parse(pol.Locale)
	if err != nil {
		tag = language.English
	}
	p := message.NewPrinter(tag)
	places := int(pol.Places)
	if places < 0 {
		places = 0
	}
	return p.Sprint(number.Decimal(fl,
		number.MinFractionDigits(places),
		number.MaxFractionDigits(places)))
}
