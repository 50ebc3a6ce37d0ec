// Package render covers the two text-processing features the honeypot
// applies to served content: strftime-style date/time directives plus
// $section.setting configuration placeholders, and theme template rendering.
package render

import (
	"regexp"
	"strings"
	"time"

	"github.com/cmllr/CameraObscura/internal/config"
)

// placeholderPattern matches configuration tokens such as $honeypot.sensor.
var placeholderPattern = regexp.MustCompile(`\$[a-z.]+`)

// strftimeLayouts maps the strftime directives found in theme files to Go
// time layouts. Unknown directives are left untouched so binary-ish content
// survives a pass unharmed.
var strftimeLayouts = map[byte]string{
	'Y': "2006",
	'y': "06",
	'm': "01",
	'd': "02",
	'H': "15",
	'I': "03",
	'M': "04",
	'S': "05",
	'p': "PM",
	'a': "Mon",
	'A': "Monday",
	'b': "Jan",
	'B': "January",
	'z': "-0700",
	'Z': "MST",
}

// Strftime expands %-directives in text using now. "%%" yields a literal
// percent sign.
func Strftime(text string, now time.Time) string {
	var builder strings.Builder
	builder.Grow(len(text))
	for i := 0; i < len(text); i++ {
		if text[i] != '%' || i+1 >= len(text) {
			builder.WriteByte(text[i])
			continue
		}
		directive := text[i+1]
		if directive == '%' {
			builder.WriteByte('%')
			i++
			continue
		}
		if layout, ok := strftimeLayouts[directive]; ok {
			builder.WriteString(now.Format(layout))
			i++
			continue
		}
		builder.WriteByte(text[i])
	}
	return builder.String()
}

// Placeholders replaces the two placeholder families in text: date/time
// directives first, then $section.setting tokens resolved against the
// configuration store. Tokens without a "." separator are left untouched,
// as are tokens whose configuration value is absent.
func Placeholders(text string, store *config.Store, now time.Time) string {
	if text == "" {
		return ""
	}
	text = Strftime(text, now)
	for _, token := range placeholderPattern.FindAllString(text, -1) {
		name := strings.TrimPrefix(token, "$")
		if !strings.Contains(name, ".") {
			continue
		}
		parts := strings.Split(name, ".")
		if !store.Has(parts[0], parts[1]) {
			continue
		}
		text = strings.ReplaceAll(text, token, store.String(parts[0], parts[1]))
	}
	return text
}
