// Package prompt renders the generation prompt for a cycle.
package prompt

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Placeholder is replaced by the pretty-printed weather payload.
const Placeholder = "{weather_json}"

const indent = "  "

// Render substitutes the weather payload into template. The payload is
// indented when it parses as JSON; otherwise it is used verbatim and
// formatted is false.
func Render(template, payload string) (rendered string, formatted bool) {
	body := payload
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(payload), "", indent); err == nil {
		body = buf.String()
		formatted = true
	}
	return strings.ReplaceAll(template, Placeholder, body), formatted
}

// HasPlaceholder reports whether template references the weather payload.
func HasPlaceholder(template string) bool {
	return strings.Contains(template, Placeholder)
}
