package provider

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// cleanText strips markup from provider payloads and collapses whitespace.
func cleanText(raw string) string {
	text := html.UnescapeString(strict.Sanitize(raw))
	return strings.Join(strings.Fields(text), " ")
}
