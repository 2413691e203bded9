// Package classify assigns a coarse document-type label to extracted text.
package classify

import "strings"

// Document type labels.
const (
	Academic = "academic"
	Slides   = "slides"
	News     = "news"
	Other    = "other"
)

const (
	slidesMaxLength     = 500
	slidesMinLineBreaks = 5
)

var academicMarkers = []string{"abstract", "introduction", "references"}

// Classify returns the document type for text. Rules are checked in order and the
// first match wins: academic markers, then short text with many line breaks,
// then HTML or the word "news". Everything else is "other".
func Classify(text string) string {
	lowered := strings.ToLower(text)

	for _, m := range academicMarkers {
		if strings.Contains(lowered, m) {
			return Academic
		}
	}
	if len(text) < slidesMaxLength && strings.Count(text, "\n") > slidesMinLineBreaks {
		return Slides
	}
	if strings.Contains(lowered, "<!doctype html") || strings.Contains(lowered, "news") {
		return News
	}
	return Other
}
