package fallback

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/SkippTopp/reddit-scripts/internal/crawler"
)

const defaultBodyThreshold = 2048

// Detector decides whether a plain fetch returned a script shell that needs
// rendering before the forum selectors can match anything.
type Detector struct {
	BodyLengthThreshold int
}

// NewDetector creates a Detector. A zero threshold uses 2 KiB.
func NewDetector(threshold int) *Detector {
	if threshold <= 0 {
		threshold = defaultBodyThreshold
	}
	return &Detector{BodyLengthThreshold: threshold}
}

// Markup the parsers key on. A page carrying either is already usable.
var serverRenderedMarkers = [][]byte{
	[]byte(`id="siteTable"`),
	[]byte(`class="commentarea"`),
}

var spaMarkers = [][]byte{
	[]byte("<shreddit-app"),
	[]byte("__next"),
	[]byte(`id="root"`),
	[]byte(`id="app"`),
	[]byte("data-reactroot"),
}

// ShouldPromote reports whether resp should be fetched again headless.
func (d *Detector) ShouldPromote(resp crawler.FetchResponse) bool {
	if resp.StatusCode != http.StatusOK {
		return false
	}
	body := resp.Body
	if len(body) == 0 {
		return true
	}
	for _, marker := range serverRenderedMarkers {
		if bytes.Contains(body, marker) {
			return false
		}
	}
	if len(body) < d.BodyLengthThreshold && scriptDensityHigh(body) {
		return true
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return false
}

// scriptDensityHigh reports whether script elements cover a quarter or more
// of the document.
func scriptDensityHigh(body []byte) bool {
	lower := strings.ToLower(string(body))
	total := len(lower)
	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	covered := 0
	for pos := 0; pos < total; {
		rel := strings.Index(lower[pos:], openTag)
		if rel == -1 {
			break
		}
		start := pos + rel
		gt := strings.IndexByte(lower[start:], '>')
		if gt == -1 {
			covered += total - start
			break
		}
		contentStart := start + gt + 1
		end := strings.Index(lower[contentStart:], closeTag)
		next := total
		if end != -1 {
			next = contentStart + end + len(closeTag)
		}
		covered += next - start
		pos = next
	}
	return covered > 0 && covered*100/total >= 25
}
