// Package media executes the external download and conversion tools and
// turns their text output into structured progress.
package media

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
)

var (
	rePct = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)%`)
	// yt-dlp prints the final output location in one of these forms.
	reDownloadDest = regexp.MustCompile(`^\[download\] Destination: (.+)$`)
	reMergeDest    = regexp.MustCompile(`Merging formats into "(.+)"`)
	reExtractDest  = regexp.MustCompile(`^\[ExtractAudio\] Destination: (.+)$`)
)

// ParsedLine is the structured content of one line of tool output. Either
// field may be unset; a line that matches neither pattern is informational
// noise carried only as Message.
type ParsedLine struct {
	Percent     *float64
	Destination string
	Message     string
}

// ParseLine extracts a percentage and/or a resolved destination path from one
// raw line of subprocess output. It never fails; unmatched lines come back
// with both extractions empty.
func ParseLine(line string) ParsedLine {
	out := ParsedLine{Message: strings.TrimSpace(line)}
	if out.Message == "" {
		return out
	}

	if m := reDownloadDest.FindStringSubmatch(out.Message); len(m) == 2 {
		out.Destination = strings.TrimSpace(m[1])
	} else if m := reMergeDest.FindStringSubmatch(out.Message); len(m) == 2 {
		out.Destination = strings.TrimSpace(m[1])
	} else if m := reExtractDest.FindStringSubmatch(out.Message); len(m) == 2 {
		out.Destination = strings.TrimSpace(m[1])
	}

	if m := rePct.FindStringSubmatch(out.Message); len(m) == 2 {
		if pct, err := strconv.ParseFloat(m[1], 64); err == nil && pct >= 0 && pct <= 100 {
			out.Percent = &pct
		}
	}

	return out
}

// Tracker merges parsed lines from both output streams of one work item into
// a monotonic percent and a last known destination path. The external tool
// may reprint or jitter percentages; Observe suppresses any value lower than
// the highest already seen.
type Tracker struct {
	mu          sync.Mutex
	percent     float64
	seen        bool
	destination string
}

// Observation is the tracker's verdict on one line.
type Observation struct {
	// Percent is set when the line advanced the monotonic percent.
	Percent *float64
	// Destination is set when the line resolved a new output path.
	Destination string
	Message     string
}

// Observe parses a line and folds it into the tracker state.
func (t *Tracker) Observe(line string) Observation {
	parsed := ParseLine(line)

	t.mu.Lock()
	defer t.mu.Unlock()

	obs := Observation{Message: parsed.Message}

	if parsed.Destination != "" && parsed.Destination != t.destination {
		t.destination = parsed.Destination
		obs.Destination = parsed.Destination
	}

	if parsed.Percent != nil {
		if !t.seen || *parsed.Percent > t.percent {
			t.percent = *parsed.Percent
			t.seen = true
			pct := t.percent
			obs.Percent = &pct
		}
	}

	return obs
}

// Percent returns the highest percentage observed so far.
func (t *Tracker) Percent() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.percent
}

// Destination returns the last resolved output path, or empty if none was
// ever parsed.
func (t *Tracker) Destination() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.destination
}
