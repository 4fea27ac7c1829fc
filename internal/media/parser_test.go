package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLinePercent(t *testing.T) {
	tests := []struct {
		line    string
		percent float64
	}{
		{"[download]  42.5% of 120.00MiB at 5.00MiB/s ETA 00:14", 42.5},
		{"[download] 100% of 120.00MiB in 00:30", 100},
		{"[download]   0.0% of ~4.00MiB at Unknown speed", 0},
	}
	for _, tc := range tests {
		parsed := ParseLine(tc.line)
		require.NotNil(t, parsed.Percent, tc.line)
		assert.InDelta(t, tc.percent, *parsed.Percent, 0.001)
	}
}

func TestParseLineNoMatch(t *testing.T) {
	for _, line := range []string{
		"",
		"   ",
		"[youtube] dQw4w9WgXcQ: Downloading webpage",
		"WARNING: unable to extract channel id",
		"[download] 250% bogus value",
	} {
		parsed := ParseLine(line)
		assert.Nil(t, parsed.Percent, line)
		assert.Empty(t, parsed.Destination, line)
	}
}

func TestParseLineDestinations(t *testing.T) {
	tests := []struct {
		line string
		dest string
	}{
		{"[download] Destination: My_Video.f137.mp4", "My_Video.f137.mp4"},
		{`[Merger] Merging formats into "My_Video.mp4"`, "My_Video.mp4"},
		{"[ExtractAudio] Destination: My_Video.mp3", "My_Video.mp3"},
	}
	for _, tc := range tests {
		parsed := ParseLine(tc.line)
		assert.Equal(t, tc.dest, parsed.Destination, tc.line)
	}
}

func TestTrackerMonotonicPercent(t *testing.T) {
	tracker := &Tracker{}

	var delivered []float64
	feed := func(line string) {
		if obs := tracker.Observe(line); obs.Percent != nil {
			delivered = append(delivered, *obs.Percent)
		}
	}

	feed("[download]  10.0% of 10MiB")
	feed("[download]   5.0% of 10MiB")
	feed("[download]  42.0% of 10MiB")
	feed("[download]  42.0% of 10MiB")
	feed("[download] 100% of 10MiB")

	assert.Equal(t, []float64{10, 42, 100}, delivered)
	assert.InDelta(t, 100, tracker.Percent(), 0.001)
}

func TestTrackerKeepsLastDestination(t *testing.T) {
	tracker := &Tracker{}

	obs := tracker.Observe("[download] Destination: clip.f137.mp4")
	assert.Equal(t, "clip.f137.mp4", obs.Destination)

	obs = tracker.Observe(`[Merger] Merging formats into "clip.mp4"`)
	assert.Equal(t, "clip.mp4", obs.Destination)

	// Repeat of the same path is not reported again.
	obs = tracker.Observe(`[Merger] Merging formats into "clip.mp4"`)
	assert.Empty(t, obs.Destination)

	assert.Equal(t, "clip.mp4", tracker.Destination())
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "My Playlist", SanitizeName("  My Playlist  "))
	assert.Equal(t, "a_b_c", SanitizeName("a/b\\c"))
	assert.Equal(t, "untitled", SanitizeName("///"))
	assert.Equal(t, "hidden", SanitizeName("..hidden"))
	assert.LessOrEqual(t, len(SanitizeName(string(make([]byte, 500)))), 120)
}
