package media

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/clipforge/clipforge/internal/errors"
	"github.com/clipforge/clipforge/internal/domain/model"
)

// fakeRunner replays scripted output lines instead of spawning processes and
// records every invocation.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []Command
	active  atomic.Int32
	maxSeen atomic.Int32
	script  func(call int, cmd Command) error
}

func (f *fakeRunner) Run(_ context.Context, cmd Command) error {
	cur := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		prev := f.maxSeen.Load()
		if cur <= prev || f.maxSeen.CompareAndSwap(prev, cur) {
			break
		}
	}

	f.mu.Lock()
	call := len(f.calls)
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()

	if f.script != nil {
		return f.script(call, cmd)
	}
	return nil
}

func emit(cmd Command, lines ...string) {
	for _, line := range lines {
		if cmd.OnLine != nil {
			cmd.OnLine(StreamStdout, line)
		}
	}
}

func downloadScript(dest string) func(int, Command) error {
	return func(_ int, cmd Command) error {
		if cmd.Bin == "ffmpeg" {
			return nil
		}
		emit(cmd,
			"[download]  25.0% of 10MiB",
			"[download] Destination: "+dest,
			"[download]  90.0% of 10MiB",
		)
		return nil
	}
}

func TestVideoOperationReportsSyntheticCompletion(t *testing.T) {
	runner := &fakeRunner{script: downloadScript("clip.mp4")}
	op := NewVideoOperation(NewDownloader(runner, ""), NewConverter(runner, ""))

	var reports []model.Progress
	files, err := op.Run(context.Background(), model.VideoPayload{
		URL:    "https://example.com/watch?v=abc",
		Format: model.FormatMP4,
	}, t.TempDir(), func(p model.Progress) {
		reports = append(reports, p)
	})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Contains(t, files[0], "clip.mp4")

	require.NotEmpty(t, reports)
	last := reports[len(reports)-1]
	assert.InDelta(t, 100, last.Percent, 0.001, "final report must be the synthetic completion")
	for i := 1; i < len(reports); i++ {
		assert.GreaterOrEqual(t, reports[i].Percent, reports[i-1].Percent)
	}
}

func TestVideoOperationConvertsToMP3(t *testing.T) {
	runner := &fakeRunner{script: downloadScript("clip.webm")}
	op := NewVideoOperation(NewDownloader(runner, ""), NewConverter(runner, ""))

	files, err := op.Run(context.Background(), model.VideoPayload{
		URL:    "https://example.com/watch?v=abc",
		Format: model.FormatMP3,
	}, t.TempDir(), nil)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Contains(t, files[0], "clip.mp3")
	assert.NotContains(t, files[0], ".webm")

	runner.mu.Lock()
	defer runner.mu.Unlock()
	require.Len(t, runner.calls, 2)
	assert.Equal(t, "ffmpeg", runner.calls[1].Bin)
	assert.Contains(t, runner.calls[1].Args, "-vn")
	assert.Contains(t, runner.calls[1].Args, "libmp3lame")
}

func TestDownloaderUnresolvedOutputPath(t *testing.T) {
	runner := &fakeRunner{script: func(_ int, cmd Command) error {
		emit(cmd, "[download] 100% of 10MiB")
		return nil
	}}
	d := NewDownloader(runner, "")

	_, err := d.Download(context.Background(), DownloadRequest{
		URL:       "https://example.com/watch?v=abc",
		OutputDir: t.TempDir(),
	}, nil)
	assert.ErrorIs(t, err, ErrUnresolvedOutputPath)
}

type staticLister struct {
	listing *model.PlaylistListing
	err     error
}

func (s *staticLister) List(context.Context, string) (*model.PlaylistListing, error) {
	return s.listing, s.err
}

func threeItemListing() *model.PlaylistListing {
	return &model.PlaylistListing{
		Title: "Mix",
		Items: []model.PlaylistItem{
			{ID: "a", Title: "First", URL: "https://example.com/watch?v=a"},
			{ID: "b", Title: "Second", URL: "https://example.com/watch?v=b"},
			{ID: "c", Title: "Third", URL: "https://example.com/watch?v=c"},
		},
	}
}

func TestPlaylistOperationSelectionFiltering(t *testing.T) {
	runner := &fakeRunner{script: downloadScript("third.mp4")}
	video := NewVideoOperation(NewDownloader(runner, ""), NewConverter(runner, ""))
	op := NewPlaylistOperation(&staticLister{listing: threeItemListing()}, video)

	files, err := op.Run(context.Background(), model.PlaylistPayload{
		URL: "https://example.com/playlist?list=x",
		Options: model.PlaylistOptions{
			Format:           model.FormatMP4,
			SelectedVideoIDs: []string{"c"},
		},
	}, t.TempDir(), nil)
	require.NoError(t, err)
	require.Len(t, files, 1)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	require.Len(t, runner.calls, 1, "exactly one subprocess for one selected item")
	assert.Contains(t, runner.calls[0].Args, "https://example.com/watch?v=c")
}

func TestPlaylistOperationSequentialAndIndexed(t *testing.T) {
	runner := &fakeRunner{script: downloadScript("item.mp4")}
	video := NewVideoOperation(NewDownloader(runner, ""), NewConverter(runner, ""))
	op := NewPlaylistOperation(&staticLister{listing: threeItemListing()}, video)

	var reports []model.Progress
	files, err := op.Run(context.Background(), model.PlaylistPayload{
		URL:     "https://example.com/playlist?list=x",
		Options: model.PlaylistOptions{Format: model.FormatMP4},
	}, t.TempDir(), func(p model.Progress) {
		reports = append(reports, p)
	})
	require.NoError(t, err)
	assert.Len(t, files, 3)

	assert.Equal(t, int32(1), runner.maxSeen.Load(), "never more than one subprocess in flight")

	var maxIndex int
	for _, p := range reports {
		if p.VideoIndex > maxIndex {
			require.Equal(t, maxIndex+1, p.VideoIndex, "item indexes advance one at a time")
			maxIndex = p.VideoIndex
		}
		if p.TotalVideos != 0 {
			assert.Equal(t, 3, p.TotalVideos)
		}
	}
	assert.Equal(t, 3, maxIndex)
}

func TestPlaylistOperationEmptySelection(t *testing.T) {
	runner := &fakeRunner{}
	video := NewVideoOperation(NewDownloader(runner, ""), NewConverter(runner, ""))
	op := NewPlaylistOperation(&staticLister{listing: threeItemListing()}, video)

	_, err := op.Run(context.Background(), model.PlaylistPayload{
		URL: "https://example.com/playlist?list=x",
		Options: model.PlaylistOptions{
			SelectedVideoIDs: []string{"zz", "yy"},
		},
	}, t.TempDir(), nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsEmptySelection(err))
	assert.Contains(t, err.Error(), "zz")
	assert.Empty(t, runner.calls, "no subprocess may run for an empty selection")
}

func TestPlaylistOperationFailureNamesItem(t *testing.T) {
	runner := &fakeRunner{script: func(call int, cmd Command) error {
		if call == 1 {
			return &SubprocessError{Bin: "yt-dlp", ExitCode: 1, StderrTail: "boom"}
		}
		return downloadScript("item.mp4")(call, cmd)
	}}
	video := NewVideoOperation(NewDownloader(runner, ""), NewConverter(runner, ""))
	op := NewPlaylistOperation(&staticLister{listing: threeItemListing()}, video)

	_, err := op.Run(context.Background(), model.PlaylistPayload{
		URL:     "https://example.com/playlist?list=x",
		Options: model.PlaylistOptions{Format: model.FormatMP4},
	}, t.TempDir(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Second")
	assert.Contains(t, err.Error(), "b")

	var subErr *SubprocessError
	assert.ErrorAs(t, err, &subErr)
	assert.Len(t, runner.calls, 2, "failure aborts the remaining items")
}

func TestPlaylistOperationListerFailure(t *testing.T) {
	op := NewPlaylistOperation(&staticLister{err: errors.New("probe failed")}, nil)
	_, err := op.Run(context.Background(), model.PlaylistPayload{URL: "u"}, t.TempDir(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "probe failed")
}

func TestParseListing(t *testing.T) {
	raw := []byte(`{
		"title": "Road Trip",
		"entries": [
			{"id": "a", "title": "First", "url": "https://example.com/a"},
			{"id": "b", "title": "Second"},
			{"title": "no id, skipped"}
		]
	}`)

	listing, err := ParseListing(raw)
	require.NoError(t, err)
	assert.Equal(t, "Road Trip", listing.Title)
	require.Len(t, listing.Items, 2)
	assert.Equal(t, "https://example.com/a", listing.Items[0].URL)
	assert.Equal(t, "https://www.youtube.com/watch?v=b", listing.Items[1].URL, "missing url derives from id")
}

func TestParseListingMalformed(t *testing.T) {
	_, err := ParseListing([]byte("not json"))
	assert.Error(t, err)
}

func TestSelectFormatQualityTiers(t *testing.T) {
	assert.Equal(t, "bv*+ba/b", FormatSelector(""))
	assert.Equal(t, "bv*+ba/b", FormatSelector("best"))
	assert.Contains(t, FormatSelector("1080p"), "height<=1080")
	assert.Contains(t, FormatSelector("720"), "height<=720")
	assert.Equal(t, "bv*+ba/b", FormatSelector(fmt.Sprintf("weird-%d", 9)))
}
