package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/clipforge/clipforge/internal/core"
	apperrors "github.com/clipforge/clipforge/internal/errors"
	"github.com/clipforge/clipforge/internal/domain/model"
)

// PlaylistOperation downloads the selected items of a playlist strictly
// sequentially, one subprocess at a time.
type PlaylistOperation struct {
	lister core.PlaylistLister
	video  *VideoOperation
}

// NewPlaylistOperation creates a PlaylistOperation.
func NewPlaylistOperation(lister core.PlaylistLister, video *VideoOperation) *PlaylistOperation {
	return &PlaylistOperation{lister: lister, video: video}
}

// Run resolves the playlist listing, filters it to the payload's selection,
// and fetches each selected item in playlist order. A failure on any item
// aborts the whole run with an error naming that item.
func (o *PlaylistOperation) Run(
	ctx context.Context,
	payload model.PlaylistPayload,
	workDir string,
	report ReportFunc,
) ([]string, error) {
	listing, err := o.lister.List(ctx, payload.URL)
	if err != nil {
		return nil, fmt.Errorf("list playlist: %w", err)
	}

	selected, missing := listing.Select(payload.Options.SelectedVideoIDs)
	if len(selected) == 0 {
		if len(missing) > 0 {
			return nil, apperrors.EmptySelection(
				"no playlist items matched the selection: " + strings.Join(missing, ", "))
		}
		return nil, apperrors.EmptySelection("playlist has no items")
	}

	// All items of one job land in a single subdirectory named after the
	// playlist title.
	dir := filepath.Join(workDir, SanitizeName(listing.Title))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create playlist directory: %w", err)
	}

	total := len(selected)
	files := make([]string, 0, total)
	for i, item := range selected {
		index := i + 1

		if report != nil {
			report(model.Progress{
				Percent:     0,
				Message:     "starting " + item.Title,
				VideoIndex:  index,
				TotalVideos: total,
				VideoID:     item.ID,
			})
		}

		file, itemErr := o.video.fetchOne(ctx, fetchRequest{
			url:     item.URL,
			quality: payload.Options.Quality,
			format:  payload.Options.Format,
			dir:     dir,
		}, func(percent float64, message string) {
			if report != nil {
				report(model.Progress{
					Percent:     percent,
					Message:     message,
					VideoIndex:  index,
					TotalVideos: total,
					VideoID:     item.ID,
				})
			}
		})
		if itemErr != nil {
			return nil, fmt.Errorf("playlist item %q (%s): %w", item.Title, item.ID, itemErr)
		}
		files = append(files, file)
	}

	if report != nil {
		report(model.Progress{
			Percent:     100,
			Message:     "complete",
			VideoIndex:  total,
			TotalVideos: total,
		})
	}
	return files, nil
}
