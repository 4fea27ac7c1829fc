package media

import (
	"context"

	"github.com/clipforge/clipforge/internal/domain/model"
)

// ReportFunc receives structured progress from a media operation.
type ReportFunc func(progress model.Progress)

// VideoOperation downloads a single video and applies the optional audio
// conversion step.
type VideoOperation struct {
	downloader *Downloader
	converter  *Converter
}

// NewVideoOperation creates a VideoOperation from its tool wrappers.
func NewVideoOperation(downloader *Downloader, converter *Converter) *VideoOperation {
	return &VideoOperation{downloader: downloader, converter: converter}
}

// Run fetches the payload URL into workDir and returns the produced file
// paths. When the requested format is mp3 the downloaded file is converted
// and the intermediate removed; the result never contains both.
func (o *VideoOperation) Run(
	ctx context.Context,
	payload model.VideoPayload,
	workDir string,
	report ReportFunc,
) ([]string, error) {
	file, err := o.fetchOne(ctx, fetchRequest{
		url:     payload.URL,
		quality: payload.Quality,
		format:  payload.Format,
		dir:     workDir,
	}, func(percent float64, message string) {
		if report != nil {
			report(model.Progress{Percent: percent, Message: message})
		}
	})
	if err != nil {
		return nil, err
	}

	// Some tools stop short of printing 100; the operation still finished.
	if report != nil {
		report(model.Progress{Percent: 100, Message: "complete"})
	}
	return []string{file}, nil
}

type fetchRequest struct {
	url     string
	quality string
	format  model.MediaFormat
	dir     string
}

// fetchOne runs one download plus optional conversion. Shared with the
// playlist operation, which invokes it once per selected item.
func (o *VideoOperation) fetchOne(
	ctx context.Context,
	req fetchRequest,
	observe ProgressObserver,
) (string, error) {
	file, err := o.downloader.Download(ctx, DownloadRequest{
		URL:       req.url,
		OutputDir: req.dir,
		Quality:   req.quality,
	}, observe)
	if err != nil {
		return "", err
	}

	if req.format == model.FormatMP3 {
		converted, convErr := o.converter.ToMP3(ctx, file)
		if convErr != nil {
			return "", convErr
		}
		file = converted
	}
	return file, nil
}
