package compressor

import (
	"fmt"
	"os"
	"path/filepath"

	"tile-compressor-go/internal/logger"
	"tile-compressor-go/internal/tile"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
)

// ResizeParams describes a single image resize.
type ResizeParams struct {
	Input   string
	Output  string
	Size    tile.Size
	Filter  string
	Quality int
}

// ResizeFile resizes one image to a fixed size. The output format follows the
// output file extension. Any failure is returned to the caller.
func ResizeFile(log *logrus.Logger, params ResizeParams) error {
	if err := params.Size.Validate(); err != nil {
		return err
	}
	filter, err := tile.ParseFilter(params.Filter)
	if err != nil {
		return err
	}
	if _, err := imaging.FormatFromFilename(params.Output); err != nil {
		return fmt.Errorf("output %s: %w", params.Output, err)
	}

	img, err := imaging.Open(params.Input)
	if err != nil {
		return fmt.Errorf("open error: %w", err)
	}

	resized := imaging.Resize(img, params.Size.Width, params.Size.Height, filter)

	if dir := filepath.Dir(params.Output); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return &FilesystemError{Op: "create output dir", Path: dir, Err: err}
		}
	}

	quality := params.Quality
	if quality <= 0 {
		quality = tile.DefaultQuality
	}
	if err := imaging.Save(resized, params.Output, imaging.JPEGQuality(quality)); err != nil {
		return fmt.Errorf("save error: %w", err)
	}

	if log == nil {
		log = logger.Discard()
	}
	logger.WithRun(log, "resize", logrus.Fields{
		"input":  params.Input,
		"output": params.Output,
		"size":   params.Size.String(),
	}).Info("Image resized")
	return nil
}
