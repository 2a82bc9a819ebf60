// Package fetcher downloads placeholder images and stores them as tiles.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"tile-compressor-go/internal/logger"
	"tile-compressor-go/internal/statistics"
	"tile-compressor-go/internal/tile"

	"github.com/disintegration/imaging"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
)

// FetchParams defines parameters for one download run.
type FetchParams struct {
	OutputDir    string
	Count        int
	URLTemplate  string // {seed}, {width} and {height} are substituted
	Size         tile.Size
	Quality      int
	ShowProgress bool
}

// Fetcher downloads tiles one by one. It never retries a failed request.
type Fetcher struct {
	client *http.Client
	logger *logrus.Logger
	stats  *statistics.Statistics
	out    io.Writer
}

// NewFetcher returns a Fetcher. A nil client gets a default one with a 10s timeout.
func NewFetcher(client *http.Client, log *logrus.Logger, stats *statistics.Statistics, out io.Writer) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = logger.Discard()
	}
	if out == nil {
		out = io.Discard
	}
	return &Fetcher{client: client, logger: log, stats: stats, out: out}
}

// TileURL expands template for the given seed and size.
func TileURL(template string, seed int, size tile.Size) string {
	return strings.NewReplacer(
		"{seed}", strconv.Itoa(seed),
		"{width}", strconv.Itoa(size.Width),
		"{height}", strconv.Itoa(size.Height),
	).Replace(template)
}

// Fetch downloads params.Count images into params.OutputDir as tile_<seed>.jpg
// and returns how many were saved. Per-image failures are reported and
// skipped; only a failure to create the output dir or a cancelled ctx ends the
// run early.
func (f *Fetcher) Fetch(ctx context.Context, params FetchParams) (int, error) {
	if err := os.MkdirAll(params.OutputDir, 0755); err != nil {
		return 0, fmt.Errorf("create output dir: %w", err)
	}

	log := logger.WithOperation(f.logger, "fetch")
	logger.WithRun(f.logger, "fetch", logrus.Fields{
		"output_dir": params.OutputDir,
		"count":      params.Count,
		"size":       params.Size.String(),
	}).Info("Starting tile download")

	if f.stats != nil {
		f.stats.SetExpected(params.Count)
	}

	var bar *progressbar.ProgressBar
	if params.ShowProgress && params.Count > 0 {
		bar = progressbar.NewOptions(params.Count,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("Downloading tiles"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprintln(os.Stderr)
			}),
		)
	}

	saved := 0
	for i := 0; i < params.Count; i++ {
		if err := ctx.Err(); err != nil {
			log.WithField("saved", saved).Warn("Download cancelled")
			return saved, err
		}

		if f.fetchOne(ctx, i, params) {
			saved++
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}

	if f.stats != nil {
		f.stats.Finalize()
	}
	log.WithField("saved", saved).Info("Tile download finished")
	return saved, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, seed int, params FetchParams) bool {
	name := fmt.Sprintf("tile_%d.jpg", seed)
	url := TileURL(params.URLTemplate, seed, params.Size)

	if f.stats != nil {
		f.stats.IncrementFilesFound()
		f.stats.IncrementFilesProcessed()
	}

	written, err := f.download(ctx, url, filepath.Join(params.OutputDir, name), params.Quality)
	switch {
	case errors.Is(err, errInvalidResponse):
		fmt.Fprintf(f.out, "Invalid response for %s\n", name)
		f.fail(url, name, err)
		return false
	case err != nil:
		fmt.Fprintf(f.out, "Failed %s: %v\n", name, err)
		f.fail(url, name, err)
		return false
	}

	fmt.Fprintf(f.out, "%s downloaded\n", name)
	logger.WithTile(f.logger, url, name).Debug("Tile downloaded")
	if f.stats != nil {
		f.stats.AddTile(written)
	}
	return true
}

func (f *Fetcher) fail(url, name string, err error) {
	logger.WithSkip(f.logger, url, "fetch", err).WithField("tile", name).Warn("Skipping tile")
	if f.stats != nil {
		f.stats.IncrementFilesFailed()
		f.stats.AddError(url, "fetch", err.Error())
	}
}

var errInvalidResponse = errors.New("invalid response")

func (f *Fetcher) download(ctx context.Context, url, path string, quality int) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK || !strings.Contains(resp.Header.Get("Content-Type"), "image") {
		_, _ = io.Copy(io.Discard, resp.Body)
		return 0, errInvalidResponse
	}

	img, err := imaging.Decode(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("decode error: %w", err)
	}

	return tile.SaveJPEG(tile.ToRGB(img), path, quality)
}
