package compressor

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"tile-compressor-go/internal/logger"
	"tile-compressor-go/internal/natsort"
	"tile-compressor-go/internal/statistics"
	"tile-compressor-go/internal/tile"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
)

// DefaultCompressor is the default implementation of the Compressor interface.
// It processes files strictly one at a time.
type DefaultCompressor struct {
	logger   *logrus.Logger
	stats    *statistics.Statistics
	out      io.Writer
	progress ProgressFunc
}

// NewDefaultCompressor creates a new DefaultCompressor. Console lines go to
// out; a nil out discards them and a nil stats disables counting.
func NewDefaultCompressor(log *logrus.Logger, stats *statistics.Statistics, out io.Writer) *DefaultCompressor {
	return NewDefaultCompressorWithHook(log, stats, out, nil)
}

// NewDefaultCompressorWithHook also forwards every per-file event to hook
// (for example to a websocket broadcaster).
func NewDefaultCompressorWithHook(log *logrus.Logger, stats *statistics.Statistics, out io.Writer, hook ProgressFunc) *DefaultCompressor {
	if log == nil {
		log = logger.Discard()
	}
	if out == nil {
		out = io.Discard
	}
	return &DefaultCompressor{
		logger:   log,
		stats:    stats,
		out:      out,
		progress: hook,
	}
}

// Compress runs scanning, processing and reporting in a single forward pass.
func (c *DefaultCompressor) Compress(params CompressionParams) (*Summary, error) {
	if err := params.Size.Validate(); err != nil {
		return nil, err
	}
	filter, err := tile.ParseFilter(params.Filter)
	if err != nil {
		return nil, err
	}
	if len(params.Extensions) == 0 {
		params.Extensions = tile.DefaultExtensions
	}

	log := logger.WithOperation(c.logger, "compress")
	logger.WithRun(c.logger, "compress", logrus.Fields{
		"input_dir":  params.InputDir,
		"output_dir": params.OutputDir,
		"size":       params.Size.String(),
		"expected":   params.Expected,
	}).Info("Starting tile compression")

	if c.stats != nil {
		c.stats.SetExpected(params.Expected)
	}

	// Scanning
	if err := os.MkdirAll(params.OutputDir, 0755); err != nil {
		return nil, &FilesystemError{Op: "create output dir", Path: params.OutputDir, Err: err}
	}
	names, err := c.scan(params.InputDir, params.Extensions)
	if err != nil {
		return nil, err
	}
	log.Infof("Found %d image files to process", len(names))

	// Processing
	summary := &Summary{Expected: params.Expected, Results: make([]FileResult, 0, len(names))}
	for _, name := range names {
		res := c.processOne(name, summary.Produced, filter, params)
		if res.OK() {
			summary.Produced++
		}
		summary.Results = append(summary.Results, res)
	}

	// Reporting
	fmt.Fprintf(c.out, "\nTotal %d images compressed.\n", summary.Produced)
	if missing := summary.Missing(); missing > 0 {
		fmt.Fprintf(c.out, "Warning: expected %d, but only %d were processed. Missing %d.\n",
			summary.Expected, summary.Produced, missing)
		log.WithField("missing", missing).Warn("Fewer tiles produced than expected")
	}
	done := log.WithField("produced", summary.Produced)
	if c.stats != nil {
		c.stats.Finalize()
		done = done.WithField("duration", c.stats.GetDuration().String())
	}
	done.Info("Tile compression finished")

	return summary, nil
}

func (c *DefaultCompressor) scan(dir string, extensions []string) ([]string, error) {
	names, ignored, err := ScanDir(dir, extensions)
	if err != nil {
		return nil, err
	}
	if c.stats != nil {
		for _, name := range names {
			c.stats.IncrementFilesFound()
			c.stats.IncrementFileType(strings.ToUpper(strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")))
		}
		for i := 0; i < ignored; i++ {
			c.stats.IncrementFilesIgnored()
		}
	}
	return names, nil
}

// processOne converts one file and absorbs any failure into the result.
func (c *DefaultCompressor) processOne(name string, index int, filter imaging.ResampleFilter, params CompressionParams) FileResult {
	inputPath := filepath.Join(params.InputDir, name)
	destName := TileName(index)
	outputPath := filepath.Join(params.OutputDir, destName)

	if c.stats != nil {
		c.stats.IncrementFilesProcessed()
	}

	written, err := ConvertFile(inputPath, outputPath, params.Size, filter, params.Quality)
	if err != nil {
		fmt.Fprintf(c.out, "Failed to process %s: %v\n", name, err)
		logger.WithSkip(c.logger, inputPath, "convert", err).Warn("Skipping file")
		if c.stats != nil {
			c.stats.IncrementFilesFailed()
			c.stats.AddError(inputPath, "convert", err.Error())
		}
		c.emit(Event{Kind: EventTileFailed, Source: name, Index: -1, Err: err})
		return FileResult{Source: name, Index: -1, Err: err}
	}

	fmt.Fprintf(c.out, "%s → %s\n", name, destName)
	logger.WithTile(c.logger, inputPath, destName).Debug("Tile created")
	if c.stats != nil {
		c.stats.AddTile(written)
	}
	c.emit(Event{Kind: EventTileCreated, Source: name, Dest: destName, Index: index})
	return FileResult{Source: name, Dest: destName, Index: index}
}

func (c *DefaultCompressor) emit(ev Event) {
	if c.progress != nil {
		c.progress(ev)
	}
}

// TileName returns the file name of the tile with the given index.
func TileName(index int) string {
	return fmt.Sprintf("tile_%d.jpg", index)
}

// ScanDir lists dir, keeps entries whose lowercased extension is in
// extensions and returns their names in natural order, along with the number
// of entries that were filtered out. Failure to list dir is a FilesystemError.
func ScanDir(dir string, extensions []string) ([]string, int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, &FilesystemError{Op: "list input dir", Path: dir, Err: err}
	}

	accepted := tile.NewExtensions(extensions)
	names := make([]string, 0, len(entries))
	ignored := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !accepted.Match(entry.Name()) {
			ignored++
			continue
		}
		names = append(names, entry.Name())
	}

	natsort.Sort(names)
	return names, ignored, nil
}

// ConvertFile decodes inputPath, converts it to RGB, resizes it to size and
// saves it as JPEG at outputPath. The source file is closed before returning.
func ConvertFile(inputPath, outputPath string, size tile.Size, filter imaging.ResampleFilter, quality int) (int64, error) {
	f, err := os.Open(inputPath)
	if err != nil {
		return 0, fmt.Errorf("open error: %w", err)
	}
	defer f.Close()

	img, err := imaging.Decode(f)
	if err != nil {
		return 0, fmt.Errorf("decode error: %w", err)
	}

	return tile.SaveJPEG(tile.Fit(img, size, filter), outputPath, quality)
}
