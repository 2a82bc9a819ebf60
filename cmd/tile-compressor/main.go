package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tile-compressor-go/internal/compressor"
	"tile-compressor-go/internal/config"
	"tile-compressor-go/internal/fetcher"
	"tile-compressor-go/internal/logger"
	"tile-compressor-go/internal/statistics"
	"tile-compressor-go/internal/tile"
	"tile-compressor-go/internal/web"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
	quiet   bool

	inputDir   string
	outputDir  string
	sizeFlag   string
	expected   int
	quality    int
	filterName string
	showStats  bool

	resizeInput  string
	resizeOutput string
	resizeSize   string

	fetchOutput   string
	fetchCount    int
	fetchSize     string
	fetchProgress bool

	port int
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "tile-compressor",
	Short: "Prepare fixed-size image tiles for mosaic building",
	Long: `tile-compressor turns a directory of arbitrary images into a dense,
numbered set of small JPEG tiles (tile_0.jpg, tile_1.jpg, ...).

Features:
- Natural filename ordering (tile_2 before tile_10)
- Undecodable files are skipped without leaving gaps in the numbering
- Shortfall warning when fewer tiles than expected were produced
- Single image resize and placeholder tile download helpers
- Web interface with live progress over WebSocket`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// compressCmd batch-resizes a directory into numbered tiles.
var compressCmd = &cobra.Command{
	Use:   "compress",
	Short: "Compress a directory of images into numbered tiles",
	Long: `Reads every .jpg, .jpeg, .png and .bmp file of the input directory in
natural order, converts it to RGB, resizes it to the tile size and writes it
to the output directory as tile_<n>.jpg. Files that cannot be decoded are
reported and skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompress(cmd)
	},
}

// resizeCmd resizes a single image.
var resizeCmd = &cobra.Command{
	Use:   "resize",
	Short: "Resize a single image to a fixed size",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runResize(cmd)
	},
}

// fetchCmd downloads placeholder images as tiles.
var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download placeholder images into a tile directory",
	Long: `Downloads images one by one from the configured placeholder image
service and saves them as tile_<seed>.jpg. Failed downloads are reported and
skipped; nothing is retried.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFetch(cmd)
	},
}

// serveCmd starts the web interface server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start web interface server",
	Long: `Starts an HTTP API for running compressions remotely.

Endpoints:
- GET  /api/status
- POST /api/compress
- GET  /api/statistics
- GET  /api/tiles?dir=<dir>
- GET  /ws (progress events)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error log output")

	compressCmd.Flags().StringVar(&inputDir, "input", "", "directory containing source images")
	compressCmd.Flags().StringVar(&outputDir, "output", "", "directory for tiles (created if missing)")
	compressCmd.Flags().StringVar(&sizeFlag, "size", "", "tile size as WIDTHxHEIGHT (default 10x10)")
	compressCmd.Flags().IntVar(&expected, "expected", 0, "expected tile count for the shortfall warning (default 2000)")
	compressCmd.Flags().IntVar(&quality, "quality", 0, "JPEG quality 1-100 (default 75)")
	compressCmd.Flags().StringVar(&filterName, "filter", "", "resample filter (default catmullrom)")
	compressCmd.Flags().BoolVar(&showStats, "stats", false, "print run statistics at the end")

	resizeCmd.Flags().StringVar(&resizeInput, "input", "", "source image")
	resizeCmd.Flags().StringVar(&resizeOutput, "output", "", "destination image, format follows the extension")
	resizeCmd.Flags().StringVar(&resizeSize, "size", "", "target size as WIDTHxHEIGHT (default 600x480)")

	fetchCmd.Flags().StringVar(&fetchOutput, "output", "", "directory for downloaded tiles")
	fetchCmd.Flags().IntVar(&fetchCount, "count", 0, "number of images to download (default 2000)")
	fetchCmd.Flags().StringVar(&fetchSize, "size", "", "download size as WIDTHxHEIGHT (default 400x400)")
	fetchCmd.Flags().BoolVar(&fetchProgress, "progress", false, "show a progress bar")

	serveCmd.Flags().IntVar(&port, "port", 0, "port to run web server on (default 8080)")

	rootCmd.AddCommand(compressCmd)
	rootCmd.AddCommand(resizeCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(serveCmd)
}

// runCompress executes one tile compression run.
func runCompress(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("input") {
		cfg.Compress.InputDir = inputDir
	}
	if flags.Changed("output") {
		cfg.Compress.OutputDir = outputDir
	}
	if flags.Changed("size") {
		if err := parseSizeFlag("size", sizeFlag); err != nil {
			return err
		}
		cfg.Compress.Size = sizeFlag
	}
	if flags.Changed("expected") {
		cfg.Compress.Expected = expected
	}
	if flags.Changed("quality") {
		cfg.Compress.Quality = quality
	}
	if flags.Changed("filter") {
		cfg.Compress.Filter = filterName
	}
	if err := cfg.ValidateCompress(); err != nil {
		return err
	}

	log := setupLogger(cfg)
	stats := statistics.NewStatistics()
	out := cmd.OutOrStdout()
	c := compressor.NewDefaultCompressor(log, stats, out)

	_, err = c.Compress(compressor.CompressionParams{
		InputDir:   cfg.Compress.InputDir,
		OutputDir:  cfg.Compress.OutputDir,
		Size:       cfg.CompressSize(),
		Expected:   cfg.Compress.Expected,
		Quality:    cfg.Compress.Quality,
		Filter:     cfg.Compress.Filter,
		Extensions: cfg.Compress.SupportedExtensions,
	})
	if err != nil {
		log.WithError(err).Error("Compression aborted")
		return fmt.Errorf("compression failed: %w", err)
	}

	if showStats {
		fmt.Fprintln(out, "\n"+stats.GetSummary())
		fmt.Fprintln(out, "\n"+stats.GetFileTypeBreakdown())
		fmt.Fprintln(out, stats.GetErrorSummary())
	}
	return nil
}

// runResize resizes a single image.
func runResize(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("input") {
		cfg.Resize.Input = resizeInput
	}
	if flags.Changed("output") {
		cfg.Resize.Output = resizeOutput
	}
	if flags.Changed("size") {
		if err := parseSizeFlag("size", resizeSize); err != nil {
			return err
		}
		cfg.Resize.Size = resizeSize
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := setupLogger(cfg)
	err = compressor.ResizeFile(log, compressor.ResizeParams{
		Input:   cfg.Resize.Input,
		Output:  cfg.Resize.Output,
		Size:    cfg.ResizeSize(),
		Filter:  cfg.Resize.Filter,
		Quality: cfg.Resize.Quality,
	})
	if err != nil {
		return fmt.Errorf("resize failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s → %s\n", cfg.Resize.Input, cfg.Resize.Output)
	return nil
}

// runFetch downloads placeholder images until count is reached or the user interrupts.
func runFetch(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.Fetch.OutputDir = fetchOutput
	}
	if flags.Changed("count") {
		cfg.Fetch.Count = fetchCount
	}
	if flags.Changed("size") {
		if err := parseSizeFlag("size", fetchSize); err != nil {
			return err
		}
		cfg.Fetch.Size = fetchSize
	}
	if flags.Changed("progress") {
		cfg.Fetch.ShowProgress = fetchProgress
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := setupLogger(cfg)
	stats := statistics.NewStatistics()
	client := &http.Client{Timeout: cfg.Fetch.Timeout}
	out := cmd.OutOrStdout()
	f := fetcher.NewFetcher(client, log, stats, out)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	saved, err := f.Fetch(ctx, fetcher.FetchParams{
		OutputDir:    cfg.Fetch.OutputDir,
		Count:        cfg.Fetch.Count,
		URLTemplate:  cfg.Fetch.URLTemplate,
		Size:         cfg.FetchSize(),
		Quality:      cfg.Fetch.Quality,
		ShowProgress: cfg.Fetch.ShowProgress,
	})
	if err != nil {
		return fmt.Errorf("fetch stopped after %d tiles: %w", saved, err)
	}

	fmt.Fprintf(out, "\nTotal %d images downloaded.\n", saved)
	return nil
}

// runServe starts the web server and handles graceful shutdown.
func runServe(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = port
	}

	log := setupLogger(cfg)
	server := web.NewServer(cfg, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.Server.Port); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Tile compressor API listening on http://localhost:%d\n", cfg.Server.Port)
	fmt.Fprintf(out, "Press Ctrl+C to stop the server\n\n")

	select {
	case err := <-errChan:
		return fmt.Errorf("server failed to start: %w", err)
	case <-sigChan:
	}
	fmt.Fprintln(out, "\nShutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	fmt.Fprintln(out, "Server stopped gracefully")
	return nil
}

// setupLogger configures and returns a logger.
func setupLogger(cfg *config.Config) *logrus.Logger {
	loggerCfg := logger.LoggerConfig{
		Level:      logger.LevelFor(cfg.Logging.Level, verbose, quiet),
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
		Console:    !quiet,
	}

	log, err := logger.NewLogger(loggerCfg)
	if err != nil {
		log = logrus.New()
		log.SetOutput(os.Stderr)
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

// parseSizeFlag reports a size flag error before config validation wraps it.
func parseSizeFlag(name, value string) error {
	if value == "" {
		return nil
	}
	if _, err := tile.ParseSize(value); err != nil {
		return fmt.Errorf("--%s: %w", name, err)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
