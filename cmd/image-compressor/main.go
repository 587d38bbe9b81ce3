package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"image-compressor-go/internal/compressor"
	"image-compressor-go/internal/config"
	"image-compressor-go/internal/logger"
	"image-compressor-go/internal/prober"
	"image-compressor-go/internal/scanner"
	"image-compressor-go/internal/statistics"
	"image-compressor-go/internal/watcher"
	"image-compressor-go/internal/web"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	verbose   bool
	quiet     bool
	version   string
	buildTime string

	listJSON bool

	formats   []string
	width     int
	height    int
	quality   int
	overwrite bool
	outputDir string

	port  int
	watch []string
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "image-compressor",
	Short: "Compress, resize and convert images",
	Long: `ImageCompressor finds images in files and directory trees and re-encodes
them into smaller files.

Features:
- Lists PNG, JPEG, SVG and WebP images recursively
- Reads image dimensions without decoding pixels
- Resizes into a bounding box while keeping the aspect ratio
- Writes PNG, JPEG and WebP outputs and minifies SVG
- Local HTTP API with live progress over WebSocket`,
	Version:       fmt.Sprintf("%s (built %s)", version, buildTime),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// listCmd lists the images found in files and directories.
var listCmd = &cobra.Command{
	Use:   "list [path...]",
	Short: "List supported images in files and directories",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			args = []string{"."}
		}
		return runList(args)
	},
}

// dimensionsCmd prints the pixel size of an image.
var dimensionsCmd = &cobra.Command{
	Use:   "dimensions <file>",
	Short: "Show the width and height of an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDimensions(args[0])
	},
}

// compressCmd compresses images into one or more formats.
var compressCmd = &cobra.Command{
	Use:   "compress <path...>",
	Short: "Compress images, optionally resizing and converting them",
	Long: `Compresses every image found in the given files and directories.
Without --format each image is re-encoded in its own format. Outputs are
written next to the source as <name>-compress.<ext> unless --overwrite or
--output-dir is given. Resizing happens only when both --width and
--height are set.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompress(cmd, args)
	},
}

// serveCmd starts the HTTP API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local HTTP API",
	Long: `Starts the HTTP API used by the desktop front end. Batch progress and
images appearing in watched directories are pushed to WebSocket clients
connected to /ws.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [file]",
	Short: "Write the default configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "config.yaml"
		if len(args) > 0 {
			path = args[0]
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists: %s", path)
		}
		if err := config.DefaultConfig().SaveToFile(path); err != nil {
			return err
		}
		fmt.Printf("Configuration written to %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")

	listCmd.Flags().BoolVar(&listJSON, "json", false, "print the image list as JSON")

	compressCmd.Flags().StringSliceVarP(&formats, "format", "f", nil, "output formats (png, jpg, jpeg, webp, svg)")
	compressCmd.Flags().IntVar(&width, "width", 0, "bounding box width")
	compressCmd.Flags().IntVar(&height, "height", 0, "bounding box height")
	compressCmd.Flags().IntVarP(&quality, "quality", "q", 0, "encoder quality 0-100 (default from config)")
	compressCmd.Flags().BoolVar(&overwrite, "overwrite", false, "write <name>.<ext> instead of <name>-compress.<ext>")
	compressCmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "directory for compressed files")

	serveCmd.Flags().IntVar(&port, "port", 0, "port to run the server on (default from config)")
	serveCmd.Flags().StringSliceVar(&watch, "watch", nil, "directories to watch for new images")

	configCmd.AddCommand(configInitCmd)

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(dimensionsCmd)
	rootCmd.AddCommand(compressCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
}

// runList resolves the inputs and prints every image found.
func runList(paths []string) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := setupLogger(cfg)

	report := scanner.New(cfg.SupportedExtensions, log).Resolve(paths)

	if listJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report.Images)
	}

	for _, img := range report.Images {
		fmt.Printf("%-10s %10s  %s\n", img.FileExtension, statistics.FormatBytes(img.FileSize), img.FilePath)
	}
	if !quiet {
		fmt.Fprintf(os.Stderr, "\n%d images, %d entries skipped, %d directories scanned\n",
			len(report.Images), report.Skipped, report.DirectoriesScanned)
	}
	return nil
}

// runDimensions prints the size of one image.
func runDimensions(path string) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := setupLogger(cfg)

	dims, err := prober.New(log).Probe(path)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %dx%d (%s)\n", path, dims.Width, dims.Height, dims.Format)
	if w, h := dims.Displayed(); w != dims.Width {
		fmt.Printf("displayed as %dx%d (EXIF orientation %d)\n", w, h, dims.Orientation)
	}
	return nil
}

// runCompress compresses every image found in paths.
func runCompress(cmd *cobra.Command, paths []string) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := setupLogger(cfg)

	opts := compressor.Options{
		Formats:   formats,
		OutputDir: outputDir,
	}
	if cmd.Flags().Changed("width") {
		opts.Width = &width
	}
	if cmd.Flags().Changed("height") {
		opts.Height = &height
	}
	if cmd.Flags().Changed("quality") {
		opts.Quality = &quality
	}
	if cmd.Flags().Changed("overwrite") {
		opts.Overwrite = &overwrite
	}

	if err := opts.ValidateValues(); err != nil {
		return err
	}

	report := scanner.New(cfg.SupportedExtensions, log).Resolve(paths)
	if len(report.Images) == 0 {
		return errors.New("no images found")
	}

	comp := compressor.NewDefaultCompressor(cfg, log)
	defer comp.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats := statistics.NewStatistics()
	stats.AddScan(len(report.Images), report.Skipped, report.DirectoriesScanned)

	files := make([]string, len(report.Images))
	for i, img := range report.Images {
		files[i] = img.FilePath
	}

	results := comp.CompressBatch(ctx, files, opts, func(r compressor.CompressionResult) {
		compressor.Record(stats, r)
		if !quiet {
			printResult(r)
		}
	})
	stats.Finalize()

	if !quiet {
		fmt.Println("\n" + stats.GetSummary())
		fmt.Println("\n" + stats.GetFormatBreakdown())
		if stats.FilesWithErrors > 0 {
			fmt.Println(stats.GetErrorSummary())
		}
	}

	for _, r := range results {
		if !r.Success {
			return fmt.Errorf("%d of %d files failed", stats.FilesWithErrors, len(results))
		}
	}
	return nil
}

func printResult(r compressor.CompressionResult) {
	if r.Error != nil {
		fmt.Printf("FAIL  %s: %v\n", r.InputPath, r.Error)
		return
	}
	for _, f := range r.Formats {
		switch f.Action {
		case compressor.ActionCompressed:
			fmt.Printf("OK    %s -> %s (%s -> %s)\n", r.InputPath, f.OutputPath,
				statistics.FormatBytes(r.OriginalSize), statistics.FormatBytes(f.Size))
		case compressor.ActionError:
			fmt.Printf("FAIL  %s [%s]: %s\n", r.InputPath, f.Format, f.Message)
		default:
			fmt.Printf("%-5s %s [%s]: %s\n", f.Action, r.InputPath, f.Format, f.Message)
		}
	}
}

// runServe starts the web server and handles graceful shutdown.
func runServe(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "CONFIG LOAD ERROR: %v\n", err)
		cfg = config.DefaultConfig()
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = port
	}
	if len(watch) > 0 {
		cfg.Server.WatchDirectories = append(cfg.Server.WatchDirectories, watch...)
	}

	log := setupLogger(cfg)
	comp := compressor.NewDefaultCompressor(cfg, log)
	defer comp.Close()
	server := web.NewServer(cfg, log, comp)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(cfg.Server.WatchDirectories) > 0 {
		w, err := watcher.New(scanner.New(cfg.SupportedExtensions, log), cfg.Server.WatchDirectories, log)
		if err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
		go server.Watch(ctx, w)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.Server.Port); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	fmt.Printf("ImageCompressor API listening on http://localhost:%d\n", cfg.Server.Port)
	fmt.Printf("Press Ctrl+C to stop the server\n\n")

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed to start: %w", err)
	case <-ctx.Done():
	}
	fmt.Println("\nShutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	fmt.Println("Server stopped gracefully")
	return nil
}

// setupLogger configures and returns a logger.
func setupLogger(cfg *config.Config) *logrus.Logger {
	loggerCfg := logger.DefaultConfig()
	if cfg.Logging.Level != "" {
		loggerCfg.Level = cfg.Logging.Level
	}
	loggerCfg.FilePath = cfg.Logging.FilePath
	if cfg.Logging.MaxSize > 0 {
		loggerCfg.MaxSize = cfg.Logging.MaxSize
	}
	if cfg.Logging.MaxBackups > 0 {
		loggerCfg.MaxBackups = cfg.Logging.MaxBackups
	}
	if cfg.Logging.MaxAge > 0 {
		loggerCfg.MaxAge = cfg.Logging.MaxAge
	}
	loggerCfg.Compress = cfg.Logging.Compress
	loggerCfg.Console = !quiet

	if verbose {
		loggerCfg.Level = "debug"
	}
	if quiet {
		loggerCfg.Level = "error"
	}

	log, err := logger.NewLogger(loggerCfg)
	if err != nil {
		log = logrus.New()
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
