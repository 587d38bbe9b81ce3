package compressor

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Actions recorded per requested output format.
const (
	ActionCompressed  = "compressed"
	ActionOriginal    = "original"
	ActionSkipped     = "skipped"
	ActionUnsupported = "unsupported"
	ActionError       = "error"
)

// DefaultQuality is used when neither the request nor the configuration sets one.
const DefaultQuality = 80

var (
	ErrNoFormats      = errors.New("at least one output format is required")
	ErrInvalidQuality = errors.New("quality must be between 0 and 100")
	ErrInvalidSize    = errors.New("width and height must be positive")
)

// ImageLoadError is returned when the source image cannot be read or decoded.
type ImageLoadError struct {
	Path string
	Err  error
}

func (e *ImageLoadError) Error() string {
	return fmt.Sprintf("failed to load image %s: %v", e.Path, e.Err)
}

func (e *ImageLoadError) Unwrap() error { return e.Err }

// Options are the per-request compression parameters.
// Width and Height only take effect when both are set.
type Options struct {
	Width     *int     `json:"width,omitempty"`
	Height    *int     `json:"height,omitempty"`
	Formats   []string `json:"formats"`
	Quality   *int     `json:"quality,omitempty"`
	Overwrite *bool    `json:"overwrite,omitempty"`
	OutputDir string   `json:"outputDir,omitempty"`
}

// Validate checks the options of a single-file request.
func (o Options) Validate() error {
	if len(o.Formats) == 0 {
		return ErrNoFormats
	}
	return o.ValidateValues()
}

// ValidateValues checks quality and size without requiring formats, as a
// batch falls back to each source's own format.
func (o Options) ValidateValues() error {
	if o.Quality != nil && (*o.Quality < 0 || *o.Quality > 100) {
		return fmt.Errorf("%w, got %d", ErrInvalidQuality, *o.Quality)
	}
	if (o.Width != nil && *o.Width <= 0) || (o.Height != nil && *o.Height <= 0) {
		return ErrInvalidSize
	}
	return nil
}

// box returns the resize bounding box when both sides are set.
func (o Options) box() (int, int, bool) {
	if o.Width == nil || o.Height == nil {
		return 0, 0, false
	}
	return *o.Width, *o.Height, true
}

// FormatResult describes the output produced for one requested format.
type FormatResult struct {
	Format     string `json:"format"`
	OutputPath string `json:"outputPath,omitempty"`
	Size       int64  `json:"size"`
	Action     string `json:"action"`
	Message    string `json:"message,omitempty"`
	Error      error  `json:"-"`
}

// CompressionResult describes the result of compressing a single file.
type CompressionResult struct {
	InputPath    string         `json:"inputPath"`
	OriginalSize int64          `json:"originalSize"`
	Resized      bool           `json:"resized"`
	Formats      []FormatResult `json:"formats"`
	Success      bool           `json:"success"`
	Message      string         `json:"message,omitempty"`
	StartedAt    time.Time      `json:"startedAt"`
	FinishedAt   time.Time      `json:"finishedAt"`
	Error        error          `json:"-"`
}

// BytesWritten sums the sizes of the files actually written.
func (r *CompressionResult) BytesWritten() int64 {
	var n int64
	for _, f := range r.Formats {
		if f.Action == ActionCompressed {
			n += f.Size
		}
	}
	return n
}

// ProgressFunc receives each finished result of a batch. It is called from
// worker goroutines and must be safe for concurrent use.
type ProgressFunc func(CompressionResult)

// Compressor defines the interface for image compression.
type Compressor interface {
	// Compress re-encodes one image into every requested format.
	// Per-format failures are reported in the result, not as an error.
	Compress(ctx context.Context, path string, opts Options) (*CompressionResult, error)

	// CompressBatch processes many files on a worker pool. Results keep input order.
	CompressBatch(ctx context.Context, paths []string, opts Options, progress ProgressFunc) []CompressionResult

	// Formats lists the output formats that have an encoder.
	Formats() []string
}
