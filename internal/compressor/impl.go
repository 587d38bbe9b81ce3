package compressor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"image-compressor-go/internal/config"
	"image-compressor-go/internal/logger"
	"image-compressor-go/internal/metadata"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/webp" // register WebP decoder for imaging.Open
)

// Settings are the configured defaults applied to every request.
type Settings struct {
	DefaultQuality int
	OutputDir      string
	Overwrite      bool
	SkipMarked     bool
	MarkOutput     bool
}

// SettingsFromConfig extracts compression settings from the application config.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		DefaultQuality: cfg.Compression.DefaultQuality,
		OutputDir:      cfg.Compression.OutputDir,
		Overwrite:      cfg.Compression.Overwrite,
		SkipMarked:     cfg.Compression.SkipMarked,
		MarkOutput:     cfg.Compression.MarkOutput,
	}
}

// DefaultCompressor is the default implementation of the Compressor interface.
type DefaultCompressor struct {
	settings Settings
	engine   *Engine
	encoders map[string]Encoder
	marker   *metadata.Marker
	logger   *logrus.Logger
}

// NewDefaultCompressor returns a compressor on the process-wide Engine.
func NewDefaultCompressor(cfg *config.Config, log *logrus.Logger) *DefaultCompressor {
	return New(SettingsFromConfig(cfg), InitEngine(cfg.EngineWorkers()), log)
}

// New returns a compressor running its encodes on engine.
func New(settings Settings, engine *Engine, log *logrus.Logger) *DefaultCompressor {
	c := &DefaultCompressor{
		settings: settings,
		engine:   engine,
		encoders: defaultEncoders(),
		logger:   log,
	}
	if settings.MarkOutput {
		c.marker = metadata.NewMarker(log)
	}
	return c
}

// Close releases the exiftool process used for marking, if any.
func (c *DefaultCompressor) Close() error {
	if c.marker == nil {
		return nil
	}
	return c.marker.Close()
}

// Formats lists the output formats that have an encoder.
func (c *DefaultCompressor) Formats() []string {
	return encoderNames(c.encoders)
}

// Compress re-encodes the image at path into every format in opts.Formats.
// Formats without an encoder are reported as unsupported and write nothing.
// A source that cannot be loaded for any requested format yields an
// *ImageLoadError. Formats not yet started when ctx is done are reported
// as errors.
func (c *DefaultCompressor) Compress(ctx context.Context, path string, opts Options) (*CompressionResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res := c.compressOne(ctx, path, opts)
	return res, res.Error
}

// CompressBatch compresses every path on a pool of workers. An empty format
// list re-encodes each file in its own format. Cancelling ctx stops new files
// from starting; files already started run to completion.
func (c *DefaultCompressor) CompressBatch(ctx context.Context, paths []string, opts Options, progress ProgressFunc) []CompressionResult {
	results := make([]CompressionResult, len(paths))
	if len(paths) == 0 {
		return results
	}
	if err := opts.ValidateValues(); err != nil {
		for i, p := range paths {
			results[i] = failedResult(p, err)
		}
		return results
	}

	// Files already dispatched finish even if ctx is cancelled.
	fileCtx := context.WithoutCancel(ctx)
	numWorkers := min(max(runtime.NumCPU(), 2), len(paths))
	type job struct {
		index int
		path  string
	}

	jobs := make(chan job)
	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				fileOpts := opts
				if len(fileOpts.Formats) == 0 {
					fileOpts.Formats = []string{SourceFormat(j.path)}
				}
				r := *c.compressOne(fileCtx, j.path, fileOpts)
				results[j.index] = r
				if progress != nil {
					progress(r)
				}
			}
		}()
	}

	dispatched := len(paths)
	for i, path := range paths {
		if ctx.Err() != nil {
			dispatched = i
			break
		}
		select {
		case <-ctx.Done():
			dispatched = i
		case jobs <- job{index: i, path: path}:
			continue
		}
		break
	}
	close(jobs)
	wg.Wait()

	for i := dispatched; i < len(paths); i++ {
		results[i] = failedResult(paths[i], ctx.Err())
	}
	return results
}

func failedResult(path string, err error) CompressionResult {
	now := time.Now()
	return CompressionResult{
		InputPath:  path,
		Message:    err.Error(),
		StartedAt:  now,
		FinishedAt: now,
		Error:      err,
	}
}

// compressOne compresses a single file and returns a CompressionResult.
func (c *DefaultCompressor) compressOne(ctx context.Context, path string, opts Options) *CompressionResult {
	log := logger.WithFileOperation(c.logger, path, "compress")
	res := &CompressionResult{
		InputPath: path,
		StartedAt: time.Now(),
	}
	fail := func(err error) *CompressionResult {
		res.Error = &ImageLoadError{Path: path, Err: err}
		res.Message = res.Error.Error()
		for i := range res.Formats {
			if res.Formats[i].Action == "" {
				res.Formats[i] = formatError(res.Formats[i].Format, res.Error)
			}
		}
		res.FinishedAt = time.Now()
		log.Errorf("Compression error: %v", res.Error)
		return res
	}

	info, err := os.Stat(path)
	if err != nil {
		return fail(err)
	}
	if !info.Mode().IsRegular() {
		return fail(errors.New("not a regular file"))
	}
	res.OriginalSize = info.Size()

	quality := c.settings.DefaultQuality
	if opts.Quality != nil {
		quality = *opts.Quality
	}
	overwrite := c.settings.Overwrite
	if opts.Overwrite != nil {
		overwrite = *opts.Overwrite
	}
	outDir := opts.OutputDir
	if outDir == "" {
		outDir = c.settings.OutputDir
	}

	src := &Source{Path: path, Ext: lowerExt(path)}

	type task struct {
		index   int
		format  string
		encoder Encoder
	}
	var tasks []task
	var needRaster, needData bool
	seen := make(map[string]bool, len(opts.Formats))
	for _, format := range opts.Formats {
		if seen[format] {
			continue
		}
		seen[format] = true

		enc, ok := c.encoders[format]
		if !ok {
			log.WithField("format", format).Debug("No encoder for requested format, ignoring")
			res.Formats = append(res.Formats, FormatResult{
				Format:  format,
				Action:  ActionUnsupported,
				Message: "no encoder for format",
			})
			continue
		}
		tasks = append(tasks, task{index: len(res.Formats), format: format, encoder: enc})
		res.Formats = append(res.Formats, FormatResult{Format: format})
		if enc.Raster() {
			needRaster = true
		} else {
			needData = true
		}
	}

	width, height, resize := opts.box()

	if c.settings.SkipMarked && !resize && (src.Ext == "jpg" || src.Ext == "jpeg") && metadata.IsMarked(path) {
		for _, t := range tasks {
			res.Formats[t.index].Action = ActionSkipped
			res.Formats[t.index].Message = "Already compressed"
		}
		res.Success = true
		res.Message = "Already compressed"
		res.FinishedAt = time.Now()
		log.Debug("Source already carries the compressed mark, skipping")
		return res
	}

	// A source that only document encoders can read (SVG) still serves
	// them when the raster decode fails.
	var rasterErr error
	if needRaster {
		img, err := imaging.Open(path, imaging.AutoOrientation(true))
		switch {
		case err != nil && !needData:
			return fail(err)
		case err != nil:
			rasterErr = &ImageLoadError{Path: path, Err: err}
			log.Warnf("Raster formats unavailable: %v", rasterErr)
		default:
			if resize {
				img = imaging.Fit(img, width, height, imaging.Lanczos)
				res.Resized = true
			}
			src.Image = img
		}
	}
	if needData {
		data, err := os.ReadFile(path)
		if err != nil {
			return fail(err)
		}
		src.Data = data
	}

	var wg sync.WaitGroup
	for _, t := range tasks {
		if rasterErr != nil && t.encoder.Raster() {
			res.Formats[t.index] = formatError(t.format, rasterErr)
			continue
		}
		wg.Add(1)
		go func(t task) {
			defer wg.Done()
			c.engine.Run(func() {
				if err := ctx.Err(); err != nil {
					res.Formats[t.index] = formatError(t.format, err)
					return
				}
				fr := c.encodeOne(src, t.format, t.encoder, encodeParams{
					quality:      quality,
					outputDir:    outDir,
					overwrite:    overwrite,
					resized:      res.Resized,
					originalSize: res.OriginalSize,
				})
				res.Formats[t.index] = fr
			})
		}(t)
	}
	wg.Wait()

	res.Success = true
	for _, fr := range res.Formats {
		if fr.Action == ActionError {
			res.Success = false
		}
	}
	if !res.Success {
		res.Message = "one or more formats failed"
	}
	res.FinishedAt = time.Now()

	log.WithFields(logrus.Fields{
		"formats":     len(res.Formats),
		"success":     res.Success,
		"duration_ms": res.FinishedAt.Sub(res.StartedAt).Milliseconds(),
	}).Info("Image compressed")
	return res
}

func formatError(format string, err error) FormatResult {
	return FormatResult{
		Format:  format,
		Action:  ActionError,
		Message: err.Error(),
		Error:   err,
	}
}

type encodeParams struct {
	quality      int
	outputDir    string
	overwrite    bool
	resized      bool
	originalSize int64
}

// encodeOne encodes src into one format and writes the output file.
func (c *DefaultCompressor) encodeOne(src *Source, format string, enc Encoder, p encodeParams) FormatResult {
	log := logger.WithFileOperation(c.logger, src.Path, "encode").WithField("format", format)
	fr := FormatResult{Format: format}
	failed := func(err error) FormatResult {
		fr.Action = ActionError
		fr.Error = err
		fr.Message = err.Error()
		log.Warnf("Encode failed: %v", err)
		return fr
	}

	var buf bytes.Buffer
	if err := enc.Encode(&buf, src, p.quality); err != nil {
		return failed(fmt.Errorf("encode error: %w", err))
	}

	// A plain recompression that did not shrink the file keeps the original.
	if !p.resized && sameFormat(src.Ext, format) && int64(buf.Len()) >= p.originalSize {
		fr.Action = ActionOriginal
		fr.Size = p.originalSize
		fr.Message = "Compressed file not smaller than original, kept original"
		return fr
	}

	if p.outputDir != "" {
		if err := os.MkdirAll(p.outputDir, 0755); err != nil {
			return failed(fmt.Errorf("mkdir error: %w", err))
		}
	}

	outPath, err := c.engine.claim(func(taken func(string) bool) string {
		return OutputPath(src.Path, enc.Extension(), p.outputDir, p.overwrite, taken)
	})
	if err != nil {
		return failed(err)
	}
	defer c.engine.release(outPath)
	fr.OutputPath = outPath

	if err := writeAtomic(outPath, buf.Bytes()); err != nil {
		return failed(err)
	}
	fr.Size = int64(buf.Len())

	if c.marker != nil && (enc.Extension() == "jpg" || enc.Extension() == "jpeg") {
		if err := c.marker.CopyAndMark(src.Path, outPath); err != nil {
			fr.Message = fmt.Sprintf("warning: exif not copied/marked: %v", err)
		} else if st, err := os.Stat(outPath); err == nil {
			fr.Size = st.Size()
		}
	}

	fr.Action = ActionCompressed
	if fr.Message == "" {
		fr.Message = "Image compressed"
	}
	log.WithField("output", outPath).Debug("Wrote output")
	return fr
}
