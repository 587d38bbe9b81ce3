package prober

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"os"
	"path/filepath"
	"strings"
	"time"

	"image-compressor-go/internal/logger"
	"image-compressor-go/internal/metadata"

	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrNotAFile is returned when the probed path is not a regular file.
var ErrNotAFile = errors.New("provided path is not a file")

// ProbeError reports an image whose header could not be parsed.
type ProbeError struct {
	Path string
	Err  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("failed to open image %s: %v", e.Path, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// Dimensions holds the pixel size of an image as stored in the file.
type Dimensions struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Format      string `json:"format"`
	Orientation int    `json:"orientation"`
}

// Displayed returns the size the image shows at once its EXIF orientation is applied.
func (d *Dimensions) Displayed() (int, int) {
	if metadata.Transposed(d.Orientation) {
		return d.Height, d.Width
	}
	return d.Width, d.Height
}

// Prober reads image sizes from file headers without decoding pixel data.
type Prober struct {
	logger *logrus.Logger
}

// New returns a Prober.
func New(logger *logrus.Logger) *Prober {
	return &Prober{logger: logger}
}

// Dimensions returns the width and height of the image at path.
func (p *Prober) Dimensions(path string) (int, int, error) {
	d, err := p.probe(path, false)
	if err != nil {
		return 0, 0, err
	}
	return d.Width, d.Height, nil
}

// Probe returns the size, format and EXIF orientation of the image at path.
func (p *Prober) Probe(path string) (*Dimensions, error) {
	return p.probe(path, true)
}

func (p *Prober) probe(path string, withOrientation bool) (*Dimensions, error) {
	start := time.Now()

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrNotAFile, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &ProbeError{Path: path, Err: err}
	}
	defer f.Close()

	d := &Dimensions{Orientation: metadata.OrientationNormal}
	if strings.EqualFold(filepath.Ext(path), ".svg") {
		d.Width, d.Height, err = svgSize(f)
		d.Format = "svg"
	} else {
		var cfg image.Config
		cfg, d.Format, err = image.DecodeConfig(f)
		d.Width, d.Height = cfg.Width, cfg.Height
	}
	if err != nil {
		return nil, &ProbeError{Path: path, Err: err}
	}

	if withOrientation && d.Format == "jpeg" {
		d.Orientation = metadata.Orientation(path)
	}

	logger.WithFile(p.logger, path).WithFields(logrus.Fields{
		"format":      d.Format,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Read image dimensions")

	return d, nil
}
