package metadata

import (
	"errors"
	"fmt"
	"sync"

	"github.com/barasher/go-exiftool"
	"github.com/sirupsen/logrus"
)

// copiedTags are carried over from the source file to compressed outputs.
// Orientation is left out on purpose: pixels are already auto-oriented.
var copiedTags = []string{
	"Make",
	"Model",
	"LensModel",
	"DateTimeOriginal",
	"CreateDate",
	"ModifyDate",
	"Artist",
	"Copyright",
	"ImageDescription",
	"GPSLatitude",
	"GPSLatitudeRef",
	"GPSLongitude",
	"GPSLongitudeRef",
	"GPSAltitude",
	"GPSAltitudeRef",
}

// Marker copies EXIF tags onto compressed outputs and stamps them with Mark.
// It drives a single long-lived exiftool process; calls are serialised.
type Marker struct {
	logger *logrus.Logger

	once sync.Once
	mu   sync.Mutex
	et   *exiftool.Exiftool
	err  error
}

// NewMarker returns a Marker. The exiftool process is started on first use.
func NewMarker(logger *logrus.Logger) *Marker {
	return &Marker{logger: logger}
}

func (m *Marker) tool() (*exiftool.Exiftool, error) {
	m.once.Do(func() {
		m.et, m.err = exiftool.NewExiftool()
		if m.err != nil {
			m.logger.Warnf("exiftool unavailable, outputs will not be marked: %v", m.err)
		}
	})
	return m.et, m.err
}

// CopyAndMark copies selected tags from src into dst and sets Software to Mark.
func (m *Marker) CopyAndMark(src, dst string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	et, err := m.tool()
	if err != nil {
		return fmt.Errorf("exiftool: %w", err)
	}
	if et == nil {
		return errors.New("exiftool: marker closed")
	}

	files := et.ExtractMetadata(src)
	if len(files) != 1 {
		return fmt.Errorf("exiftool returned %d results for 1 file", len(files))
	}
	if files[0].Err != nil {
		return fmt.Errorf("read %s: %w", src, files[0].Err)
	}

	// Only the copied tags and the mark are written; read-only tags such as
	// FileName or ImageSize never reach exiftool.
	out := exiftool.FileMetadata{File: dst, Fields: make(map[string]interface{}, len(copiedTags)+1)}
	for _, tag := range copiedTags {
		if v, err := files[0].GetString(tag); err == nil && v != "" {
			out.SetString(tag, v)
		}
	}
	out.SetString("Software", Mark)

	written := []exiftool.FileMetadata{out}
	et.WriteMetadata(written)
	if written[0].Err != nil {
		return fmt.Errorf("write %s: %w", dst, written[0].Err)
	}
	return nil
}

// Close stops the exiftool process if one was started.
func (m *Marker) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.et == nil {
		return nil
	}
	err := m.et.Close()
	m.et = nil
	return err
}
