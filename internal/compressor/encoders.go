package compressor

import (
	"errors"
	"image"
	"image/png"
	"io"
	"sort"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/svg"
)

const svgMediaType = "image/svg+xml"

var errSVGSource = errors.New("svg output requires an svg source")

// Source is the input handed to encoders. Image is set when a raster encoder
// was requested, Data when a document encoder was.
type Source struct {
	Path  string
	Ext   string // lowercase, without dot
	Image image.Image
	Data  []byte
}

// Encoder writes a Source in one output format.
type Encoder interface {
	// Extension is the file extension of the output, without dot.
	Extension() string
	// Raster reports whether the encoder needs decoded pixels.
	Raster() bool
	Encode(w io.Writer, src *Source, quality int) error
}

type pngEncoder struct{}

func (pngEncoder) Extension() string { return "png" }
func (pngEncoder) Raster() bool      { return true }

// Encode writes lossless PNG; quality does not apply.
func (pngEncoder) Encode(w io.Writer, src *Source, _ int) error {
	return imaging.Encode(w, src.Image, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression))
}

type jpegEncoder struct {
	ext string
}

func (e jpegEncoder) Extension() string { return e.ext }
func (jpegEncoder) Raster() bool        { return true }

func (jpegEncoder) Encode(w io.Writer, src *Source, quality int) error {
	return imaging.Encode(w, src.Image, imaging.JPEG, imaging.JPEGQuality(quality))
}

type webpEncoder struct{}

func (webpEncoder) Extension() string { return "webp" }
func (webpEncoder) Raster() bool      { return true }

func (webpEncoder) Encode(w io.Writer, src *Source, quality int) error {
	return webp.Encode(w, src.Image, &webp.Options{Quality: float32(quality)})
}

type svgEncoder struct {
	m *minify.M
}

func newSVGEncoder() svgEncoder {
	m := minify.New()
	m.AddFunc(svgMediaType, svg.Minify)
	return svgEncoder{m: m}
}

func (svgEncoder) Extension() string { return "svg" }
func (svgEncoder) Raster() bool      { return false }

// Encode minifies the SVG document; quality does not apply.
func (e svgEncoder) Encode(w io.Writer, src *Source, _ int) error {
	if src.Ext != "svg" {
		return errSVGSource
	}
	out, err := e.m.Bytes(svgMediaType, src.Data)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

// defaultEncoders maps request format identifiers to encoders.
// Identifiers are matched case-sensitively.
func defaultEncoders() map[string]Encoder {
	return map[string]Encoder{
		"png":  pngEncoder{},
		"jpg":  jpegEncoder{ext: "jpg"},
		"jpeg": jpegEncoder{ext: "jpeg"},
		"webp": webpEncoder{},
		"svg":  newSVGEncoder(),
	}
}

func encoderNames(encoders map[string]Encoder) []string {
	names := make([]string, 0, len(encoders))
	for name := range encoders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SourceFormat returns the output format that re-encodes path in its own type.
func SourceFormat(path string) string {
	ext := lowerExt(path)
	if ext == "jpeg" {
		return "jpg"
	}
	return ext
}

func sameFormat(srcExt, format string) bool {
	norm := func(s string) string {
		if s == "jpeg" {
			return "jpg"
		}
		return s
	}
	return norm(srcExt) == norm(format)
}
