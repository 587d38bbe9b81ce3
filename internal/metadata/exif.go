package metadata

import (
	"fmt"
	"os"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
)

// Mark is written to the EXIF Software tag of compressed outputs.
const Mark = "ImageCompressor Compressed"

// OrientationNormal is the EXIF orientation of an image that needs no rotation.
const OrientationNormal = 1

// Orientation returns the EXIF orientation tag of the file (1..8).
// Files without EXIF data, or with an unreadable tag, report OrientationNormal.
func Orientation(path string) int {
	x, err := decode(path)
	if err != nil {
		return OrientationNormal
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return OrientationNormal
	}
	v, err := tag.Int(0)
	if err != nil || v < 1 || v > 8 {
		return OrientationNormal
	}
	return v
}

// Transposed reports whether an orientation swaps width and height when applied.
func Transposed(orientation int) bool {
	return orientation >= 5 && orientation <= 8
}

// IsMarked reports whether the EXIF Software tag carries Mark.
func IsMarked(path string) bool {
	x, err := decode(path)
	if err != nil {
		return false
	}
	tag, err := x.Get(exif.Software)
	if err != nil {
		return false
	}
	val, err := tag.StringVal()
	if err != nil {
		return false
	}
	return strings.Contains(val, Mark)
}

func decode(path string) (*exif.Exif, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode EXIF: %w", err)
	}
	return x, nil
}
