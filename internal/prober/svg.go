package prober

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var errNoSVGSize = errors.New("svg: root element has no usable width/height or viewBox")

// svgSize reads the intrinsic size of an SVG document from its root element.
// Explicit width/height win; otherwise the viewBox extent is used.
func svgSize(r io.Reader) (int, int, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	for {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				return 0, 0, errors.New("svg: no root element")
			}
			return 0, 0, fmt.Errorf("svg: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != "svg" {
			return 0, 0, fmt.Errorf("svg: unexpected root element <%s>", start.Name.Local)
		}
		return rootSize(start.Attr)
	}
}

func rootSize(attrs []xml.Attr) (int, int, error) {
	var width, height, viewBox string
	for _, a := range attrs {
		switch a.Name.Local {
		case "width":
			width = a.Value
		case "height":
			height = a.Value
		case "viewBox":
			viewBox = a.Value
		}
	}

	w, wok := parseLength(width)
	h, hok := parseLength(height)
	if wok && hok {
		return w, h, nil
	}

	vw, vh, ok := parseViewBox(viewBox)
	if !ok {
		return 0, 0, errNoSVGSize
	}
	// A single explicit side scales the other by the viewBox aspect ratio.
	switch {
	case wok:
		return w, int(float64(w)*vh/vw + 0.5), nil
	case hok:
		return int(float64(h)*vw/vh + 0.5), h, nil
	}
	return int(vw + 0.5), int(vh + 0.5), nil
}

// parseLength accepts unitless and px lengths. Relative units have no
// intrinsic pixel size and are rejected.
func parseLength(s string) (int, bool) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "px")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return int(v + 0.5), true
}

func parseViewBox(s string) (float64, float64, bool) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	if len(fields) != 4 {
		return 0, 0, false
	}
	w, err1 := strconv.ParseFloat(fields[2], 64)
	h, err2 := strconv.ParseFloat(fields[3], 64)
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}
