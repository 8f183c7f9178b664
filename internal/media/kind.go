// Package media prepares arbitrary uploaded images for QR composition:
// it detects the input kind, flattens color modes to opaque RGB, bounds
// dimensions, and reduces animated inputs to a bounded frame sequence.
package media

import (
	"path/filepath"
	"strings"
)

// Fixed workspace names for normalized outputs.
const (
	NormalizedStaticName   = "normalized.png"
	NormalizedAnimatedName = "reduced.gif"
)

// The set of formats the composition step accepts directly. Anything
// else is run through the general decoder and re-encoded as PNG.
var supportedExts = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".bmp": {}, ".gif": {},
}

func Ext(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

func IsAnimated(filename string) bool {
	return Ext(filename) == ".gif"
}

func IsSupported(filename string) bool {
	_, ok := supportedExts[Ext(filename)]
	return ok
}
