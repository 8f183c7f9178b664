//go:build govips && cgo

package media

import (
	"fmt"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/mwalcott/qrforge/internal/domain"
)

// govipsNormalizer is the libvips-backed static path: flatten onto
// white, bound the longer edge, export PNG.
type govipsNormalizer struct{}

func (govipsNormalizer) normalize(input []byte, ext string, maxEdge int) ([]byte, int, int, error) {
	img, err := vips.NewImageFromBuffer(input)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: cannot decode %q picture: %v", domain.ErrUnsupportedMedia, ext, err)
	}
	defer img.Close()

	if img.HasAlpha() {
		if err := img.Flatten(&vips.Color{R: 255, G: 255, B: 255}); err != nil {
			return nil, 0, 0, fmt.Errorf("flatten transparency: %w", err)
		}
	}

	longer := max(img.Width(), img.Height())
	if longer > maxEdge {
		scale := float64(maxEdge) / float64(longer)
		if err := img.Resize(scale, vips.KernelLanczos3); err != nil {
			return nil, 0, 0, fmt.Errorf("resize image: %w", err)
		}
	}

	data, _, err := img.ExportPng(vips.NewPngExportParams())
	if err != nil {
		return nil, 0, 0, fmt.Errorf("encode normalized png: %w", err)
	}
	return data, img.Width(), img.Height(), nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
