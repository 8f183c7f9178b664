package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log"
	"os"

	"github.com/disintegration/imaging"
	"github.com/mwalcott/qrforge/internal/domain"

	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Normalizer converts uploaded images to the canonical form the
// composition step expects: opaque RGB, longer edge bounded, PNG for
// static inputs and a reduced GIF for animated ones.
type Normalizer struct {
	logger    *log.Logger
	maxEdge   int
	maxFrames int
	static    staticNormalizer
}

func NewNormalizer(logger *log.Logger, maxEdge, maxFrames int) *Normalizer {
	if maxEdge <= 0 {
		maxEdge = 600
	}
	if maxFrames <= 0 {
		maxFrames = 50
	}
	return &Normalizer{
		logger:    logger,
		maxEdge:   maxEdge,
		maxFrames: maxFrames,
		static:    newStaticNormalizer(),
	}
}

// NormalizeStatic decodes input, flattens it to opaque RGB, bounds the
// longer edge, and persists the result as PNG at destPath. The returned
// dimensions are those of the persisted image. Decode failures are
// client-input errors naming the offending extension.
func (n *Normalizer) NormalizeStatic(ctx context.Context, input []byte, ext, destPath string) (int, int, error) {
	select {
	case <-ctx.Done():
		return 0, 0, ctx.Err()
	default:
	}

	data, width, height, err := n.static.normalize(input, ext, n.maxEdge)
	if err != nil {
		return 0, 0, err
	}

	if err := os.WriteFile(destPath, data, 0o644); err != nil {
		return 0, 0, fmt.Errorf("write normalized image: %w", err)
	}
	return width, height, nil
}

// staticNormalizer is the per-build-mode static path: the portable
// implementation uses stdlib image + imaging, the govips build uses
// libvips. Both return encoded PNG bytes.
type staticNormalizer interface {
	normalize(input []byte, ext string, maxEdge int) (data []byte, width, height int, err error)
}

type stdNormalizer struct{}

func (stdNormalizer) normalize(input []byte, ext string, maxEdge int) ([]byte, int, int, error) {
	src, _, err := image.Decode(bytes.NewReader(input))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: cannot decode %q picture: %v", domain.ErrUnsupportedMedia, ext, err)
	}

	out := boundEdge(flattenToOpaque(src), maxEdge)

	var buf bytes.Buffer
	encoder := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err := encoder.Encode(&buf, out); err != nil {
		return nil, 0, 0, fmt.Errorf("encode normalized png: %w", err)
	}

	bounds := out.Bounds()
	return buf.Bytes(), bounds.Dx(), bounds.Dy(), nil
}

// colorMode tags the decoded image's pixel representation so each
// variant gets exactly one conversion function.
type colorMode int

const (
	modeOpaqueRGB colorMode = iota
	modeAlpha
	modePalette
	modeLuminance
)

func classifyColorMode(img image.Image) colorMode {
	switch img.(type) {
	case *image.Paletted:
		return modePalette
	case *image.NRGBA, *image.NRGBA64, *image.RGBA, *image.RGBA64:
		// Grayscale-with-alpha sources also decode into these types.
		return modeAlpha
	case *image.Gray, *image.Gray16:
		return modeLuminance
	default:
		return modeOpaqueRGB
	}
}

// flattenToOpaque converts any decoded image to fully opaque RGB.
// Transparent pixels are composited onto a white canvas using the alpha
// channel (or the palette's transparency) as the blend mask.
func flattenToOpaque(src image.Image) *image.NRGBA {
	switch classifyColorMode(src) {
	case modeAlpha:
		return flattenAlpha(src)
	case modePalette:
		return flattenPalette(src.(*image.Paletted))
	case modeLuminance:
		return convertLuminance(src)
	default:
		return convertOpaque(src)
	}
}

func flattenAlpha(src image.Image) *image.NRGBA {
	dst := newWhiteCanvas(src.Bounds())
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Over)
	return dst
}

func flattenPalette(src *image.Paletted) *image.NRGBA {
	// Expand to full color+alpha first; palette entries may carry
	// transparency.
	expanded := image.NewNRGBA(src.Bounds())
	draw.Draw(expanded, expanded.Bounds(), src, src.Bounds().Min, draw.Src)
	return flattenAlpha(expanded)
}

func convertLuminance(src image.Image) *image.NRGBA {
	// Single channel: plain conversion, no transparency to resolve.
	dst := image.NewNRGBA(src.Bounds())
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	return dst
}

func convertOpaque(src image.Image) *image.NRGBA {
	dst := image.NewNRGBA(src.Bounds())
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	return dst
}

func newWhiteCanvas(bounds image.Rectangle) *image.NRGBA {
	dst := image.NewNRGBA(bounds)
	draw.Draw(dst, bounds, image.NewUniform(color.NRGBA{R: 255, G: 255, B: 255, A: 255}), image.Point{}, draw.Src)
	return dst
}

// boundEdge scales img down so its longer edge does not exceed maxEdge,
// preserving aspect ratio with Lanczos resampling. Never scales up.
func boundEdge(img *image.NRGBA, maxEdge int) *image.NRGBA {
	bounds := img.Bounds()
	if bounds.Dx() <= maxEdge && bounds.Dy() <= maxEdge {
		return img
	}
	return imaging.Fit(img, maxEdge, maxEdge, imaging.Lanczos)
}
