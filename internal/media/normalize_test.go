package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/mwalcott/qrforge/internal/domain"
)

func testNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	return NewNormalizer(log.New(io.Discard, "", 0), 600, 50)
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func decodeFile(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return img
}

func TestNormalizeStaticKeepsSmallOpaqueImage(t *testing.T) {
	n := testNormalizer(t)
	dest := filepath.Join(t.TempDir(), NormalizedStaticName)

	src := image.NewNRGBA(image.Rect(0, 0, 300, 300))
	for y := 0; y < 300; y++ {
		for x := 0; x < 300; x++ {
			src.SetNRGBA(x, y, color.NRGBA{R: uint8(x % 256), G: uint8(y % 256), B: 120, A: 255})
		}
	}

	w, h, err := n.NormalizeStatic(context.Background(), encodePNG(t, src), ".png", dest)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if w != 300 || h != 300 {
		t.Fatalf("expected 300x300, got %dx%d (no scale-up, no scale-down)", w, h)
	}

	out := decodeFile(t, dest)
	if !isFullyOpaque(out) {
		t.Fatal("expected fully opaque output")
	}
}

func TestNormalizeStaticBoundsLongerEdge(t *testing.T) {
	n := testNormalizer(t)
	dest := filepath.Join(t.TempDir(), NormalizedStaticName)

	src := image.NewNRGBA(image.Rect(0, 0, 1200, 600))

	w, h, err := n.NormalizeStatic(context.Background(), encodePNG(t, src), ".png", dest)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if w != 600 || h != 300 {
		t.Fatalf("expected 600x300 preserving aspect ratio, got %dx%d", w, h)
	}
}

func TestNormalizeStaticFlattensAlphaOntoWhite(t *testing.T) {
	n := testNormalizer(t)
	dest := filepath.Join(t.TempDir(), NormalizedStaticName)

	src := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	// Left half fully transparent, right half opaque red.
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			if x < 5 {
				src.SetNRGBA(x, y, color.NRGBA{})
			} else {
				src.SetNRGBA(x, y, color.NRGBA{R: 200, A: 255})
			}
		}
	}

	if _, _, err := n.NormalizeStatic(context.Background(), encodePNG(t, src), ".png", dest); err != nil {
		t.Fatalf("normalize: %v", err)
	}

	out := decodeFile(t, dest)
	r, g, b, a := out.At(2, 2).RGBA()
	if r != 0xffff || g != 0xffff || b != 0xffff || a != 0xffff {
		t.Fatalf("expected transparent pixel to become exact white, got rgba=%d,%d,%d,%d", r, g, b, a)
	}
	r, _, _, _ = out.At(7, 7).RGBA()
	if r>>8 != 200 {
		t.Fatalf("expected opaque pixel to keep its color, got r=%d", r>>8)
	}
}

func TestNormalizeStaticConvertsGrayscale(t *testing.T) {
	n := testNormalizer(t)
	dest := filepath.Join(t.TempDir(), NormalizedStaticName)

	src := image.NewGray(image.Rect(0, 0, 8, 8))
	for i := range src.Pix {
		src.Pix[i] = 77
	}

	if _, _, err := n.NormalizeStatic(context.Background(), encodePNG(t, src), ".png", dest); err != nil {
		t.Fatalf("normalize: %v", err)
	}

	out := decodeFile(t, dest)
	r, g, b, a := out.At(4, 4).RGBA()
	if r>>8 != 77 || g>>8 != 77 || b>>8 != 77 || a != 0xffff {
		t.Fatalf("expected opaque gray 77, got rgba=%d,%d,%d,%d", r>>8, g>>8, b>>8, a>>8)
	}
}

func TestNormalizeStaticFlattensPaletteTransparency(t *testing.T) {
	n := testNormalizer(t)
	dest := filepath.Join(t.TempDir(), NormalizedStaticName)

	pal := color.Palette{
		color.NRGBA{},                            // transparent
		color.NRGBA{R: 10, G: 20, B: 30, A: 255}, // opaque
	}
	src := image.NewPaletted(image.Rect(0, 0, 4, 4), pal)
	src.SetColorIndex(0, 0, 0)
	src.SetColorIndex(3, 3, 1)

	if _, _, err := n.NormalizeStatic(context.Background(), encodePNG(t, src), ".png", dest); err != nil {
		t.Fatalf("normalize: %v", err)
	}

	out := decodeFile(t, dest)
	r, g, b, _ := out.At(0, 0).RGBA()
	if r != 0xffff || g != 0xffff || b != 0xffff {
		t.Fatalf("expected transparent palette entry to flatten to white, got %d,%d,%d", r>>8, g>>8, b>>8)
	}
}

func TestNormalizeStaticRejectsCorruptInput(t *testing.T) {
	n := testNormalizer(t)
	dest := filepath.Join(t.TempDir(), NormalizedStaticName)

	_, _, err := n.NormalizeStatic(context.Background(), []byte("not an image"), ".webp", dest)
	if !errors.Is(err, domain.ErrUnsupportedMedia) {
		t.Fatalf("expected ErrUnsupportedMedia, got %v", err)
	}
	if err == nil || !bytes.Contains([]byte(err.Error()), []byte(".webp")) {
		t.Fatalf("expected error to name the offending extension, got %v", err)
	}
}

func isFullyOpaque(img image.Image) bool {
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xffff {
				return false
			}
		}
	}
	return true
}
