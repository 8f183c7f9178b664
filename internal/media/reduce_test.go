package media

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"os"
	"path/filepath"
	"testing"
)

func buildTestGIF(t *testing.T, frames int, size int, delays []int) []byte {
	t.Helper()

	out := &gif.GIF{LoopCount: 0}
	for i := 0; i < frames; i++ {
		pal := color.Palette{
			color.RGBA{A: 255},
			color.RGBA{R: uint8(50 + i*3), G: uint8(200 - i*2), B: 90, A: 255},
		}
		frame := image.NewPaletted(image.Rect(0, 0, size, size), pal)
		for p := range frame.Pix {
			frame.Pix[p] = 1
		}
		out.Image = append(out.Image, frame)

		delay := 10
		if i < len(delays) {
			delay = delays[i]
		}
		out.Delay = append(out.Delay, delay)
	}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, out); err != nil {
		t.Fatalf("encode test gif: %v", err)
	}
	return buf.Bytes()
}

func decodeGIFFile(t *testing.T, path string) *gif.GIF {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	g, err := gif.DecodeAll(f)
	if err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return g
}

func TestReduceAnimatedCapsFrameCount(t *testing.T) {
	n := testNormalizer(t)
	dest := filepath.Join(t.TempDir(), NormalizedAnimatedName)

	input := buildTestGIF(t, 60, 16, nil)

	result, err := n.ReduceAnimated(context.Background(), input, dest)
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if result.Degraded {
		t.Fatal("expected reduction to succeed")
	}
	if !result.Truncated {
		t.Fatal("expected truncation for 60-frame input")
	}
	if result.Frames != 50 {
		t.Fatalf("expected exactly 50 frames, got %d", result.Frames)
	}

	out := decodeGIFFile(t, dest)
	if len(out.Image) != 50 {
		t.Fatalf("expected 50 encoded frames, got %d", len(out.Image))
	}
	if out.LoopCount != 0 {
		t.Fatalf("expected infinite loop count, got %d", out.LoopCount)
	}
}

func TestReduceAnimatedPreservesFramesAndDelays(t *testing.T) {
	n := testNormalizer(t)
	dest := filepath.Join(t.TempDir(), NormalizedAnimatedName)

	delays := []int{20, 30, 40}
	input := buildTestGIF(t, 3, 16, delays)

	result, err := n.ReduceAnimated(context.Background(), input, dest)
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if result.Truncated || result.Degraded {
		t.Fatalf("expected clean pass-through, got %+v", result)
	}
	if result.Frames != 3 {
		t.Fatalf("expected 3 frames, got %d", result.Frames)
	}

	out := decodeGIFFile(t, dest)
	for i, want := range delays {
		if out.Delay[i] != want {
			t.Fatalf("frame %d: expected delay %d, got %d", i, want, out.Delay[i])
		}
	}
}

func TestReduceAnimatedSubstitutesDefaultDelay(t *testing.T) {
	n := testNormalizer(t)
	dest := filepath.Join(t.TempDir(), NormalizedAnimatedName)

	input := buildTestGIF(t, 2, 16, []int{0, 0})

	if _, err := n.ReduceAnimated(context.Background(), input, dest); err != nil {
		t.Fatalf("reduce: %v", err)
	}

	out := decodeGIFFile(t, dest)
	for i, delay := range out.Delay {
		if delay != DefaultFrameDelayMS/gifDelayUnitMS {
			t.Fatalf("frame %d: expected default delay %d, got %d", i, DefaultFrameDelayMS/gifDelayUnitMS, delay)
		}
	}
}

func TestReduceAnimatedBoundsFrameDimensions(t *testing.T) {
	n := NewNormalizer(testNormalizer(t).logger, 100, 50)
	dest := filepath.Join(t.TempDir(), NormalizedAnimatedName)

	input := buildTestGIF(t, 2, 400, nil)

	if _, err := n.ReduceAnimated(context.Background(), input, dest); err != nil {
		t.Fatalf("reduce: %v", err)
	}

	out := decodeGIFFile(t, dest)
	for i, frame := range out.Image {
		if frame.Bounds().Dx() > 100 || frame.Bounds().Dy() > 100 {
			t.Fatalf("frame %d exceeds bound: %v", i, frame.Bounds())
		}
	}
}

func TestReduceAnimatedNeverScalesUp(t *testing.T) {
	n := testNormalizer(t)
	dest := filepath.Join(t.TempDir(), NormalizedAnimatedName)

	input := buildTestGIF(t, 3, 200, nil)

	if _, err := n.ReduceAnimated(context.Background(), input, dest); err != nil {
		t.Fatalf("reduce: %v", err)
	}

	out := decodeGIFFile(t, dest)
	if len(out.Image) != 3 {
		t.Fatalf("expected all 3 frames retained, got %d", len(out.Image))
	}
	for i, frame := range out.Image {
		if frame.Bounds().Dx() != 200 || frame.Bounds().Dy() != 200 {
			t.Fatalf("frame %d: expected 200x200 untouched, got %v", i, frame.Bounds())
		}
	}
}

func TestReduceAnimatedFallsBackToOriginalOnError(t *testing.T) {
	n := testNormalizer(t)
	dest := filepath.Join(t.TempDir(), NormalizedAnimatedName)

	input := []byte("definitely not a gif")

	result, err := n.ReduceAnimated(context.Background(), input, dest)
	if err != nil {
		t.Fatalf("expected degrade instead of failure, got %v", err)
	}
	if !result.Degraded {
		t.Fatal("expected degraded result")
	}

	written, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read fallback: %v", err)
	}
	if !bytes.Equal(written, input) {
		t.Fatal("expected original bytes to be passed through unmodified")
	}
}
