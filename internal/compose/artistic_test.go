package compose

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
)

func testComposer() *ArtisticComposer {
	return NewArtisticComposer(log.New(io.Discard, "", 0))
}

func baseRequest(dir string) Request {
	return Request{
		Text:       "https://example.com",
		Version:    1,
		Level:      "H",
		Contrast:   1.0,
		Brightness: 1.0,
		SaveName:   "out.png",
		SaveDir:    dir,
	}
}

func TestComposePlainProducesDecodablePNG(t *testing.T) {
	dir := t.TempDir()
	req := baseRequest(dir)

	result, err := testComposer().Compose(context.Background(), req)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if result.OutputName != "out.png" {
		t.Fatalf("expected out.png, got %s", result.OutputName)
	}
	if result.Version < 1 || result.Version > 40 {
		t.Fatalf("expected version in [1..40], got %d", result.Version)
	}

	data, err := os.ReadFile(filepath.Join(dir, result.OutputName))
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected nonzero output")
	}
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Fatalf("decode output: %v", err)
	}
}

func TestComposeStaticOverBackground(t *testing.T) {
	dir := t.TempDir()

	bg := image.NewNRGBA(image.Rect(0, 0, 120, 120))
	for y := 0; y < 120; y++ {
		for x := 0; x < 120; x++ {
			bg.SetNRGBA(x, y, color.NRGBA{R: 30, G: 160, B: 220, A: 255})
		}
	}
	bgPath := filepath.Join(dir, "normalized.png")
	f, err := os.Create(bgPath)
	if err != nil {
		t.Fatalf("create background: %v", err)
	}
	if err := png.Encode(f, bg); err != nil {
		t.Fatalf("encode background: %v", err)
	}
	f.Close()

	req := baseRequest(dir)
	req.PicturePath = bgPath
	req.Colorized = true

	result, err := testComposer().Compose(context.Background(), req)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}

	out, err := os.Open(filepath.Join(dir, result.OutputName))
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer out.Close()

	img, err := png.Decode(out)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}

	wantSize := (17 + 4*result.Version) * modulePx
	if img.Bounds().Dx() != wantSize || img.Bounds().Dy() != wantSize {
		t.Fatalf("expected %dx%d canvas, got %v", wantSize, wantSize, img.Bounds())
	}

	// Top-left finder pattern corner module must be solid black.
	r, g, b, _ := img.At(1, 1).RGBA()
	if r != 0 || g != 0 || b != 0 {
		t.Fatalf("expected solid finder module, got rgb=%d,%d,%d", r>>8, g>>8, b>>8)
	}
}

func TestComposeAnimatedPreservesFramesAndDelays(t *testing.T) {
	dir := t.TempDir()

	src := &gif.GIF{LoopCount: 0}
	delays := []int{15, 25, 35}
	for i := 0; i < 3; i++ {
		pal := color.Palette{
			color.RGBA{R: uint8(80 * i), G: 100, B: 150, A: 255},
			color.RGBA{R: 255, G: 255, B: 255, A: 255},
		}
		frame := image.NewPaletted(image.Rect(0, 0, 90, 90), pal)
		src.Image = append(src.Image, frame)
		src.Delay = append(src.Delay, delays[i])
	}

	gifPath := filepath.Join(dir, "reduced.gif")
	f, err := os.Create(gifPath)
	if err != nil {
		t.Fatalf("create background gif: %v", err)
	}
	if err := gif.EncodeAll(f, src); err != nil {
		t.Fatalf("encode background gif: %v", err)
	}
	f.Close()

	req := baseRequest(dir)
	req.PicturePath = gifPath
	req.Animated = true
	req.SaveName = "out.gif"

	result, err := testComposer().Compose(context.Background(), req)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}

	out, err := os.Open(filepath.Join(dir, result.OutputName))
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer out.Close()

	composed, err := gif.DecodeAll(out)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if len(composed.Image) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(composed.Image))
	}
	if composed.LoopCount != 0 {
		t.Fatalf("expected infinite loop, got %d", composed.LoopCount)
	}
	for i, want := range delays {
		if composed.Delay[i] != want {
			t.Fatalf("frame %d: expected delay %d, got %d", i, want, composed.Delay[i])
		}
	}
}

func TestComposeRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testComposer().Compose(ctx, baseRequest(t.TempDir()))
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
