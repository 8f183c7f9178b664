package compose

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"image/png"
	"log"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/yeqown/go-qrcode/v2"
	"github.com/yeqown/go-qrcode/writer/standard"
)

// modulePx is the edge length of one QR module on the composed canvas.
const modulePx = 3

// plainModulePx is the module width for plain (no picture) output.
const plainModulePx = 16

// ArtisticComposer renders QR codes with go-qrcode. Without a picture
// it writes a plain code through the standard writer; with one it
// blends the module grid over the background so the picture stays
// visible between module dots.
type ArtisticComposer struct {
	logger *log.Logger
}

func NewArtisticComposer(logger *log.Logger) *ArtisticComposer {
	return &ArtisticComposer{logger: logger}
}

func (c *ArtisticComposer) Compose(ctx context.Context, req Request) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
	}

	qrc, err := qrcode.NewWith(req.Text, levelOption(req.Level))
	if err != nil {
		return Result{}, fmt.Errorf("encode text: %w", err)
	}

	outPath := filepath.Join(req.SaveDir, req.SaveName)

	if req.PicturePath == "" {
		if err := c.writePlain(qrc, outPath); err != nil {
			return Result{}, err
		}
		return Result{Version: versionFromDimension(qrc.Dimension()), Level: req.Level, OutputName: req.SaveName}, nil
	}

	cells, err := c.extractModules(qrc, req.SaveDir)
	if err != nil {
		return Result{}, err
	}

	if req.Animated {
		err = c.composeAnimated(ctx, cells, req, outPath)
	} else {
		err = c.composeStatic(cells, req, outPath)
	}
	if err != nil {
		return Result{}, err
	}

	return Result{Version: versionFromDimension(len(cells)), Level: req.Level, OutputName: req.SaveName}, nil
}

func (c *ArtisticComposer) writePlain(qrc *qrcode.QRCode, outPath string) error {
	w, err := standard.New(
		outPath,
		standard.WithQRWidth(plainModulePx),
		standard.WithBgColor(color.RGBA{R: 255, G: 255, B: 255, A: 255}),
		standard.WithFgColor(color.RGBA{A: 255}),
		standard.WithBuiltinImageEncoder(standard.PNG_FORMAT),
	)
	if err != nil {
		return fmt.Errorf("create qr writer: %w", err)
	}

	if err := qrc.Save(w); err != nil {
		return fmt.Errorf("write plain qr: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("flush plain qr: %w", err)
	}
	return nil
}

// extractModules renders the code at one pixel per module and reads the
// grid back from the pixels. The writer API only exposes the matrix
// through rendering, so a throwaway 1px render is the portable way to
// get at it.
func (c *ArtisticComposer) extractModules(qrc *qrcode.QRCode, scratchDir string) ([][]bool, error) {
	matrixPath := filepath.Join(scratchDir, "qr_matrix.png")
	defer os.Remove(matrixPath)

	w, err := standard.New(
		matrixPath,
		standard.WithQRWidth(1),
		standard.WithBorderWidth(0),
		standard.WithBgColor(color.RGBA{R: 255, G: 255, B: 255, A: 255}),
		standard.WithFgColor(color.RGBA{A: 255}),
		standard.WithBuiltinImageEncoder(standard.PNG_FORMAT),
	)
	if err != nil {
		return nil, fmt.Errorf("create matrix writer: %w", err)
	}
	if err := qrc.Save(w); err != nil {
		return nil, fmt.Errorf("render matrix: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("flush matrix render: %w", err)
	}

	f, err := os.Open(matrixPath)
	if err != nil {
		return nil, fmt.Errorf("open matrix render: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode matrix render: %w", err)
	}

	bounds := img.Bounds()
	dim := bounds.Dx()
	if dim <= 0 || dim != bounds.Dy() {
		return nil, fmt.Errorf("unexpected matrix render bounds %v", bounds)
	}

	cells := make([][]bool, dim)
	for y := 0; y < dim; y++ {
		cells[y] = make([]bool, dim)
		for x := 0; x < dim; x++ {
			r, _, _, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			cells[y][x] = r < 0x8000
		}
	}
	return cells, nil
}

func (c *ArtisticComposer) composeStatic(cells [][]bool, req Request, outPath string) error {
	bg, err := imaging.Open(req.PicturePath)
	if err != nil {
		return fmt.Errorf("open background picture: %w", err)
	}

	composed := overlayModules(cells, enhance(bg, req))

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer f.Close()

	if err := png.Encode(f, composed); err != nil {
		return fmt.Errorf("encode output png: %w", err)
	}
	return nil
}

func (c *ArtisticComposer) composeAnimated(ctx context.Context, cells [][]bool, req Request, outPath string) error {
	f, err := os.Open(req.PicturePath)
	if err != nil {
		return fmt.Errorf("open background animation: %w", err)
	}
	src, err := gif.DecodeAll(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("decode background animation: %w", err)
	}
	if len(src.Image) == 0 {
		return errors.New("background animation has no frames")
	}

	out := &gif.GIF{LoopCount: src.LoopCount}
	for i, frame := range src.Image {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		composed := overlayModules(cells, enhance(frame, req))

		paletted := image.NewPaletted(composed.Bounds(), palette.Plan9)
		draw.FloydSteinberg.Draw(paletted, composed.Bounds(), composed, image.Point{})

		out.Image = append(out.Image, paletted)
		if i < len(src.Delay) {
			out.Delay = append(out.Delay, src.Delay[i])
		} else {
			out.Delay = append(out.Delay, 10)
		}
	}

	outFile, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer outFile.Close()

	if err := gif.EncodeAll(outFile, out); err != nil {
		return fmt.Errorf("encode output gif: %w", err)
	}
	return nil
}

// enhance applies the requested contrast/brightness factors and drops
// the picture to grayscale unless colorized output was asked for.
// Factors are 1.0-neutral, matching the request contract.
func enhance(img image.Image, req Request) image.Image {
	out := img
	if !req.Colorized {
		out = imaging.Grayscale(out)
	}
	if pct := enhanceFactorToPercent(req.Contrast); pct != 0 {
		out = imaging.AdjustContrast(out, pct)
	}
	if pct := enhanceFactorToPercent(req.Brightness); pct != 0 {
		out = imaging.AdjustBrightness(out, pct)
	}
	return out
}

func enhanceFactorToPercent(factor float64) float64 {
	if factor == 0 {
		return 0
	}
	pct := (factor - 1.0) * 100
	if pct > 100 {
		pct = 100
	}
	if pct < -100 {
		pct = -100
	}
	return pct
}

// overlayModules stretches the background to the code's pixel grid and
// stamps the module pattern over it: structural regions (finder and
// timing patterns) as solid blocks so scanners lock on, everything else
// as a center dot that lets the picture show through.
func overlayModules(cells [][]bool, bg image.Image) *image.NRGBA {
	dim := len(cells)
	size := dim * modulePx

	canvas := imaging.Resize(bg, size, size, imaging.Lanczos)

	black := color.NRGBA{A: 255}
	white := color.NRGBA{R: 255, G: 255, B: 255, A: 255}

	for y := 0; y < dim; y++ {
		for x := 0; x < dim; x++ {
			moduleColor := white
			if cells[y][x] {
				moduleColor = black
			}

			if isStructural(x, y, dim) {
				fillBlock(canvas, x, y, moduleColor)
				continue
			}
			canvas.SetNRGBA(x*modulePx+1, y*modulePx+1, moduleColor)
		}
	}
	return canvas
}

// isStructural reports whether the module belongs to a finder pattern
// (with separator), a timing pattern, or the format information strips.
func isStructural(x, y, dim int) bool {
	if x < 9 && y < 9 {
		return true
	}
	if x >= dim-8 && y < 9 {
		return true
	}
	if x < 9 && y >= dim-8 {
		return true
	}
	return x == 6 || y == 6
}

func fillBlock(canvas *image.NRGBA, mx, my int, c color.NRGBA) {
	for dy := 0; dy < modulePx; dy++ {
		for dx := 0; dx < modulePx; dx++ {
			canvas.SetNRGBA(mx*modulePx+dx, my*modulePx+dy, c)
		}
	}
}

func levelOption(level string) qrcode.EncodeOption {
	switch level {
	case "L":
		return qrcode.WithErrorCorrectionLevel(qrcode.ErrorCorrectionLow)
	case "M":
		return qrcode.WithErrorCorrectionLevel(qrcode.ErrorCorrectionMedium)
	case "Q":
		return qrcode.WithErrorCorrectionLevel(qrcode.ErrorCorrectionQuart)
	default:
		return qrcode.WithErrorCorrectionLevel(qrcode.ErrorCorrectionHighest)
	}
}

// A QR symbol of version v is 17+4v modules on a side.
func versionFromDimension(dim int) int {
	if dim < 21 {
		return 1
	}
	return (dim - 17) / 4
}
