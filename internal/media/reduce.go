package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"os"
)

// DefaultFrameDelayMS substitutes a frame delay that is missing or
// unreadable; never a reason to fail the whole reduction.
const DefaultFrameDelayMS = 100

// gif delays are expressed in hundredths of a second.
const gifDelayUnitMS = 10

// ReduceResult reports what the reducer actually did with an animated
// upload.
type ReduceResult struct {
	Frames    int
	Truncated bool
	// Degraded is set when reduction failed and the original upload
	// was passed through unmodified.
	Degraded bool
}

// ReduceAnimated extracts up to maxFrames frames from an animated
// input, normalizes each one (opaque RGB, bounded longer edge), and
// reassembles them at destPath with per-frame delays preserved and an
// infinite loop count.
//
// Reduction never fails the request: on any error the original bytes
// are written to destPath unmodified and the degrade is logged as a
// warning. Producing an oversized output beats rejecting the request.
func (n *Normalizer) ReduceAnimated(ctx context.Context, input []byte, destPath string) (ReduceResult, error) {
	result, err := n.reduceFrames(ctx, input, destPath)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return ReduceResult{}, err
		}
		n.logger.Printf("WARN gif reduction failed, using original GIF without reduction: %v", err)
		if werr := os.WriteFile(destPath, input, 0o644); werr != nil {
			return ReduceResult{}, fmt.Errorf("write fallback gif: %w", werr)
		}
		return ReduceResult{Degraded: true}, nil
	}
	return result, nil
}

func (n *Normalizer) reduceFrames(ctx context.Context, input []byte, destPath string) (ReduceResult, error) {
	src, err := gif.DecodeAll(bytes.NewReader(input))
	if err != nil {
		return ReduceResult{}, fmt.Errorf("decode animated input: %w", err)
	}
	if len(src.Image) == 0 {
		return ReduceResult{}, errors.New("animated input has no frames")
	}

	canvas := newWhiteCanvas(logicalScreen(src))

	out := &gif.GIF{LoopCount: 0}
	truncated := false
	for i, frame := range src.Image {
		select {
		case <-ctx.Done():
			return ReduceResult{}, ctx.Err()
		default:
		}

		if i >= n.maxFrames {
			truncated = true
			n.logger.Printf("limited animated input to %d frames", n.maxFrames)
			break
		}

		// Coalesce: partial frames update the running canvas at
		// their original positions.
		draw.Draw(canvas, frame.Bounds(), frame, frame.Bounds().Min, draw.Over)

		normalized := boundEdge(cloneCanvas(canvas), n.maxEdge)

		paletted := image.NewPaletted(normalized.Bounds(), palette.Plan9)
		draw.FloydSteinberg.Draw(paletted, normalized.Bounds(), normalized, image.Point{})

		out.Image = append(out.Image, paletted)
		out.Delay = append(out.Delay, frameDelay(src, i))
	}

	f, err := os.Create(destPath)
	if err != nil {
		return ReduceResult{}, fmt.Errorf("create reduced gif: %w", err)
	}
	defer f.Close()

	if err := gif.EncodeAll(f, out); err != nil {
		return ReduceResult{}, fmt.Errorf("encode reduced gif: %w", err)
	}

	return ReduceResult{Frames: len(out.Image), Truncated: truncated}, nil
}

func logicalScreen(g *gif.GIF) image.Rectangle {
	if g.Config.Width > 0 && g.Config.Height > 0 {
		return image.Rect(0, 0, g.Config.Width, g.Config.Height)
	}
	return g.Image[0].Bounds()
}

func frameDelay(g *gif.GIF, i int) int {
	delayMS := 0
	if i < len(g.Delay) {
		delayMS = g.Delay[i] * gifDelayUnitMS
	}
	if delayMS <= 0 {
		delayMS = DefaultFrameDelayMS
	}
	return delayMS / gifDelayUnitMS
}

func cloneCanvas(src *image.NRGBA) *image.NRGBA {
	dst := image.NewNRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	return dst
}
