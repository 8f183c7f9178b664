// Package compose renders the final QR output: a plain code, a code
// composed over a normalized background picture, or a code composed
// over every frame of a reduced animation.
package compose

import "context"

// Request is the read-only contract handed to the composition step.
// PicturePath, when set, points at already-normalized media inside the
// request workspace; SaveDir is that same workspace.
type Request struct {
	Text        string
	Version     int
	Level       string
	PicturePath string
	Animated    bool
	Colorized   bool
	Contrast    float64
	Brightness  float64
	SaveName    string
	SaveDir     string
}

// Result reports what was actually produced. Version is the version the
// encoder settled on, which may exceed the requested hint when the
// payload needs more capacity.
type Result struct {
	Version    int
	Level      string
	OutputName string
}

type Composer interface {
	Compose(ctx context.Context, req Request) (Result, error)
}
