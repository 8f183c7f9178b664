// Package domain holds the request/job model and the error taxonomy
// shared by the API, pipeline, and worker.
package domain

import "errors"

// Sentinel errors classifying every failure the pipeline can surface.
// Handlers map the first three to client errors and the last to a
// server error.
var (
	ErrInvalidParameter   = errors.New("invalid parameter")
	ErrPayloadTooLarge    = errors.New("payload too large")
	ErrUnsupportedMedia   = errors.New("unsupported media")
	ErrCompositionFailure = errors.New("composition failed")
)
