package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	JobStatusCreated    = "created"
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusSucceeded  = "succeeded"
	JobStatusFailed     = "failed"

	MediaKindStatic   = "static"
	MediaKindAnimated = "animated"

	MinVersion = 1
	MaxVersion = 40

	MinEnhance = 0.1
	MaxEnhance = 10.0
)

var errorCorrectionLevels = map[string]struct{}{
	"L": {}, "M": {}, "Q": {}, "H": {},
}

// Upload is the raw uploaded background media, exactly as received.
type Upload struct {
	Filename string
	Data     []byte
}

// GenerateRequest carries everything needed to produce one QR image.
type GenerateRequest struct {
	Text       string
	Version    int
	Level      string
	Upload     *Upload
	Colorized  bool
	Contrast   float64
	Brightness float64
}

// Validate rejects malformed parameters before any media is touched.
// The upload byte ceiling is checked here too so oversized payloads
// fail before a single decode attempt.
func (r GenerateRequest) Validate(maxUploadBytes int64) error {
	if strings.TrimSpace(r.Text) == "" {
		return fmt.Errorf("%w: words must not be empty", ErrInvalidParameter)
	}
	if _, ok := errorCorrectionLevels[r.Level]; !ok {
		return fmt.Errorf("%w: level must be one of L, M, Q, H, got %q", ErrInvalidParameter, r.Level)
	}
	if r.Version < MinVersion || r.Version > MaxVersion {
		return fmt.Errorf("%w: version must be in [%d..%d], got %d", ErrInvalidParameter, MinVersion, MaxVersion, r.Version)
	}
	if r.Contrast < MinEnhance || r.Contrast > MaxEnhance {
		return fmt.Errorf("%w: contrast must be in [%.1f..%.1f], got %g", ErrInvalidParameter, MinEnhance, MaxEnhance, r.Contrast)
	}
	if r.Brightness < MinEnhance || r.Brightness > MaxEnhance {
		return fmt.Errorf("%w: brightness must be in [%.1f..%.1f], got %g", ErrInvalidParameter, MinEnhance, MaxEnhance, r.Brightness)
	}
	if r.Upload != nil {
		if strings.TrimSpace(r.Upload.Filename) == "" {
			return fmt.Errorf("%w: uploaded picture is missing a filename", ErrInvalidParameter)
		}
		if int64(len(r.Upload.Data)) > maxUploadBytes {
			return fmt.Errorf("%w: upload is %d bytes, maximum is %d", ErrPayloadTooLarge, len(r.Upload.Data), maxUploadBytes)
		}
	}
	return nil
}

// ContentTypeForKind maps a media kind to its response content type.
func ContentTypeForKind(kind string) string {
	if kind == MediaKindAnimated {
		return "image/gif"
	}
	return "image/png"
}

// Job is one asynchronous generation request tracked by the store.
type Job struct {
	ID             string
	Status         string
	Text           string
	Version        int
	Level          string
	Colorized      bool
	Contrast       float64
	Brightness     float64
	UploadKey      string
	UploadFilename string
	WebhookURL     string
	OutputKey      string
	OutputKind     string
	Failure        string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// UsageLog records per-job processing cost for billing and capacity planning.
type UsageLog struct {
	JobID         string
	FramesEmitted int64
	OutputBytes   int64
	ComputeTimeMS int64
	CreatedAt     time.Time
}
