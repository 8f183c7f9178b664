// Package pipeline runs one QR generation end to end: validate the
// request, stage the upload in a scoped workspace, normalize or reduce
// the media, compose the final image, and load it back before the
// workspace is released.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/mwalcott/qrforge/internal/compose"
	"github.com/mwalcott/qrforge/internal/domain"
	"github.com/mwalcott/qrforge/internal/media"
	"github.com/mwalcott/qrforge/internal/workspace"
)

// Generator orchestrates the preparation and composition steps.
type Generator struct {
	logger         *log.Logger
	workspaces     *workspace.Manager
	normalizer     *media.Normalizer
	composer       compose.Composer
	maxUploadBytes int64
}

func NewGenerator(logger *log.Logger, workspaces *workspace.Manager, normalizer *media.Normalizer, composer compose.Composer, maxUploadBytes int64) *Generator {
	return &Generator{
		logger:         logger,
		workspaces:     workspaces,
		normalizer:     normalizer,
		composer:       composer,
		maxUploadBytes: maxUploadBytes,
	}
}

// Result is the finished artifact, fully loaded into memory so the
// caller never depends on workspace files that are already gone.
type Result struct {
	Data      []byte
	Kind      string
	Filename  string
	Version   int
	Frames    int
	Truncated bool
	Degraded  bool
}

// Generate produces one QR image for req. The workspace is released
// unconditionally on every path out of this function, success or not.
func (g *Generator) Generate(ctx context.Context, req domain.GenerateRequest) (Result, error) {
	if err := req.Validate(g.maxUploadBytes); err != nil {
		return Result{}, err
	}

	handle, err := g.workspaces.Acquire(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("acquire workspace: %w", err)
	}
	defer handle.Release()

	composeReq := compose.Request{
		Text:       req.Text,
		Version:    req.Version,
		Level:      req.Level,
		Colorized:  req.Colorized,
		Contrast:   req.Contrast,
		Brightness: req.Brightness,
		SaveDir:    handle.Dir(),
	}

	result := Result{Kind: domain.MediaKindStatic, Frames: 1}

	if req.Upload != nil {
		animated := media.IsAnimated(req.Upload.Filename)
		if animated {
			result.Kind = domain.MediaKindAnimated
			composeReq.Animated = true
		}
		if !media.IsSupported(req.Upload.Filename) {
			g.logger.Printf("converting unsupported picture extension %q through the general decoder", media.Ext(req.Upload.Filename))
		}

		picturePath, reduce, err := g.stageUpload(ctx, handle, req.Upload, animated)
		if err != nil {
			return Result{}, err
		}
		composeReq.PicturePath = picturePath
		result.Frames = reduce.Frames
		result.Truncated = reduce.Truncated
		result.Degraded = reduce.Degraded
	}

	composeReq.SaveName = media.OutputName(req.Text, composeReq.Animated)

	composed, err := g.composer.Compose(ctx, composeReq)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, fmt.Errorf("%w: %v", domain.ErrCompositionFailure, err)
	}

	data, err := os.ReadFile(handle.Path(composed.OutputName))
	if err != nil {
		return Result{}, fmt.Errorf("%w: load composed output: %v", domain.ErrCompositionFailure, err)
	}

	result.Data = data
	result.Filename = composed.OutputName
	result.Version = composed.Version
	return result, nil
}

// stageUpload materializes the raw upload inside the workspace and
// normalizes it into the canonical form composition expects. The
// returned path is workspace-scoped and valid until release.
func (g *Generator) stageUpload(ctx context.Context, handle *workspace.Handle, upload *domain.Upload, animated bool) (string, media.ReduceResult, error) {
	rawPath := handle.Path(upload.Filename)
	if err := os.WriteFile(rawPath, upload.Data, 0o644); err != nil {
		return "", media.ReduceResult{}, fmt.Errorf("stage upload: %w", err)
	}

	if animated {
		destPath := handle.Path(media.NormalizedAnimatedName)
		reduce, err := g.normalizer.ReduceAnimated(ctx, upload.Data, destPath)
		if err != nil {
			return "", media.ReduceResult{}, err
		}
		return destPath, reduce, nil
	}

	destPath := handle.Path(media.NormalizedStaticName)
	if _, _, err := g.normalizer.NormalizeStatic(ctx, upload.Data, media.Ext(upload.Filename), destPath); err != nil {
		return "", media.ReduceResult{}, err
	}
	return destPath, media.ReduceResult{Frames: 1}, nil
}
