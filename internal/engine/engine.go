// Package engine drives the external video renderer. The queue only awaits
// Render; engines may fan out to as many processes as they like.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cinevideo/api/internal/config"
	"github.com/cinevideo/api/internal/model"
	"github.com/cinevideo/api/internal/timeline"
)

var ErrUnknownComposition = errors.New("unknown composition")

// ProgressFunc receives the fraction of frames rendered so far.
type ProgressFunc func(progress float64)

// Request is everything an engine needs to produce one artifact.
type Request struct {
	JobID         string
	CompositionID string
	Width         int
	Height        int
	Codec         string
	Props         *model.Composition
	Timeline      timeline.Timeline
	OutputPath    string
}

// Renderer turns a compiled composition into a video file at OutputPath.
// Implementations must return promptly once ctx is canceled.
type Renderer interface {
	Name() string
	Render(ctx context.Context, req Request, progress ProgressFunc) error
}

// Composition is a renderer-side composition definition.
type Composition struct {
	ID     string
	Width  int
	Height int
}

var compositions = map[string]Composition{
	model.CompositionCine:   {ID: model.CompositionCine, Width: 1920, Height: 1080},
	model.CompositionShorts: {ID: model.CompositionShorts, Width: 1080, Height: 1920},
}

// LookupComposition returns the registered composition for id.
func LookupComposition(id string) (Composition, error) {
	c, ok := compositions[id]
	if !ok {
		return Composition{}, fmt.Errorf("%w: %s", ErrUnknownComposition, id)
	}
	return c, nil
}

// New builds the renderer selected by cfg.Engine.
func New(cfg config.RenderConfig, log zerolog.Logger) (Renderer, error) {
	switch cfg.Engine {
	case config.EngineSimulated, "":
		return NewSimulated(cfg.FrameDelay), nil
	case config.EngineRemotion:
		return NewRemotion(RemotionOptions{
			Bin:           cfg.RemotionBin,
			EntryPoint:    cfg.EntryPoint,
			WorkDir:       cfg.WorkDir,
			Concurrency:   cfg.Concurrency,
			ChromiumFlags: cfg.ChromiumFlags,
		}, log), nil
	case config.EngineFFmpeg:
		return NewFFmpeg(FFmpegOptions{
			Bin:       cfg.FFmpegBin,
			AssetsDir: cfg.AssetsDir,
		}, log), nil
	default:
		return nil, fmt.Errorf("unknown render engine %q", cfg.Engine)
	}
}
