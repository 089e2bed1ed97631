package model

import "encoding/json"

const (
	DefaultFrameRate             = 30
	DefaultTransitionSeconds     = 1.0
	DefaultBackgroundMusicVolume = 0.1
)

// Composition is the body of POST /render.
type Composition struct {
	CompositionID         string    `json:"compositionId,omitempty" validate:"omitempty,oneof=CineVideo ShortsVideo"`
	Scenes                []Scene   `json:"scenes" validate:"required,min=1,dive"`
	FrameRate             int       `json:"frameRate" validate:"gt=0,lte=120"`
	FPS                   int       `json:"fps,omitempty" validate:"-"`
	SelectedSubrange      *Subrange `json:"selectedSubrange,omitempty"`
	BackgroundMusic       string    `json:"backgroundMusic,omitempty"`
	BackgroundMusicVolume *float64  `json:"backgroundMusicVolume,omitempty" validate:"omitempty,gte=0,lte=1"`
	AudioDucking          *bool     `json:"audioDucking,omitempty"`
}

// Scene is one timed segment of a composition.
type Scene struct {
	Assets                      []string        `json:"assets" validate:"required,min=1,dive,required"`
	Images                      []string        `json:"images,omitempty" validate:"-"`
	Audio                       string          `json:"audio,omitempty"`
	DurationInSeconds           float64         `json:"durationInSeconds" validate:"gt=0"`
	TransitionAfter             *TransitionKind `json:"transitionAfter,omitempty"`
	TransitionDurationInSeconds float64         `json:"transitionDurationInSeconds,omitempty" validate:"gt=0"`
	TransitionDuration          float64         `json:"transitionDuration,omitempty" validate:"-"`
	ZoomDirection               ZoomDirection   `json:"zoomDirection,omitempty" validate:"omitempty,oneof=in out left-to-right right-to-left still"`
	VisualEffects               json.RawMessage `json:"visualEffects,omitempty"`
}

// Subrange selects a labeled excerpt ("short") of the full timeline.
type Subrange struct {
	StartInSeconds float64 `json:"startInSeconds" validate:"gte=0"`
	EndInSeconds   float64 `json:"endInSeconds" validate:"gtfield=StartInSeconds"`
}

// ApplyDefaults folds legacy aliases into the canonical fields and fills defaults.
func (c *Composition) ApplyDefaults() {
	c.FrameRate = c.EffectiveFrameRate()
	c.FPS = 0

	if c.BackgroundMusicVolume == nil {
		v := DefaultBackgroundMusicVolume
		c.BackgroundMusicVolume = &v
	}
	if c.AudioDucking == nil {
		v := true
		c.AudioDucking = &v
	}

	for i := range c.Scenes {
		s := &c.Scenes[i]
		if len(s.Assets) == 0 && len(s.Images) > 0 {
			s.Assets = s.Images
		}
		s.Images = nil
		s.TransitionDurationInSeconds = s.EffectiveTransitionDuration()
		s.TransitionDuration = 0
		if s.ZoomDirection == "" {
			s.ZoomDirection = ZoomIn
		}
	}
}

// EffectiveFrameRate resolves frameRate, then the fps alias, then the default.
func (c *Composition) EffectiveFrameRate() int {
	if c.FrameRate != 0 {
		return c.FrameRate
	}
	if c.FPS != 0 {
		return c.FPS
	}
	return DefaultFrameRate
}

// ResolveCompositionID picks the renderer composition for this request.
func (c *Composition) ResolveCompositionID(fallback string) string {
	switch {
	case c.CompositionID != "":
		return c.CompositionID
	case c.SelectedSubrange != nil:
		return CompositionShorts
	case fallback != "":
		return fallback
	default:
		return CompositionCine
	}
}

// HasTransition reports whether the scene overlaps the one after it.
func (s *Scene) HasTransition() bool {
	return s.TransitionAfter != nil && *s.TransitionAfter != TransitionNone
}

// EffectiveTransitionDuration falls back to the legacy alias, then one second.
func (s *Scene) EffectiveTransitionDuration() float64 {
	if s.TransitionDurationInSeconds != 0 {
		return s.TransitionDurationInSeconds
	}
	if s.TransitionDuration != 0 {
		return s.TransitionDuration
	}
	return DefaultTransitionSeconds
}

// RenderStartResponse is returned by POST /render
type RenderStartResponse struct {
	Status  string `json:"status"`
	JobID   string `json:"jobId"`
	PollURL string `json:"pollUrl"`
}

// RenderCancelResponse is returned by POST /cancel/:jobId
type RenderCancelResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"jobId"`
	Status  string `json:"status"`
}

// Artifact is a persisted render output
type Artifact struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

// FilesResponse is returned by GET /files
type FilesResponse struct {
	Renders []Artifact `json:"renders"`
}
