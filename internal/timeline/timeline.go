// Package timeline compiles a composition's per-scene durations and transition
// overlaps into a frame-accurate global schedule.
//
// Adjacent scenes joined by a transition are rendered as an overlapping
// cross-dissolve, so the overlapped span is counted once:
//
//	total = sum(round(d_i*fps)) - sum(round(t_i*fps) for i < n-1 with a transition)
//
// clamped to at least one frame. A selected subrange bypasses accumulation and
// yields round((end-start)*fps) frames starting at global frame round(start*fps).
package timeline

import (
	"errors"
	"math"

	"github.com/cinevideo/api/internal/model"
)

var (
	ErrNoScenes         = errors.New("timeline: composition has no scenes")
	ErrInvalidFrameRate = errors.New("timeline: frame rate must be positive")
)

// SceneSpan is one scene's place on the global timeline.
type SceneSpan struct {
	StartFrame int `json:"startFrame"`
	FrameCount int `json:"frameCount"`
	// Overlap is the number of frames shared with the following scene.
	Overlap int `json:"overlap"`
}

// Timeline is the compiled schedule of a composition.
type Timeline struct {
	FPS int `json:"fps"`
	// TotalFrames is the length of the rendered artifact.
	TotalFrames int `json:"totalFrames"`
	// FullFrames is the length of the whole composition, ignoring any subrange.
	FullFrames int `json:"fullFrames"`
	// StartFrame is the global frame shown as local frame 0.
	StartFrame int         `json:"startFrame"`
	Scenes     []SceneSpan `json:"scenes"`
}

// Frames converts seconds to a frame count, rounding half up.
func Frames(seconds float64, fps int) int {
	return int(math.Floor(seconds*float64(fps) + 0.5))
}

// TotalFrames returns the frame count of the rendered artifact.
func TotalFrames(c *model.Composition) int {
	fps := c.EffectiveFrameRate()
	if r := c.SelectedSubrange; r != nil {
		return atLeastOne(Frames(r.EndInSeconds-r.StartInSeconds, fps))
	}

	total := 0
	for i := range c.Scenes {
		total += Frames(c.Scenes[i].DurationInSeconds, fps)
		total -= overlap(c.Scenes, i, fps)
	}
	return atLeastOne(total)
}

// Compile builds the full timeline including per-scene offsets.
func Compile(c *model.Composition) (Timeline, error) {
	if len(c.Scenes) == 0 {
		return Timeline{}, ErrNoScenes
	}
	fps := c.EffectiveFrameRate()
	if fps <= 0 {
		return Timeline{}, ErrInvalidFrameRate
	}

	tl := Timeline{
		FPS:    fps,
		Scenes: make([]SceneSpan, len(c.Scenes)),
	}

	cursor := 0
	for i := range c.Scenes {
		n := Frames(c.Scenes[i].DurationInSeconds, fps)
		ov := overlap(c.Scenes, i, fps)
		tl.Scenes[i] = SceneSpan{StartFrame: cursor, FrameCount: n, Overlap: ov}
		cursor += n - ov
	}

	tl.FullFrames = atLeastOne(cursor)
	tl.TotalFrames = TotalFrames(c)
	if r := c.SelectedSubrange; r != nil {
		tl.StartFrame = Frames(r.StartInSeconds, fps)
	}
	return tl, nil
}

// EndFrame is the exclusive global frame at which the artifact ends.
func (t Timeline) EndFrame() int {
	return t.StartFrame + t.TotalFrames
}

func overlap(scenes []model.Scene, i, fps int) int {
	if i == len(scenes)-1 || !scenes[i].HasTransition() {
		return 0
	}
	return Frames(scenes[i].EffectiveTransitionDuration(), fps)
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
