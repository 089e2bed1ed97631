package timeline

import (
	"errors"
	"testing"

	"github.com/cinevideo/api/internal/model"
)

func transition(k model.TransitionKind) *model.TransitionKind {
	return &k
}

func scene(seconds float64) model.Scene {
	return model.Scene{Assets: []string{"a.jpg"}, DurationInSeconds: seconds}
}

func sceneWith(seconds float64, k model.TransitionKind, td float64) model.Scene {
	s := scene(seconds)
	s.TransitionAfter = transition(k)
	s.TransitionDurationInSeconds = td
	return s
}

func TestTotalFrames_Additivity(t *testing.T) {
	c := &model.Composition{
		FrameRate: 30,
		Scenes:    []model.Scene{scene(2.5), scene(3.2), scene(4)},
	}

	got := TotalFrames(c)
	if got != 291 {
		t.Errorf("expected 291 frames, got %d", got)
	}

	want := Frames(2.5+3.2+4, 30)
	if diff := got - want; diff < -3 || diff > 3 {
		t.Errorf("expected %d within %d frames, got %d", want, len(c.Scenes), got)
	}
}

func TestTotalFrames_OverlapSubtraction(t *testing.T) {
	c := &model.Composition{
		FrameRate: 30,
		Scenes: []model.Scene{
			sceneWith(5, model.TransitionFade, 1),
			scene(5),
		},
	}

	if got := TotalFrames(c); got != 270 {
		t.Errorf("expected 150+150-30 = 270 frames, got %d", got)
	}
}

func TestTotalFrames_DefaultTransitionDuration(t *testing.T) {
	c := &model.Composition{
		Scenes: []model.Scene{
			{Assets: []string{"a"}, DurationInSeconds: 5, TransitionAfter: transition(model.TransitionSlide)},
			scene(5),
		},
	}

	if got := TotalFrames(c); got != 270 {
		t.Errorf("expected default fps 30 and 1s transition to give 270, got %d", got)
	}
}

func TestTotalFrames_NoneAndLastSceneDoNotOverlap(t *testing.T) {
	c := &model.Composition{
		FrameRate: 30,
		Scenes: []model.Scene{
			sceneWith(5, model.TransitionNone, 1),
			sceneWith(5, model.TransitionFade, 1),
		},
	}

	if got := TotalFrames(c); got != 300 {
		t.Errorf("expected 300 frames, got %d", got)
	}
}

func TestTotalFrames_MinimumFloor(t *testing.T) {
	short := &model.Composition{FrameRate: 30, Scenes: []model.Scene{scene(0.01)}}
	if got := TotalFrames(short); got != 1 {
		t.Errorf("expected floor of 1 frame, got %d", got)
	}

	negative := &model.Composition{
		FrameRate: 30,
		Scenes: []model.Scene{
			sceneWith(1, model.TransitionFade, 5),
			scene(1),
		},
	}
	if got := TotalFrames(negative); got != 1 {
		t.Errorf("expected floor of 1 frame for oversized transition, got %d", got)
	}
}

func TestTotalFrames_SubrangeShortcut(t *testing.T) {
	scenes := make([]model.Scene, 10)
	for i := range scenes {
		scenes[i] = sceneWith(8, model.TransitionFade, 1)
	}
	c := &model.Composition{
		FrameRate:        30,
		Scenes:           scenes,
		SelectedSubrange: &model.Subrange{StartInSeconds: 2, EndInSeconds: 7},
	}

	if got := TotalFrames(c); got != 150 {
		t.Errorf("expected 150 frames, got %d", got)
	}
}

func TestTotalFrames_SingleScene(t *testing.T) {
	c := &model.Composition{FrameRate: 30, Scenes: []model.Scene{scene(3)}}
	if got := TotalFrames(c); got != 90 {
		t.Errorf("expected 90 frames, got %d", got)
	}
}

func TestFrames_RoundsHalfUp(t *testing.T) {
	if got := Frames(0.5, 1); got != 1 {
		t.Errorf("expected 0.5 to round up to 1, got %d", got)
	}
	if got := Frames(2.5, 1); got != 3 {
		t.Errorf("expected 2.5 to round up to 3, got %d", got)
	}
	if got := Frames(-2.5, 1); got != -2 {
		t.Errorf("expected -2.5 to round up to -2, got %d", got)
	}
}

func TestCompile_Offsets(t *testing.T) {
	c := &model.Composition{
		FrameRate: 30,
		Scenes: []model.Scene{
			sceneWith(5, model.TransitionFade, 1),
			sceneWith(5, model.TransitionSlide, 0.5),
			scene(5),
		},
	}

	tl, err := Compile(c)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	want := []SceneSpan{
		{StartFrame: 0, FrameCount: 150, Overlap: 30},
		{StartFrame: 120, FrameCount: 150, Overlap: 15},
		{StartFrame: 255, FrameCount: 150, Overlap: 0},
	}
	for i, span := range tl.Scenes {
		if span != want[i] {
			t.Errorf("scene %d: expected %+v, got %+v", i, want[i], span)
		}
	}

	last := tl.Scenes[len(tl.Scenes)-1]
	if last.StartFrame+last.FrameCount != tl.TotalFrames {
		t.Errorf("expected last scene to end at %d, ends at %d", tl.TotalFrames, last.StartFrame+last.FrameCount)
	}
	if tl.TotalFrames != 405 || tl.FullFrames != 405 || tl.StartFrame != 0 {
		t.Errorf("unexpected timeline totals: %+v", tl)
	}
}

func TestCompile_SubrangeOffset(t *testing.T) {
	c := &model.Composition{
		FrameRate:        30,
		Scenes:           []model.Scene{scene(10), scene(10)},
		SelectedSubrange: &model.Subrange{StartInSeconds: 2, EndInSeconds: 7},
	}

	tl, err := Compile(c)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if tl.StartFrame != 60 {
		t.Errorf("expected local frame 0 at global frame 60, got %d", tl.StartFrame)
	}
	if tl.TotalFrames != 150 || tl.EndFrame() != 210 {
		t.Errorf("expected 150 frames ending at 210, got %d ending at %d", tl.TotalFrames, tl.EndFrame())
	}
	if tl.FullFrames != 600 {
		t.Errorf("expected full timeline of 600 frames, got %d", tl.FullFrames)
	}
}

func TestCompile_Errors(t *testing.T) {
	if _, err := Compile(&model.Composition{FrameRate: 30}); !errors.Is(err, ErrNoScenes) {
		t.Errorf("expected ErrNoScenes, got %v", err)
	}

	c := &model.Composition{FrameRate: -1, Scenes: []model.Scene{scene(1)}}
	if _, err := Compile(c); !errors.Is(err, ErrInvalidFrameRate) {
		t.Errorf("expected ErrInvalidFrameRate, got %v", err)
	}
}
