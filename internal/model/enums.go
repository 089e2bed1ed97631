package model

import "encoding/json"

// Transition kinds
type TransitionKind string

const (
	TransitionFade      TransitionKind = "fade"
	TransitionSlide     TransitionKind = "slide"
	TransitionWipe      TransitionKind = "wipe"
	TransitionFlip      TransitionKind = "flip"
	TransitionClockWipe TransitionKind = "clockWipe"
	TransitionNone      TransitionKind = "none"
)

var ValidTransitionKinds = []TransitionKind{
	TransitionFade, TransitionSlide, TransitionWipe,
	TransitionFlip, TransitionClockWipe, TransitionNone,
}

// ParseTransitionKind returns the matching kind, or fade for anything unrecognized.
func ParseTransitionKind(s string) TransitionKind {
	for _, k := range ValidTransitionKinds {
		if string(k) == s {
			return k
		}
	}
	return TransitionFade
}

// UnmarshalJSON never fails: unknown or non-string values decode to fade.
func (k *TransitionKind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		*k = TransitionFade
		return nil
	}
	*k = ParseTransitionKind(s)
	return nil
}

// Zoom directions (Ken Burns motion applied by the renderer)
type ZoomDirection string

const (
	ZoomIn          ZoomDirection = "in"
	ZoomOut         ZoomDirection = "out"
	ZoomLeftToRight ZoomDirection = "left-to-right"
	ZoomRightToLeft ZoomDirection = "right-to-left"
	ZoomStill       ZoomDirection = "still"
)

// Composition identifiers known to the renderer
const (
	CompositionCine   = "CineVideo"
	CompositionShorts = "ShortsVideo"
)

// Job status
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusInProgress JobStatus = "in-progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCanceled   JobStatus = "canceled"
)
