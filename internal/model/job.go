package model

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// JobState is a tagged variant. Build it with Queued, InProgress, Completed,
// Failed or Canceled; the zero value is not a valid state.
type JobState struct {
	status   JobStatus
	progress float64
	location string
	message  string
}

func Queued() JobState { return JobState{status: JobStatusQueued} }

// InProgress clamps progress into [0,1].
func InProgress(progress float64) JobState {
	switch {
	case progress < 0 || math.IsNaN(progress):
		progress = 0
	case progress > 1:
		progress = 1
	}
	return JobState{status: JobStatusInProgress, progress: progress}
}

func Completed(artifactLocation string) JobState {
	return JobState{status: JobStatusCompleted, location: artifactLocation}
}

func Failed(errorMessage string) JobState {
	return JobState{status: JobStatusFailed, message: errorMessage}
}

func Canceled() JobState { return JobState{status: JobStatusCanceled} }

func (s JobState) Status() JobStatus { return s.status }

// Progress is meaningful only while in progress; completed reports 1.
func (s JobState) Progress() float64 {
	if s.status == JobStatusCompleted {
		return 1
	}
	return s.progress
}

func (s JobState) ArtifactLocation() string { return s.location }

func (s JobState) ErrorMessage() string { return s.message }

func (s JobState) IsTerminal() bool {
	switch s.status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCanceled:
		return true
	case JobStatusQueued, JobStatusInProgress:
		return false
	default:
		return false
	}
}

// CanTransitionTo enforces queued -> in-progress* -> terminal.
func (s JobState) CanTransitionTo(next JobState) bool {
	switch s.status {
	case JobStatusQueued:
		return next.status != ""
	case JobStatusInProgress:
		return next.status != JobStatusQueued && next.status != ""
	case JobStatusCompleted, JobStatusFailed, JobStatusCanceled:
		return false
	default:
		return false
	}
}

func (s JobState) String() string {
	switch s.status {
	case JobStatusInProgress:
		return fmt.Sprintf("%s(%.3f)", s.status, s.progress)
	case JobStatusCompleted:
		return fmt.Sprintf("%s(%s)", s.status, s.location)
	case JobStatusFailed:
		return fmt.Sprintf("%s(%s)", s.status, s.message)
	default:
		return string(s.status)
	}
}

type jobStateJSON struct {
	Status   JobStatus `json:"status"`
	Progress *float64  `json:"progress,omitempty"`
	VideoURL string    `json:"videoUrl,omitempty"`
	Error    string    `json:"error,omitempty"`
}

func (s JobState) wire() (jobStateJSON, error) {
	out := jobStateJSON{Status: s.status}
	switch s.status {
	case JobStatusQueued, JobStatusCanceled:
	case JobStatusInProgress:
		p := s.progress
		out.Progress = &p
	case JobStatusCompleted:
		out.VideoURL = s.location
	case JobStatusFailed:
		out.Error = s.message
	default:
		return out, fmt.Errorf("unknown job status %q", s.status)
	}
	return out, nil
}

func (w jobStateJSON) state() (JobState, error) {
	switch w.Status {
	case JobStatusQueued:
		return Queued(), nil
	case JobStatusInProgress:
		var p float64
		if w.Progress != nil {
			p = *w.Progress
		}
		return InProgress(p), nil
	case JobStatusCompleted:
		return Completed(w.VideoURL), nil
	case JobStatusFailed:
		return Failed(w.Error), nil
	case JobStatusCanceled:
		return Canceled(), nil
	default:
		return JobState{}, fmt.Errorf("unknown job status %q", w.Status)
	}
}

func (s JobState) MarshalJSON() ([]byte, error) {
	w, err := s.wire()
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

func (s *JobState) UnmarshalJSON(b []byte) error {
	var w jobStateJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	st, err := w.state()
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// RenderJob represents one render request and its lifecycle
type RenderJob struct {
	ID          string
	Data        *Composition
	State       JobState
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

type renderJobJSON struct {
	JobID string `json:"jobId"`
	jobStateJSON
	Data        *Composition `json:"data,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	StartedAt   *time.Time   `json:"startedAt,omitempty"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
}

// MarshalJSON flattens the state next to the job metadata, which is the shape
// GET /status/:jobId returns and the external stores persist.
func (j RenderJob) MarshalJSON() ([]byte, error) {
	w, err := j.State.wire()
	if err != nil {
		return nil, err
	}
	return json.Marshal(renderJobJSON{
		JobID:        j.ID,
		jobStateJSON: w,
		Data:         j.Data,
		CreatedAt:    j.CreatedAt,
		StartedAt:    j.StartedAt,
		CompletedAt:  j.CompletedAt,
	})
}

func (j *RenderJob) UnmarshalJSON(b []byte) error {
	var w renderJobJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	st, err := w.jobStateJSON.state()
	if err != nil {
		return err
	}
	*j = RenderJob{
		ID:          w.JobID,
		Data:        w.Data,
		State:       st,
		CreatedAt:   w.CreatedAt,
		StartedAt:   w.StartedAt,
		CompletedAt: w.CompletedAt,
	}
	return nil
}
