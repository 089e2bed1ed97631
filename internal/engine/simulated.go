package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const simulatedBatch = 30

// Simulated walks the timeline frame by frame without producing video. The
// output file holds the render request so it can be inspected.
type Simulated struct {
	frameDelay time.Duration
}

func NewSimulated(frameDelay time.Duration) *Simulated {
	return &Simulated{frameDelay: frameDelay}
}

func (s *Simulated) Name() string { return "simulated" }

func (s *Simulated) Render(ctx context.Context, req Request, progress ProgressFunc) error {
	if progress == nil {
		progress = func(float64) {}
	}
	total := req.Timeline.TotalFrames

	for done := 0; done < total; {
		if err := ctx.Err(); err != nil {
			return err
		}

		n := simulatedBatch
		if done+n > total {
			n = total - done
		}
		if s.frameDelay > 0 {
			t := time.NewTimer(time.Duration(n) * s.frameDelay)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		done += n
		progress(fraction(done, total))
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	return writePlaceholder(req)
}

func writePlaceholder(req Request) error {
	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	data, err := json.MarshalIndent(map[string]interface{}{
		"jobId":         req.JobID,
		"compositionId": req.CompositionID,
		"width":         req.Width,
		"height":        req.Height,
		"codec":         req.Codec,
		"timeline":      req.Timeline,
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(req.OutputPath, data, 0o644)
}
