package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/cinevideo/api/internal/logger"
)

const remotionTimeoutMs = "7200000"

var remotionProgressRe = regexp.MustCompile(`(Rendered|Encoded)\s+(\d+)\s*/\s*(\d+)`)

type RemotionOptions struct {
	Bin           string
	EntryPoint    string
	WorkDir       string
	Concurrency   int
	ChromiumFlags string
}

// Remotion shells out to the Remotion CLI.
type Remotion struct {
	opts RemotionOptions
	log  zerolog.Logger
}

func NewRemotion(opts RemotionOptions, log zerolog.Logger) *Remotion {
	if opts.Bin == "" {
		opts.Bin = "./node_modules/.bin/remotion"
	}
	if opts.EntryPoint == "" {
		opts.EntryPoint = "remotion/index.ts"
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Remotion{opts: opts, log: logger.With(log, "remotion")}
}

func (r *Remotion) Name() string { return "remotion" }

func (r *Remotion) args(req Request, propsPath string) []string {
	args := []string{
		"render",
		r.opts.EntryPoint,
		req.CompositionID,
		req.OutputPath,
		"--props", propsPath,
		"--codec", req.Codec,
		"--concurrency", strconv.Itoa(r.opts.Concurrency),
		"--timeout", remotionTimeoutMs,
		"--ignore-memory-limit-check",
	}
	if req.Props != nil && req.Props.SelectedSubrange != nil {
		// --frames takes an inclusive range
		args = append(args, fmt.Sprintf("--frames=%d-%d", req.Timeline.StartFrame, req.Timeline.EndFrame()-1))
	}
	if r.opts.ChromiumFlags != "" {
		args = append(args, "--chromium-flags", r.opts.ChromiumFlags)
	}
	return args
}

func (r *Remotion) Render(ctx context.Context, req Request, progress ProgressFunc) error {
	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	props, err := os.CreateTemp("", req.JobID+"_input_*.json")
	if err != nil {
		return fmt.Errorf("failed to create props file: %w", err)
	}
	defer os.Remove(props.Name())

	if err := json.NewEncoder(props).Encode(req.Props); err != nil {
		props.Close()
		return fmt.Errorf("failed to write props: %w", err)
	}
	if err := props.Close(); err != nil {
		return fmt.Errorf("failed to write props: %w", err)
	}

	cmd := exec.CommandContext(ctx, r.opts.Bin, r.args(req, props.Name())...)
	cmd.Dir = r.opts.WorkDir
	cmd.Env = append(os.Environ(), "REMOTION_IGNORE_MEMORY_CHECK=true")

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	report := throttle(progress, 0.01)
	stderr := newTail(20)
	done := make(chan struct{})
	go func() {
		defer close(done)
		eachLine(pr, func(line string) {
			stderr.add(line)
			if p, ok := parseRemotionProgress(line); ok {
				report(p)
			}
		})
	}()

	r.log.Info().Str("jobId", req.JobID).Str("composition", req.CompositionID).Msg("remotion render started")
	runErr := cmd.Run()
	pw.Close()
	<-done

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if runErr != nil {
		return fmt.Errorf("remotion render failed: %w: %s", runErr, stderr.String())
	}
	if _, err := os.Stat(req.OutputPath); err != nil {
		return fmt.Errorf("output file not found after render: %w", err)
	}
	report(1)
	return nil
}

// parseRemotionProgress maps "Rendered N/M" onto [0, 0.9] and
// "Encoded N/M" onto [0.9, 1].
func parseRemotionProgress(line string) (float64, bool) {
	m := remotionProgressRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	done, _ := strconv.Atoi(m[2])
	total, _ := strconv.Atoi(m[3])
	f := fraction(done, total)
	if m[1] == "Encoded" {
		return 0.9 + 0.1*f, true
	}
	return 0.9 * f, true
}
