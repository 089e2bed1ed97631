package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cinevideo/api/internal/logger"
	"github.com/cinevideo/api/internal/model"
)

// xfade transition names
var xfadeTransitions = map[model.TransitionKind]string{
	model.TransitionFade:      "fade",
	model.TransitionSlide:     "slideleft",
	model.TransitionWipe:      "wipeleft",
	model.TransitionFlip:      "squeezeh",
	model.TransitionClockWipe: "radial",
}

var ffmpegCodecs = map[string]string{
	"h264": "libx264",
	"h265": "libx265",
	"vp8":  "libvpx",
	"vp9":  "libvpx-vp9",
}

type FFmpegOptions struct {
	Bin       string
	AssetsDir string
}

// FFmpeg renders a still-image slideshow: each scene shows its first asset,
// and scenes are joined with xfade at the compiled timeline offsets.
type FFmpeg struct {
	opts FFmpegOptions
	log  zerolog.Logger
}

func NewFFmpeg(opts FFmpegOptions, log zerolog.Logger) *FFmpeg {
	if opts.Bin == "" {
		opts.Bin = "ffmpeg"
	}
	return &FFmpeg{opts: opts, log: logger.With(log, "ffmpeg")}
}

func (f *FFmpeg) Name() string { return "ffmpeg" }

func (f *FFmpeg) assetPath(asset string) string {
	if strings.Contains(asset, "://") || filepath.IsAbs(asset) || f.opts.AssetsDir == "" {
		return asset
	}
	return filepath.Join(f.opts.AssetsDir, strings.TrimPrefix(asset, "/"))
}

func seconds(frames, fps int) string {
	return strconv.FormatFloat(float64(frames)/float64(fps), 'f', -1, 64)
}

func (f *FFmpeg) args(req Request) ([]string, error) {
	tl := req.Timeline
	scenes := req.Props.Scenes
	if len(scenes) == 0 || len(tl.Scenes) != len(scenes) {
		return nil, fmt.Errorf("timeline does not match composition")
	}
	fps := tl.FPS

	args := []string{"-hide_banner", "-nostats", "-y"}
	for i, s := range scenes {
		if len(s.Assets) == 0 {
			return nil, fmt.Errorf("scene %d has no assets", i)
		}
		args = append(args,
			"-loop", "1",
			"-framerate", strconv.Itoa(fps),
			"-t", seconds(tl.Scenes[i].FrameCount, fps),
			"-i", f.assetPath(s.Assets[0]),
		)
	}

	var graph []string
	for i := range scenes {
		graph = append(graph, fmt.Sprintf(
			"[%d:v]scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,setsar=1,format=yuv420p,fps=%d[v%d]",
			i, req.Width, req.Height, req.Width, req.Height, fps, i))
	}

	acc := "v0"
	for i := 1; i < len(scenes); i++ {
		out := fmt.Sprintf("x%d", i)
		prev := tl.Scenes[i-1]
		if prev.Overlap > 0 {
			graph = append(graph, fmt.Sprintf("[%s][v%d]xfade=transition=%s:duration=%s:offset=%s[%s]",
				acc, i, xfadeTransitions[*scenes[i-1].TransitionAfter],
				seconds(prev.Overlap, fps), seconds(tl.Scenes[i].StartFrame, fps), out))
		} else {
			graph = append(graph, fmt.Sprintf("[%s][v%d]concat=n=2:v=1:a=0[%s]", acc, i, out))
		}
		acc = out
	}
	graph = append(graph, fmt.Sprintf("[%s]trim=start_frame=%d:end_frame=%d,setpts=PTS-STARTPTS[vout]",
		acc, tl.StartFrame, tl.EndFrame()))

	codec, ok := ffmpegCodecs[req.Codec]
	if !ok {
		codec = "libx264"
	}
	args = append(args,
		"-filter_complex", strings.Join(graph, ";"),
		"-map", "[vout]",
		"-c:v", codec,
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(fps),
		"-progress", "pipe:1",
		req.OutputPath,
	)
	return args, nil
}

func (f *FFmpeg) Render(ctx context.Context, req Request, progress ProgressFunc) error {
	if req.Props == nil {
		return fmt.Errorf("render request has no composition")
	}
	args, err := f.args(req)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	cmd := exec.CommandContext(ctx, f.opts.Bin, args...)
	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	cmd.Stdout = outW
	cmd.Stderr = errW

	report := throttle(progress, 0.01)
	stderr := newTail(20)
	total := req.Timeline.TotalFrames

	done := make(chan struct{}, 2)
	go func() {
		eachLine(outR, func(line string) {
			if p, ok := parseFFmpegProgress(line, total); ok {
				report(p)
			}
		})
		done <- struct{}{}
	}()
	go func() {
		eachLine(errR, stderr.add)
		done <- struct{}{}
	}()

	f.log.Info().Str("jobId", req.JobID).Int("frames", total).Msg("ffmpeg render started")
	runErr := cmd.Run()
	outW.Close()
	errW.Close()
	<-done
	<-done

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if runErr != nil {
		return fmt.Errorf("ffmpeg render failed: %w: %s", runErr, stderr.String())
	}
	report(1)
	return nil
}

func parseFFmpegProgress(line string, total int) (float64, bool) {
	v, ok := strings.CutPrefix(line, "frame=")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return fraction(n, total), true
}
