package action

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/cmllr/CameraObscura/internal/eventlog"
)

// segmentDir is the working directory, relative to the content root, where
// playlists, segments, and lock files live.
const segmentDir = "ul"

// Video streams a looping HLS rendition of the configured video. The first
// request for a video launches a detached ffmpeg segmenter and records its
// PID in a lock file; every request then serves the playlist. The
// check-then-create on the lock file is best effort: two first requests can
// both observe the lock missing and start their own segmenter. Lock files
// are never removed here; cleanup is a maintenance task.
type Video struct {
	serve *ServeFile
	// launch is swapped out by tests.
	launch func(video, playlist string) (int, error)
}

// Run implements Action.
func (a *Video) Run(ctx *Context) (Result, error) {
	cfg := ctx.Route.ActionConfig("video")
	if cfg == nil || cfg["video"] == nil {
		return Continue, fmt.Errorf("video requires a video file")
	}
	mode, _ := cfg["mode"].(string)
	if mode == "" {
		return Continue, fmt.Errorf("video requires a mode")
	}
	if mode != "m3u8" {
		return Continue, fmt.Errorf("invalid video mode %q", mode)
	}
	videoFile, _ := cfg["video"].(string)
	if videoFile == "" {
		return Continue, fmt.Errorf("video file must be a string")
	}

	base := strings.TrimSuffix(filepath.Base(videoFile), filepath.Ext(videoFile))
	playlist := filepath.ToSlash(filepath.Join(segmentDir, base+".m3u8"))
	lockFile := ctx.Store.Absolute(filepath.Join(segmentDir, base+".lock"))

	if _, err := os.Stat(lockFile); os.IsNotExist(err) {
		launch := a.launch
		if launch == nil {
			launch = startSegmenter
		}
		pid, err := launch(ctx.Store.Absolute(videoFile), ctx.Store.Absolute(playlist))
		if err != nil {
			return Continue, fmt.Errorf("video: start segmenter: %w", err)
		}
		if err := os.WriteFile(lockFile, []byte(fmt.Sprintf("%d", pid)), 0o644); err != nil {
			return Continue, fmt.Errorf("video: write lock file: %w", err)
		}
		ctx.Events.Log(eventlog.EventFFmpegStarted,
			fmt.Sprintf("Started ffmpeg process with PID %d", pid), false, "", nil)
	}

	return a.serve.serve(ctx, map[string]any{"file": playlist}, "")
}

// startSegmenter launches ffmpeg detached from the request: the process is
// never awaited by the handler, only reaped.
func startSegmenter(video, playlist string) (int, error) {
	cmd := exec.Command("ffmpeg",
		"-loglevel", "quiet",
		"-stream_loop", "-1",
		"-i", video,
		"-filter:v", "fps=15",
		"-s", "720x480",
		"-codec:v", "h264",
		"-an",
		"-map", "0",
		"-f", "hls",
		"-hls_time", "10",
		"-hls_list_size", "3",
		"-hls_delete_threshold", "3",
		"-hls_flags", "delete_segments",
		playlist,
	)
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	go func() { _ = cmd.Wait() }()
	return cmd.Process.Pid, nil
}
