// yt-dlp implementation of [MediaExtractor]
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/desertthunder/stash/internal/shared"
)

var commandContext = exec.CommandContext

// MediaInfo is the subset of yt-dlp's JSON output stash cares about.
type MediaInfo struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Track    string  `json:"track"`
	Artist   string  `json:"artist"`
	Uploader string  `json:"uploader"`
	Duration float64 `json:"duration"`
	WebURL   string  `json:"webpage_url"`
}

// Guess returns the track and artist suggested by the metadata.
//
// ok is false when the metadata cannot be trusted: social platforms label
// unnamed sounds "Original Audio" and attribute them to the uploader.
func (m *MediaInfo) Guess() (track, artist string, ok bool) {
	track = strings.TrimSpace(m.Track)
	if track == "" {
		track = strings.TrimSpace(m.Title)
	}
	artist = strings.TrimSpace(m.Artist)
	if artist == "" {
		artist = strings.TrimSpace(m.Uploader)
	}

	if track == "" || artist == "" {
		return track, artist, false
	}
	if strings.Contains(strings.ToLower(track), "original audio") {
		return track, artist, false
	}
	return track, artist, true
}

// BinaryStatus reports whether an external tool is available.
type BinaryStatus struct {
	Name      string
	Command   string
	Optional  bool
	Available bool
	Detail    string
}

// ExtractorOption configures a [YtDlpExtractor].
type ExtractorOption func(*YtDlpExtractor)

// WithYtDlpBinary overrides the yt-dlp binary.
func WithYtDlpBinary(binary string) ExtractorOption {
	return func(e *YtDlpExtractor) {
		if binary != "" {
			e.binary = binary
		}
	}
}

// WithFFmpegBinary overrides the ffmpeg binary. An empty value disables mp3 extraction.
func WithFFmpegBinary(binary string) ExtractorOption {
	return func(e *YtDlpExtractor) {
		e.ffmpeg = binary
	}
}

// YtDlpExtractor shells out to yt-dlp.
type YtDlpExtractor struct {
	binary string
	ffmpeg string
	now    func() time.Time
}

// NewYtDlpExtractor creates an extractor that uses yt-dlp and, when present, ffmpeg.
func NewYtDlpExtractor(opts ...ExtractorOption) *YtDlpExtractor {
	e := &YtDlpExtractor{binary: "yt-dlp", ffmpeg: "ffmpeg", now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CheckBinaries reports the availability of yt-dlp (required) and ffmpeg (optional).
func (e *YtDlpExtractor) CheckBinaries() []BinaryStatus {
	reqs := []BinaryStatus{
		{Name: "yt-dlp", Command: e.binary},
		{Name: "ffmpeg", Command: e.ffmpeg, Optional: true},
	}
	for i, req := range reqs {
		if strings.TrimSpace(req.Command) == "" {
			reqs[i].Detail = "command not configured"
			continue
		}
		if _, err := exec.LookPath(req.Command); err != nil {
			reqs[i].Detail = fmt.Sprintf("binary %q not found", req.Command)
			continue
		}
		reqs[i].Available = true
	}
	return reqs
}

func (e *YtDlpExtractor) hasFFmpeg() bool {
	if e.ffmpeg == "" {
		return false
	}
	_, err := exec.LookPath(e.ffmpeg)
	return err == nil
}

// Metadata reads a link's metadata without downloading any media.
func (e *YtDlpExtractor) Metadata(ctx context.Context, link string) (*MediaInfo, error) {
	args := []string{"-J", "--flat-playlist", "--no-download", "--no-warnings", "--quiet", link}

	out, err := e.run(ctx, args)
	if err != nil {
		return nil, err
	}

	var info MediaInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("failed to parse yt-dlp output: %w", err)
	}
	return &info, nil
}

// DownloadAudio saves the link's best audio stream into dir and returns the file path.
//
// With ffmpeg available the audio is converted to mp3; otherwise the native
// container is kept. The caller owns the returned file.
func (e *YtDlpExtractor) DownloadAudio(ctx context.Context, link, dir string) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}

	prefix := fmt.Sprintf("temp_%d", e.now().UnixNano())
	base := filepath.Join(dir, prefix)

	var args []string
	if e.hasFFmpeg() {
		args = []string{
			"-f", "bestaudio/best",
			"-x", "--audio-format", "mp3", "--audio-quality", "192K",
			"--ffmpeg-location", e.ffmpeg,
			"-o", base + ".%(ext)s",
		}
	} else {
		args = []string{"-f", "bestaudio", "-o", base + ".%(ext)s"}
	}
	args = append(args, "--no-playlist", "--no-warnings", "--quiet", link)

	if _, err := e.run(ctx, args); err != nil {
		cleanupPrefix(dir, prefix)
		return "", fmt.Errorf("%w: %v", shared.ErrDownloadFailed, err)
	}

	matches, _ := filepath.Glob(base + "*")
	if len(matches) == 0 {
		return "", shared.ErrDownloadFailed
	}
	sort.Strings(matches)
	return matches[0], nil
}

func (e *YtDlpExtractor) run(ctx context.Context, args []string) ([]byte, error) {
	cmd := commandContext(ctx, e.binary, args...) //nolint:gosec
	var stderr strings.Builder
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", shared.ErrMissingBinary, e.binary)
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrTimeout, ctx.Err())
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return nil, fmt.Errorf("yt-dlp failed: %s", detail)
	}
	return out, nil
}

func cleanupPrefix(dir, prefix string) {
	matches, _ := filepath.Glob(filepath.Join(dir, prefix) + "*")
	for _, m := range matches {
		os.Remove(m)
	}
}

// AudioMIMEType guesses the MIME type of a downloaded audio file from its extension.
func AudioMIMEType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return "audio/mp3"
	case ".m4a", ".mp4":
		return "audio/mp4"
	case ".webm":
		return "audio/webm"
	case ".ogg", ".opus":
		return "audio/ogg"
	case ".wav":
		return "audio/wav"
	case ".aac":
		return "audio/aac"
	case ".flac":
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}
