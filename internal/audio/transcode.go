// Package audio implements the audio segmenter (§4.A): transcoding an
// uploaded file to canonical PCM, cutting it into sub-segments via
// voice-activity detection or externally supplied timestamps, and cleaning
// up scratch files as sub-segments are consumed.
package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"scriberr/internal/model"
	"scriberr/pkg/binaries"
	"scriberr/pkg/logger"
)

const (
	canonicalSampleRate = 16000
	canonicalChannels   = 1
)

// Transcoder converts an arbitrary input audio file to canonical 16-bit
// PCM, mono, 16 kHz WAV, adapted from the teacher's ffmpeg-via-exec idiom
// (internal/audio/merger.go, internal/transcription/pipeline).
type Transcoder struct {
	ffmpegPath  string
	ffprobePath string
}

// NewTranscoder builds a Transcoder assuming ffmpeg/ffprobe are on PATH.
func NewTranscoder() *Transcoder {
	return &Transcoder{ffmpegPath: binaries.FFmpeg(), ffprobePath: binaries.FFprobe()}
}

// NewTranscoderWithPath builds a Transcoder using specific ffmpeg/ffprobe
// binaries.
func NewTranscoderWithPath(ffmpegPath, ffprobePath string) *Transcoder {
	return &Transcoder{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

// Transcode converts inputPath to a canonical wav file alongside it and
// deletes the original on success. It returns model.ErrTranscodingFailed if
// ffmpeg does not produce an output file.
func (t *Transcoder) Transcode(ctx context.Context, inputPath string) (string, error) {
	outputPath := strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + "_canonical.wav"

	args := []string{
		"-y",
		"-i", inputPath,
		"-ar", strconv.Itoa(canonicalSampleRate),
		"-ac", strconv.Itoa(canonicalChannels),
		"-c:a", "pcm_s16le",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		logger.Error("transcoding failed", "input", inputPath, "output", string(output), "error", err)
		return "", fmt.Errorf("%w: %s", model.ErrTranscodingFailed, err)
	}

	if _, err := os.Stat(outputPath); err != nil {
		return "", fmt.Errorf("%w: no output produced", model.ErrTranscodingFailed)
	}

	if err := os.Remove(inputPath); err != nil {
		logger.Warn("failed to remove original upload after transcode", "path", inputPath, "error", err)
	}

	return outputPath, nil
}

// ValidateFFmpeg checks that ffmpeg is available and runnable.
func (t *Transcoder) ValidateFFmpeg() error {
	cmd := exec.Command(t.ffmpegPath, "-version")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg not found or not working: %w", err)
	}
	return nil
}

// ProbeDuration runs ffprobe against inputPath and returns its duration in
// seconds, letting the ingress handler reject empty or corrupt uploads (§6)
// before they reach the segmenter.
func (t *Transcoder) ProbeDuration(ctx context.Context, inputPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, t.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		inputPath,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("%w: ffprobe: %v", model.ErrTranscodingFailed, err)
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: unparsable ffprobe duration: %v", model.ErrTranscodingFailed, err)
	}
	return duration, nil
}
