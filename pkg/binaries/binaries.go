// Package binaries resolves the external media tool paths the orchestrator
// shells out to, letting an operator override them without touching config
// wiring (each resolves its own env var, independent of internal/config's
// file-backed settings).
package binaries

import "os"

func resolve(envKey, fallback string) string {
	if value := os.Getenv(envKey); value != "" {
		return value
	}
	return fallback
}

// FFmpeg returns the configured ffmpeg executable path.
func FFmpeg() string {
	return resolve("FFMPEG_PATH", "ffmpeg")
}

// FFprobe returns the configured ffprobe executable path.
func FFprobe() string {
	return resolve("FFPROBE_PATH", "ffprobe")
}
