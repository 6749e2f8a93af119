// Package format renders a merged TranscriptionResult into the three
// output shapes the ingress layer negotiates via Accept header (§6): plain
// text, SRT, and WebVTT. It is grounded on original_source's
// formating/subtitling.py, simplified to one cue per SpeechSegment rather
// than subtitling.py's char/line-wrapped cue splitting (documented
// simplification, SPEC_FULL.md §12).
package format

import (
	"fmt"
	"strings"

	"scriberr/internal/model"
)

// Text renders the final transcription as plain text, one line per speech
// segment, speaker-prefixed when a speaker id is known.
func Text(result model.TranscriptionResult) string {
	return result.FinalTranscription()
}

// SRT renders the result as a SubRip subtitle document, one cue per
// SpeechSegment.
func SRT(result model.TranscriptionResult) string {
	var b strings.Builder
	for i, seg := range result.Segments {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, timestampSRT(seg.Start()), timestampSRT(seg.End()), seg.ToString(true, ":"))
	}
	return b.String()
}

// VTT renders the result as a WebVTT subtitle document, one cue per
// SpeechSegment.
func VTT(result model.TranscriptionResult) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for _, seg := range result.Segments {
		fmt.Fprintf(&b, "%s --> %s\n%s\n\n", timestampVTT(seg.Start()), timestampVTT(seg.End()), seg.ToString(true, ":"))
	}
	return b.String()
}

func timestampSRT(t float64) string {
	h, m, s, ms := splitTimestamp(t)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

func timestampVTT(t float64) string {
	h, m, s, ms := splitTimestamp(t)
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

func splitTimestamp(t float64) (h, m, s, ms int) {
	if t < 0 {
		t = 0
	}
	whole := int(t)
	ms = int((t - float64(whole)) * 1000)
	h = whole / 3600
	whole -= h * 3600
	m = whole / 60
	s = whole - m*60
	return
}
