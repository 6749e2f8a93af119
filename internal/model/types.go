// Package model holds the data types shared across the transcription
// orchestrator: words, diarization segments, speech segments, the merged
// transcription result, job configuration, and the persisted record shapes.
package model

import "sort"

// Word is a single time-stamped token produced by a transcription worker.
type Word struct {
	Text  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Conf  float64 `json:"conf"`
}

// WithOffset returns a copy of w shifted forward by offset seconds.
func (w Word) WithOffset(offset float64) Word {
	w.Start += offset
	w.End += offset
	return w
}

// DiarizationSegment is a speaker-turn time interval reported by a
// diarization worker.
type DiarizationSegment struct {
	SegBegin float64 `json:"seg_begin"`
	SegEnd   float64 `json:"seg_end"`
	SpeakerID string `json:"spk_id"`
	SegID    int     `json:"seg_id"`
}

// SortDiarizationSegments orders segments by SegBegin in place and returns
// the slice for chaining.
func SortDiarizationSegments(segs []DiarizationSegment) []DiarizationSegment {
	sort.SliceStable(segs, func(i, j int) bool { return segs[i].SegBegin < segs[j].SegBegin })
	return segs
}

// SpeechSegment is a run of words attributed to a single speaker.
type SpeechSegment struct {
	SpeakerID       *string `json:"spk_id"`
	Words           []Word  `json:"words"`
	ProcessedText   *string `json:"-"`
}

// RawText joins the segment's words with single spaces, matching the
// teacher corpus's raw_segment rendering.
func (s SpeechSegment) RawText() string {
	out := ""
	for i, w := range s.Words {
		if i > 0 {
			out += " "
		}
		out += w.Text
	}
	return out
}

// Text returns ProcessedText when set, otherwise RawText.
func (s SpeechSegment) Text() string {
	if s.ProcessedText != nil {
		return *s.ProcessedText
	}
	return s.RawText()
}

// ToString renders the segment optionally prefixed with its speaker id,
// matching SpeechSegment.toString in the reference implementation.
func (s SpeechSegment) ToString(includeSpeaker bool, sep string) string {
	prefix := ""
	if includeSpeaker && s.SpeakerID != nil {
		prefix = *s.SpeakerID + sep + " "
	}
	return prefix + s.Text()
}

// Start returns the minimum word start, or 0 for an empty segment.
func (s SpeechSegment) Start() float64 {
	if len(s.Words) == 0 {
		return 0
	}
	min := s.Words[0].Start
	for _, w := range s.Words[1:] {
		if w.Start < min {
			min = w.Start
		}
	}
	return min
}

// End returns the maximum word end, or 0 for an empty segment.
func (s SpeechSegment) End() float64 {
	if len(s.Words) == 0 {
		return 0
	}
	max := s.Words[0].End
	for _, w := range s.Words[1:] {
		if w.End > max {
			max = w.End
		}
	}
	return max
}

// Duration is End - Start.
func (s SpeechSegment) Duration() float64 {
	return s.End() - s.Start()
}

// MarshalJSON renders the stable FinalResult segment shape: spk_id, start,
// end, duration, raw_segment, segment, words.
func (s SpeechSegment) MarshalJSON() ([]byte, error) {
	return marshalSpeechSegment(s)
}

// TranscriptionResult is the aggregate produced by merging sub-segment
// transcriptions and, when enabled, diarization/punctuation.
type TranscriptionResult struct {
	Confidence          float64              `json:"confidence"`
	Words               []Word               `json:"words"`
	Segments            []SpeechSegment      `json:"segments"`
	DiarizationSegments []DiarizationSegment `json:"diarization_segments"`
}

// FinalTranscription renders each segment (speaker-prefixed) separated by
// " \n", matching the reference final_transcription property.
func (r TranscriptionResult) FinalTranscription() string {
	out := ""
	for i, seg := range r.Segments {
		if i > 0 {
			out += " \n"
		}
		out += seg.ToString(true, ":")
	}
	return trimSpace(out)
}

// RawTranscription joins every word with a single space, ignoring segments.
func (r TranscriptionResult) RawTranscription() string {
	out := ""
	for i, w := range r.Words {
		if i > 0 {
			out += " "
		}
		out += w.Text
	}
	return trimSpace(out)
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && (s[start] == ' ' || s[start] == '\n') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\n') {
		end--
	}
	return s[start:end]
}
