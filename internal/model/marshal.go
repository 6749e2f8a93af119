package model

import "encoding/json"

// speechSegmentWire is the stable on-the-wire shape of a SpeechSegment,
// matching the FinalResult document contract (§6 of the spec this module
// implements): spk_id, start, end, duration, raw_segment, segment, words.
type speechSegmentWire struct {
	SpeakerID  *string `json:"spk_id"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Duration   float64 `json:"duration"`
	RawSegment string  `json:"raw_segment"`
	Segment    string  `json:"segment"`
	Words      []Word  `json:"words"`
}

func marshalSpeechSegment(s SpeechSegment) ([]byte, error) {
	words := s.Words
	if words == nil {
		words = []Word{}
	}
	return json.Marshal(speechSegmentWire{
		SpeakerID:  s.SpeakerID,
		Start:      s.Start(),
		End:        s.End(),
		Duration:   s.Duration(),
		RawSegment: s.RawText(),
		Segment:    s.Text(),
		Words:      words,
	})
}

// UnmarshalJSON reconstructs a SpeechSegment from the wire shape, setting
// ProcessedText only when it differs from the raw rendering so that
// round-tripping through final_result() reproduces the identical document
// (testable property invariant 6).
func (s *SpeechSegment) UnmarshalJSON(data []byte) error {
	var wire speechSegmentWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	s.SpeakerID = wire.SpeakerID
	s.Words = wire.Words
	if wire.Segment != wire.RawSegment {
		seg := wire.Segment
		s.ProcessedText = &seg
	} else {
		s.ProcessedText = nil
	}
	return nil
}

// marshalFinal renders the full FinalResult document shape.
func (r TranscriptionResult) marshalFinal() ([]byte, error) {
	segs := r.Segments
	if segs == nil {
		segs = []SpeechSegment{}
	}
	diar := r.DiarizationSegments
	if diar == nil {
		diar = []DiarizationSegment{}
	}
	return json.Marshal(struct {
		TranscriptionResult string               `json:"transcription_result"`
		RawTranscription    string               `json:"raw_transcription"`
		Confidence          float64              `json:"confidence"`
		Segments            []SpeechSegment      `json:"segments"`
		DiarizationSegments []DiarizationSegment `json:"diarization_segments"`
	}{
		TranscriptionResult: r.FinalTranscription(),
		RawTranscription:    r.RawTranscription(),
		Confidence:          r.Confidence,
		Segments:            segs,
		DiarizationSegments: diar,
	})
}
