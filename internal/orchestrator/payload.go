package orchestrator

import (
	"bufio"
	"encoding/json"
	"os"

	"scriberr/internal/audio"
	"scriberr/internal/model"
)

func loadTimestamps(path string) ([]audio.TimestampRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return audio.ParseTimestamps(bufio.NewReader(f))
}

// wordsPayload/diarizationPayload/textPayload are the worker response
// envelopes carried as the JSON result of a broker.Handle.Get call (§4.D).
type wordsPayload struct {
	Words []model.Word `json:"words"`
}

type diarizationPayload struct {
	Segments []model.DiarizationSegment `json:"segments"`
}

type textPayload struct {
	Text string `json:"text"`
}

func decodeWords(raw json.RawMessage) ([]model.Word, error) {
	var p wordsPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return p.Words, nil
}

func decodeDiarization(raw json.RawMessage) ([]model.DiarizationSegment, error) {
	var p diarizationPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return p.Segments, nil
}

func decodeText(raw json.RawMessage) (string, error) {
	var p textPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", err
	}
	return p.Text, nil
}
