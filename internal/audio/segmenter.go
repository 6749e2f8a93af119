package audio

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"scriberr/internal/model"
)

// Segment is one sub-segment produced by the segmenter: a path to a raw
// PCM sub-file, its offset within the canonical audio, and its duration.
type Segment struct {
	Path     string
	Offset   float64
	Duration float64
}

// Stats summarizes the segment durations produced by one segmentation run.
type Stats struct {
	Total float64
	Mean  float64
	Min   float64
	Max   float64
}

// TimestampRecord is one externally supplied cut boundary (§4.A mode 1,
// §6 "Timestamps file format").
type TimestampRecord struct {
	Start   float64
	End     float64
	SpeakerID string
}

// ParseTimestamps parses the UTF-8 "start end [spk_id]" timestamps file
// format described in §6. Blank lines are ignored; any malformed line is a
// parse failure reported to the caller as model.ErrMalformedConfig.
func ParseTimestamps(r *bufio.Reader) ([]TimestampRecord, error) {
	var records []TimestampRecord
	lineNo := 0
	for {
		line, err := r.ReadString('\n')
		lineNo++
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			rec, parseErr := parseTimestampLine(trimmed)
			if parseErr != nil {
				return nil, fmt.Errorf("%w: line %d: %v", model.ErrMalformedConfig, lineNo, parseErr)
			}
			records = append(records, rec)
		}
		if err != nil {
			break
		}
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].Start < records[j].Start })
	return records, nil
}

func parseTimestampLine(line string) (TimestampRecord, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return TimestampRecord{}, fmt.Errorf("expected at least 2 fields, got %d", len(fields))
	}
	start, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return TimestampRecord{}, fmt.Errorf("invalid start: %w", err)
	}
	end, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return TimestampRecord{}, fmt.Errorf("invalid end: %w", err)
	}
	rec := TimestampRecord{Start: start, End: end}
	if len(fields) >= 3 {
		rec.SpeakerID = fields[2]
	}
	return rec, nil
}

// defaults mirror §4.A's documented constants.
const (
	defaultMinSilence   = 0.6
	defaultShortFileMin = 10.0
)

// Segmenter cuts a canonical PCM file into sub-segments per VAD config or
// externally supplied timestamps.
type Segmenter struct {
	Classifier Classifier
}

// NewSegmenter builds a Segmenter using the default energy-based
// Classifier.
func NewSegmenter() *Segmenter {
	return &Segmenter{Classifier: newEnergyClassifier()}
}

// Split produces sub-segments for canonicalPath. When timestamps is
// non-empty, mode 1 (external timestamps) applies regardless of vad.
// Otherwise VAD mode applies when vad.EnableVAD, else the whole file is a
// single segment (no-VAD mode).
func (s *Segmenter) Split(canonicalPath string, vad model.VADConfig, timestamps []TimestampRecord) ([]Segment, Stats, error) {
	wav, err := readWav(canonicalPath)
	if err != nil {
		return nil, Stats{}, err
	}
	totalDuration := float64(len(wav.Samples)) / float64(wav.SampleRate)

	var cutPoints []float64
	switch {
	case len(timestamps) > 0:
		cutPoints = timestampCutPoints(timestamps)
	case totalDuration < defaultShortFileMin || !vad.EnableVAD:
		cutPoints = nil
	default:
		maxDuration := 0.0
		if vad.MaxDuration != nil {
			maxDuration = *vad.MaxDuration
		}
		minSilence := defaultMinSilence
		cutPoints = vadCutPoints(wav.Samples, wav.SampleRate, s.Classifier, minSilence, vad.MinDuration, maxDuration)
	}

	if len(cutPoints) == 0 {
		seg := Segment{Path: canonicalPath, Offset: 0, Duration: totalDuration}
		return []Segment{seg}, statsFor([]Segment{seg}), nil
	}

	segments, err := s.writeSubSegments(canonicalPath, wav, cutPoints, totalDuration)
	if err != nil {
		return nil, Stats{}, err
	}
	return segments, statsFor(segments), nil
}

func timestampCutPoints(records []TimestampRecord) []float64 {
	var cuts []float64
	for i := 1; i < len(records); i++ {
		cuts = append(cuts, records[i].Start)
	}
	return cuts
}

func (s *Segmenter) writeSubSegments(canonicalPath string, wav *pcmWav, cutPoints []float64, totalDuration float64) ([]Segment, error) {
	bounds := append([]float64{0}, cutPoints...)
	bounds = append(bounds, totalDuration)

	dir := filepath.Dir(canonicalPath)
	base := strings.TrimSuffix(filepath.Base(canonicalPath), filepath.Ext(canonicalPath))

	var segments []Segment
	for i := 0; i < len(bounds)-1; i++ {
		offset, end := bounds[i], bounds[i+1]
		startSample := int(offset * float64(wav.SampleRate))
		endSample := int(end * float64(wav.SampleRate))
		if endSample > len(wav.Samples) {
			endSample = len(wav.Samples)
		}
		if startSample >= endSample {
			continue
		}
		subPath := filepath.Join(dir, fmt.Sprintf("%s_%03d.wav", base, i))
		if err := writeWav(subPath, wav.SampleRate, wav.Channels, wav.Samples[startSample:endSample]); err != nil {
			return nil, fmt.Errorf("writing sub-segment %d: %w", i, err)
		}
		segments = append(segments, Segment{
			Path:     subPath,
			Offset:   offset,
			Duration: end - offset,
		})
	}
	return segments, nil
}

func statsFor(segments []Segment) Stats {
	if len(segments) == 0 {
		return Stats{}
	}
	stats := Stats{Min: segments[0].Duration, Max: segments[0].Duration}
	for _, seg := range segments {
		stats.Total += seg.Duration
		if seg.Duration < stats.Min {
			stats.Min = seg.Duration
		}
		if seg.Duration > stats.Max {
			stats.Max = seg.Duration
		}
	}
	stats.Mean = stats.Total / float64(len(segments))
	return stats
}

// RemoveSegment deletes the file at path; a file that is already gone is
// not an error. It removes whatever path it is given, the canonical file
// included, so callers decide when the canonical file may go per the
// keep_audio flag.
func RemoveSegment(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
