package audio

import "math"

// frameDurationSeconds is the fixed VAD analysis window (§4.A: "frame the
// PCM into 30 ms chunks").
const frameDurationSeconds = 0.03

// Classifier decides whether one fixed-duration PCM frame contains speech.
// The default implementation (energyClassifier) is a pure-Go, cgo-free
// approximation of the reference system's WebRTC VAD mode 1; the interface
// exists so a more faithful binding can be substituted without touching the
// segmenter (see DESIGN.md's stdlib-justification entry).
type Classifier interface {
	IsSpeech(frame []int16) bool
}

// energyClassifier flags a frame as speech when its RMS energy exceeds a
// threshold relative to a running noise floor, which is the standard
// cheap substitute for a trained VAD when no such model is available.
type energyClassifier struct {
	threshold float64
	noiseFloor float64
	adapted    bool
}

// newEnergyClassifier builds the default Classifier. threshold is a
// multiplier applied over the adaptively tracked noise floor.
func newEnergyClassifier() *energyClassifier {
	return &energyClassifier{threshold: 2.5}
}

func (c *energyClassifier) IsSpeech(frame []int16) bool {
	if len(frame) == 0 {
		return false
	}
	rms := rmsEnergy(frame)
	if !c.adapted {
		c.noiseFloor = rms
		c.adapted = true
		return false
	}
	isSpeech := rms > c.noiseFloor*c.threshold
	if !isSpeech {
		// Slowly track the ambient noise floor during silence.
		c.noiseFloor = 0.95*c.noiseFloor + 0.05*rms
	}
	return isSpeech
}

func rmsEnergy(frame []int16) float64 {
	var sum float64
	for _, s := range frame {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(frame)))
}

// classifyFrames splits samples into frameDurationSeconds windows at
// sampleRate and classifies each with c, returning one bool per frame.
// A trailing partial frame, if any, is classified on its own.
func classifyFrames(samples []int16, sampleRate uint32, c Classifier) []bool {
	frameSize := int(float64(sampleRate) * frameDurationSeconds)
	if frameSize <= 0 {
		return nil
	}
	var speech []bool
	for start := 0; start < len(samples); start += frameSize {
		end := start + frameSize
		if end > len(samples) {
			end = len(samples)
		}
		speech = append(speech, c.IsSpeech(samples[start:end]))
	}
	return speech
}

// silenceRun is a maximal run of consecutive non-speech frames.
type silenceRun struct {
	startFrame int
	endFrame   int // exclusive
}

func (r silenceRun) midpointFrame() float64 {
	return float64(r.startFrame+r.endFrame) / 2.0
}

func (r silenceRun) durationSeconds() float64 {
	return float64(r.endFrame-r.startFrame) * frameDurationSeconds
}

// findSilenceRuns scans frame-level speech flags for maximal silence runs.
func findSilenceRuns(speech []bool) []silenceRun {
	var runs []silenceRun
	inRun := false
	runStart := 0
	for i, s := range speech {
		if !s {
			if !inRun {
				inRun = true
				runStart = i
			}
			continue
		}
		if inRun {
			runs = append(runs, silenceRun{startFrame: runStart, endFrame: i})
			inRun = false
		}
	}
	if inRun {
		runs = append(runs, silenceRun{startFrame: runStart, endFrame: len(speech)})
	}
	return runs
}

// cutCandidate is a candidate segmentation boundary in seconds, derived
// from a silence run's midpoint.
type cutCandidate struct {
	timeSeconds float64
	runDuration float64
}

// vadCutPoints computes the ordered cut points (in seconds, excluding the
// file boundaries) for samples at sampleRate, applying the min-silence,
// min-segment-duration and max-segment-duration rules from §4.A.
func vadCutPoints(samples []int16, sampleRate uint32, c Classifier, minSilence, minSegment, maxSegment float64) []float64 {
	speech := classifyFrames(samples, sampleRate, c)
	runs := findSilenceRuns(speech)

	var candidates []cutCandidate
	var primary []float64
	for _, run := range runs {
		t := run.midpointFrame() * frameDurationSeconds
		candidates = append(candidates, cutCandidate{timeSeconds: t, runDuration: run.durationSeconds()})
		if run.durationSeconds() >= minSilence {
			primary = append(primary, t)
		}
	}

	if len(primary) == 0 {
		return nil
	}

	totalDuration := float64(len(samples)) / float64(sampleRate)
	cuts := mergeShortPieces(primary, totalDuration, minSegment)
	if maxSegment > 0 {
		cuts = forceMaxDurationCuts(cuts, candidates, totalDuration, maxSegment)
	}
	return cuts
}

// mergeShortPieces merges forward any piece shorter than minSegment by
// dropping the cut boundary that ends it.
func mergeShortPieces(cuts []float64, totalDuration, minSegment float64) []float64 {
	if minSegment <= 0 {
		return cuts
	}
	bounds := append([]float64{0}, cuts...)
	bounds = append(bounds, totalDuration)

	var merged []float64
	lastBoundary := bounds[0]
	for i := 1; i < len(bounds)-1; i++ {
		if bounds[i]-lastBoundary < minSegment {
			continue // merge forward: drop this boundary
		}
		merged = append(merged, bounds[i])
		lastBoundary = bounds[i]
	}
	return merged
}

// forceMaxDurationCuts inserts additional candidate boundaries (even ones
// below the min-silence threshold) into any piece that still exceeds
// maxSegment, picking the candidate closest to the piece's midpoint.
func forceMaxDurationCuts(cuts []float64, candidates []cutCandidate, totalDuration, maxSegment float64) []float64 {
	bounds := append([]float64{0}, cuts...)
	bounds = append(bounds, totalDuration)

	var result []float64
	for i := 0; i < len(bounds)-1; i++ {
		segStart, segEnd := bounds[i], bounds[i+1]
		for segEnd-segStart > maxSegment {
			forced, ok := nearestCandidateInRange(candidates, segStart, segEnd)
			if !ok {
				break
			}
			result = append(result, forced)
			segStart = forced
		}
		if i < len(bounds)-2 {
			result = append(result, bounds[i+1])
		}
	}
	return dedupeSorted(result)
}

func nearestCandidateInRange(candidates []cutCandidate, start, end float64) (float64, bool) {
	mid := (start + end) / 2
	best := math.Inf(1)
	found := false
	var bestTime float64
	for _, c := range candidates {
		if c.timeSeconds <= start || c.timeSeconds >= end {
			continue
		}
		d := math.Abs(c.timeSeconds - mid)
		if d < best {
			best = d
			bestTime = c.timeSeconds
			found = true
		}
	}
	return bestTime, found
}

func dedupeSorted(vals []float64) []float64 {
	if len(vals) == 0 {
		return vals
	}
	sorted := append([]float64(nil), vals...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	out := sorted[:1]
	for _, v := range sorted[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
