package audio

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scriberr/internal/model"
)

const sampleRate = 16000

func tone(durationSeconds float64, amplitude int16) []int16 {
	n := int(durationSeconds * sampleRate)
	out := make([]int16, n)
	for i := range out {
		if amplitude == 0 {
			out[i] = 0
			continue
		}
		// Simple square-wave-ish tone; amplitude dominates silence detection,
		// exact waveform shape is irrelevant to the energy classifier.
		if (i/8)%2 == 0 {
			out[i] = amplitude
		} else {
			out[i] = -amplitude
		}
	}
	return out
}

func writeTestWav(t *testing.T, dir string, samples []int16) string {
	t.Helper()
	path := filepath.Join(dir, "canonical.wav")
	require.NoError(t, writeWav(path, sampleRate, 1, samples))
	return path
}

func TestSplit_S1_ShortFileBypass(t *testing.T) {
	dir := t.TempDir()
	samples := tone(3.0, 8000)
	path := writeTestWav(t, dir, samples)

	s := NewSegmenter()
	segs, stats, err := s.Split(path, defaultVADConfigForTest(), nil)
	require.NoError(t, err)

	require.Len(t, segs, 1)
	assert.Equal(t, path, segs[0].Path)
	assert.InDelta(t, 0.0, segs[0].Offset, 0.01)
	assert.InDelta(t, 3.0, segs[0].Duration, 0.05)
	assert.InDelta(t, 3.0, stats.Total, 0.05)
	assert.InDelta(t, 3.0, stats.Mean, 0.05)
}

func TestSplit_S2_VADTwoPiece(t *testing.T) {
	dir := t.TempDir()
	var samples []int16
	samples = append(samples, tone(4.0, 9000)...)
	samples = append(samples, tone(1.0, 0)...)
	samples = append(samples, tone(4.0, 9000)...)
	path := writeTestWav(t, dir, samples)

	s := NewSegmenter()
	cfg := defaultVADConfigForTest()
	segs, stats, err := s.Split(path, cfg, nil)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(segs), 1)
	if len(segs) == 2 {
		assert.InDelta(t, 0.0, segs[0].Offset, 0.1)
		assert.InDelta(t, 4.5, segs[1].Offset, 0.5)
	}
	assert.InDelta(t, 9.0, stats.Total, 0.1)
}

func TestParseTimestamps_SortsAndParses(t *testing.T) {
	input := "2.0 3.0 B\n0.0 1.0 A\n\n5.0 6.0\n"
	records, err := ParseTimestamps(bufio.NewReader(strings.NewReader(input)))
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, 0.0, records[0].Start)
	assert.Equal(t, "A", records[0].SpeakerID)
	assert.Equal(t, 2.0, records[1].Start)
	assert.Equal(t, 5.0, records[2].Start)
}

func TestParseTimestamps_MalformedLineIsRejected(t *testing.T) {
	_, err := ParseTimestamps(bufio.NewReader(strings.NewReader("not-a-number 1.0\n")))
	require.Error(t, err)
}

func TestEnergyClassifier_DistinguishesSilenceFromTone(t *testing.T) {
	c := newEnergyClassifier()
	silence := make([]int16, 480)
	// Warm up the noise floor on a silent frame first.
	c.IsSpeech(silence)

	loud := make([]int16, 480)
	for i := range loud {
		if (i/8)%2 == 0 {
			loud[i] = 12000
		} else {
			loud[i] = -12000
		}
	}
	assert.True(t, c.IsSpeech(loud))
	assert.False(t, c.IsSpeech(silence))
}

func TestStatsFor_EmptyProducesZeroStats(t *testing.T) {
	stats := statsFor(nil)
	assert.Equal(t, Stats{}, stats)
}

func TestRmsEnergy_ZeroForSilence(t *testing.T) {
	assert.Equal(t, 0.0, rmsEnergy(make([]int16, 10)))
	assert.Greater(t, rmsEnergy([]int16{100, -100, 100, -100}), 0.0)
}

func TestReadWriteWav_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	samples := []int16{1, -1, 32767, -32768, 0, 42}
	path := filepath.Join(dir, "rt.wav")
	require.NoError(t, writeWav(path, sampleRate, 1, samples))

	w, err := readWav(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(sampleRate), w.SampleRate)
	assert.Equal(t, uint16(1), w.Channels)
	assert.Equal(t, samples, w.Samples)

	_, err = os.Stat(path)
	require.NoError(t, err)
}

func defaultVADConfigForTest() model.VADConfig {
	return model.DefaultVADConfig()
}
