package model

// VADConfig controls voice-activity-detection based segmentation.
type VADConfig struct {
	EnableVAD   bool    `json:"enableVAD"`
	MethodName  string  `json:"methodName"`
	MinDuration float64 `json:"minDuration"`
	MaxDuration *float64 `json:"maxDuration,omitempty"`
}

// DefaultVADConfig matches the reference defaults: VAD enabled, WebRTC
// method name, no minimum duration floor.
func DefaultVADConfig() VADConfig {
	return VADConfig{EnableVAD: true, MethodName: "WebRTC", MinDuration: 0}
}

// DiarizationConfig controls the optional diarization sub-task.
type DiarizationConfig struct {
	EnableDiarization  bool    `json:"enableDiarization"`
	NumberOfSpeaker    *int    `json:"numberOfSpeaker,omitempty"`
	MaxNumberOfSpeaker *int    `json:"maxNumberOfSpeaker,omitempty"`
	ServiceName        *string `json:"serviceName,omitempty"`
	// serviceQueue is bound by the resolver, not supplied by the client.
	ServiceQueue string `json:"-"`
	IsAvailable  bool   `json:"-"`
}

// Normalize applies the invariants from §3: numberOfSpeaker==1 disables
// diarization; when both speaker counts are set, maxNumberOfSpeaker is
// clamped to numberOfSpeaker.
func (c *DiarizationConfig) Normalize() {
	if !c.EnableDiarization {
		c.NumberOfSpeaker = nil
		c.MaxNumberOfSpeaker = nil
		return
	}
	if c.NumberOfSpeaker != nil {
		if *c.NumberOfSpeaker <= 0 {
			c.NumberOfSpeaker = nil
		} else if *c.NumberOfSpeaker == 1 {
			c.EnableDiarization = false
			return
		}
	}
	if c.NumberOfSpeaker != nil {
		n := *c.NumberOfSpeaker
		c.MaxNumberOfSpeaker = &n
	} else if c.MaxNumberOfSpeaker != nil && *c.MaxNumberOfSpeaker <= 0 {
		c.MaxNumberOfSpeaker = nil
	}
}

// PunctuationConfig controls the optional punctuation sub-task.
type PunctuationConfig struct {
	EnablePunctuation bool    `json:"enablePunctuation"`
	ServiceName       *string `json:"serviceName,omitempty"`
	ServiceQueue      string  `json:"-"`
	IsAvailable       bool    `json:"-"`
}

// TranscriptionConfig is the closed configuration tree accepted from a
// client alongside an uploaded audio file.
type TranscriptionConfig struct {
	VAD         VADConfig         `json:"vadConfig"`
	Diarization DiarizationConfig `json:"diarizationConfig"`
	Punctuation PunctuationConfig `json:"punctuationConfig"`

	// EnablePunctuation is a legacy top-level field that, when present,
	// overrides Punctuation.EnablePunctuation.
	EnablePunctuation *bool `json:"enablePunctuation,omitempty"`

	// TranscribePerChannel is unconsumed downstream; preserved only for
	// round-tripping per the Open Question resolution in DESIGN.md.
	TranscribePerChannel bool `json:"transcribePerChannel,omitempty"`

	KeepAudio bool `json:"keep_audio,omitempty"`
}

// DefaultTranscriptionConfig returns the documented defaults.
func DefaultTranscriptionConfig() TranscriptionConfig {
	return TranscriptionConfig{VAD: DefaultVADConfig()}
}

// Normalize applies cross-field defaults/invariants: the legacy top-level
// enablePunctuation flag, and the diarization clamping rule.
func (c *TranscriptionConfig) Normalize() {
	if c.EnablePunctuation != nil {
		c.Punctuation.EnablePunctuation = *c.EnablePunctuation
	}
	if c.VAD.MethodName == "" {
		c.VAD.MethodName = "WebRTC"
	}
	c.Diarization.Normalize()
}

// Equal reports structural equality across all declared keys (§8
// invariant 8: config equality is reflexive and symmetric).
func (c TranscriptionConfig) Equal(other TranscriptionConfig) bool {
	if c.VAD != other.VAD {
		if !equalVAD(c.VAD, other.VAD) {
			return false
		}
	}
	if c.Diarization.EnableDiarization != other.Diarization.EnableDiarization {
		return false
	}
	if !equalIntPtr(c.Diarization.NumberOfSpeaker, other.Diarization.NumberOfSpeaker) {
		return false
	}
	if !equalIntPtr(c.Diarization.MaxNumberOfSpeaker, other.Diarization.MaxNumberOfSpeaker) {
		return false
	}
	if !equalStrPtr(c.Diarization.ServiceName, other.Diarization.ServiceName) {
		return false
	}
	if c.Punctuation.EnablePunctuation != other.Punctuation.EnablePunctuation {
		return false
	}
	if !equalStrPtr(c.Punctuation.ServiceName, other.Punctuation.ServiceName) {
		return false
	}
	return c.TranscribePerChannel == other.TranscribePerChannel && c.KeepAudio == other.KeepAudio
}

func equalVAD(a, b VADConfig) bool {
	if a.EnableVAD != b.EnableVAD || a.MethodName != b.MethodName || a.MinDuration != b.MinDuration {
		return false
	}
	if (a.MaxDuration == nil) != (b.MaxDuration == nil) {
		return false
	}
	if a.MaxDuration != nil && *a.MaxDuration != *b.MaxDuration {
		return false
	}
	return true
}

func equalIntPtr(a, b *int) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

func equalStrPtr(a, b *string) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}
