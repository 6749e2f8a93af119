package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JobState is the user-visible state of an orchestrator job, after the
// ingress layer has translated raw broker/orchestrator state per §6.
type JobState string

const (
	JobPending JobState = "pending"
	JobStarted JobState = "started"
	JobDone    JobState = "done"
	JobFailed  JobState = "failed"
)

// StepState is a step's own lifecycle, published via JobRecord.Steps.
type StepState string

const (
	StepPending StepState = "pending"
	StepRunning StepState = "running"
	StepDone    StepState = "done"
	StepFailed  StepState = "failed"
)

// StepProgress is one row of the job's step table (§4.F).
type StepProgress struct {
	State    StepState `json:"state"`
	Progress float64   `json:"progress"`
}

const (
	StepPreprocessing = "preprocessing"
	StepTranscription = "transcription"
	StepDiarization   = "diarization"
	StepPunctuation   = "punctuation"
	StepPostprocessing = "postprocessing"
)

// TranscriptionJob is the persisted row backing a JobRecord: the
// orchestrator's bookkeeping of state, steps and outcome, and the only
// source the status endpoint reads (broker state is not consulted),
// following the teacher's TranscriptionJob/BeforeCreate convention.
type TranscriptionJob struct {
	ID           string            `json:"id" gorm:"primaryKey;type:varchar(36)"`
	State        JobState          `json:"state" gorm:"type:varchar(20);not null;default:'pending'"`
	FileHash     string            `json:"file_hash" gorm:"type:varchar(64);index"`
	AudioPath    string            `json:"audio_path" gorm:"type:text;not null"`
	TimestampsPath *string         `json:"timestamps_path,omitempty" gorm:"type:text"`
	ConfigJSON   string            `json:"-" gorm:"type:text"`
	ResultID     *string           `json:"result_id,omitempty" gorm:"type:varchar(36)"`
	ErrorMessage *string           `json:"error_message,omitempty" gorm:"type:text"`
	StepsJSON    string            `json:"-" gorm:"type:text"`
	CreatedAt    time.Time         `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time         `json:"updated_at" gorm:"autoUpdateTime"`
}

// BeforeCreate assigns a uuid primary key if one was not supplied,
// matching the teacher's TranscriptionJob.BeforeCreate hook.
func (j *TranscriptionJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	return nil
}

// Steps decodes the persisted step table.
func (j *TranscriptionJob) Steps() (map[string]StepProgress, error) {
	steps := map[string]StepProgress{}
	if j.StepsJSON == "" {
		return steps, nil
	}
	if err := json.Unmarshal([]byte(j.StepsJSON), &steps); err != nil {
		return nil, err
	}
	return steps, nil
}

// SetSteps encodes and stores the step table.
func (j *TranscriptionJob) SetSteps(steps map[string]StepProgress) error {
	b, err := json.Marshal(steps)
	if err != nil {
		return err
	}
	j.StepsJSON = string(b)
	return nil
}

// Config decodes the job's stored TranscriptionConfig.
func (j *TranscriptionJob) Config() (TranscriptionConfig, error) {
	var cfg TranscriptionConfig
	if j.ConfigJSON == "" {
		return cfg, nil
	}
	err := json.Unmarshal([]byte(j.ConfigJSON), &cfg)
	return cfg, err
}

// SetConfig encodes and stores a TranscriptionConfig.
func (j *TranscriptionJob) SetConfig(cfg TranscriptionConfig) error {
	b, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	j.ConfigJSON = string(b)
	return nil
}

// CachedTranscription is the per-file-hash word cache entry (§4.C), written
// once after a successful merge and reused by the cache-hit fast path.
type CachedTranscription struct {
	FileHash  string    `json:"file_hash" gorm:"primaryKey;type:varchar(64)"`
	WordsJSON string    `json:"-" gorm:"type:text;not null"`
	CreatedAt time.Time `json:"datetime" gorm:"autoCreateTime"`
}

// Words decodes the cached word array.
func (c *CachedTranscription) Words() ([]Word, error) {
	var words []Word
	if c.WordsJSON == "" {
		return words, nil
	}
	err := json.Unmarshal([]byte(c.WordsJSON), &words)
	return words, err
}

// SetWords encodes and stores the word array.
func (c *CachedTranscription) SetWords(words []Word) error {
	b, err := json.Marshal(words)
	if err != nil {
		return err
	}
	c.WordsJSON = string(b)
	return nil
}

// FinalResult is the persisted, uuid-keyed document returned by
// /results/{id}, matching the stable JSON shape in §6.
type FinalResult struct {
	ID          string    `json:"-" gorm:"primaryKey;type:varchar(36)"`
	FileHash    string    `json:"-" gorm:"type:varchar(64);index"`
	JobID       string    `json:"-" gorm:"type:varchar(36);index"`
	ServiceName string    `json:"-" gorm:"type:varchar(100)"`
	ConfigJSON  string    `json:"-" gorm:"type:text"`
	ResultJSON  string    `json:"-" gorm:"type:text;not null"`
	CreatedAt   time.Time `json:"-" gorm:"autoCreateTime"`
}

// BeforeCreate assigns a fresh uuid result id, matching §4.C's
// push_result contract ("generates a fresh uuid as the id").
func (f *FinalResult) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	return nil
}

// Result decodes the stored TranscriptionResult.
func (f *FinalResult) Result() (TranscriptionResult, error) {
	var r TranscriptionResult
	if err := json.Unmarshal([]byte(f.ResultJSON), &r); err != nil {
		return r, err
	}
	// The stored document carries words only inside its segments.
	if len(r.Words) == 0 {
		for _, seg := range r.Segments {
			r.Words = append(r.Words, seg.Words...)
		}
	}
	return r, nil
}

// SetResult encodes and stores a TranscriptionResult.
func (f *FinalResult) SetResult(r TranscriptionResult) error {
	b, err := r.marshalFinal()
	if err != nil {
		return err
	}
	f.ResultJSON = string(b)
	return nil
}

// Document renders the stable FinalResult JSON document (§6) directly from
// storage, without a detour through TranscriptionResult's Go struct, so
// that the documented field order/shape is exactly what was persisted.
func (f *FinalResult) Document() (json.RawMessage, error) {
	return json.RawMessage(f.ResultJSON), nil
}
