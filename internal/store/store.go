// Package store implements the result/word cache client (§4.C): lookup and
// persistence of per-file word caches and final result documents, over the
// teacher's generic repository.Repository[T] pattern backed by sqlite/GORM.
package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"scriberr/internal/model"
	"scriberr/internal/repository"
	"scriberr/pkg/logger"
)

// Store provides the cache/result operations the orchestrator depends on.
type Store struct {
	db        *gorm.DB
	results   *repository.BaseRepository[model.FinalResult]
	jobs      *repository.BaseRepository[model.TranscriptionJob]
}

// New builds a Store over db. db must already have AutoMigrate'd
// model.TranscriptionJob, model.CachedTranscription, and model.FinalResult.
func New(db *gorm.DB) *Store {
	return &Store{
		db:      db,
		results: repository.NewBaseRepository[model.FinalResult](db),
		jobs:    repository.NewBaseRepository[model.TranscriptionJob](db),
	}
}

// FetchTranscription looks up a cached word array by file hash. Unlike
// result persistence, cache reads are soft: any error (including "not
// found" and store unavailability) is logged and reported as a cache miss
// rather than surfaced as a fatal error (§4.C).
func (s *Store) FetchTranscription(ctx context.Context, fileHash string) ([]model.Word, bool) {
	var cached model.CachedTranscription
	err := s.db.WithContext(ctx).First(&cached, "file_hash = ?", fileHash).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn("cache lookup failed, treating as miss", "file_hash", fileHash, "error", err)
		}
		return nil, false
	}
	words, err := cached.Words()
	if err != nil {
		logger.Warn("cached words undecodable, treating as miss", "file_hash", fileHash, "error", err)
		return nil, false
	}
	return words, true
}

// PushTranscription upserts the word cache for fileHash. Failure is
// best-effort: it is logged, never returned as fatal (§4.F rule 7).
func (s *Store) PushTranscription(ctx context.Context, fileHash string, words []model.Word) {
	entry := model.CachedTranscription{FileHash: fileHash}
	if err := entry.SetWords(words); err != nil {
		logger.Warn("failed to encode cached words", "file_hash", fileHash, "error", err)
		return
	}
	err := s.db.WithContext(ctx).Clauses(upsertByFileHash()...).Create(&entry).Error
	if err != nil {
		logger.Warn("failed to push cached transcription", "file_hash", fileHash, "error", err)
	}
}

// FetchResult loads a persisted FinalResult document by id.
func (s *Store) FetchResult(ctx context.Context, resultID string) (*model.FinalResult, error) {
	result, err := s.results.FindByID(ctx, resultID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", model.ErrUnknownJobID, resultID)
		}
		return nil, err
	}
	return result, nil
}

// PushResult persists a new FinalResult document, generating a fresh uuid
// id (via FinalResult.BeforeCreate). Failure here is fatal for the job
// (§4.C/§7 FinalPersistFailed).
func (s *Store) PushResult(ctx context.Context, fileHash, jobID, serviceName string, cfg model.TranscriptionConfig, result model.TranscriptionResult) (string, error) {
	fr := model.FinalResult{FileHash: fileHash, JobID: jobID, ServiceName: serviceName}
	if err := fr.SetResult(result); err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrFinalPersistFailed, err)
	}
	configJSON, err := marshalConfig(cfg)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrFinalPersistFailed, err)
	}
	fr.ConfigJSON = configJSON

	if err := s.results.Create(ctx, &fr); err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrFinalPersistFailed, err)
	}
	return fr.ID, nil
}

// CreateJob persists a new job row.
func (s *Store) CreateJob(ctx context.Context, job *model.TranscriptionJob) error {
	return s.jobs.Create(ctx, job)
}

// UpdateJob saves mutations to an existing job row.
func (s *Store) UpdateJob(ctx context.Context, job *model.TranscriptionJob) error {
	return s.jobs.Update(ctx, job)
}

// FetchJob loads a job row by id. A missing row maps to
// model.ErrUnknownJobID (§7 UnknownJobId).
func (s *Store) FetchJob(ctx context.Context, jobID string) (*model.TranscriptionJob, error) {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", model.ErrUnknownJobID, jobID)
		}
		return nil, err
	}
	return job, nil
}

// PendingJobs lists jobs still in a non-terminal state, used to resume
// work after a process restart the way the teacher's queue.jobScanner does.
func (s *Store) PendingJobs(ctx context.Context) ([]model.TranscriptionJob, error) {
	var jobs []model.TranscriptionJob
	err := s.db.WithContext(ctx).
		Where("state IN ?", []model.JobState{model.JobPending, model.JobStarted}).
		Find(&jobs).Error
	return jobs, err
}
