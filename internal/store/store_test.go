package store

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"scriberr/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.TranscriptionJob{}, &model.CachedTranscription{}, &model.FinalResult{}))
	return New(db)
}

func TestFetchTranscription_MissIsNotAnError(t *testing.T) {
	s := newTestStore(t)
	words, ok := s.FetchTranscription(context.Background(), "no-such-hash")
	assert.False(t, ok)
	assert.Nil(t, words)
}

// S7: a pushed transcription is found by the same file hash afterward,
// verbatim.
func TestPushThenFetchTranscription_S7_RoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	want := []model.Word{{Text: "hello", Start: 0, End: 0.4, Conf: 0.99}}

	s.PushTranscription(ctx, "hash-1", want)

	got, ok := s.FetchTranscription(ctx, "hash-1")
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, want[0].Text, got[0].Text)
	assert.InDelta(t, want[0].Conf, got[0].Conf, 0.0001)
}

// Pushing the same file hash twice upserts rather than conflicting.
func TestPushTranscription_OverwritesExistingHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.PushTranscription(ctx, "hash-2", []model.Word{{Text: "first"}})
	s.PushTranscription(ctx, "hash-2", []model.Word{{Text: "second"}})

	got, ok := s.FetchTranscription(ctx, "hash-2")
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "second", got[0].Text)
}

func TestFetchJob_UnknownIDReturnsErrUnknownJobID(t *testing.T) {
	s := newTestStore(t)
	_, err := s.FetchJob(context.Background(), "does-not-exist")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrUnknownJobID)
}

func TestCreateFetchUpdateJob(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job := &model.TranscriptionJob{State: model.JobPending, FileHash: "h1", AudioPath: "/tmp/a.wav"}
	require.NoError(t, job.SetConfig(model.DefaultTranscriptionConfig()))
	require.NoError(t, s.CreateJob(ctx, job))

	got, err := s.FetchJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobPending, got.State)

	got.State = model.JobStarted
	require.NoError(t, s.UpdateJob(ctx, got))

	reloaded, err := s.FetchJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStarted, reloaded.State)
}

// PendingJobs surfaces only non-terminal jobs, for resuming work after a
// restart.
func TestPendingJobs_OnlyNonTerminal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	states := []model.JobState{model.JobPending, model.JobStarted, model.JobDone, model.JobFailed}
	for i, st := range states {
		job := &model.TranscriptionJob{State: st, FileHash: "h", AudioPath: "/tmp/a.wav"}
		require.NoError(t, job.SetConfig(model.DefaultTranscriptionConfig()))
		require.NoError(t, s.CreateJob(ctx, job))
		_ = i
	}

	pending, err := s.PendingJobs(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	for _, job := range pending {
		assert.Contains(t, []model.JobState{model.JobPending, model.JobStarted}, job.State)
	}
}

func TestPushThenFetchResult(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	result := model.TranscriptionResult{Confidence: 0.8, Words: []model.Word{{Text: "hi"}}}
	id, err := s.PushResult(ctx, "hash-3", "job-3", "queue-1", model.DefaultTranscriptionConfig(), result)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	fr, err := s.FetchResult(ctx, id)
	require.NoError(t, err)
	got, err := fr.Result()
	require.NoError(t, err)
	assert.InDelta(t, 0.8, got.Confidence, 0.0001)
	require.Len(t, got.Words, 1)
	assert.Equal(t, "hi", got.Words[0].Text)
}

func TestFetchResult_UnknownIDReturnsErrUnknownJobID(t *testing.T) {
	s := newTestStore(t)
	_, err := s.FetchResult(context.Background(), "no-such-result")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrUnknownJobID)
}
