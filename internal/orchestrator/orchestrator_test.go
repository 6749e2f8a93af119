package orchestrator

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"scriberr/internal/audio"
	"scriberr/internal/broker"
	"scriberr/internal/model"
	"scriberr/internal/resolver"
	"scriberr/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.TranscriptionJob{}, &model.CachedTranscription{}, &model.FinalResult{}))
	return store.New(db)
}

// fakeHandle is an in-memory subTaskHandle standing in for a broker.Handle
// backed by a live gRPC connection (see subTaskHandle's doc comment).
type fakeHandle struct {
	words   []model.Word
	err     error
	revoked bool
}

func (h *fakeHandle) Get(ctx context.Context) (json.RawMessage, error) {
	if h.err != nil {
		return nil, h.err
	}
	return json.Marshal(wordsPayload{Words: h.words})
}

func (h *fakeHandle) Revoke(ctx context.Context) error {
	h.revoked = true
	return nil
}

// fakeQueue hands out handles in submission order, matching how
// transcribeFanOut submits segments sequentially.
type fakeQueue struct {
	handles []*fakeHandle
	next    int
}

func (q *fakeQueue) Submit(ctx context.Context, jobID, taskName string, args map[string]string) (subTaskHandle, error) {
	h := q.handles[q.next]
	q.next++
	return h, nil
}

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("scratch"), 0o644))
	return path
}

func requireGone(t *testing.T, path string) {
	t.Helper()
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "expected %s to have been removed", path)
}

func requireExists(t *testing.T, path string) {
	t.Helper()
	_, err := os.Stat(path)
	assert.NoError(t, err, "expected %s to still exist", path)
}

// S6: a three-way fan-out where the second sub-segment fails must consume
// (and remove) the first, remove the second's own file, and revoke+remove
// the third before returning the wrapped sub-transcription error.
func TestTranscribeFanOut_S6_FailFastRevokesAndCleansUp(t *testing.T) {
	dir := t.TempDir()
	canonicalPath := touch(t, dir, "canonical.wav")
	seg0 := touch(t, dir, "seg0.wav")
	seg1 := touch(t, dir, "seg1.wav")
	seg2 := touch(t, dir, "seg2.wav")

	segments := []audio.Segment{
		{Path: seg0, Offset: 0},
		{Path: seg1, Offset: 2},
		{Path: seg2, Offset: 4},
	}

	h0 := &fakeHandle{words: []model.Word{{Text: "hi", Start: 0, End: 1, Conf: 0.9}}}
	h1 := &fakeHandle{err: assertErr}
	h2 := &fakeHandle{}
	fq := &fakeQueue{handles: []*fakeHandle{h0, h1, h2}}

	o := New(nil, nil, nil, nil, nil, nil)

	_, err := o.transcribeFanOut(context.Background(), "job-s6", fq, segments, canonicalPath, func(cmd *exec.Cmd) {})

	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrSubTranscriptionFailed)

	requireGone(t, seg0)
	requireGone(t, seg1)
	requireGone(t, seg2)
	requireExists(t, canonicalPath)

	assert.True(t, h2.revoked, "third (never-started) sub-segment should be revoked")
	assert.False(t, h0.revoked, "already-consumed first sub-segment should not be revoked")
	assert.Equal(t, 0, o.ActiveSubSegments("job-s6"))
}

// Happy path: every sub-segment succeeds, words are merged with their
// offsets applied in submission order, every sub-segment file is consumed,
// and the canonical file is left for the caller's own cleanup decision.
func TestTranscribeFanOut_AllSucceed(t *testing.T) {
	dir := t.TempDir()
	canonicalPath := touch(t, dir, "canonical.wav")
	seg0 := touch(t, dir, "seg0.wav")
	seg1 := touch(t, dir, "seg1.wav")

	segments := []audio.Segment{
		{Path: seg0, Offset: 0},
		{Path: seg1, Offset: 10},
	}
	h0 := &fakeHandle{words: []model.Word{{Text: "one", Start: 0, End: 1, Conf: 1}}}
	h1 := &fakeHandle{words: []model.Word{{Text: "two", Start: 0, End: 1, Conf: 1}}}
	fq := &fakeQueue{handles: []*fakeHandle{h0, h1}}

	o := New(nil, nil, nil, nil, nil, nil)
	words, err := o.transcribeFanOut(context.Background(), "job-ok", fq, segments, canonicalPath, func(cmd *exec.Cmd) {})
	require.NoError(t, err)
	require.Len(t, words, 2)
	assert.Equal(t, "one", words[0].Text)
	assert.InDelta(t, 0.0, words[0].Start, 0.001)
	assert.Equal(t, "two", words[1].Text)
	assert.InDelta(t, 10.0, words[1].Start, 0.001)

	requireGone(t, seg0)
	requireGone(t, seg1)
	requireExists(t, canonicalPath)
	assert.Equal(t, 0, o.ActiveSubSegments("job-ok"))
}

// S7: a job whose file hash is already in the word cache must reuse the
// cached words and never touch the transcription fan-out at all — the
// orchestrator here is built with a nil transcoder/segmenter, so the test
// would panic on a nil dereference if the cache-hit path fell through to
// fresh transcription.
func TestRun_S7_CacheHitSkipsTranscription(t *testing.T) {
	st := newTestStore(t)
	registry := broker.NewRegistry()
	registry.Register(broker.NewQueue(broker.QueueConfig{Name: "transcription", ServiceType: "transcription"}))
	res := resolver.New(registry)
	o := New(st, res, registry, nil, nil, nil)

	ctx := context.Background()
	cachedWords := []model.Word{{Text: "cached", Start: 0, End: 1, Conf: 0.75}}
	st.PushTranscription(ctx, "hash-s7", cachedWords)

	job := &model.TranscriptionJob{State: model.JobPending, FileHash: "hash-s7", AudioPath: "/tmp/does-not-matter.wav"}
	require.NoError(t, job.SetConfig(model.DefaultTranscriptionConfig()))
	require.NoError(t, st.CreateJob(ctx, job))

	require.NoError(t, o.ProcessJob(ctx, job.ID))

	got, err := st.FetchJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobDone, got.State)
	require.NotNil(t, got.ResultID)

	fr, err := st.FetchResult(ctx, *got.ResultID)
	require.NoError(t, err)
	result, err := fr.Result()
	require.NoError(t, err)
	require.Len(t, result.Words, 1)
	assert.Equal(t, "cached", result.Words[0].Text)
	assert.InDelta(t, 0.75, result.Confidence, 0.001)
}

var assertErr = &fakeSubError{}

type fakeSubError struct{}

func (e *fakeSubError) Error() string { return "remote sub-segment transcription error" }
