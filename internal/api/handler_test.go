package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"scriberr/internal/model"
	"scriberr/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.TranscriptionJob{}, &model.CachedTranscription{}, &model.FinalResult{}))
	return store.New(db)
}

func statusRequest(t *testing.T, h *Handler, jobID string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: jobID}}
	c.Request = httptest.NewRequest(http.MethodGet, "/job/"+jobID, nil)
	h.JobStatus(c)
	return w
}

// S8: polling an id the store has never seen is a 404 with a distinct
// "unknown jobid" reason, never confused with a job that simply hasn't
// started (202 pending) or one that ran and failed (500).
func TestJobStatus_S8_UnknownID(t *testing.T) {
	h := &Handler{store: newTestStore(t)}
	w := statusRequest(t, h, "no-such-job")
	assert.Equal(t, http.StatusNotFound, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "failed", body["state"])
	assert.Equal(t, "unknown jobid", body["reason"])
}

// S8: polling a job before the worker has picked it up is a 202 pending.
func TestJobStatus_S8_PendingIs202(t *testing.T) {
	st := newTestStore(t)
	h := &Handler{store: st}
	ctx := context.Background()

	job := &model.TranscriptionJob{State: model.JobPending, FileHash: "h1", AudioPath: "/tmp/a.wav"}
	require.NoError(t, job.SetConfig(model.DefaultTranscriptionConfig()))
	require.NoError(t, st.CreateJob(ctx, job))

	w := statusRequest(t, h, job.ID)
	assert.Equal(t, http.StatusAccepted, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "pending", body["state"])
}

// A job mid-flight (picked up by a worker but not yet terminal) is also 202.
func TestJobStatus_StartedIs202(t *testing.T) {
	st := newTestStore(t)
	h := &Handler{store: st}
	ctx := context.Background()

	job := &model.TranscriptionJob{State: model.JobStarted, FileHash: "h2", AudioPath: "/tmp/a.wav"}
	require.NoError(t, job.SetConfig(model.DefaultTranscriptionConfig()))
	require.NoError(t, st.CreateJob(ctx, job))

	w := statusRequest(t, h, job.ID)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

// A done job reports 201 with its result id.
func TestJobStatus_DoneIs201(t *testing.T) {
	st := newTestStore(t)
	h := &Handler{store: st}
	ctx := context.Background()

	resultID := "result-1"
	job := &model.TranscriptionJob{State: model.JobPending, FileHash: "h3", AudioPath: "/tmp/a.wav"}
	require.NoError(t, job.SetConfig(model.DefaultTranscriptionConfig()))
	require.NoError(t, st.CreateJob(ctx, job))
	job.State = model.JobDone
	job.ResultID = &resultID
	require.NoError(t, st.UpdateJob(ctx, job))

	w := statusRequest(t, h, job.ID)
	assert.Equal(t, http.StatusCreated, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "done", body["state"])
	assert.Equal(t, resultID, body["result_id"])
}

// A terminally failed job reports 500 with its failure reason.
func TestJobStatus_FailedIs500(t *testing.T) {
	st := newTestStore(t)
	h := &Handler{store: st}
	ctx := context.Background()

	reason := "sub-segment transcription failed: boom"
	job := &model.TranscriptionJob{State: model.JobPending, FileHash: "h4", AudioPath: "/tmp/a.wav"}
	require.NoError(t, job.SetConfig(model.DefaultTranscriptionConfig()))
	require.NoError(t, st.CreateJob(ctx, job))
	job.State = model.JobFailed
	job.ErrorMessage = &reason
	require.NoError(t, st.UpdateJob(ctx, job))

	w := statusRequest(t, h, job.ID)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "failed", body["state"])
	assert.Equal(t, reason, body["reason"])
}
