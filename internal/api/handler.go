package api

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"scriberr/internal/audio"
	"scriberr/internal/config"
	"scriberr/internal/model"
	"scriberr/internal/queue"
	"scriberr/internal/service"
	"scriberr/internal/sse"
	"scriberr/internal/store"
	"scriberr/pkg/logger"
)

// Handler holds the ingress layer's dependencies: job persistence, the
// worker pool that the orchestrator runs under, and upload handling.
type Handler struct {
	config     *config.Config
	store      *store.Store
	tasks      *queue.TaskQueue
	files      service.FileService
	events     *sse.Broadcaster
	transcoder *audio.Transcoder
}

// NewHandler builds a Handler. events may be nil, in which case the job
// progress stream endpoint reports 503 rather than serving a dead stream.
func NewHandler(cfg *config.Config, st *store.Store, tasks *queue.TaskQueue, events *sse.Broadcaster) *Handler {
	return &Handler{
		config:     cfg,
		store:      st,
		tasks:      tasks,
		files:      service.NewFileService(),
		events:     events,
		transcoder: audio.NewTranscoderWithPath(cfg.FFmpegPath, cfg.FFprobePath),
	}
}

// JobEvents streams step-state and failure events for one job over
// server-sent events (§4.G poll endpoint's push-based complement). It
// copies the :id path parameter into the job_id query parameter that
// sse.Broadcaster.ServeHTTP reads.
func (h *Handler) JobEvents(c *gin.Context) {
	if h.events == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event stream not enabled"})
		return
	}
	q := c.Request.URL.Query()
	q.Set("job_id", c.Param("id"))
	c.Request.URL.RawQuery = q.Encode()
	h.events.ServeHTTP(c.Writer, c.Request)
}

// HealthCheck reports liveness.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Transcribe accepts one audio file plus an optional JSON transcription
// config and an optional externally supplied timestamps file (§6), creates
// a job row, and enqueues it onto the worker pool. It never blocks for the
// job to finish: submission is asynchronous, matching the broker's own
// submit/get split (§4.D/§4.F).
func (h *Handler) Transcribe(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}

	audioPath, err := h.files.SaveUpload(fileHeader, h.config.UploadDir)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to store upload: %v", err)})
		return
	}

	if duration, err := h.transcoder.ProbeDuration(c.Request.Context(), audioPath); err != nil || duration <= 0 {
		_ = os.Remove(audioPath)
		c.JSON(http.StatusBadRequest, gin.H{"error": "uploaded file is not a readable audio file"})
		return
	}

	cfg := model.DefaultTranscriptionConfig()
	if raw := c.PostForm("config"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: %v", model.ErrMalformedConfig, err)})
			return
		}
	}
	cfg.Normalize()

	var timestampsPath *string
	if tsHeader, err := c.FormFile("timestamps"); err == nil {
		path, err := h.files.SaveUpload(tsHeader, h.config.UploadDir)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to store timestamps: %v", err)})
			return
		}
		timestampsPath = &path
	}

	fileHash, err := fileHashOf(audioPath, cfg, timestampsPath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to hash upload: %v", err)})
		return
	}

	job := &model.TranscriptionJob{
		State:          model.JobPending,
		FileHash:       fileHash,
		AudioPath:      audioPath,
		TimestampsPath: timestampsPath,
	}
	if err := job.SetConfig(cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode config"})
		return
	}

	if err := h.store.CreateJob(c.Request.Context(), job); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to create job: %v", err)})
		return
	}

	if err := h.tasks.EnqueueJob(job.ID); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID})
}

// TranscribeMulti accepts several independent audio files in one request
// and submits one job per file, returning the full set of job ids. Each
// file is transcribed independently; there is no cross-file merge.
func (h *Handler) TranscribeMulti(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected multipart form"})
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing files field"})
		return
	}

	cfg := model.DefaultTranscriptionConfig()
	if raw := c.PostForm("config"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: %v", model.ErrMalformedConfig, err)})
			return
		}
	}
	cfg.Normalize()

	jobIDs := make([]string, 0, len(files))
	for _, fh := range files {
		audioPath, err := h.files.SaveUpload(fh, h.config.UploadDir)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to store upload %q: %v", fh.Filename, err)})
			return
		}
		if duration, err := h.transcoder.ProbeDuration(c.Request.Context(), audioPath); err != nil || duration <= 0 {
			_ = os.Remove(audioPath)
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%q is not a readable audio file", fh.Filename)})
			return
		}
		fileHash, err := fileHashOf(audioPath, cfg, nil)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to hash upload %q: %v", fh.Filename, err)})
			return
		}
		job := &model.TranscriptionJob{State: model.JobPending, FileHash: fileHash, AudioPath: audioPath}
		if err := job.SetConfig(cfg); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode config"})
			return
		}
		if err := h.store.CreateJob(c.Request.Context(), job); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to create job: %v", err)})
			return
		}
		if err := h.tasks.EnqueueJob(job.ID); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		jobIDs = append(jobIDs, job.ID)
	}

	c.JSON(http.StatusAccepted, gin.H{"job_ids": jobIDs})
}

// JobStatus translates the orchestrator's step table into the user-facing
// status document described in §6: 202 while the job is pending/running,
// 201 once it has a result, 404 for an id the store has never seen (the
// "unknown jobid" case §9 calls out as distinct from "not started yet"),
// and 500 once the job has terminally failed.
func (h *Handler) JobStatus(c *gin.Context) {
	jobID := c.Param("id")
	job, err := h.store.FetchJob(c.Request.Context(), jobID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"state": "failed", "reason": "unknown jobid"})
		return
	}

	steps, err := job.Steps()
	if err != nil {
		logger.Warn("failed to decode job steps", "job_id", jobID, "error", err)
		steps = map[string]model.StepProgress{}
	}

	switch job.State {
	case model.JobPending, model.JobStarted:
		c.JSON(http.StatusAccepted, gin.H{"id": job.ID, "state": job.State, "steps": steps})
	case model.JobDone:
		c.JSON(http.StatusCreated, gin.H{"id": job.ID, "state": job.State, "result_id": job.ResultID})
	case model.JobFailed:
		reason := ""
		if job.ErrorMessage != nil {
			reason = *job.ErrorMessage
		}
		c.JSON(http.StatusInternalServerError, gin.H{"id": job.ID, "state": job.State, "reason": reason})
	default:
		c.JSON(http.StatusAccepted, gin.H{"id": job.ID, "state": job.State, "steps": steps})
	}
}

// Results fetches a persisted FinalResult document and renders it in the
// Accept-negotiated format: application/json (default), text/plain,
// text/vtt, or text/srt (§6). An unsupported Accept header is a 400, not a
// fallback to json.
func (h *Handler) Results(c *gin.Context) {
	resultID := c.Param("id")
	fr, err := h.store.FetchResult(c.Request.Context(), resultID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	accept := c.NegotiateFormat(gin.MIMEJSON, gin.MIMEPlain, "text/vtt", "text/srt")
	switch accept {
	case gin.MIMEJSON:
		doc, err := fr.Document()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, gin.MIMEJSON, doc)
	case gin.MIMEPlain, "text/vtt", "text/srt":
		result, err := fr.Result()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		renderFormatted(c, accept, result)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported Accept type"})
	}
}

// Revoke cancels a running job. A job still waiting in the queue is not
// running, so it is not cancelled and the request gets a 404.
func (h *Handler) Revoke(c *gin.Context) {
	jobID := c.Param("id")
	if err := h.tasks.KillJob(jobID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"revoked": jobID})
}

// fileHashOf computes the job's cache key: md5(file content) XORed with
// md5(the VAD/timestamps signature that would change segmentation: the
// uploaded timestamps file when there is one, otherwise the VAD config), so
// two uploads of identical audio under different segmentation settings
// don't collide in the word cache (§6).
func fileHashOf(path string, cfg model.TranscriptionConfig, timestampsPath *string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	contentHash := md5.New()
	if _, err := io.Copy(contentHash, f); err != nil {
		return "", err
	}

	signatureHash := md5.New()
	if timestampsPath != nil {
		tsBytes, err := os.ReadFile(*timestampsPath)
		if err != nil {
			return "", err
		}
		signatureHash.Write(tsBytes)
	} else {
		sigBytes, _ := json.Marshal(cfg.VAD)
		signatureHash.Write(sigBytes)
	}

	a := contentHash.Sum(nil)
	b := signatureHash.Sum(nil)
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i%len(b)]
	}
	return hex.EncodeToString(out), nil
}
