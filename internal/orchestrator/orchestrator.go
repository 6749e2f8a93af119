// Package orchestrator implements the job orchestrator (§4.F): the state
// machine that drives one transcription job from resolved config through
// preprocessing, sub-segment transcription fan-out, word merge, optional
// diarization and punctuation, to a persisted final result. It plugs into
// the teacher's queue.TaskQueue worker pool as a queue.JobProcessor.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"scriberr/internal/align"
	"scriberr/internal/audio"
	"scriberr/internal/broker"
	"scriberr/internal/model"
	"scriberr/internal/resolver"
	"scriberr/internal/sse"
	"scriberr/internal/store"
	"scriberr/pkg/logger"
)

// subTaskQueue and subTaskHandle narrow broker.Queue/broker.Handle down to
// the submit/get/revoke contract transcribeFanOut needs, so tests can drive
// the fail-fast fan-out logic against an in-memory fake instead of a live
// gRPC broker. *broker.Handle already satisfies subTaskHandle; Queue needs
// the thin brokerQueueAdapter below since Submit's return type doesn't
// structurally match without it.
type subTaskQueue interface {
	Submit(ctx context.Context, jobID, taskName string, args map[string]string) (subTaskHandle, error)
}

type subTaskHandle interface {
	Get(ctx context.Context) (json.RawMessage, error)
	Revoke(ctx context.Context) error
}

type brokerQueueAdapter struct {
	q *broker.Queue
}

func (a brokerQueueAdapter) Submit(ctx context.Context, jobID, taskName string, args map[string]string) (subTaskHandle, error) {
	h, err := a.q.Submit(ctx, jobID, taskName, args)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Orchestrator drives the job state machine described in §4.F. It satisfies
// the teacher's queue.JobProcessor interface so it can be registered with
// queue.NewTaskQueue the same way the teacher registers its WhisperX
// processor.
type Orchestrator struct {
	store      *store.Store
	resolver   *resolver.Resolver
	registry   *broker.Registry
	transcoder *audio.Transcoder
	segmenter  *audio.Segmenter
	events     *sse.Broadcaster

	fanOutMutex sync.Mutex
	fanOutCount map[string]int
}

// New builds an Orchestrator over its collaborators. events may be nil, in
// which case step updates are simply not broadcast.
func New(st *store.Store, res *resolver.Resolver, registry *broker.Registry, transcoder *audio.Transcoder, segmenter *audio.Segmenter, events *sse.Broadcaster) *Orchestrator {
	return &Orchestrator{
		store: st, resolver: res, registry: registry, transcoder: transcoder, segmenter: segmenter, events: events,
		fanOutCount: make(map[string]int),
	}
}

// ActiveSubSegments reports how many of jobID's sub-segment transcriptions
// are still outstanding with the broker, satisfying queue.FanOutJobProcessor
// so the worker pool can log/report fan-out progress on revoke.
func (o *Orchestrator) ActiveSubSegments(jobID string) int {
	o.fanOutMutex.Lock()
	defer o.fanOutMutex.Unlock()
	return o.fanOutCount[jobID]
}

func (o *Orchestrator) setActiveSubSegments(jobID string, n int) {
	o.fanOutMutex.Lock()
	defer o.fanOutMutex.Unlock()
	if n <= 0 {
		delete(o.fanOutCount, jobID)
		return
	}
	o.fanOutCount[jobID] = n
}

// ProcessJob runs jobID's full pipeline to completion, matching
// queue.JobProcessor. It has no child process of its own to register, so it
// delegates straight to ProcessJobWithProcess with a no-op registrar.
func (o *Orchestrator) ProcessJob(ctx context.Context, jobID string) error {
	return o.ProcessJobWithProcess(ctx, jobID, func(*exec.Cmd) {})
}

// ProcessJobWithProcess runs jobID's full pipeline. registerProcess is
// passed down through run and transcribeFanOut but no step calls it; the
// ffmpeg transcode runs under ctx, so cancelling the job's context on
// revoke stops it.
func (o *Orchestrator) ProcessJobWithProcess(ctx context.Context, jobID string, registerProcess func(*exec.Cmd)) error {
	job, err := o.store.FetchJob(ctx, jobID)
	if err != nil {
		return err
	}

	cfg, err := job.Config()
	if err != nil {
		return o.fail(ctx, job, fmt.Errorf("%w: %v", model.ErrMalformedConfig, err))
	}

	result, err := o.run(ctx, job, cfg, registerProcess)
	if err != nil {
		return o.fail(ctx, job, err)
	}

	resultID, err := o.store.PushResult(ctx, job.FileHash, job.ID, transcriptionServiceName(cfg), cfg, result)
	if err != nil {
		return o.fail(ctx, job, err)
	}

	job.ResultID = &resultID
	job.State = model.JobDone
	o.setStep(job, model.StepPostprocessing, model.StepDone, 1)
	return o.store.UpdateJob(ctx, job)
}

// run executes the pipeline proper, returning the merged TranscriptionResult
// or the first fatal error encountered (§7).
func (o *Orchestrator) run(ctx context.Context, job *model.TranscriptionJob, cfg model.TranscriptionConfig, registerProcess func(*exec.Cmd)) (model.TranscriptionResult, error) {
	cfg.Normalize()

	// Resolving: bind every enabled sub-task to a live queue before any
	// audio work begins (§4.B). A transcription queue is always required.
	transcriptionQueue, err := o.resolver.ResolveTranscriptionQueue()
	if err != nil {
		return model.TranscriptionResult{}, err
	}
	if err := o.resolver.Resolve(&cfg); err != nil {
		return model.TranscriptionResult{}, err
	}
	if err := job.SetConfig(cfg); err != nil {
		return model.TranscriptionResult{}, fmt.Errorf("%w: %v", model.ErrMalformedConfig, err)
	}

	fileHash := job.FileHash

	// Cache-hit fast path (§4.F): a prior run already produced a word
	// cache for this exact file content; skip straight to diarization.
	if words, ok := o.store.FetchTranscription(ctx, fileHash); ok {
		logger.Info("cache hit, skipping transcription", "job_id", job.ID, "file_hash", fileHash)
		return o.postTranscription(ctx, job, cfg, words)
	}

	o.setStep(job, model.StepPreprocessing, model.StepRunning, 0)
	_ = o.store.UpdateJob(ctx, job)

	canonicalPath, err := o.transcoder.Transcode(ctx, job.AudioPath)
	if err != nil {
		return model.TranscriptionResult{}, err
	}
	job.AudioPath = canonicalPath

	var timestamps []audio.TimestampRecord
	if job.TimestampsPath != nil {
		timestamps, err = loadTimestamps(*job.TimestampsPath)
		if err != nil {
			return model.TranscriptionResult{}, err
		}
	}
	// Timestamp-driven split disables VAD and, per §4.A/§4.F, forces
	// diarization off: externally supplied boundaries already carry the
	// speaker id, so there is nothing left for diarization to resolve.
	vadCfg := cfg.VAD
	segments, _, err := o.segmenter.Split(canonicalPath, vadCfg, timestamps)
	if err != nil {
		return model.TranscriptionResult{}, err
	}
	if len(timestamps) > 0 {
		cfg.Diarization.EnableDiarization = false
	}

	o.setStep(job, model.StepPreprocessing, model.StepDone, 1)
	o.setStep(job, model.StepTranscription, model.StepRunning, 0)
	_ = o.store.UpdateJob(ctx, job)

	words, err := o.transcribeFanOut(ctx, job.ID, brokerQueueAdapter{transcriptionQueue}, segments, canonicalPath, registerProcess)
	if err != nil {
		if !cfg.KeepAudio {
			_ = audio.RemoveSegment(canonicalPath)
		}
		return model.TranscriptionResult{}, err
	}

	o.cleanupSegments(segments, canonicalPath, cfg.KeepAudio)

	o.setStep(job, model.StepTranscription, model.StepDone, 1)
	_ = o.store.UpdateJob(ctx, job)

	o.store.PushTranscription(ctx, fileHash, words)

	if len(timestamps) > 0 {
		return o.finalize(ctx, job, cfg, words, timestampsToDiarization(timestamps))
	}
	return o.postTranscription(ctx, job, cfg, words)
}

// postTranscription runs the diarization/punctuation/merge tail shared by
// both the cache-hit fast path and the fresh-transcription path.
func (o *Orchestrator) postTranscription(ctx context.Context, job *model.TranscriptionJob, cfg model.TranscriptionConfig, words []model.Word) (model.TranscriptionResult, error) {
	var diarSegs []model.DiarizationSegment
	if cfg.Diarization.EnableDiarization {
		o.setStep(job, model.StepDiarization, model.StepRunning, 0)
		_ = o.store.UpdateJob(ctx, job)

		segs, err := o.diarize(ctx, cfg, job.AudioPath)
		if err != nil {
			return model.TranscriptionResult{}, err
		}
		diarSegs = segs
		o.setStep(job, model.StepDiarization, model.StepDone, 1)
		_ = o.store.UpdateJob(ctx, job)
	}

	return o.finalize(ctx, job, cfg, words, diarSegs)
}

// finalize aligns words against diarization segments (if any), applies
// punctuation sequentially, and assembles the merged TranscriptionResult.
func (o *Orchestrator) finalize(ctx context.Context, job *model.TranscriptionJob, cfg model.TranscriptionConfig, words []model.Word, diarSegs []model.DiarizationSegment) (model.TranscriptionResult, error) {
	segments := align.Align(words, diarSegs)

	if cfg.Punctuation.EnablePunctuation {
		o.setStep(job, model.StepPunctuation, model.StepRunning, 0)
		_ = o.store.UpdateJob(ctx, job)

		if err := o.punctuate(ctx, cfg, segments); err != nil {
			return model.TranscriptionResult{}, err
		}
		o.setStep(job, model.StepPunctuation, model.StepDone, 1)
		_ = o.store.UpdateJob(ctx, job)
	}

	confidence := meanConfidence(words)
	return model.TranscriptionResult{
		Confidence:          confidence,
		Words:               words,
		Segments:            segments,
		DiarizationSegments: diarSegs,
	}, nil
}

// transcribeFanOut submits every sub-segment to the transcription queue,
// then blocks on each handle in submission order (§9 Design Notes: "the
// broker client exposes blocking calls" — no extra goroutines for waits).
// As each sub-segment's transcription arrives its file is removed
// immediately (§3 Lifecycles: "sub-segment files are removed as soon as
// their remote transcription completes"). On the first failure, every
// handle still outstanding is revoked and its file removed before the
// error is returned (§4.F rule 4 / S6).
func (o *Orchestrator) transcribeFanOut(ctx context.Context, jobID string, queue subTaskQueue, segments []audio.Segment, canonicalPath string, registerProcess func(*exec.Cmd)) ([]model.Word, error) {
	handles := make([]subTaskHandle, len(segments))
	for i, seg := range segments {
		h, err := queue.Submit(ctx, fmt.Sprintf("%s-%03d", "sub", i), "transcribe", map[string]string{"path": seg.Path})
		if err != nil {
			revokeAndRemove(ctx, handles[:i], segments[:i], canonicalPath)
			o.setActiveSubSegments(jobID, 0)
			return nil, fmt.Errorf("%w: %v", model.ErrSubTranscriptionFailed, err)
		}
		handles[i] = h
	}
	o.setActiveSubSegments(jobID, len(handles))
	defer o.setActiveSubSegments(jobID, 0)

	var words []model.Word
	for i, h := range handles {
		payload, err := h.Get(ctx)
		var ws []model.Word
		if err == nil {
			ws, err = decodeWords(payload)
		}
		removeConsumedSegment(segments[i], canonicalPath)
		o.setActiveSubSegments(jobID, len(handles)-i-1)
		if err != nil {
			revokeAndRemove(context.Background(), handles[i+1:], segments[i+1:], canonicalPath)
			return nil, fmt.Errorf("%w: %v", model.ErrSubTranscriptionFailed, err)
		}
		offset := segments[i].Offset
		for _, w := range ws {
			words = append(words, w.WithOffset(offset))
		}
	}
	return words, nil
}

func (o *Orchestrator) diarize(ctx context.Context, cfg model.TranscriptionConfig, audioPath string) ([]model.DiarizationSegment, error) {
	queue, ok := o.queueByName(cfg.Diarization.ServiceQueue)
	if !ok {
		return nil, fmt.Errorf("%w: diarization queue %q not registered", model.ErrDiarizationFailed, cfg.Diarization.ServiceQueue)
	}

	args := map[string]string{"path": audioPath}
	if cfg.Diarization.NumberOfSpeaker != nil {
		args["number_of_speaker"] = fmt.Sprintf("%d", *cfg.Diarization.NumberOfSpeaker)
	}
	if cfg.Diarization.MaxNumberOfSpeaker != nil {
		args["max_number_of_speaker"] = fmt.Sprintf("%d", *cfg.Diarization.MaxNumberOfSpeaker)
	}

	h, err := queue.Submit(ctx, "diarization", "diarize", args)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrDiarizationFailed, err)
	}
	payload, err := h.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrDiarizationFailed, err)
	}
	segs, err := decodeDiarization(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrDiarizationFailed, err)
	}
	return segs, nil
}

// punctuate runs each segment's raw text through the punctuation queue
// sequentially (§4.F: punctuation runs after alignment, one segment at a
// time so speaker boundaries stay stable), setting ProcessedText in place.
func (o *Orchestrator) punctuate(ctx context.Context, cfg model.TranscriptionConfig, segments []model.SpeechSegment) error {
	queue, ok := o.queueByName(cfg.Punctuation.ServiceQueue)
	if !ok {
		return fmt.Errorf("%w: punctuation queue %q not registered", model.ErrPunctuationFailed, cfg.Punctuation.ServiceQueue)
	}

	for i := range segments {
		raw := segments[i].RawText()
		if raw == "" {
			continue
		}
		h, err := queue.Submit(ctx, fmt.Sprintf("punct-%03d", i), "punctuate", map[string]string{"text": raw})
		if err != nil {
			return fmt.Errorf("%w: %v", model.ErrPunctuationFailed, err)
		}
		payload, err := h.Get(ctx)
		if err != nil {
			return fmt.Errorf("%w: %v", model.ErrPunctuationFailed, err)
		}
		text, err := decodeText(payload)
		if err != nil {
			return fmt.Errorf("%w: %v", model.ErrPunctuationFailed, err)
		}
		segments[i].ProcessedText = &text
	}
	return nil
}

// cleanupSegments removes consumed sub-segment scratch files. The canonical
// file is removed too, unless the caller asked to keep_audio or the
// segmenter produced exactly one segment equal to the canonical file itself
// (no-VAD short-circuit, §4.A).
func (o *Orchestrator) cleanupSegments(segments []audio.Segment, canonicalPath string, keepAudio bool) {
	singleWholeFile := len(segments) == 1 && segments[0].Path == canonicalPath
	for _, seg := range segments {
		if seg.Path == canonicalPath {
			continue
		}
		if err := audio.RemoveSegment(seg.Path); err != nil {
			logger.Warn("failed to remove consumed sub-segment", "path", seg.Path, "error", err)
		}
	}
	if !keepAudio && !singleWholeFile {
		if err := audio.RemoveSegment(canonicalPath); err != nil {
			logger.Warn("failed to remove canonical audio", "path", canonicalPath, "error", err)
		}
	}
}

func (o *Orchestrator) fail(ctx context.Context, job *model.TranscriptionJob, err error) error {
	job.State = model.JobFailed
	msg := err.Error()
	job.ErrorMessage = &msg
	if updateErr := o.store.UpdateJob(ctx, job); updateErr != nil {
		logger.Error("failed to persist job failure", "job_id", job.ID, "error", updateErr)
	}
	logger.JobFailed(job.ID, 0, err)
	if o.events != nil {
		o.events.Broadcast(job.ID, "failed", map[string]string{"error": msg})
	}
	return err
}

func (o *Orchestrator) setStep(job *model.TranscriptionJob, name string, state model.StepState, progress float64) {
	steps, err := job.Steps()
	if err != nil {
		steps = map[string]model.StepProgress{}
	}
	steps[name] = model.StepProgress{State: state, Progress: progress}
	if err := job.SetSteps(steps); err != nil {
		logger.Warn("failed to encode step progress", "job_id", job.ID, "step", name, "error", err)
	}
	if o.events != nil {
		o.events.Broadcast(job.ID, "step", steps)
	}
}

func (o *Orchestrator) queueByName(name string) (*broker.Queue, bool) {
	return o.registry.ByName(name)
}

// removeConsumedSegment removes a sub-segment's scratch file once its
// transcription is in hand (success or failure). The canonical file is
// never removed here — that decision belongs to cleanupSegments, which
// knows about keep_audio and the no-VAD single-whole-file case.
func removeConsumedSegment(seg audio.Segment, canonicalPath string) {
	if seg.Path == canonicalPath {
		return
	}
	if err := audio.RemoveSegment(seg.Path); err != nil {
		logger.Warn("failed to remove consumed sub-segment", "path", seg.Path, "error", err)
	}
}

// revokeAndRemove cancels every outstanding handle and removes its
// sub-segment's file, used on the fail-fast path once one sub-segment has
// already errored (§4.F rule 4 / S6).
func revokeAndRemove(ctx context.Context, handles []subTaskHandle, segments []audio.Segment, canonicalPath string) {
	for i, h := range handles {
		if h == nil {
			continue
		}
		revokeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_ = h.Revoke(revokeCtx)
		cancel()
		removeConsumedSegment(segments[i], canonicalPath)
	}
}

func meanConfidence(words []model.Word) float64 {
	if len(words) == 0 {
		return 0
	}
	var sum float64
	for _, w := range words {
		sum += w.Conf
	}
	return sum / float64(len(words))
}

func transcriptionServiceName(cfg model.TranscriptionConfig) string {
	return "transcription"
}

func timestampsToDiarization(records []audio.TimestampRecord) []model.DiarizationSegment {
	segs := make([]model.DiarizationSegment, len(records))
	for i, r := range records {
		segs[i] = model.DiarizationSegment{SegBegin: r.Start, SegEnd: r.End, SpeakerID: r.SpeakerID, SegID: i}
	}
	return segs
}
