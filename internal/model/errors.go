package model

import "errors"

// Sentinel errors for the job lifecycle (§7). The orchestrator wraps these
// with the underlying cause via fmt.Errorf("%w: %v", sentinel, err); the
// sentinel identifies the kind of failure, and no separate step name is
// added to the message.
var (
	ErrMalformedConfig        = errors.New("malformed transcription config")
	ErrUnresolvableTask       = errors.New("no worker queue available for required sub-task")
	ErrTranscodingFailed      = errors.New("audio transcoding produced no output")
	ErrSubTranscriptionFailed = errors.New("sub-segment transcription failed")
	ErrDiarizationFailed      = errors.New("diarization failed")
	ErrPunctuationFailed      = errors.New("punctuation failed")
	ErrFinalPersistFailed     = errors.New("failed to persist final result")
	ErrUnknownJobID           = errors.New("unknown jobid")
	ErrCacheUnreachable       = errors.New("cache store unreachable")
)
