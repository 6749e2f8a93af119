// Package resolver implements the service resolver (§4.B): binding each
// enabled auxiliary sub-task (diarization, punctuation) to a live worker
// queue before any audio work begins.
package resolver

import (
	"fmt"

	"scriberr/internal/broker"
	"scriberr/internal/model"
)

const (
	serviceTypeTranscription = "transcription"
	serviceTypeDiarization   = "diarization"
	serviceTypePunctuation   = "punctuation"
)

// Resolver binds TranscriptionConfig sub-tasks to registry queues.
type Resolver struct {
	registry *broker.Registry
}

// New builds a Resolver over registry.
func New(registry *broker.Registry) *Resolver {
	return &Resolver{registry: registry}
}

// Resolve mutates cfg in place, setting ServiceQueue/IsAvailable on each
// enabled sub-task. A disabled task is trivially resolved (§4.B). It
// returns model.ErrUnresolvableTask, naming the sub-task, if a required
// task cannot be matched to a queue.
func (r *Resolver) Resolve(cfg *model.TranscriptionConfig) error {
	if cfg.Diarization.EnableDiarization {
		name := ""
		if cfg.Diarization.ServiceName != nil {
			name = *cfg.Diarization.ServiceName
		}
		q, ok := r.registry.Resolve(serviceTypeDiarization, name)
		if !ok {
			return fmt.Errorf("%w: diarization", model.ErrUnresolvableTask)
		}
		cfg.Diarization.ServiceQueue = q.Name()
		cfg.Diarization.IsAvailable = true
	}

	if cfg.Punctuation.EnablePunctuation {
		name := ""
		if cfg.Punctuation.ServiceName != nil {
			name = *cfg.Punctuation.ServiceName
		}
		q, ok := r.registry.Resolve(serviceTypePunctuation, name)
		if !ok {
			return fmt.Errorf("%w: punctuation", model.ErrUnresolvableTask)
		}
		cfg.Punctuation.ServiceQueue = q.Name()
		cfg.Punctuation.IsAvailable = true
	}

	return nil
}

// ResolveTranscriptionQueue picks the queue used for sub-segment
// transcription fan-out (always required, never disabled).
func (r *Resolver) ResolveTranscriptionQueue() (*broker.Queue, error) {
	q, ok := r.registry.Resolve(serviceTypeTranscription, "")
	if !ok {
		return nil, fmt.Errorf("%w: transcription", model.ErrUnresolvableTask)
	}
	return q, nil
}
