package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scriberr/internal/broker"
	"scriberr/internal/model"
)

func newRegistry(queues ...broker.QueueConfig) *broker.Registry {
	r := broker.NewRegistry()
	for _, cfg := range queues {
		r.Register(broker.NewQueue(cfg))
	}
	return r
}

// A disabled sub-task is trivially resolved: no queue lookup happens, and
// IsAvailable stays false.
func TestResolve_DisabledTasksAreTrivial(t *testing.T) {
	r := New(newRegistry())
	cfg := model.DefaultTranscriptionConfig()

	require.NoError(t, r.Resolve(&cfg))
	assert.False(t, cfg.Diarization.IsAvailable)
	assert.False(t, cfg.Punctuation.IsAvailable)
	assert.Empty(t, cfg.Diarization.ServiceQueue)
	assert.Empty(t, cfg.Punctuation.ServiceQueue)
}

// An enabled sub-task with no matching queue in the registry fails with
// ErrUnresolvableTask naming the sub-task.
func TestResolve_EnabledWithoutQueueFails(t *testing.T) {
	r := New(newRegistry())
	cfg := model.DefaultTranscriptionConfig()
	cfg.Diarization.EnableDiarization = true

	err := r.Resolve(&cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrUnresolvableTask)
	assert.False(t, cfg.Diarization.IsAvailable)
}

// An enabled sub-task resolves to the queue advertising its service type,
// recording that queue's name and flipping IsAvailable.
func TestResolve_EnabledBindsToQueue(t *testing.T) {
	r := New(newRegistry(
		broker.QueueConfig{Name: "diar-1", ServiceType: "diarization"},
		broker.QueueConfig{Name: "punct-1", ServiceType: "punctuation"},
	))
	cfg := model.DefaultTranscriptionConfig()
	cfg.Diarization.EnableDiarization = true
	cfg.Punctuation.EnablePunctuation = true

	require.NoError(t, r.Resolve(&cfg))
	assert.True(t, cfg.Diarization.IsAvailable)
	assert.Equal(t, "diar-1", cfg.Diarization.ServiceQueue)
	assert.True(t, cfg.Punctuation.IsAvailable)
	assert.Equal(t, "punct-1", cfg.Punctuation.ServiceQueue)
}

// A pinned service name that exists but under the wrong service type is
// not a match.
func TestResolve_PinnedNameWrongTypeFails(t *testing.T) {
	name := "punct-1"
	r := New(newRegistry(
		broker.QueueConfig{Name: "punct-1", ServiceType: "punctuation"},
	))
	cfg := model.DefaultTranscriptionConfig()
	cfg.Diarization.EnableDiarization = true
	cfg.Diarization.ServiceName = &name

	err := r.Resolve(&cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrUnresolvableTask)
}

func TestResolveTranscriptionQueue(t *testing.T) {
	r := New(newRegistry(broker.QueueConfig{Name: "tx-1", ServiceType: "transcription"}))
	q, err := r.ResolveTranscriptionQueue()
	require.NoError(t, err)
	assert.Equal(t, "tx-1", q.Name())
}

func TestResolveTranscriptionQueue_NoneRegisteredFails(t *testing.T) {
	r := New(newRegistry())
	_, err := r.ResolveTranscriptionQueue()
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrUnresolvableTask)
}
