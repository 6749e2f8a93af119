package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc"
)

// pollInterval governs how often a blocking Handle.Get polls queue status.
// The broker's visibility timeout never expires (§5: "no fixed timeout on
// sub-task completion"), so the only bound on Get is ctx cancellation.
const pollInterval = 200 * time.Millisecond

// Handle tracks one outstanding remote job, matching §4.D's
// submit/get/revoke contract.
type Handle struct {
	queue *Queue
	jobID string
}

// Submit dispatches taskName with args to q and returns a Handle
// immediately; submission is asynchronous (§4.D).
func (q *Queue) Submit(ctx context.Context, jobID, taskName string, args map[string]string) (*Handle, error) {
	if err := q.EnsureRunning(ctx); err != nil {
		return nil, err
	}

	var resp submitResponse
	req := submitRequest{JobID: jobID, TaskName: taskName, Args: args}
	if err := q.conn.Invoke(ctx, "/broker.WorkerQueue/Submit", &req, &resp, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return nil, fmt.Errorf("submitting %s to queue %q: %w", taskName, q.cfg.Name, err)
	}
	return &Handle{queue: q, jobID: jobID}, nil
}

// Status fetches the current state without blocking.
func (h *Handle) Status(ctx context.Context) (Status, error) {
	var resp statusResponse
	req := statusRequest{JobID: h.jobID}
	if err := h.queue.conn.Invoke(ctx, "/broker.WorkerQueue/Status", &req, &resp, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return "", err
	}
	return resp.State, nil
}

// Get blocks until the handle reaches a terminal state, returning the raw
// result payload on Success or an error describing the Failure. It checks
// ctx between polls so a job revoke is observed cooperatively before the
// next wait (§5).
func (h *Handle) Get(ctx context.Context) (json.RawMessage, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		var resp statusResponse
		req := statusRequest{JobID: h.jobID}
		err := h.queue.conn.Invoke(ctx, "/broker.WorkerQueue/Status", &req, &resp, grpc.CallContentSubtype(jsonCodecName))
		if err != nil {
			return nil, err
		}

		switch resp.State {
		case StatusSuccess:
			return json.RawMessage(resp.ResultJSON), nil
		case StatusFailure:
			if resp.Error != "" {
				return nil, fmt.Errorf("%s", resp.Error)
			}
			return nil, fmt.Errorf("job %s failed", h.jobID)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Revoke cancels the outstanding job. It is safe to call on an already
// terminal handle.
func (h *Handle) Revoke(ctx context.Context) error {
	var resp revokeResponse
	req := revokeRequest{JobID: h.jobID}
	return h.queue.conn.Invoke(ctx, "/broker.WorkerQueue/Revoke", &req, &resp, grpc.CallContentSubtype(jsonCodecName))
}

// JobID returns the broker-assigned job id this handle tracks.
func (h *Handle) JobID() string { return h.jobID }
