package broker

// Status mirrors the broker result-backend states from §4.D/§5. Handle.Get
// treats Success and Failure as terminal. The orchestrator does not write a
// "Sent" state on submit; the status endpoint tells an unknown job id from a
// job not yet started by looking the id up in the job table.
type Status string

const (
	StatusPending Status = "Pending"
	StatusSent    Status = "Sent"
	StatusStarted Status = "Started"
	StatusSuccess Status = "Success"
	StatusFailure Status = "Failure"
)

// IsTerminal reports whether the status ends a Handle's life.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

// submitRequest/submitResponse, statusRequest/statusResponse, and
// revokeRequest/revokeResponse are the plain Go structs carried as gRPC
// payloads via the json codec (see codec.go). Field names mirror the
// teacher's StartJob/StreamJobStatus/StopJob RPC trio
// (internal/asrengine/manager.go), generalized from "ASR engine" to "named
// worker queue".
type submitRequest struct {
	JobID    string            `json:"job_id"`
	TaskName string            `json:"task_name"`
	Args     map[string]string `json:"args"`
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

type statusRequest struct {
	JobID string `json:"job_id"`
}

type statusResponse struct {
	State      Status `json:"state"`
	ResultJSON string `json:"result_json,omitempty"`
	Error      string `json:"error,omitempty"`
}

type revokeRequest struct {
	JobID string `json:"job_id"`
}

type revokeResponse struct{}
