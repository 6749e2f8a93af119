// Package broker implements the remote task client (§4.D): submitting
// named jobs to remote transcription/diarization/punctuation worker
// queues, observing completion, fetching results, and revoking. It
// generalizes the teacher's asrengine/diarengine Manager (dial,
// ensure-running, ping lifecycle against a single local engine process)
// to N named remote queues reached over gRPC.
package broker

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// jsonCodecName is registered with grpc's encoding package so calls can
// request it per-RPC via grpc.CallContentSubtype. The teacher's engine
// managers call protoc-generated stubs; no protoc toolchain is available
// here, so RPC messages are plain Go structs carried over this
// hand-written JSON codec instead (see DESIGN.md).
const jsonCodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("broker: unmarshal response: %w", err)
	}
	return nil
}

func (jsonCodec) Name() string {
	return jsonCodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
