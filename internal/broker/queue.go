package broker

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/shlex"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"scriberr/pkg/logger"
)

const (
	defaultStartTimeoutMs = 15000
	pingInterval          = 250 * time.Millisecond
)

// QueueConfig describes how to reach one named remote worker queue.
type QueueConfig struct {
	Name         string
	ServiceType  string // "transcription", "diarization", or "punctuation"
	Address      string // "unix:/run/..." or "host:port"
	Command      []string
	StartTimeout time.Duration
}

// QueueConfigFromEnv parses a queue definition the way the teacher parses
// its engine config from the environment (internal/asrengine.LoadConfigFromEnv):
// a socket/address, a shlex-split command for dev-mode local spawning, and
// a start timeout.
func QueueConfigFromEnv(name, serviceType, addrEnv, cmdEnv, timeoutEnv string) QueueConfig {
	address := getenv(addrEnv, "")
	cmdStr := strings.TrimSpace(getenv(cmdEnv, ""))
	var cmdParts []string
	if cmdStr != "" {
		parsed, err := shlex.Split(cmdStr)
		if err == nil {
			cmdParts = parsed
		}
	}

	timeoutMs := defaultStartTimeoutMs
	if val := getenv(timeoutEnv, ""); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			timeoutMs = parsed
		}
	}

	return QueueConfig{
		Name:         name,
		ServiceType:  serviceType,
		Address:      address,
		Command:      cmdParts,
		StartTimeout: time.Duration(timeoutMs) * time.Millisecond,
	}
}

// Queue is a live gRPC client connection to one named worker queue,
// generalizing the teacher's single-engine Manager (asrengine/diarengine)
// to an arbitrary remote address and RPC surface.
type Queue struct {
	cfg  QueueConfig
	mu   sync.Mutex
	cmd  *exec.Cmd
	conn *grpc.ClientConn
}

// NewQueue builds a Queue for cfg. The connection is established lazily on
// first EnsureRunning call.
func NewQueue(cfg QueueConfig) *Queue {
	return &Queue{cfg: cfg}
}

func (q *Queue) Name() string        { return q.cfg.Name }
func (q *Queue) ServiceType() string { return q.cfg.ServiceType }

// EnsureRunning dials the queue, spawning its process first if a Command
// was configured and no connection is alive (dev/test mode), mirroring the
// teacher's EnsureRunning retry loop.
func (q *Queue) EnsureRunning(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.conn != nil {
		if err := q.ping(ctx); err == nil {
			return nil
		}
		q.closeConnLocked()
	}

	if len(q.cfg.Command) > 0 {
		if err := q.startProcessLocked(); err != nil {
			return err
		}
	}

	deadline := time.Now().Add(q.cfg.StartTimeout)
	for time.Now().Before(deadline) {
		if err := q.dialLocked(ctx); err == nil {
			if err := q.ping(ctx); err == nil {
				return nil
			}
		}
		time.Sleep(pingInterval)
	}
	return fmt.Errorf("worker queue %q did not become ready within %s", q.cfg.Name, q.cfg.StartTimeout)
}

func (q *Queue) startProcessLocked() error {
	args := q.cfg.Command
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Env = append(os.Environ(), "PYTHONUNBUFFERED=1")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	logger.Info("starting worker queue process", "queue", q.cfg.Name, "command", strings.Join(args, " "))
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start worker queue %q: %w", q.cfg.Name, err)
	}
	q.cmd = cmd
	return nil
}

func (q *Queue) dialLocked(ctx context.Context) error {
	var opts []grpc.DialOption
	opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if strings.HasPrefix(q.cfg.Address, "unix:") {
		socketPath := strings.TrimPrefix(q.cfg.Address, "unix:")
		dialer := func(ctx context.Context, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(ctx, "unix", addr)
		}
		opts = append(opts, grpc.WithContextDialer(dialer))
		conn, err := grpc.DialContext(ctx, socketPath, opts...)
		if err != nil {
			return err
		}
		q.conn = conn
		return nil
	}

	conn, err := grpc.DialContext(ctx, q.cfg.Address, opts...)
	if err != nil {
		return err
	}
	q.conn = conn
	return nil
}

func (q *Queue) ping(ctx context.Context) error {
	if q.conn == nil {
		return fmt.Errorf("worker queue %q not connected", q.cfg.Name)
	}
	var resp statusResponse
	return q.conn.Invoke(ctx, "/broker.WorkerQueue/Ping", &statusRequest{}, &resp, grpc.CallContentSubtype(jsonCodecName))
}

func (q *Queue) closeConnLocked() {
	if q.conn != nil {
		_ = q.conn.Close()
	}
	q.conn = nil
}

// Close releases the underlying connection.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closeConnLocked()
	return nil
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
