package publish

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/weftlang/weftsync/internal/logging"
	"github.com/weftlang/weftsync/internal/project"
)

// Conn is one persistent publication connection. Implementations must be
// safe for sequential use by a single StreamSink.
type Conn interface {
	// WriteFrame sends one complete frame.
	WriteFrame(ctx context.Context, frame []byte) error
	// Ping checks liveness before a write.
	Ping(ctx context.Context) error
	Close() error
}

// Dialer establishes publication connections.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// StreamSink publishes project info as length-prefixed binary frames
// `[action tag][4-byte big-endian length][JSON payload]` over a persistent
// connection. Before each write the connection is pinged; a dead connection
// is redialed with exponential backoff.
type StreamSink struct {
	dialer Dialer
	gate   *checksumGate
	logger logging.Logger

	// maxRedialTime bounds one reconnect attempt sequence.
	maxRedialTime time.Duration

	mu   sync.Mutex
	conn Conn
}

// NewStreamSink creates a stream sink. The connection is established
// lazily on first publish.
func NewStreamSink(dialer Dialer, logger logging.Logger) *StreamSink {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &StreamSink{
		dialer:        dialer,
		gate:          newChecksumGate(),
		logger:        logger.WithComponent("stream-sink"),
		maxRedialTime: 30 * time.Second,
	}
}

// Publish implements the sink contract.
func (s *StreamSink) Publish(ctx context.Context, info *project.Info) error {
	payload, sum, err := encodeInfo(info)
	if err != nil {
		return err
	}
	if !s.gate.shouldPublish(info.Key, sum) {
		s.logger.Trace(ctx, "project info unchanged, skipping frame",
			"project", info.Key.String(), "checksum", sum.Short())
		return nil
	}

	if err := s.send(ctx, ActionUpdate, payload); err != nil {
		s.gate.forget(info.Key)
		return err
	}

	s.gate.recordWrite()
	s.logger.Debug(ctx, "published project info frame",
		"project", info.Key.String(), "checksum", sum.Short())
	return nil
}

// PublishRemoval sends an explicit removal frame keyed by output directory.
func (s *StreamSink) PublishRemoval(ctx context.Context, key project.Key, outputDir string) error {
	s.gate.forget(key)

	payload, err := encodeRemoval(key, outputDir)
	if err != nil {
		return err
	}
	if err := s.send(ctx, ActionRemove, payload); err != nil {
		return err
	}

	s.gate.recordWrite()
	s.logger.Debug(ctx, "published project removal frame", "project", key.String())
	return nil
}

// Writes returns how many frames actually went out.
func (s *StreamSink) Writes() int64 { return s.gate.Writes() }

// Skips returns how many publications were suppressed as unchanged.
func (s *StreamSink) Skips() int64 { return s.gate.Skips() }

// Close tears down the connection if one is open.
func (s *StreamSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *StreamSink) send(ctx context.Context, action byte, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, err := s.ensureConnLocked(ctx)
	if err != nil {
		return err
	}

	frame := EncodeFrame(action, payload)
	if err := conn.WriteFrame(ctx, frame); err != nil {
		// One write retry on a fresh connection covers the common case of
		// a peer restart between liveness check and write.
		s.dropConnLocked()
		conn, err = s.ensureConnLocked(ctx)
		if err != nil {
			return err
		}
		if err := conn.WriteFrame(ctx, frame); err != nil {
			s.dropConnLocked()
			return fmt.Errorf("publish: writing frame: %w", err)
		}
	}
	return nil
}

// ensureConnLocked returns a live connection, pinging an existing one and
// redialing with backoff when needed. Caller holds s.mu.
func (s *StreamSink) ensureConnLocked(ctx context.Context) (Conn, error) {
	if s.conn != nil {
		if err := s.conn.Ping(ctx); err == nil {
			return s.conn, nil
		}
		s.logger.Debug(ctx, "publication connection failed liveness check, redialing")
		s.dropConnLocked()
	}

	conn, err := backoff.Retry(ctx, func() (Conn, error) {
		return s.dialer.Dial(ctx)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxElapsedTime(s.maxRedialTime))
	if err != nil {
		return nil, fmt.Errorf("publish: connecting to publication channel: %w", err)
	}

	s.conn = conn
	return conn, nil
}

func (s *StreamSink) dropConnLocked() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

// EncodeFrame builds one wire frame: action tag, payload length, payload.
func EncodeFrame(action byte, payload []byte) []byte {
	frame := make([]byte, 5+len(payload))
	frame[0] = action
	binary.BigEndian.PutUint32(frame[1:5], uint32(len(payload)))
	copy(frame[5:], payload)
	return frame
}

// DecodeFrame splits a wire frame back into tag and payload. Used by
// consumers and tests.
func DecodeFrame(frame []byte) (action byte, payload []byte, err error) {
	if len(frame) < 5 {
		return 0, nil, fmt.Errorf("publish: frame too short: %d bytes", len(frame))
	}
	length := binary.BigEndian.Uint32(frame[1:5])
	if int(length) != len(frame)-5 {
		return 0, nil, fmt.Errorf("publish: frame length mismatch: header %d, body %d", length, len(frame)-5)
	}
	return frame[0], frame[5:], nil
}

func encodeRemoval(key project.Key, outputDir string) ([]byte, error) {
	payload, err := json.Marshal(RemovalMarker{Key: key, OutputDir: outputDir, Removed: true})
	if err != nil {
		return nil, fmt.Errorf("publish: encoding removal marker: %w", err)
	}
	return payload, nil
}
