package voice

import (
	"context"
	"fmt"
	"sync"
	"time"

	voicemodel "github.com/revival365/medassist/internal/model/voice"
)

// Source is a live audio signal feeding a capture attempt.
type Source interface {
	// Drain returns the samples received since the previous call. An error
	// means the underlying stream failed and the attempt must be abandoned.
	Drain() ([]int16, error)
	// Close releases the underlying stream handle.
	Close() error
}

// Capture runs the endpointing loop over a source until the endpointer
// finalizes, the stop channel fires (manual stop), or the context is
// cancelled. The ticker and the source are released on every exit path; no
// sampling continues once the state leaves Capturing.
func Capture(ctx context.Context, src Source, cfg Config, stop <-chan struct{}) (voicemodel.Clip, error) {
	cfg = cfg.withDefaults()
	ep := NewEndpointer(cfg)
	ep.Start(time.Now())

	ticker := time.NewTicker(cfg.TickInterval)
	defer ticker.Stop()
	defer src.Close()

	for {
		select {
		case <-ctx.Done():
			ep.Abandon(time.Now())
			return voicemodel.Clip{}, fmt.Errorf("capture cancelled: %w", ctx.Err())

		case <-stop:
			clip, err := ep.Stop(time.Now())
			if err != nil {
				return voicemodel.Clip{}, err
			}
			return clip, nil

		case now := <-ticker.C:
			window, err := src.Drain()
			if err != nil {
				ep.Abandon(time.Now())
				return voicemodel.Clip{}, fmt.Errorf("capture source failed: %w", err)
			}
			clip, done, err := ep.Process(window, now)
			if err != nil {
				return voicemodel.Clip{}, err
			}
			if done {
				return clip, nil
			}
		}
	}
}

// BufferSource is a thread-safe Source fed by pushes from a network stream,
// e.g. binary websocket frames.
type BufferSource struct {
	mu     sync.Mutex
	buf    []int16
	err    error
	closed bool
}

// NewBufferSource returns an empty source.
func NewBufferSource() *BufferSource {
	return &BufferSource{}
}

// Push appends samples received from the stream. Pushes after Close are
// dropped.
func (s *BufferSource) Push(samples []int16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.buf = append(s.buf, samples...)
}

// Fail marks the stream broken; the next Drain reports the error.
func (s *BufferSource) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *BufferSource) Drain() ([]int16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := s.buf
	s.buf = nil
	return out, nil
}

func (s *BufferSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.buf = nil
	return nil
}

// DecodePCM16 converts little-endian 16-bit PCM bytes into samples. A
// trailing odd byte is ignored.
func DecodePCM16(data []byte) []int16 {
	samples := make([]int16, 0, len(data)/2)
	for i := 0; i+1 < len(data); i += 2 {
		samples = append(samples, int16(uint16(data[i])|uint16(data[i+1])<<8))
	}
	return samples
}

// EncodePCM16 is the inverse of DecodePCM16, used when handing a finalized
// clip to the transcriber.
func EncodePCM16(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[i*2] = byte(uint16(s))
		data[i*2+1] = byte(uint16(s) >> 8)
	}
	return data
}
