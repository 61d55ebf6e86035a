// Package voice decides in real time when a speaker has finished talking so
// the captured audio can be finalized and submitted as an utterance.
package voice

import (
	"errors"
	"math"
	"time"

	voicemodel "github.com/revival365/medassist/internal/model/voice"
)

// ErrNotCapturing is returned when signal is fed outside the Capturing state.
var ErrNotCapturing = errors.New("endpointer is not capturing")

// Endpointing defaults.
const (
	DefaultTickInterval       = 100 * time.Millisecond
	DefaultSpeechThreshold    = 0.02 // normalized RMS
	DefaultNoSpeechTimeout    = 5000 * time.Millisecond
	DefaultEndOfSpeechTimeout = 1200 * time.Millisecond
	DefaultSampleRate         = 16000
)

// Config tunes the endpointing decision.
type Config struct {
	TickInterval       time.Duration
	SpeechThreshold    float64
	NoSpeechTimeout    time.Duration
	EndOfSpeechTimeout time.Duration
	SampleRate         int
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.SpeechThreshold <= 0 {
		c.SpeechThreshold = DefaultSpeechThreshold
	}
	if c.NoSpeechTimeout <= 0 {
		c.NoSpeechTimeout = DefaultNoSpeechTimeout
	}
	if c.EndOfSpeechTimeout <= 0 {
		c.EndOfSpeechTimeout = DefaultEndOfSpeechTimeout
	}
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	return c
}

// Endpointer is the Idle -> Capturing -> Finalizing -> Idle state machine.
// It is a pure state machine over (window, now) observations; the capture
// loop drives it on a fixed tick so it can be tested with synthetic time.
// Not safe for concurrent use; the capture loop owns it.
type Endpointer struct {
	cfg   Config
	state voicemodel.State

	startedAt  time.Time
	lastSpeech time.Time
	speechSeen bool
	buffer     []int16
}

// NewEndpointer applies defaults.
func NewEndpointer(cfg Config) *Endpointer {
	return &Endpointer{cfg: cfg.withDefaults()}
}

// State returns the current capture state.
func (e *Endpointer) State() voicemodel.State { return e.state }

// Start begins a capture attempt.
func (e *Endpointer) Start(now time.Time) {
	e.state = voicemodel.StateCapturing
	e.startedAt = now
	e.lastSpeech = time.Time{}
	e.speechSeen = false
	e.buffer = e.buffer[:0]
}

// Process consumes the window of samples observed since the previous tick and
// checks both stop conditions. It returns the finalized clip once the
// endpointer decides speech has ended (or never started).
func (e *Endpointer) Process(window []int16, now time.Time) (voicemodel.Clip, bool, error) {
	if e.state != voicemodel.StateCapturing {
		return voicemodel.Clip{}, false, ErrNotCapturing
	}

	e.buffer = append(e.buffer, window...)

	if RMS(window) >= e.cfg.SpeechThreshold {
		e.speechSeen = true
		e.lastSpeech = now
	}

	if !e.speechSeen && now.Sub(e.startedAt) >= e.cfg.NoSpeechTimeout {
		return e.finalize(voicemodel.ReasonNoSpeech, now), true, nil
	}
	if e.speechSeen && now.Sub(e.lastSpeech) >= e.cfg.EndOfSpeechTimeout {
		return e.finalize(voicemodel.ReasonEndOfSpeech, now), true, nil
	}
	return voicemodel.Clip{}, false, nil
}

// Stop forces immediate finalization regardless of the silence timers.
func (e *Endpointer) Stop(now time.Time) (voicemodel.Clip, error) {
	if e.state != voicemodel.StateCapturing {
		return voicemodel.Clip{}, ErrNotCapturing
	}
	return e.finalize(voicemodel.ReasonManualStop, now), nil
}

// Abandon discards the attempt, e.g. on device error. The buffer is dropped.
func (e *Endpointer) Abandon(now time.Time) voicemodel.Clip {
	clip := e.finalize(voicemodel.ReasonAbandoned, now)
	clip.Samples = nil
	return clip
}

func (e *Endpointer) finalize(reason voicemodel.StopReason, now time.Time) voicemodel.Clip {
	e.state = voicemodel.StateFinalizing

	samples := make([]int16, len(e.buffer))
	copy(samples, e.buffer)

	clip := voicemodel.Clip{
		Samples:        samples,
		SampleRate:     e.cfg.SampleRate,
		SpeechDetected: e.speechSeen,
		Reason:         reason,
		StartedAt:      e.startedAt,
		FinalizedAt:    now,
	}

	e.state = voicemodel.StateIdle
	e.buffer = e.buffer[:0]
	return clip
}

// RMS computes the root-mean-square level of a window, normalized to [0, 1].
// An empty window is silence.
func RMS(window []int16) float64 {
	if len(window) == 0 {
		return 0
	}
	var sum float64
	for _, s := range window {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum/float64(len(window))) / math.MaxInt16
}
