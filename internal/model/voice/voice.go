// Package voice holds the capture-side types for spoken input.
package voice

import "time"

// State of a capture attempt.
type State int

const (
	StateIdle State = iota
	StateCapturing
	StateFinalizing
)

// StopReason records why a capture attempt ended.
type StopReason string

const (
	// ReasonNoSpeech: the initial-silence ceiling passed without any speech.
	ReasonNoSpeech StopReason = "no_speech"
	// ReasonEndOfSpeech: post-speech silence exceeded the ceiling.
	ReasonEndOfSpeech StopReason = "end_of_speech"
	// ReasonManualStop: the user ended the recording explicitly.
	ReasonManualStop StopReason = "manual_stop"
	// ReasonAbandoned: device or stream failure; the clip is unusable.
	ReasonAbandoned StopReason = "abandoned"
)

// Clip is one finalized capture attempt, packaged for transcription. It lives
// only until it has been transcribed or discarded.
type Clip struct {
	Samples        []int16
	SampleRate     int
	SpeechDetected bool
	Reason         StopReason
	StartedAt      time.Time
	FinalizedAt    time.Time
}

// Duration of the captured signal.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

// Empty reports whether the clip carries no usable speech.
func (c Clip) Empty() bool {
	return !c.SpeechDetected || len(c.Samples) == 0
}
