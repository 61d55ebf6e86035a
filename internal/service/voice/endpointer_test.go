package voice_test

import (
	"context"
	"errors"
	"testing"
	"time"

	voicemodel "github.com/revival365/medassist/internal/model/voice"
	"github.com/revival365/medassist/internal/service/voice"
)

func quietWindow() []int16 {
	return make([]int16, 160) // all zeros, RMS 0
}

func loudWindow() []int16 {
	w := make([]int16, 160)
	for i := range w {
		w[i] = 8000 // RMS ~0.24, well above threshold
	}
	return w
}

// drive feeds one window per synthetic 100ms tick until the endpointer
// finalizes or the schedule runs out.
func drive(t *testing.T, ep *voice.Endpointer, windows func(tick int) []int16, maxTicks int) (voicemodel.Clip, time.Duration) {
	t.Helper()
	start := time.Unix(0, 0)
	ep.Start(start)

	for tick := 1; tick <= maxTicks; tick++ {
		now := start.Add(time.Duration(tick) * 100 * time.Millisecond)
		clip, done, err := ep.Process(windows(tick), now)
		if err != nil {
			t.Fatalf("Process err at tick %d: %v", tick, err)
		}
		if done {
			return clip, now.Sub(start)
		}
	}
	t.Fatal("endpointer never finalized")
	return voicemodel.Clip{}, 0
}

func TestNoSpeechTimeout(t *testing.T) {
	ep := voice.NewEndpointer(voice.Config{})

	clip, elapsed := drive(t, ep, func(int) []int16 { return quietWindow() }, 60)

	if clip.Reason != voicemodel.ReasonNoSpeech {
		t.Fatalf("expected no-speech finalization, got %s", clip.Reason)
	}
	if elapsed != 5000*time.Millisecond {
		t.Fatalf("no-speech timeout must fire at 5000ms, fired at %s", elapsed)
	}
	if clip.SpeechDetected {
		t.Fatal("no speech was present")
	}
	if !clip.Empty() {
		t.Fatal("clip without speech must be treated as empty")
	}
}

func TestEndOfSpeechTimeout(t *testing.T) {
	ep := voice.NewEndpointer(voice.Config{})

	// Loud through t=2000ms, silent afterwards: finalize at 2000 + 1200.
	clip, elapsed := drive(t, ep, func(tick int) []int16 {
		if tick <= 20 {
			return loudWindow()
		}
		return quietWindow()
	}, 60)

	if clip.Reason != voicemodel.ReasonEndOfSpeech {
		t.Fatalf("expected end-of-speech finalization, got %s", clip.Reason)
	}
	if elapsed != 3200*time.Millisecond {
		t.Fatalf("expected finalization at 3200ms, got %s", elapsed)
	}
	if !clip.SpeechDetected {
		t.Fatal("speech was present")
	}
	if len(clip.Samples) == 0 {
		t.Fatal("captured signal missing from clip")
	}
}

func TestSpeechResetsSilenceTimer(t *testing.T) {
	ep := voice.NewEndpointer(voice.Config{})

	// Speech at t=1000 and again at t=2000 keeps the capture alive past the
	// first silence window; finalize at 2000 + 1200.
	_, elapsed := drive(t, ep, func(tick int) []int16 {
		if tick == 10 || tick == 20 {
			return loudWindow()
		}
		return quietWindow()
	}, 60)

	if elapsed != 3200*time.Millisecond {
		t.Fatalf("renewed speech must extend the capture, finalized at %s", elapsed)
	}
}

func TestManualStop(t *testing.T) {
	ep := voice.NewEndpointer(voice.Config{})
	start := time.Unix(0, 0)
	ep.Start(start)

	if _, _, err := ep.Process(loudWindow(), start.Add(100*time.Millisecond)); err != nil {
		t.Fatalf("Process err: %v", err)
	}

	clip, err := ep.Stop(start.Add(200 * time.Millisecond))
	if err != nil {
		t.Fatalf("Stop err: %v", err)
	}
	if clip.Reason != voicemodel.ReasonManualStop {
		t.Fatalf("expected manual stop, got %s", clip.Reason)
	}
	if ep.State() != voicemodel.StateIdle {
		t.Fatal("endpointer must return to idle after stop")
	}
	if _, _, err := ep.Process(loudWindow(), start.Add(300*time.Millisecond)); !errors.Is(err, voice.ErrNotCapturing) {
		t.Fatalf("sampling must not continue after leaving Capturing, got %v", err)
	}
}

func TestCaptureManualStop(t *testing.T) {
	src := voice.NewBufferSource()
	stop := make(chan struct{})
	cfg := voice.Config{TickInterval: 5 * time.Millisecond}

	done := make(chan struct{})
	var clip voicemodel.Clip
	var err error
	go func() {
		defer close(done)
		clip, err = voice.Capture(context.Background(), src, cfg, stop)
	}()

	src.Push(loudWindow())
	time.Sleep(20 * time.Millisecond)
	close(stop)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("capture did not stop")
	}
	if err != nil {
		t.Fatalf("Capture err: %v", err)
	}
	if clip.Reason != voicemodel.ReasonManualStop {
		t.Fatalf("expected manual stop, got %s", clip.Reason)
	}
}

func TestCaptureSourceFailureAbandons(t *testing.T) {
	src := voice.NewBufferSource()
	src.Fail(errors.New("device unplugged"))

	_, err := voice.Capture(context.Background(), src, voice.Config{TickInterval: 5 * time.Millisecond}, nil)
	if err == nil {
		t.Fatal("expected capture failure")
	}
}

func TestCaptureContextCancellation(t *testing.T) {
	src := voice.NewBufferSource()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := voice.Capture(ctx, src, voice.Config{TickInterval: 5 * time.Millisecond}, nil)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestDecodeBase64Audio(t *testing.T) {
	plain := "aGVsbG8gd29ybGQgcGNt" // "hello world pcm"
	data, mimeType, err := voice.DecodeBase64Audio(plain)
	if err != nil {
		t.Fatalf("plain base64 err: %v", err)
	}
	if mimeType != "" {
		t.Fatalf("plain base64 has no mime, got %q", mimeType)
	}
	if string(data) != "hello world pcm" {
		t.Fatalf("unexpected payload: %q", data)
	}

	dataURL := "data:audio/webm;codecs=opus;base64," + plain
	_, mimeType, err = voice.DecodeBase64Audio(dataURL)
	if err != nil {
		t.Fatalf("data URL err: %v", err)
	}
	if mimeType != "audio/webm" {
		t.Fatalf("unexpected mime: %q", mimeType)
	}

	if _, _, err := voice.DecodeBase64Audio("!!!not-base64!!!"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestPCM16RoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 1234}
	decoded := voice.DecodePCM16(voice.EncodePCM16(samples))
	if len(decoded) != len(samples) {
		t.Fatalf("length mismatch: %d vs %d", len(decoded), len(samples))
	}
	for i := range samples {
		if decoded[i] != samples[i] {
			t.Fatalf("sample %d: got %d want %d", i, decoded[i], samples[i])
		}
	}
}
