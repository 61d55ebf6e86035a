// voicetester drives the endpointer over a PCM recording (or a synthetic
// signal) and optionally sends the finalized clip to the configured
// speech-to-text engine. Useful for tuning thresholds without a client.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/revival365/medassist/internal/config"
	voicemodel "github.com/revival365/medassist/internal/model/voice"
	"github.com/revival365/medassist/internal/service/voice"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: no .env file, using system environment: %v", err)
	}

	audioPath := flag.String("audio", "", "path to raw 16-bit little-endian mono PCM (empty runs a synthetic signal)")
	sampleRate := flag.Int("rate", voice.DefaultSampleRate, "sample rate of the input")
	threshold := flag.Float64("threshold", voice.DefaultSpeechThreshold, "normalized RMS speech threshold")
	transcribe := flag.Bool("transcribe", false, "send the finalized clip to the configured STT engine")
	language := flag.String("lang", "international", "language hint: regional or international")
	timeout := flag.Duration("timeout", 45*time.Second, "STT request timeout")
	flag.Parse()

	samples, err := loadSamples(*audioPath, *sampleRate)
	if err != nil {
		log.Fatalf("failed to load audio: %v", err)
	}

	cfg := voice.Config{SampleRate: *sampleRate, SpeechThreshold: *threshold}
	clip := runEndpointer(samples, cfg)

	fmt.Printf("reason=%s speech=%t duration=%s samples=%d\n",
		clip.Reason, clip.SpeechDetected, clip.Duration(), len(clip.Samples))

	if !*transcribe {
		return
	}
	if clip.Empty() {
		log.Fatal("clip carries no speech, nothing to transcribe")
	}

	appCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if !appCfg.Voice.TranscriptionEnabled() {
		log.Fatal("no STT engine configured, set STT_REGIONAL_URL or STT_INTERNATIONAL_URL")
	}

	transcriber := voice.NewHTTPTranscriber(voice.HTTPTranscriberConfig{
		RegionalURL:      appCfg.Voice.RegionalSTTURL,
		InternationalURL: appCfg.Voice.InternationalSTTURL,
		APIKey:           appCfg.Voice.STTAPIKey,
		Timeout:          *timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	text, err := transcriber.Transcribe(ctx, voice.EncodeWAV(clip.Samples, *sampleRate), "audio/wav", *language)
	if err != nil {
		log.Fatalf("transcription failed: %v", err)
	}
	fmt.Printf("transcript: %s\n", text)
}

// runEndpointer replays the recording on the endpointer tick schedule with
// synthetic time, exactly as the capture loop would have observed it.
func runEndpointer(samples []int16, cfg voice.Config) voicemodel.Clip {
	cfgFull := cfg
	if cfgFull.TickInterval <= 0 {
		cfgFull.TickInterval = voice.DefaultTickInterval
	}
	if cfgFull.SampleRate <= 0 {
		cfgFull.SampleRate = voice.DefaultSampleRate
	}
	windowSize := int(cfgFull.TickInterval.Seconds() * float64(cfgFull.SampleRate))

	ep := voice.NewEndpointer(cfg)
	start := time.Now()
	ep.Start(start)

	now := start
	for offset := 0; ; offset += windowSize {
		now = now.Add(cfgFull.TickInterval)
		window := []int16{}
		if offset < len(samples) {
			end := offset + windowSize
			if end > len(samples) {
				end = len(samples)
			}
			window = samples[offset:end]
		}

		out, done, err := ep.Process(window, now)
		if err != nil {
			log.Fatalf("endpointer error: %v", err)
		}
		if done {
			return out
		}
	}
}

func loadSamples(path string, sampleRate int) ([]int16, error) {
	if path == "" {
		return syntheticSignal(sampleRate), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return voice.DecodePCM16(data), nil
}

// syntheticSignal is half a second of silence, two seconds of a 440Hz tone,
// then enough silence for end-of-speech to fire.
func syntheticSignal(sampleRate int) []int16 {
	total := 4 * sampleRate
	toneStart := sampleRate / 2
	toneEnd := toneStart + 2*sampleRate

	samples := make([]int16, total)
	for i := toneStart; i < toneEnd; i++ {
		samples[i] = int16(8000 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
	}
	return samples
}
