package voice

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// Language hints accepted on the voice endpoints. Regional input is
// transcribed and translated to English by the regional engine; everything
// else goes to the international engine.
const (
	LanguageRegional      = "regional"
	LanguageInternational = "international"
)

// MinAudioBytes rejects clips too short to contain an utterance.
const MinAudioBytes = 2000

// ErrEmptyTranscript is returned when the engine produced no text.
var ErrEmptyTranscript = errors.New("transcription produced no text")

// NormalizeLanguage folds unknown hints to the international engine.
func NormalizeLanguage(raw string) string {
	if strings.EqualFold(strings.TrimSpace(raw), LanguageRegional) {
		return LanguageRegional
	}
	return LanguageInternational
}

// Transcriber turns a finalized audio clip into text. Implementations talk to
// external speech-to-text collaborators.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType, language string) (string, error)
}

// HTTPTranscriberConfig points at the two engines.
type HTTPTranscriberConfig struct {
	RegionalURL      string
	InternationalURL string
	APIKey           string
	Timeout          time.Duration
}

// HTTPTranscriber posts audio to the configured speech-to-text endpoints.
type HTTPTranscriber struct {
	cfg    HTTPTranscriberConfig
	client *http.Client
}

// NewHTTPTranscriber builds the client.
func NewHTTPTranscriber(cfg HTTPTranscriberConfig) *HTTPTranscriber {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPTranscriber{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (t *HTTPTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType, language string) (string, error) {
	url := t.cfg.InternationalURL
	if NormalizeLanguage(language) == LanguageRegional {
		url = t.cfg.RegionalURL
	}
	if url == "" {
		return "", errors.New("speech-to-text endpoint is not configured")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "audio"+suffixForMime(mimeType))
	if err != nil {
		return "", fmt.Errorf("build upload: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("build upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if t.cfg.APIKey != "" {
		req.Header.Set("api-subscription-key", t.cfg.APIKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("speech-to-text request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("speech-to-text returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var parsed struct {
		Text       string `json:"text"`
		Transcript string `json:"transcript"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode speech-to-text response: %w", err)
	}

	text := strings.TrimSpace(parsed.Text)
	if text == "" {
		text = strings.TrimSpace(parsed.Transcript)
	}
	if text == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}

// DecodeBase64Audio accepts plain base64 or a data URL like
// "data:audio/webm;codecs=opus;base64,AAAA..." and returns the raw bytes
// plus the MIME type when one was declared.
func DecodeBase64Audio(raw string) ([]byte, string, error) {
	raw = strings.TrimSpace(raw)
	mimeType := ""
	if strings.HasPrefix(strings.ToLower(raw), "data:") {
		header, payload, found := strings.Cut(raw, ",")
		if !found {
			return nil, "", errors.New("malformed data URL")
		}
		meta := strings.TrimPrefix(header, "data:")
		if semi := strings.Index(meta, ";"); semi >= 0 {
			mimeType = meta[:semi]
		} else {
			mimeType = meta
		}
		raw = payload
	}

	audio, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, "", fmt.Errorf("invalid base64 audio: %w", err)
	}
	return audio, mimeType, nil
}

func suffixForMime(mimeType string) string {
	m := strings.ToLower(mimeType)
	switch {
	case strings.Contains(m, "webm"):
		return ".webm"
	case strings.Contains(m, "mp4"), strings.Contains(m, "m4a"), strings.Contains(m, "aac"):
		return ".mp4"
	case strings.Contains(m, "ogg"):
		return ".ogg"
	case strings.Contains(m, "mpeg"), strings.Contains(m, "mp3"):
		return ".mp3"
	default:
		return ".wav"
	}
}
