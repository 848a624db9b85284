// Package voice transcribes recorded chat input with the ElevenLabs
// speech-to-text API.
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io"
	// DefaultModel is used when the caller does not pick one.
	DefaultModel      = "eleven_multilingual_v2"
	defaultConfidence = 0.9
)

var (
	ErrMissingAPIKey = errors.New("ElevenLabs API key not configured")
	ErrNoSpeech      = errors.New("No speech detected. Please try speaking more clearly.")
)

// Transcription is the recognized text of one recording.
type Transcription struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Model      string  `json:"model"`
}

// Error is a rejected transcription request. Message is safe to show users.
type Error struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.StatusCode)
}

// Client calls the ElevenLabs API.
type Client struct {
	APIKey  string
	BaseURL string
	HTTP    *http.Client
}

// NewClient creates a Client.
func NewClient(apiKey string, timeout time.Duration) *Client {
	return &Client{APIKey: apiKey, BaseURL: defaultBaseURL, HTTP: &http.Client{Timeout: timeout}}
}

// Transcribe sends audio and returns the trimmed transcription.
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename, model string) (*Transcription, error) {
	if c.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if model == "" {
		model = DefaultModel
	}
	if filename == "" {
		filename = "recording.webm"
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("audio", filename)
	if err != nil {
		return nil, fmt.Errorf("could not build transcription form: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("could not build transcription form: %w", err)
	}
	_ = mw.WriteField("model_id", model)
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("could not build transcription form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.BaseURL, "/")+"/v1/speech-to-text", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("xi-api-key", c.APIKey)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech-to-text request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{StatusCode: resp.StatusCode, Message: statusMessage(resp.StatusCode), Body: string(body)}
	}

	var res struct {
		Text       string   `json:"text"`
		Transcript string   `json:"transcript"`
		Confidence *float64 `json:"confidence"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("could not parse transcription: %w", err)
	}

	text := res.Text
	if text == "" {
		text = res.Transcript
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrNoSpeech
	}

	confidence := defaultConfidence
	if res.Confidence != nil && *res.Confidence > 0 {
		confidence = *res.Confidence
	}
	return &Transcription{Text: text, Confidence: confidence, Model: model}, nil
}

func statusMessage(code int) string {
	switch code {
	case http.StatusUnauthorized:
		return "Invalid ElevenLabs API key"
	case http.StatusBadRequest:
		return "Audio format not supported or audio too short"
	case http.StatusTooManyRequests:
		return "Rate limit exceeded. Please try again in a moment."
	default:
		return "Speech recognition failed"
	}
}
