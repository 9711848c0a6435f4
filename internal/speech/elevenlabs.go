// Package speech turns assistant replies into audio. The core only hands it
// final reply text; how audio is produced is behind the Synthesizer
// interface. The bundled implementation calls the ElevenLabs
// text-to-speech API.
package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"resty.dev/v3"

	"github.com/tbourn/go-llm-chat/internal/providers"
)

// DefaultElevenLabsURL is the public ElevenLabs API root.
const DefaultElevenLabsURL = "https://api.elevenlabs.io"

// maxAudioBytes caps a single synthesized clip.
const maxAudioBytes = 20 << 20

var (
	// ErrDisabled is returned when speech is not configured.
	ErrDisabled = errors.New("speech synthesis is not configured")
	// ErrEmptyText is returned for blank input.
	ErrEmptyText = errors.New("nothing to synthesize")
)

// Audio is one synthesized clip.
type Audio struct {
	Data        []byte
	ContentType string
}

// Synthesizer produces audio for text.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (Audio, error)
}

// Config configures the ElevenLabs client.
type Config struct {
	APIKey          string
	VoiceID         string
	ModelID         string
	BaseURL         string
	Stability       float64
	SimilarityBoost float64
}

// Error is a non-2xx answer from the speech API.
type Error struct {
	Status int
	Body   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("ElevenLabs API error: HTTP %d: %s", e.Status, e.Body)
}

// ElevenLabs is a Synthesizer backed by the ElevenLabs REST API.
type ElevenLabs struct {
	cfg    Config
	client *resty.Client
}

// NewElevenLabs returns a client, or ErrDisabled when no API key or voice is
// configured.
func NewElevenLabs(cfg Config, hc *http.Client) (*ElevenLabs, error) {
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.VoiceID) == "" {
		return nil, ErrDisabled
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultElevenLabsURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.ModelID == "" {
		cfg.ModelID = "eleven_monolingual_v1"
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &ElevenLabs{cfg: cfg, client: providers.NewClient("elevenlabs", hc)}, nil
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// Synthesize posts text to the text-to-speech endpoint and returns the MPEG
// audio.
func (e *ElevenLabs) Synthesize(ctx context.Context, text string) (Audio, error) {
	if strings.TrimSpace(text) == "" {
		return Audio{}, ErrEmptyText
	}
	resp, err := e.client.R().
		SetContext(ctx).
		SetHeader("xi-api-key", e.cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "audio/mpeg").
		SetBody(ttsRequest{
			Text:    text,
			ModelID: e.cfg.ModelID,
			VoiceSettings: voiceSettings{
				Stability:       e.cfg.Stability,
				SimilarityBoost: e.cfg.SimilarityBoost,
			},
		}).
		SetDoNotParseResponse(true).
		Post(e.cfg.BaseURL + "/v1/text-to-speech/" + url.PathEscape(e.cfg.VoiceID))
	if err != nil {
		return Audio{}, fmt.Errorf("elevenlabs request: %w", err)
	}
	if resp.RawResponse == nil || resp.RawResponse.Body == nil {
		return Audio{}, errors.New("elevenlabs: empty response")
	}
	defer resp.RawResponse.Body.Close()

	if resp.IsError() {
		b, _ := io.ReadAll(io.LimitReader(resp.RawResponse.Body, 1024))
		return Audio{}, &Error{Status: resp.StatusCode(), Body: strings.TrimSpace(string(b))}
	}
	data, err := io.ReadAll(io.LimitReader(resp.RawResponse.Body, maxAudioBytes))
	if err != nil {
		return Audio{}, fmt.Errorf("elevenlabs read: %w", err)
	}
	ct := resp.RawResponse.Header.Get("Content-Type")
	if ct == "" {
		ct = "audio/mpeg"
	}
	return Audio{Data: data, ContentType: ct}, nil
}
