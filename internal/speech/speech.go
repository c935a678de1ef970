// Package speech wraps the external text-to-speech service.
package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Synthesizer turns a script into spoken audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, script string, language string) ([]byte, error)
}

// voices maps language codes to Piper voice models.
var voices = map[string]string{
	"en": "en_US-lessac-medium",
	"ru": "ru_RU-dmitri-medium",
	"de": "de_DE-thorsten-medium",
}

// Piper implements Synthesizer against a Piper TTS HTTP endpoint.
type Piper struct {
	baseURL string
	client  *http.Client
}

var _ Synthesizer = (*Piper)(nil)

// NewPiper creates a client for the Piper endpoint at baseURL.
func NewPiper(baseURL string) (*Piper, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("piper: base URL is required")
	}
	return &Piper{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

// Synthesize posts the script and returns WAV bytes.
func (p *Piper) Synthesize(ctx context.Context, script string, language string) ([]byte, error) {
	voice, ok := voices[language]
	if !ok {
		voice = voices["en"]
	}

	endpoint := p.baseURL + "?voice=" + url.QueryEscape(voice)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader([]byte(script)))
	if err != nil {
		return nil, fmt.Errorf("piper: building request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("piper: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("piper: status %d: %s", resp.StatusCode, body)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("piper: reading audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("piper: empty audio response")
	}
	return audio, nil
}
