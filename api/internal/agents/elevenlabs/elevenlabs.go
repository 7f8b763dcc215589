// Package elevenlabs implements the speech collaborator against the
// ElevenLabs text-to-speech HTTP API.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"mediscribe/api/internal/pipeline"
)

const defaultBaseURL = "https://api.elevenlabs.io/v1"

type Engine struct {
	apiKey  string
	baseURL string
	httpc   *http.Client
}

// New builds an ElevenLabs engine. A missing API key is reported here,
// before any pipeline run starts.
func New(apiKey string) (*Engine, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("elevenlabs: ELEVENLABS_API_KEY is empty")
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		// Long texts can take a while before the first audio byte arrives.
		ResponseHeaderTimeout: 120 * time.Second,
		IdleConnTimeout:       90 * time.Second,
	}
	return &Engine{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpc:   &http.Client{Timeout: 0, Transport: tr},
	}, nil
}

// WithBaseURL points the engine at a different API root (e.g., a test
// server).
func (e *Engine) WithBaseURL(u string) *Engine {
	if u != "" {
		e.baseURL = strings.TrimRight(u, "/")
	}
	return e
}

// WithHTTPClient overrides the internal HTTP client (e.g., for tests).
func (e *Engine) WithHTTPClient(c *http.Client) *Engine {
	if c != nil {
		e.httpc = c
	}
	return e
}

func (e *Engine) Name() string { return "elevenlabs" }

type ttsRequest struct {
	Text          string                 `json:"text"`
	ModelID       string                 `json:"model_id"`
	VoiceSettings pipeline.VoiceSettings `json:"voice_settings"`
}

// Synthesize renders text through the selected voice and returns the MP3
// byte stream.
func (e *Engine) Synthesize(ctx context.Context, text string, spec pipeline.VoiceSpec) ([]byte, error) {
	if spec.VoiceID == "" {
		return nil, errors.New("elevenlabs: voice id is empty")
	}
	payload, err := json.Marshal(ttsRequest{
		Text:          text,
		ModelID:       spec.ModelID,
		VoiceSettings: spec.Settings,
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/text-to-speech/%s", e.baseURL, spec.VoiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", e.apiKey)

	resp, err := e.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("elevenlabs: status %d: %s", resp.StatusCode, string(b))
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, errors.New("elevenlabs: empty audio stream")
	}
	return audio, nil
}
