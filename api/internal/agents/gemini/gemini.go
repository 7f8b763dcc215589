// Package gemini backs the vision and linguist collaborators with the
// Gemini API. One Engine value implements both: Extract sends a prompt
// plus an image blob, Generate sends a plain text prompt.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

type Engine struct {
	apiKey string
	model  string
}

// New builds a Gemini engine. A missing API key is a configuration error
// and is reported here, before any pipeline run starts.
func New(apiKey, model string) (*Engine, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini: GEMINI_API_KEY is empty")
	}
	return &Engine{apiKey: apiKey, model: strings.TrimSpace(model)}, nil
}

func (e *Engine) Name() string     { return "gemini" }
func (e *Engine) GetModel() string { return e.model }

// Extract runs the vision prompt against a prescription image and returns
// the model's raw text reply. The caller interprets the payload.
func (e *Engine) Extract(ctx context.Context, image []byte, mime, prompt string) (string, error) {
	cl, err := genai.NewClient(ctx, option.WithAPIKey(e.apiKey))
	if err != nil {
		return "", err
	}
	defer cl.Close()

	m := cl.GenerativeModel(e.model)
	if m == nil {
		return "", fmt.Errorf("gemini: model is nil")
	}
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0),
		ResponseMIMEType: "application/json",
	}

	parts := []genai.Part{
		genai.Text(prompt),
		&genai.Blob{MIMEType: mime, Data: image},
	}
	return e.generate(ctx, m, parts)
}

// Generate runs a plain text prompt and returns the narrative reply.
func (e *Engine) Generate(ctx context.Context, prompt string) (string, error) {
	cl, err := genai.NewClient(ctx, option.WithAPIKey(e.apiKey))
	if err != nil {
		return "", err
	}
	defer cl.Close()

	m := cl.GenerativeModel(e.model)
	if m == nil {
		return "", fmt.Errorf("gemini: model is nil")
	}
	return e.generate(ctx, m, []genai.Part{genai.Text(prompt)})
}

// generate calls the model with a short retry on transient failures.
func (e *Engine) generate(ctx context.Context, m *genai.GenerativeModel, parts []genai.Part) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		resp, err := m.GenerateContent(ctx, parts...)
		if err != nil {
			lastErr = err
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
			}
			continue
		}
		txt := firstText(resp)
		if strings.TrimSpace(txt) == "" {
			return "", fmt.Errorf("gemini: empty response")
		}
		return txt, nil
	}
	return "", lastErr
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
