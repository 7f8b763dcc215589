// Package gcloudtts implements the speech collaborator with Google
// Cloud Text-to-Speech, as an alternative to ElevenLabs. Credentials
// come from the usual GOOGLE_APPLICATION_CREDENTIALS discovery.
package gcloudtts

import (
	"context"
	"errors"
	"fmt"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"

	"mediscribe/api/internal/pipeline"
)

type Engine struct {
	client       *texttospeech.Client
	languageCode string
	voiceName    string
}

// New dials the Cloud TTS API once at startup. languageCode defaults to
// Urdu; voiceName may be empty to let the service pick one.
func New(ctx context.Context, languageCode, voiceName string) (*Engine, error) {
	if languageCode == "" {
		languageCode = "ur-PK"
	}
	client, err := texttospeech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcloudtts: %w", err)
	}
	return &Engine{client: client, languageCode: languageCode, voiceName: voiceName}, nil
}

func (e *Engine) Name() string { return "google-tts" }

func (e *Engine) Close() error { return e.client.Close() }

// Synthesize renders text as MP3. The ElevenLabs-shaped voice settings
// have no counterpart here and are ignored; a non-empty VoiceID selects
// a Cloud voice by name.
func (e *Engine) Synthesize(ctx context.Context, text string, spec pipeline.VoiceSpec) ([]byte, error) {
	voice := e.voiceName
	if spec.VoiceID != "" {
		voice = spec.VoiceID
	}
	resp, err := e.client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: e.languageCode,
			Name:         voice,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_MP3,
		},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.GetAudioContent()) == 0 {
		return nil, errors.New("gcloudtts: empty audio content")
	}
	return resp.GetAudioContent(), nil
}
