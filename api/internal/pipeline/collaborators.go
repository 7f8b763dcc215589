package pipeline

import "context"

// The three external model collaborators. Each is a blocking call; the
// orchestrator imposes no timeout of its own, so callers bound latency
// through ctx.

// Vision turns a prescription photo into the model's raw text reply.
// Interpreting that reply (JSON or not) is the orchestrator's concern.
type Vision interface {
	Extract(ctx context.Context, image []byte, mime, prompt string) (string, error)
}

// Linguist produces narrative text from a plain prompt.
type Linguist interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Speech renders text to an audio byte stream.
type Speech interface {
	Synthesize(ctx context.Context, text string, spec VoiceSpec) ([]byte, error)
}

// VoiceSettings are opaque pass-through tuning parameters for the speech
// engine, in ElevenLabs terms.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// VoiceSpec selects the voice, speech model, and settings for synthesis.
type VoiceSpec struct {
	VoiceID  string
	ModelID  string
	Settings VoiceSettings
}

// DefaultVoiceSettings returns the tuning the service ships with.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Stability:       0.5,
		SimilarityBoost: 0.75,
		Style:           0.0,
		UseSpeakerBoost: true,
	}
}
