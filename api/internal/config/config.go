package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// TTS engine selectors.
const (
	TTSEngineElevenLabs = "elevenlabs"
	TTSEngineGoogle     = "google"
)

type Config struct {
	Port string `mapstructure:"PORT"`
	Env  string `mapstructure:"ENV"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`

	GeminiAPIKey string `mapstructure:"GEMINI_API_KEY"`
	GeminiModel  string `mapstructure:"GEMINI_MODEL"`

	TTSEngine        string `mapstructure:"TTS_ENGINE"`
	ElevenLabsAPIKey string `mapstructure:"ELEVENLABS_API_KEY"`
	ElevenLabsModel  string `mapstructure:"ELEVENLABS_MODEL"`
	ElevenLabsVoice  string `mapstructure:"ELEVENLABS_VOICE"`
	GoogleTTSVoice   string `mapstructure:"GOOGLE_TTS_VOICE"`
	GoogleTTSLang    string `mapstructure:"GOOGLE_TTS_LANGUAGE"`

	UploadDir   string `mapstructure:"UPLOAD_DIR"`
	AudioDir    string `mapstructure:"AUDIO_DIR"`
	MaxUploadMB int64  `mapstructure:"MAX_UPLOAD_MB"`

	PipelineTimeoutSeconds int `mapstructure:"PIPELINE_TIMEOUT_SECONDS"`

	TelegramBotToken string `mapstructure:"TELEGRAM_BOT_TOKEN"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("GEMINI_MODEL", "gemini-flash-latest")
	v.SetDefault("TTS_ENGINE", TTSEngineElevenLabs)
	v.SetDefault("ELEVENLABS_MODEL", "eleven_multilingual_v2")
	v.SetDefault("ELEVENLABS_VOICE", "JBFqnCBsd6RMkjVDRZzb")
	v.SetDefault("GOOGLE_TTS_LANGUAGE", "ur-PK")
	v.SetDefault("UPLOAD_DIR", "uploads")
	v.SetDefault("AUDIO_DIR", "audio_outputs")
	v.SetDefault("MAX_UPLOAD_MB", 16)
	v.SetDefault("PIPELINE_TIMEOUT_SECONDS", 120)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL",
		"GEMINI_API_KEY", "GEMINI_MODEL",
		"TTS_ENGINE", "ELEVENLABS_API_KEY", "ELEVENLABS_MODEL", "ELEVENLABS_VOICE",
		"GOOGLE_TTS_VOICE", "GOOGLE_TTS_LANGUAGE",
		"UPLOAD_DIR", "AUDIO_DIR", "MAX_UPLOAD_MB",
		"PIPELINE_TIMEOUT_SECONDS", "TELEGRAM_BOT_TOKEN",
	} {
		_ = v.BindEnv(key)
	}

	// Try reading .env, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings every entry point needs. Credentials are
// verified here so a misconfigured service fails at startup, never in
// the middle of a pipeline run.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.GeminiAPIKey) == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	switch c.TTSEngine {
	case TTSEngineElevenLabs:
		if strings.TrimSpace(c.ElevenLabsAPIKey) == "" {
			return fmt.Errorf("ELEVENLABS_API_KEY is required when TTS_ENGINE is %q", TTSEngineElevenLabs)
		}
	case TTSEngineGoogle:
		// Credentials resolve through GOOGLE_APPLICATION_CREDENTIALS at
		// client construction.
	default:
		return fmt.Errorf("TTS_ENGINE must be %q or %q, got %q",
			TTSEngineElevenLabs, TTSEngineGoogle, c.TTSEngine)
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", c.MaxUploadMB)
	}
	return nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// PipelineTimeout is the bound each request-driven caller puts around a
// pipeline run. The orchestrator itself imposes none.
func (c *Config) PipelineTimeout() time.Duration {
	return time.Duration(c.PipelineTimeoutSeconds) * time.Second
}

// MaxUploadBytes converts the configured upload cap to bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB * 1024 * 1024
}
