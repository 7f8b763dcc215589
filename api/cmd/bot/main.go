// Command bot runs the Telegram front: prescription photos in, Urdu
// text and voice notes out. Webhook mode when WEBHOOK_URL is set,
// long polling otherwise.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"mediscribe/api/internal/agents/elevenlabs"
	"mediscribe/api/internal/agents/gcloudtts"
	"mediscribe/api/internal/agents/gemini"
	"mediscribe/api/internal/config"
	"mediscribe/api/internal/pharmacist"
	"mediscribe/api/internal/pipeline"
	"mediscribe/api/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		fatal(err)
	}
	if strings.TrimSpace(cfg.TelegramBotToken) == "" {
		fatal(fmt.Errorf("TELEGRAM_BOT_TOKEN is required"))
	}
	for _, d := range []string{cfg.UploadDir, cfg.AudioDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			fatal(err)
		}
	}

	log := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	orch, cleanup, err := buildOrchestrator(context.Background(), cfg, log)
	if err != nil {
		fatal(err)
	}
	defer cleanup()

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		fatal(err)
	}
	bot.Debug = false

	r := &telegram.Router{
		Bot:       bot,
		Runner:    orch,
		UploadDir: cfg.UploadDir,
		AudioDir:  cfg.AudioDir,
		Timeout:   cfg.PipelineTimeout(),
		Log:       log,
	}

	// DefaultServeMux on purpose: ListenForWebhook registers there.
	http.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	addr := "0.0.0.0:" + cfg.Port

	if webhookURL := strings.TrimSpace(os.Getenv("WEBHOOK_URL")); webhookURL != "" {
		startWebhookMode(addr, bot, r, webhookURL, log)
	} else {
		startPollingMode(addr, bot, r, log)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func buildOrchestrator(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*pipeline.Orchestrator, func(), error) {
	vision, err := gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		return nil, nil, err
	}

	var speech pipeline.Speech
	cleanup := func() {}
	switch cfg.TTSEngine {
	case config.TTSEngineGoogle:
		eng, err := gcloudtts.New(ctx, cfg.GoogleTTSLang, cfg.GoogleTTSVoice)
		if err != nil {
			return nil, nil, err
		}
		speech = eng
		cleanup = func() { _ = eng.Close() }
	default:
		eng, err := elevenlabs.New(cfg.ElevenLabsAPIKey)
		if err != nil {
			return nil, nil, err
		}
		speech = eng
	}

	defaultVoice := pipeline.VoiceSpec{
		VoiceID:  cfg.ElevenLabsVoice,
		ModelID:  cfg.ElevenLabsModel,
		Settings: pipeline.DefaultVoiceSettings(),
	}
	return pipeline.NewOrchestrator(vision, vision, speech,
		pharmacist.New(nil), defaultVoice, log), cleanup, nil
}

// ---------------- Modes -----------------

func startWebhookMode(addr string, bot *tgbotapi.BotAPI, r *telegram.Router, baseURL string, log zerolog.Logger) {
	path := "/webhook/" + shortHash(bot.Token)
	public := strings.TrimRight(baseURL, "/") + path

	wh, err := tgbotapi.NewWebhook(public)
	if err != nil {
		fatal(err)
	}
	wh.DropPendingUpdates = true
	if _, err := bot.Request(wh); err != nil {
		fatal(err)
	}

	updates := bot.ListenForWebhook(path)
	go func() {
		for upd := range updates {
			r.HandleUpdate(upd)
		}
		log.Info().Msg("webhook updates channel closed")
	}()

	log.Info().Str("addr", addr).Str("path", path).Msg("webhook listening")
	if err := http.ListenAndServe(addr, nil); err != nil {
		fatal(err)
	}
}

func startPollingMode(addr string, bot *tgbotapi.BotAPI, r *telegram.Router, log zerolog.Logger) {
	go func() {
		log.Info().Str("addr", addr).Msg("health server listening")
		if err := http.ListenAndServe(addr, nil); err != nil {
			fatal(err)
		}
	}()

	runPolling(context.Background(), bot, log, r.HandleUpdate)
}

// ---------------- Polling loop -----------------

var reRetryAfter = regexp.MustCompile(`(?i)retry after\s+(\d+)`)

func retryDelayFromError(err error) time.Duration {
	if err == nil {
		return 0
	}
	s := strings.ToLower(err.Error())
	if strings.Contains(s, "too many requests") { // HTTP 429 from Telegram
		if m := reRetryAfter.FindStringSubmatch(s); len(m) == 2 {
			if n, _ := strconv.Atoi(m[1]); n > 0 {
				return time.Duration(n) * time.Second
			}
		}
		return 3 * time.Second
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return 2 * time.Second
	}
	return 1 * time.Second
}

func runPolling(ctx context.Context, bot *tgbotapi.BotAPI, log zerolog.Logger, handle func(tgbotapi.Update)) {
	offset := 0
	baseDelay := 1 * time.Second
	maxDelay := 15 * time.Second

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("polling stopped")
			return
		default:
		}

		u := tgbotapi.NewUpdate(offset)
		u.Timeout = 30 // long polling timeout (sec)

		updates, err := bot.GetUpdates(u)
		if err != nil {
			d := retryDelayFromError(err)
			if d < baseDelay {
				d = baseDelay
			}
			if d > maxDelay {
				d = maxDelay
			}
			log.Warn().Err(err).Dur("retry_in", d).Msg("polling error")
			time.Sleep(d)
			continue
		}

		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			handle(upd)
		}

		if len(updates) == 0 {
			time.Sleep(200 * time.Millisecond)
		}
	}
}

func shortHash(s string) string {
	// fnv-1a, stable per token, not crypto
	h := uint64(1469598103934665603)
	const prime = 1099511628211
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime
	}
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		out[i] = hexdigits[h&0xF]
		h >>= 4
	}
	return string(out)
}
