// Package telegram is the chat front for the prescription pipeline: send
// a photo of a prescription, get the instructions back as Urdu text and
// a voice note.
package telegram

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"mediscribe/api/internal/pipeline"
)

// Runner is the slice of the orchestrator the bot needs.
type Runner interface {
	Process(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

type Router struct {
	Bot    *tgbotapi.BotAPI
	Runner Runner

	UploadDir string
	AudioDir  string
	Timeout   time.Duration
	Log       zerolog.Logger
}

func (r *Router) HandleUpdate(upd tgbotapi.Update) {
	if upd.Message == nil {
		return
	}
	if upd.Message.IsCommand() {
		r.handleCommand(upd)
		return
	}
	if len(upd.Message.Photo) > 0 {
		r.acceptPhoto(*upd.Message)
		return
	}
	if upd.Message.Text != "" {
		r.send(upd.Message.Chat.ID,
			"Send a photo of a prescription and I will read it out in Urdu.\n"+
				"Add the patient's name as the photo caption to personalize the instructions.")
	}
}

func (r *Router) handleCommand(upd tgbotapi.Update) {
	cid := upd.Message.Chat.ID
	switch upd.Message.Command() {
	case "start":
		r.send(cid, "Send me a prescription photo. I will extract the medicines, "+
			"explain the dosage in Urdu and reply with a voice note.\n"+
			"Caption the photo with the patient's name to personalize it.\n"+
			"Commands: /health")
	case "health":
		r.send(cid, "✅ OK")
	default:
		r.send(cid, "Unknown command. Available: /start, /health")
	}
}

func (r *Router) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := r.Bot.Send(msg); err != nil {
		r.Log.Warn().Err(err).Int64("chat", chatID).Msg("send message")
	}
}

// sendResult delivers the Urdu instructions, then the voice note when
// synthesis produced one.
func (r *Router) sendResult(chatID int64, res *pipeline.Result) {
	text := res.UrduText
	if len(text) > 3900 {
		text = text[:3900] + "…"
	}
	r.send(chatID, text)

	if res.AudioPath == nil {
		return
	}
	voice := tgbotapi.NewVoice(chatID, tgbotapi.FilePath(*res.AudioPath))
	if _, err := r.Bot.Send(voice); err != nil {
		r.Log.Warn().Err(err).Int64("chat", chatID).Msg("send voice note")
	}
}

func (r *Router) sendError(chatID int64, err error) {
	r.send(chatID, fmt.Sprintf("Could not process the prescription: %v", err))
}
