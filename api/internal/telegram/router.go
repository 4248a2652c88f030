package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"study-agents/api/internal/agent"
	"study-agents/api/internal/agent/types"
	"study-agents/api/internal/llm"
	"study-agents/api/internal/session"
	"study-agents/api/internal/store"
)

const maxMessage = 3900

// Bot is the part of *tgbotapi.BotAPI the router uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

// RunCache answers repeated homework photos from history.
type RunCache interface {
	FindLatestByHash(ctx context.Context, kind, inputHash string, maxAge time.Duration) (*store.Run, error)
}

type Router struct {
	Bot      Bot
	Orch     *agent.Orchestrator
	Sessions *Sessions
	Log      *slog.Logger

	Runs     RunCache // nil disables the photo cache
	CacheTTL time.Duration
	Timeout  time.Duration

	batches  sync.Map // key -> *photoBatch
	debounce time.Duration
}

func NewRouter(bot Bot, orch *agent.Orchestrator, sessions *Sessions, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		Bot:      bot,
		Orch:     orch,
		Sessions: sessions,
		Log:      logger,
		Timeout:  180 * time.Second,
		debounce: debounce,
	}
}

const helpText = `Send a photo of your homework and I will check it. Several photos in a row are glued into one page.

/solve <problem> - step by step solution, checked by a second model
/research <problem> - same, with facts looked up on the web
/chat [message] - talk to the study assistant
/exam <subject> - oral exam with a friendly tutor
/proctor <subject> - strict exam, no hints
/finish - end the exam and get the graded report`

// Dispatch handles upd in the background. Updates of one chat are processed
// one at a time in arrival order; different chats run in parallel.
func (r *Router) Dispatch(upd tgbotapi.Update) {
	chat := upd.FromChat()
	if chat == nil {
		return
	}
	r.Sessions.enqueue(chat.ID, func() {
		// photo batches fire from timers and take the same lock
		unlock := r.Sessions.lock(chat.ID)
		defer unlock()
		r.HandleUpdate(upd)
	})
}

func (r *Router) HandleUpdate(upd tgbotapi.Update) {
	if upd.Message == nil {
		return
	}
	msg := upd.Message
	if msg.IsCommand() {
		r.HandleCommand(*msg)
		return
	}
	if len(msg.Photo) > 0 {
		r.acceptPhoto(*msg)
		return
	}
	if text := strings.TrimSpace(msg.Text); text != "" {
		r.handleText(msg.Chat.ID, text)
	}
}

func (r *Router) HandleCommand(msg tgbotapi.Message) {
	cid := msg.Chat.ID
	args := strings.TrimSpace(msg.CommandArguments())
	ctx, cancel := context.WithTimeout(context.Background(), r.Timeout)
	defer cancel()

	switch msg.Command() {
	case "start", "help":
		r.send(cid, helpText)
	case "health":
		r.send(cid, "✅ OK")

	case "solve", "research":
		if args == "" {
			r.send(cid, "Usage: /"+msg.Command()+" <problem>")
			return
		}
		res, err := r.Orch.SolveMath(ctx, types.MathRequest{
			Problem:          args,
			UseRealWorldData: msg.Command() == "research",
		})
		if err != nil {
			r.SendError(cid, err)
			return
		}
		r.send(cid, formatMath(res))

	case "chat":
		rep, err := r.Orch.StartChat(ctx, r.Sessions.For(cid), types.StartChat{Message: args})
		if err != nil {
			r.SendError(cid, err)
			return
		}
		r.Sessions.setMode(cid, modeChat)
		r.send(cid, formatReply(rep))

	case "exam", "proctor":
		if args == "" {
			r.send(cid, "Usage: /"+msg.Command()+" <subject>, e.g. /"+msg.Command()+" photosynthesis")
			return
		}
		persona := types.PersonaTutor
		if msg.Command() == "proctor" {
			persona = types.PersonaInvigilator
		}
		rep, err := r.Orch.StartExam(ctx, r.Sessions.For(cid), types.StartExam{Persona: persona, Subject: args})
		if err != nil {
			r.SendError(cid, err)
			return
		}
		r.Sessions.setMode(cid, modeExam)
		r.send(cid, formatReply(rep))

	case "finish":
		reg := r.Sessions.For(cid)
		rep, err := r.Orch.FinishExam(ctx, reg)
		if err != nil {
			r.SendError(cid, err)
			return
		}
		next := modeIdle
		if reg.Active(session.SlotChat) {
			next = modeChat
		}
		r.Sessions.setMode(cid, next)
		r.send(cid, formatExamReport(rep))

	default:
		r.send(cid, "Unknown command. /help lists what I can do.")
	}
}

func (r *Router) handleText(cid int64, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.Timeout)
	defer cancel()

	var (
		rep types.Reply
		err error
	)
	switch r.Sessions.mode(cid) {
	case modeExam:
		rep, err = r.Orch.SendExam(ctx, r.Sessions.For(cid), types.TextRequest(text))
	case modeChat:
		rep, err = r.Orch.SendChat(ctx, r.Sessions.For(cid), types.TextRequest(text))
	default:
		r.send(cid, "Send a photo of your homework, or use /solve, /chat or /exam. /help has the details.")
		return
	}
	if err != nil {
		r.SendError(cid, err)
		return
	}
	r.send(cid, formatReply(rep))
}

func (r *Router) send(chatID int64, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	for _, part := range splitMessage(text, maxMessage) {
		if _, err := r.Bot.Send(tgbotapi.NewMessage(chatID, part)); err != nil {
			r.Log.Warn("telegram send failed", "chat_id", chatID, "error", err)
			return
		}
	}
}

func (r *Router) SendError(chatID int64, err error) {
	switch {
	case errors.Is(err, session.ErrNotInitialized):
		r.Sessions.setMode(chatID, modeIdle)
		r.send(chatID, "There is nothing running to continue. Start with /chat or /exam <subject>.")
	case errors.Is(err, agent.ErrInvalidRequest):
		r.send(chatID, "⚠️ "+err.Error())
	case llm.IsQuota(err):
		r.Log.Warn("quota exhausted", "chat_id", chatID, "error", err)
		r.send(chatID, "⏳ All models are busy right now. Please try again in a minute.")
	default:
		r.Log.Error("request failed", "chat_id", chatID, "error", err)
		r.send(chatID, "❌ Something went wrong, please try again.")
	}
}
