package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"

	"study-agents/api/internal/handle"
	"study-agents/api/internal/session"
	"study-agents/api/internal/telegram"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the Telegram bot (webhook when WEBHOOK_URL is set, long polling otherwise) next to the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a, err := setup(ctx)
		if err != nil {
			return err
		}
		defer a.close()
		if a.cfg.TelegramBotToken == "" {
			return errors.New("missing required env TELEGRAM_BOT_TOKEN")
		}
		a.startJanitor(ctx)

		bot, err := tgbotapi.NewBotAPI(a.cfg.TelegramBotToken)
		if err != nil {
			return err
		}
		a.log.Info("telegram authorized", "bot", bot.Self.UserName)

		router := telegram.NewRouter(bot, a.orch, telegram.NewSessions(a.engine, a.caller, a.log), a.log)
		router.Timeout = a.cfg.RequestTimeout
		if a.runs != nil {
			router.Runs = a.runs
			router.CacheTTL = a.cfg.RunCacheTTL
		}

		api := handle.New(a.orch, session.NewRegistry(a.engine, a.caller, a.log), a.log, a.handleOptions()...)
		mux := chi.NewRouter()

		if a.cfg.WebhookURL != "" {
			if err := telegram.RegisterWebhook(bot, a.cfg.WebhookURL); err != nil {
				return err
			}
			mux.Post(telegram.WebhookPath(bot.Token), telegram.WebhookHandler(bot, router.Dispatch, a.log))
			a.log.Info("webhook mode")
		} else {
			if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
				a.log.Warn("delete webhook", "error", err)
			}
			go telegram.RunPolling(ctx, bot, router.Dispatch, a.log)
			a.log.Info("polling mode")
		}
		mux.Mount("/", api.Router())
		return a.serveHTTP(ctx, mux)
	},
}
