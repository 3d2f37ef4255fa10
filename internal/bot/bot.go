// Package bot is the Telegram operator console: it reports task results and
// answers status, quota and trend commands.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/config"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/model"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/monitor"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Monitor starts collection tasks and reports their state.
type Monitor interface {
	Start(ctx context.Context, task monitor.Task) error
	Status(ctx context.Context) (*model.SystemStatus, error)
	HistoricalStatus(ctx context.Context) (model.HistoricalStatus, error)
}

// Quota reports today's search budget.
type Quota interface {
	Snapshot(ctx context.Context) (model.QuotaRecord, error)
	Max() int
}

// Store is the persistence the bot reads and edits.
type Store interface {
	storage.TrendsStore
	GetSearchTerms(ctx context.Context) (model.SearchTerms, error)
	ListSystemLogs(ctx context.Context, limit int) ([]model.SystemLog, error)
}

// Bot is the Telegram bot that handles operator commands and sends notifications.
type Bot struct {
	api     telegramAPI
	monitor Monitor
	quota   Quota
	store   Store
	cfg     *config.Config
	log     *slog.Logger
}

// New creates a Bot with the given Telegram token.
func New(token string, mon Monitor, quota Quota, store Store, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Bot{
		api:     api,
		monitor: mon,
		quota:   quota,
		store:   store,
		cfg:     cfg,
		log:     log,
	}, nil
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.CallbackQuery != nil {
				if !b.cfg.IsUserAllowed(update.CallbackQuery.From.ID) {
					continue
				}
				b.handleCallback(ctx, update.CallbackQuery)
				continue
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if !b.cfg.IsUserAllowed(update.Message.From.ID) {
				b.reply(update.Message.Chat.ID, "Access denied.")
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

// SendMessage sends a text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
		return err
	}
	return nil
}

// Notify sends text to every configured operator chat.
func (b *Bot) Notify(_ context.Context, text string) error {
	var errs []error
	for _, chatID := range b.cfg.TelegramChatIDs {
		if err := b.SendMessage(chatID, text); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

func (b *Bot) reply(chatID int64, text string) {
	_ = b.SendMessage(chatID, text)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case cmdStatus:
		b.handleStatus(ctx, chatID)
	case "quota":
		b.handleQuota(ctx, chatID)
	case cmdRun:
		b.handleRun(ctx, chatID, args)
	case "historical":
		b.handleHistorical(ctx, chatID)
	case "queries":
		b.handleQueries(ctx, chatID)
	case "logs":
		b.handleLogs(ctx, chatID, args)
	case "trends":
		b.handleTrends(ctx, chatID, args)
	case "terms":
		b.handleTerms(ctx, chatID)
	case "addterm":
		b.handleAddTerm(ctx, chatID, args)
	case cmdRmTerm:
		b.handleRmTerm(ctx, chatID, args)
	case "pauseterm":
		b.handleSetTermActive(ctx, chatID, args, false)
	case "resumeterm":
		b.handleSetTermActive(ctx, chatID, args, true)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
