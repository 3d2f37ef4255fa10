package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/filter"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/model"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/monitor"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/search"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/storage"
)

const (
	defaultListLimit = 10
	maxListLimit     = 50
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to the brand monitoring console!

You will receive a message when a collection task finishes and when a watched term shows up in Google Trends.

Quick start:
1. /status - see whether a task is running
2. /run continuous - collect today's news
3. /addterm <term> - watch a term in Google Trends

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Monitoring:
/status - system status and last completion
/quota - search requests used today
/run <full|relevant|historical|continuous> - start a task
/historical - historical backfill progress
/queries - search queries built from the configured terms
/logs [n] - last task executions

Google Trends:
/trends [n] - latest trending searches that matched a term
/terms - watched terms
/addterm <term> - watch a term
/rmterm <term> - stop watching a term
/pauseterm <term> - pause a term
/resumeterm <term> - resume a term

Term syntax: a leading - excludes, /.../ is a regular expression.`)
}

func (b *Bot) handleStatus(ctx context.Context, chatID int64) {
	st, err := b.monitor.Status(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	msg := tgbotapi.NewMessage(chatID, FormatStatus(st))
	if !st.IsMonitoringRunning {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Run continuous", cmdRun+":"+string(monitor.TaskContinuous)),
				tgbotapi.NewInlineKeyboardButtonData("Run relevant", cmdRun+":"+string(monitor.TaskRelevant)),
			),
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Refresh", cmdStatus+":0"),
			),
		)
	}
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send status", "error", err)
	}
}

func (b *Bot) handleQuota(ctx context.Context, chatID int64) {
	rec, err := b.quota.Snapshot(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatQuota(rec, b.quota.Max()))
}

func (b *Bot) handleRun(ctx context.Context, chatID int64, args string) {
	task, err := ParseTaskArg(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	err = b.monitor.Start(ctx, task)
	switch {
	case errors.Is(err, monitor.ErrBusy):
		b.reply(chatID, "A monitoring task is already running. Try again when it finishes.")
	case errors.Is(err, search.ErrNotConfigured):
		b.reply(chatID, "Search API credentials are not configured.")
	case err != nil:
		b.reply(chatID, fmt.Sprintf("Failed to start %s: %v", task, err))
	default:
		b.log.Info("task started from telegram", "task", task, "chat_id", chatID)
		b.reply(chatID, fmt.Sprintf("Task %s started. You will be notified when it finishes.", task))
	}
}

func (b *Bot) handleHistorical(ctx context.Context, chatID int64) {
	hs, err := b.monitor.HistoricalStatus(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatHistorical(hs))
}

func (b *Bot) handleQueries(ctx context.Context, chatID int64) {
	terms, err := b.store.GetSearchTerms(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatQueries(monitor.Queries(terms)))
}

func (b *Bot) handleLogs(ctx context.Context, chatID int64, args string) {
	n, err := ParseLimitArg(args, defaultListLimit, maxListLimit)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	logs, err := b.store.ListSystemLogs(ctx, n)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatSystemLogs(logs))
}

func (b *Bot) handleTrends(ctx context.Context, chatID int64, args string) {
	n, err := ParseLimitArg(args, defaultListLimit, maxListLimit)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	items, err := b.store.ListTrendingSearches(ctx, true, n)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatTrending(items))
}

func (b *Bot) handleTerms(ctx context.Context, chatID int64) {
	terms, err := b.store.ListTrendTerms(ctx, false)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatTermList(terms))
}

func (b *Bot) handleAddTerm(ctx context.Context, chatID int64, args string) {
	if args == "" {
		b.reply(chatID, "Usage: /addterm <term>")
		return
	}
	if err := filter.ValidateTerm(args); err != nil {
		b.reply(chatID, fmt.Sprintf("Invalid term: %v", err))
		return
	}

	t := &model.TrendTerm{Term: args, IsActive: true}
	err := b.store.CreateTrendTerm(ctx, t)
	switch {
	case errors.Is(err, storage.ErrConflict):
		b.reply(chatID, fmt.Sprintf("Term %q is already watched.", args))
	case err != nil:
		b.reply(chatID, fmt.Sprintf("Failed to save term: %v", err))
	default:
		b.reply(chatID, fmt.Sprintf("Now watching %q in Google Trends.", t.Term))
	}
}

func (b *Bot) handleRmTerm(ctx context.Context, chatID int64, args string) {
	if args == "" {
		b.reply(chatID, "Usage: /rmterm <term>")
		return
	}
	t, err := b.findTerm(ctx, args)
	if err != nil {
		b.replyFindError(chatID, args, err)
		return
	}

	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("Stop watching %q? This cannot be undone.", t.Term))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Yes, remove", cmdRmTerm+":"+t.ID),
			tgbotapi.NewInlineKeyboardButtonData("Cancel", "noop:0"),
		),
	)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send remove confirmation", "error", err)
	}
}

func (b *Bot) removeTerm(ctx context.Context, chatID int64, id string) {
	t, err := b.store.GetTrendTerm(ctx, id)
	if err != nil {
		b.reply(chatID, "Term not found.")
		return
	}
	if err := b.store.DeleteTrendTerm(ctx, id); err != nil {
		b.reply(chatID, fmt.Sprintf("Error deleting term: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Term %q removed.", t.Term))
}

func (b *Bot) handleSetTermActive(ctx context.Context, chatID int64, args string, active bool) {
	if args == "" {
		if active {
			b.reply(chatID, "Usage: /resumeterm <term>")
		} else {
			b.reply(chatID, "Usage: /pauseterm <term>")
		}
		return
	}
	t, err := b.findTerm(ctx, args)
	if err != nil {
		b.replyFindError(chatID, args, err)
		return
	}
	if err := b.store.SetTrendTermActive(ctx, t.ID, active); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	state := statusPaused
	if active {
		state = statusActive
	}
	b.reply(chatID, fmt.Sprintf("Term %q is now %s.", t.Term, state))
}

// findTerm looks a watched term up by its text, ignoring case and accents.
func (b *Bot) findTerm(ctx context.Context, text string) (*model.TrendTerm, error) {
	terms, err := b.store.ListTrendTerms(ctx, false)
	if err != nil {
		return nil, err
	}
	want := filter.Fold(strings.TrimSpace(text))
	for i := range terms {
		if filter.Fold(terms[i].Term) == want {
			return &terms[i], nil
		}
	}
	return nil, storage.ErrNotFound
}

func (b *Bot) replyFindError(chatID int64, text string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		b.reply(chatID, fmt.Sprintf("Term %q is not watched. Use /terms to list them.", text))
		return
	}
	b.reply(chatID, fmt.Sprintf("Error: %v", err))
}
