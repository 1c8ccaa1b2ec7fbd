package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/neej1979/mealplanner/internal/app"
	"github.com/neej1979/mealplanner/internal/config"
	"github.com/neej1979/mealplanner/internal/logging"
	"github.com/neej1979/mealplanner/internal/planner"
	"github.com/neej1979/mealplanner/internal/recipe"
)

// callbackDataLimit is the maximum size Telegram accepts for button data.
const callbackDataLimit = 64

// Sender is the part of the Telegram API the bot talks to.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Service is the application surface the bot drives.
type Service interface {
	DefaultPlanOptions() app.PlanOptions
	GenerateMealPlan(ctx context.Context, opts app.PlanOptions) (*app.PlanResult, error)
	Rate(ctx context.Context, recipeID string, score int, comments string) error
	LastPlan(ctx context.Context) (*planner.Plan, error)
	History(ctx context.Context, limit int) ([]planner.Plan, error)
	ClipURL(ctx context.Context, url string) (*recipe.Recipe, error)
	Status(ctx context.Context) (*app.Status, error)
}

// Bot handles Telegram updates for the allowed users.
type Bot struct {
	api     Sender
	svc     Service
	allowed map[int64]bool
	logger  *zap.Logger
	timeout time.Duration
}

// NewBot initializes the Telegram API and sets the webhook when one is
// configured.
func NewBot(cfg *config.Config, svc Service, logger *zap.Logger) (*Bot, error) {
	logger = logging.OrNop(logger)

	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}
	logger.Info("telegram bot authorized", zap.String("account", api.Self.UserName))

	if cfg.TelegramWebhookURL != "" {
		wh, err := tgbotapi.NewWebhook(cfg.TelegramWebhookURL)
		if err != nil {
			return nil, fmt.Errorf("invalid webhook url %s: %w", cfg.TelegramWebhookURL, err)
		}
		resp, err := api.Request(wh)
		if err != nil {
			return nil, fmt.Errorf("failed to set webhook to %s: %w", cfg.TelegramWebhookURL, err)
		}
		logger.Info("webhook set", zap.String("description", resp.Description))
	}

	return newBot(api, svc, cfg.TelegramAllowedUserIDs, logger), nil
}

func newBot(api Sender, svc Service, allowedIDs []int64, logger *zap.Logger) *Bot {
	allowed := make(map[int64]bool, len(allowedIDs))
	for _, id := range allowedIDs {
		allowed[id] = true
	}
	return &Bot{
		api:     api,
		svc:     svc,
		allowed: allowed,
		logger:  logging.OrNop(logger),
		timeout: 3 * time.Minute,
	}
}

// WebhookHandler acknowledges every update right away and processes it in
// the background, since planning can outlive Telegram's webhook timeout.
func (b *Bot) WebhookHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			b.logger.Warn("failed to parse update", zap.Error(err))
			http.Error(w, "invalid update", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
			defer cancel()
			b.HandleUpdate(ctx, update)
		}()
	}
}

// HandleUpdate processes one update synchronously. Updates from users
// outside the allow-list are dropped.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		q := update.CallbackQuery
		if q.From == nil || !b.isAllowed(q.From) {
			return
		}
		b.handleCallback(ctx, q)
	case update.Message != nil:
		msg := update.Message
		if msg.From == nil || msg.Chat == nil || !b.isAllowed(msg.From) {
			return
		}
		b.handleMessage(ctx, msg)
	}
}

func (b *Bot) isAllowed(u *tgbotapi.User) bool {
	if b.allowed[u.ID] {
		return true
	}
	b.logger.Warn("unauthorized access attempt", zap.Int64("user_id", u.ID), zap.String("username", u.UserName))
	return false
}

// parseCommand splits "/plan@bot 50 5" into "plan" and its arguments.
func parseCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", fields
	}
	cmd := strings.TrimPrefix(fields[0], "/")
	if i := strings.Index(cmd, "@"); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd), fields[1:]
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	text := strings.TrimSpace(msg.Text)
	chatID := msg.Chat.ID

	if strings.HasPrefix(text, "http://") || strings.HasPrefix(text, "https://") {
		b.handleClip(ctx, chatID, text)
		return
	}

	cmd, args := parseCommand(text)
	switch cmd {
	case "start", "help":
		b.reply(chatID, helpText)
	case "plan":
		b.handlePlan(ctx, chatID, args, "")
	case "rate":
		b.handleRate(ctx, chatID, args)
	case "history":
		b.handleHistory(ctx, chatID, args)
	case "clip":
		if len(args) != 1 {
			b.reply(chatID, "Usage: /clip <url>")
			return
		}
		b.handleClip(ctx, chatID, args[0])
	case "status", "metrics":
		b.handleStatus(ctx, chatID)
	case "":
		if text == "" {
			return
		}
		// Free text steers the generator for this week.
		b.handlePlan(ctx, chatID, nil, text)
	default:
		b.reply(chatID, "Unknown command. Try /help.")
	}
}

func (b *Bot) handlePlan(ctx context.Context, chatID int64, args []string, hint string) {
	opts := b.svc.DefaultPlanOptions()
	opts.Hint = hint
	if len(args) > 0 {
		budget, err := strconv.ParseFloat(strings.TrimPrefix(args[0], "$"), 64)
		if err != nil || budget == 0 || !recipe.NonNegative(budget) {
			b.reply(chatID, "Usage: /plan [budget] [days]")
			return
		}
		opts.Budget = budget
	}
	if len(args) > 1 {
		days, err := strconv.Atoi(args[1])
		if err != nil || days < 1 || days > 14 {
			b.reply(chatID, "Usage: /plan [budget] [days], with 1 to 14 days")
			return
		}
		opts.Days = days
	}

	sent, err := b.api.Send(markdown(tgbotapi.NewMessage(chatID, "🧑‍🍳 *Planning...*")))
	if err != nil {
		b.logger.Error("failed to send initial reply", zap.Error(err))
		return
	}

	res, err := b.svc.GenerateMealPlan(ctx, opts)
	if err != nil {
		b.logger.Error("failed to generate plan", zap.Error(err))
		b.edit(chatID, sent.MessageID, errorText("Error generating plan", err))
		return
	}

	b.edit(chatID, sent.MessageID, formatPlan(res.Plan))
	b.send(markdown(tgbotapi.NewMessage(chatID, formatShopping(res.Shopping))))
}

func (b *Bot) handleRate(ctx context.Context, chatID int64, args []string) {
	if len(args) == 0 {
		b.sendRatingKeyboards(ctx, chatID)
		return
	}
	if len(args) < 2 {
		b.reply(chatID, "Usage: /rate <recipe-id> <1-5> [comments]")
		return
	}
	score, err := strconv.Atoi(args[1])
	if err != nil {
		b.reply(chatID, "Usage: /rate <recipe-id> <1-5> [comments]")
		return
	}
	if err := b.svc.Rate(ctx, args[0], score, strings.Join(args[2:], " ")); err != nil {
		b.reply(chatID, errorText("Could not save rating", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("✅ Rated `%s`: %s", args[0], stars(score)))
}

// sendRatingKeyboards offers one row of star buttons per recipe of the
// last plan.
func (b *Bot) sendRatingKeyboards(ctx context.Context, chatID int64) {
	plan, err := b.svc.LastPlan(ctx)
	if err != nil {
		b.reply(chatID, errorText("Could not load the last plan", err))
		return
	}
	if plan == nil {
		b.reply(chatID, "No plan yet. Send /plan first.")
		return
	}

	seen := make(map[string]bool)
	for _, item := range plan.Items {
		if !item.Filled() || seen[item.RecipeID] {
			continue
		}
		seen[item.RecipeID] = true

		name := tgbotapi.EscapeText(tgbotapi.ModeMarkdown, item.RecipeName)
		msg := markdown(tgbotapi.NewMessage(chatID, fmt.Sprintf("How was *%s*?", name)))
		if kb, ok := ratingKeyboard(item.RecipeID); ok {
			msg.ReplyMarkup = kb
		} else {
			msg.Text += fmt.Sprintf("\nReply with `/rate %s <1-5>`", item.RecipeID)
		}
		b.send(msg)
	}
}

func ratingKeyboard(recipeID string) (tgbotapi.InlineKeyboardMarkup, bool) {
	if len(callbackData(recipeID, 5)) > callbackDataLimit {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	row := make([]tgbotapi.InlineKeyboardButton, 0, 5)
	for score := 1; score <= 5; score++ {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%d⭐", score), callbackData(recipeID, score)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row), true
}

func callbackData(recipeID string, score int) string {
	return fmt.Sprintf("rate|%s|%d", recipeID, score)
}

func parseCallbackData(data string) (string, int, bool) {
	parts := strings.Split(data, "|")
	if len(parts) != 3 || parts[0] != "rate" || parts[1] == "" {
		return "", 0, false
	}
	score, err := strconv.Atoi(parts[2])
	if err != nil {
		return "", 0, false
	}
	return parts[1], score, true
}

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	recipeID, score, ok := parseCallbackData(q.Data)
	if !ok {
		b.answer(q.ID, "Unknown action")
		return
	}
	if err := b.svc.Rate(ctx, recipeID, score, ""); err != nil {
		b.logger.Warn("failed to save rating", zap.String("recipe_id", recipeID), zap.Error(err))
		b.answer(q.ID, "Could not save rating")
		return
	}
	b.answer(q.ID, "Thanks! "+stars(score))

	if q.Message != nil && q.Message.Chat != nil {
		b.edit(q.Message.Chat.ID, q.Message.MessageID, fmt.Sprintf("Rated `%s`: %s", recipeID, stars(score)))
	}
}

func (b *Bot) handleHistory(ctx context.Context, chatID int64, args []string) {
	limit := 5
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			b.reply(chatID, "Usage: /history [count]")
			return
		}
		limit = n
	}
	plans, err := b.svc.History(ctx, limit)
	if err != nil {
		b.reply(chatID, errorText("Could not load history", err))
		return
	}
	b.reply(chatID, formatHistory(plans))
}

func (b *Bot) handleClip(ctx context.Context, chatID int64, url string) {
	sent, err := b.api.Send(markdown(tgbotapi.NewMessage(chatID, "✂️ *Clipping recipe...*")))
	if err != nil {
		b.logger.Error("failed to send initial reply", zap.Error(err))
		return
	}

	rec, err := b.svc.ClipURL(ctx, url)
	if err != nil {
		b.logger.Error("failed to clip recipe", zap.String("url", url), zap.Error(err))
		b.edit(chatID, sent.MessageID, errorText("Error clipping recipe", err))
		return
	}
	b.edit(chatID, sent.MessageID, formatClipped(rec))
}

func (b *Bot) handleStatus(ctx context.Context, chatID int64) {
	status, err := b.svc.Status(ctx)
	if err != nil {
		b.reply(chatID, errorText("Error fetching status", err))
		return
	}
	b.reply(chatID, formatStatus(status))
}

func (b *Bot) reply(chatID int64, text string) {
	b.send(markdown(tgbotapi.NewMessage(chatID, text)))
}

func (b *Bot) edit(chatID int64, messageID int, text string) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeMarkdown
	b.send(edit)
}

func (b *Bot) answer(queryID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(queryID, text)); err != nil {
		b.logger.Warn("failed to answer callback", zap.Error(err))
	}
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		b.logger.Warn("failed to send message", zap.Error(err))
	}
}

func markdown(msg tgbotapi.MessageConfig) tgbotapi.MessageConfig {
	msg.ParseMode = tgbotapi.ModeMarkdown
	return msg
}
