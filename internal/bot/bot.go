package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xaenox/linkstash/internal/ingest"
	"github.com/xaenox/linkstash/internal/models"
	"github.com/xaenox/linkstash/internal/search"
	"github.com/xaenox/linkstash/internal/storage"
	"go.uber.org/zap"
)

// Bot is an optional capture surface: messages sent to the Telegram bot go
// through the same ingest gateway as API captures, scoped to an owner id
// derived from the Telegram user.
type Bot struct {
	api     *tgbotapi.BotAPI
	gateway *ingest.Gateway
	store   storage.Storage
	engine  *search.Engine
	logger  *zap.Logger
}

func New(token string, gateway *ingest.Gateway, store storage.Storage, engine *search.Engine, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Bot{
		api:     api,
		gateway: gateway,
		store:   store,
		engine:  engine,
		logger:  logger,
	}, nil
}

func (b *Bot) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for update := range updates {
		if update.Message == nil {
			continue
		}

		go b.handleMessage(update.Message)
	}

	return nil
}

func (b *Bot) Stop() {
	b.api.StopReceivingUpdates()
}

func ownerID(userID int64) string {
	return "tg_" + strconv.FormatInt(userID, 10)
}

func (b *Bot) handleMessage(message *tgbotapi.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if message.IsCommand() {
		b.handleCommand(ctx, message)
		return
	}

	content := strings.TrimSpace(message.Text)
	if content == "" {
		b.sendMessage(message.Chat.ID, "Send me text or a link and I'll stash it.")
		return
	}

	req := ingest.SubmitRequest{Type: models.TextNote, RawContent: content}
	if looksLikeURL(content) {
		req = ingest.SubmitRequest{Type: models.LinkNote, URL: content}
	}

	note, err := b.gateway.Submit(ctx, ownerID(message.From.ID), req)
	if err != nil {
		b.logger.Error("Failed to submit capture",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID))
		b.sendMessage(message.Chat.ID, "Sorry, I couldn't save that. Please try again.")
		return
	}

	reply := tgbotapi.NewMessage(message.Chat.ID,
		fmt.Sprintf("Saved as %s — I'm working on the summary and tags.", note.ID))
	reply.ReplyToMessageID = message.MessageID
	if _, err := b.api.Send(reply); err != nil {
		b.logger.Error("Failed to send reply",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
	}
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		b.handleStart(message)
	case "help":
		b.handleHelp(message)
	case "recent":
		b.handleRecent(ctx, message)
	case "search":
		b.handleSearch(ctx, message)
	default:
		b.sendMessage(message.Chat.ID, "Unknown command. Use /help to see available commands.")
	}
}

func (b *Bot) handleStart(message *tgbotapi.Message) {
	welcome := `Welcome to LinkStash! 🔖
Send me a link or some text and I'll save it with an AI summary and tags.

Use /help to see all available commands.`

	b.sendMessage(message.Chat.ID, welcome)
}

func (b *Bot) handleHelp(message *tgbotapi.Message) {
	help := `Available commands:
/start - Start the bot
/help - Show this help message
/recent - Show your recent notes
/search <query> - Search your notes

Anything else you send is captured as a note: links get fetched and
summarized, plain text gets summarized and tagged.`

	b.sendMessage(message.Chat.ID, help)
}

func (b *Bot) handleRecent(ctx context.Context, message *tgbotapi.Message) {
	notes, _, err := b.store.ListNotes(ctx, ownerID(message.From.ID), storage.ListOptions{Limit: 5})
	if err != nil {
		b.logger.Error("Failed to list notes",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID))
		b.sendMessage(message.Chat.ID, "Sorry, I couldn't retrieve your notes.")
		return
	}

	if len(notes) == 0 {
		b.sendMessage(message.Chat.ID, "You don't have any notes yet.")
		return
	}

	b.sendMessage(message.Chat.ID, formatNotes("Your recent notes:", notes))
}

func (b *Bot) handleSearch(ctx context.Context, message *tgbotapi.Message) {
	query := strings.TrimSpace(message.CommandArguments())
	if query == "" {
		b.sendMessage(message.Chat.ID, "Usage: /search <query>")
		return
	}

	notes, err := b.engine.Search(ctx, ownerID(message.From.ID), query)
	if err != nil {
		b.logger.Error("Search failed",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID))
		b.sendMessage(message.Chat.ID, "Sorry, the search failed. Please try again.")
		return
	}

	if len(notes) == 0 {
		b.sendMessage(message.Chat.ID, "No notes matched your query.")
		return
	}

	b.sendMessage(message.Chat.ID, formatNotes("Search results:", notes))
}

func formatNotes(header string, notes []*models.Note) string {
	var sb strings.Builder
	sb.WriteString(header)
	sb.WriteString("\n\n")
	for _, note := range notes {
		title := note.Title
		if title == "" {
			title = note.ID
		}
		sb.WriteString(fmt.Sprintf("• %s [%s]\n", title, note.Status))
		if note.Summary != "" {
			sb.WriteString("  " + note.Summary + "\n")
		}
		if len(note.Tags) > 0 {
			formatted := make([]string, len(note.Tags))
			for i, tag := range note.Tags {
				formatted[i] = "#" + strings.ReplaceAll(tag, " ", "_")
			}
			sb.WriteString("  " + strings.Join(formatted, " ") + "\n")
		}
	}
	return sb.String()
}

func looksLikeURL(content string) bool {
	if strings.ContainsAny(content, " \n\t") {
		return false
	}
	return strings.HasPrefix(content, "http://") || strings.HasPrefix(content, "https://")
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}
