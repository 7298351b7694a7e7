package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"triagefm/internal/config"
	"triagefm/internal/export"
	"triagefm/internal/session"
)

// typingInterval refreshes the chat action before Telegram expires it.
const typingInterval = 4 * time.Second

var errFileTooLarge = errors.New("file exceeds size limit")

// Sessions handles one user event and produces the reply.
type Sessions interface {
	Handle(ctx context.Context, userID int64, ev session.Event) session.Response
}

// Handler holds dependencies for the Telegram bot handlers.
type Handler struct {
	bot          *tgbot.Bot
	sessions     Sessions
	client       *http.Client
	maxFileBytes int64
	exportDocx   bool
	tempDir      string
	log          logrus.FieldLogger
}

// NewHandler creates a new bot handler instance. opts are passed to the
// Telegram client after the handler's own options.
func NewHandler(cfg config.Config, sessions Sessions, logger logrus.FieldLogger, opts ...tgbot.Option) (*Handler, error) {
	log := logger.WithField("component", "bot_handler")

	h := &Handler{
		sessions:     sessions,
		client:       &http.Client{Timeout: cfg.FetchTimeout()},
		maxFileBytes: cfg.FetchMaxBytes,
		exportDocx:   cfg.ExportDocx,
		tempDir:      cfg.TempDir,
		log:          log,
	}

	options := append([]tgbot.Option{tgbot.WithDefaultHandler(h.defaultHandler)}, opts...)
	b, err := tgbot.New(cfg.TelegramBotToken, options...)
	if err != nil {
		log.WithError(err).Error("Failed to create Telegram bot instance")
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	h.bot = b

	h.registerHandlers()

	log.Info("Telegram bot handler initialized")
	return h, nil
}

// registerHandlers sets up the command handlers. Everything else goes to
// defaultHandler.
func (h *Handler) registerHandlers() {
	commands := map[string]tgbot.HandlerFunc{
		"start":    h.startHandler,
		"help":     h.helpHandler,
		"generate": h.generateHandler,
		"queue":    h.queueHandler,
		"clear":    h.clearHandler,
	}
	for name, fn := range commands {
		h.bot.RegisterHandler(tgbot.HandlerTypeMessageText, name, tgbot.MatchTypeCommandStartOnly, fn)
	}
	h.log.WithField("commands", len(commands)).Info("Registered command handlers")
}

// Start begins polling for updates from Telegram.
// This function blocks until the context is cancelled.
func (h *Handler) Start(ctx context.Context) {
	h.log.Info("Starting Telegram bot polling...")
	h.bot.Start(ctx)
	h.log.Info("Telegram bot polling stopped.")
}

func (h *Handler) startHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	h.log.WithField("user_id", update.Message.From.ID).Info("Received /start command")
	h.reply(ctx, b, update.Message.Chat.ID, fmt.Sprintf(welcomeMessage, update.Message.From.FirstName))
}

func (h *Handler) helpHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	h.reply(ctx, b, update.Message.Chat.ID, helpMessage)
}

func (h *Handler) generateHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	stop := h.keepTyping(ctx, b, msg.Chat.ID)
	resp := h.sessions.Handle(ctx, msg.From.ID, session.GenerateTriggered{})
	stop()
	h.respond(ctx, b, msg.Chat.ID, resp)
}

func (h *Handler) queueHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	h.dispatch(ctx, b, update.Message, session.QueueInspectTriggered{})
}

func (h *Handler) clearHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	h.dispatch(ctx, b, update.Message, session.QueueClearTriggered{})
}

// defaultHandler turns any non-command message into a content event.
func (h *Handler) defaultHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	log := h.log.WithFields(logrus.Fields{
		"user_id": msg.From.ID,
		"chat_id": msg.Chat.ID,
	})

	switch {
	case msg.Document != nil:
		h.handleDocument(ctx, b, msg, log)
	case msg.Text != "" || msg.Caption != "":
		text := msg.Text
		if text == "" {
			text = msg.Caption
		}
		ev, hint := classifyText(text)
		if msg.ForwardOrigin != nil {
			// A forwarded "queue" is somebody's words, not a mistyped command.
			if _, isLink := ev.(session.LinkSubmitted); !isLink {
				ev, hint = session.TextSubmitted{Text: text, Forwarded: true}, ""
			}
		}
		if hint != "" {
			h.reply(ctx, b, msg.Chat.ID, hint)
			return
		}
		h.dispatch(ctx, b, msg, ev)
	default:
		log.Debug("Received message without supported content")
		h.reply(ctx, b, msg.Chat.ID, unknownContentMessage)
	}
}

func (h *Handler) handleDocument(ctx context.Context, b *tgbot.Bot, msg *models.Message, log logrus.FieldLogger) {
	doc := msg.Document
	log = log.WithFields(logrus.Fields{"filename": doc.FileName, "file_size": doc.FileSize})

	data, err := h.downloadDocument(ctx, b, doc)
	if err != nil {
		log.WithError(err).Warn("Failed to download document")
		if errors.Is(err, errFileTooLarge) {
			h.reply(ctx, b, msg.Chat.ID, documentTooLarge)
			return
		}
		h.reply(ctx, b, msg.Chat.ID, downloadFailedMessage)
		return
	}

	h.dispatch(ctx, b, msg, session.DocumentSubmitted{
		Filename: doc.FileName,
		MIMEType: doc.MimeType,
		Data:     data,
	})
}

func (h *Handler) downloadDocument(ctx context.Context, b *tgbot.Bot, doc *models.Document) ([]byte, error) {
	if h.maxFileBytes > 0 && doc.FileSize > h.maxFileBytes {
		return nil, errFileTooLarge
	}

	file, err := b.GetFile(ctx, &tgbot.GetFileParams{FileID: doc.FileID})
	if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.FileDownloadLink(file), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request: %w", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("file download returned status %d", resp.StatusCode)
	}

	reader := io.Reader(resp.Body)
	if h.maxFileBytes > 0 {
		reader = io.LimitReader(resp.Body, h.maxFileBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if h.maxFileBytes > 0 && int64(len(data)) > h.maxFileBytes {
		return nil, errFileTooLarge
	}
	return data, nil
}

func (h *Handler) dispatch(ctx context.Context, b *tgbot.Bot, msg *models.Message, ev session.Event) {
	if msg == nil || msg.From == nil {
		return
	}
	resp := h.sessions.Handle(ctx, msg.From.ID, ev)
	h.respond(ctx, b, msg.Chat.ID, resp)
}

func (h *Handler) respond(ctx context.Context, b *tgbot.Bot, chatID int64, resp session.Response) {
	if resp.Kind != session.ResponseScript {
		h.reply(ctx, b, chatID, resp.Text)
		return
	}

	h.reply(ctx, b, chatID, resp.Text)
	for _, part := range scriptMessages(resp.Script) {
		h.reply(ctx, b, chatID, part)
	}
	if h.exportDocx {
		h.sendScriptDocument(ctx, b, chatID, resp.Script)
	}
}

func (h *Handler) sendScriptDocument(ctx context.Context, b *tgbot.Bot, chatID int64, script string) {
	now := time.Now()
	data, err := export.ScriptDocx(h.tempDir, "triage.fm script, "+now.Format("January 2, 2006"), script)
	if err != nil {
		h.log.WithError(err).Error("Failed to render script document")
		return
	}
	_, err = b.SendDocument(ctx, &tgbot.SendDocumentParams{
		ChatID:   chatID,
		Document: &models.InputFileUpload{Filename: export.Filename(now), Data: bytes.NewReader(data)},
		Caption:  "Your script as a Word document.",
	})
	if err != nil {
		h.log.WithError(err).WithField("chat_id", chatID).Error("Failed to send script document")
	}
}

func (h *Handler) reply(ctx context.Context, b *tgbot.Bot, chatID int64, text string) {
	_, err := b.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		h.log.WithError(err).WithField("chat_id", chatID).Error("Failed to send message")
	}
}

// keepTyping shows the typing indicator until the returned func is called.
func (h *Handler) keepTyping(ctx context.Context, b *tgbot.Bot, chatID int64) func() {
	send := func() {
		_, err := b.SendChatAction(ctx, &tgbot.SendChatActionParams{ChatID: chatID, Action: models.ChatActionTyping})
		if err != nil {
			h.log.WithError(err).Debug("Failed to send chat action")
		}
	}
	send()

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(typingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				send()
			}
		}
	}()
	return func() { close(done) }
}
