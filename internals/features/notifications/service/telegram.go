package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	helper "storefront_backend/internals/helpers"
)

const defaultTelegramAPI = "https://api.telegram.org"

type TelegramNotifier struct {
	apiURL  string
	token   string
	chatID  string
	timeout time.Duration
	log     *zap.Logger
}

func NewTelegramNotifier(apiURL, token, chatID string, timeout time.Duration, logger *zap.Logger) *TelegramNotifier {
	if strings.TrimSpace(apiURL) == "" {
		apiURL = defaultTelegramAPI
	}
	return &TelegramNotifier{
		apiURL:  strings.TrimRight(apiURL, "/"),
		token:   token,
		chatID:  chatID,
		timeout: timeout,
		log:     logger.Named("telegram"),
	}
}

func (t *TelegramNotifier) Configured() bool { return t.token != "" && t.chatID != "" }

type tgSendMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func (t *TelegramNotifier) Notify(ctx context.Context, n Notice) {
	if !t.Configured() {
		return
	}
	resp, err := helper.Send(ctx, t.timeout, helper.Outbound{
		Method: fiber.MethodPost,
		URL:    fmt.Sprintf("%s/bot%s/sendMessage", t.apiURL, t.token),
		JSON:   tgSendMessage{ChatID: t.chatID, Text: formatHTML(n), ParseMode: "HTML"},
	})
	if err != nil {
		t.log.Warn("send failed", zap.Error(err))
		return
	}
	if !resp.OK() {
		t.log.Warn("send rejected", zap.Int("status", resp.Status), zap.ByteString("body", resp.Body))
	}
}

func formatHTML(n Notice) string {
	var b strings.Builder
	b.WriteString("<b>")
	b.WriteString(html.EscapeString(n.Title))
	b.WriteString("</b>")
	for _, f := range n.Fields {
		b.WriteString("\n<b>")
		b.WriteString(html.EscapeString(f.Key))
		b.WriteString(":</b> ")
		b.WriteString(html.EscapeString(f.Value))
	}
	return b.String()
}
