package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lumora/internal/config"
	"lumora/internal/repositories"
)

// Notifier is a fire-and-forget side channel. Implementations must never
// fail a core operation: errors are logged and dropped.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, text string)
}

type telegramNotifier struct {
	botToken   string
	users      repositories.IUserRepository
	httpClient *http.Client
}

func NewTelegramNotifier(cfg *config.Config, users repositories.IUserRepository) Notifier {
	return &telegramNotifier{
		botToken: cfg.Telegram.BotToken,
		users:    users,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (n *telegramNotifier) Notify(ctx context.Context, userID uuid.UUID, text string) {
	if n.botToken == "" {
		return
	}

	user, err := n.users.GetByID(ctx, userID)
	if err != nil || user == nil || user.TelegramChatID == 0 {
		return
	}

	body, _ := json.Marshal(map[string]interface{}{
		"chat_id": user.TelegramChatID,
		"text":    text,
	})

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		zap.L().Warn("notification send failed", zap.String("user_id", userID.String()), zap.Error(err))
		return
	}
	resp.Body.Close()
}

type noopNotifier struct{}

func NewNoopNotifier() Notifier { return noopNotifier{} }

func (noopNotifier) Notify(context.Context, uuid.UUID, string) {}
