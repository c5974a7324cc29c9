package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/doctorauto/go-patio-sync/internal/model"
)

const telegramBaseURL = "https://api.telegram.org"

// TelegramService posts human-readable notifications to the shop group.
// It is an observability aid: callers on the sync path swallow its errors.
type TelegramService struct {
	BotToken string
	ChatID   string
	BaseURL  string
	Client   *http.Client
}

func NewTelegramService(botToken, chatID string) *TelegramService {
	return &TelegramService{
		BotToken: botToken,
		ChatID:   chatID,
		BaseURL:  telegramBaseURL,
		Client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *TelegramService) enabled() bool {
	return s.BotToken != "" && s.ChatID != ""
}

func (s *TelegramService) send(ctx context.Context, text string) error {
	if !s.enabled() {
		return fmt.Errorf("telegram credentials not configured")
	}

	payload, err := json.Marshal(map[string]string{
		"chat_id":    s.ChatID,
		"text":       text,
		"parse_mode": "Markdown",
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.BaseURL, s.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		return &RemoteAPIError{API: "telegram", Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return nil
}

// SendAlert delivers one manual shop-floor notification.
func (s *TelegramService) SendAlert(ctx context.Context, n *model.Notification) error {
	var b strings.Builder

	switch n.Type {
	case model.NotifyIssue:
		b.WriteString("🚨 *B.O PEÇA - PROBLEMA IDENTIFICADO*\n\n")
		fmt.Fprintf(&b, "🚗 *Veículo:* %s%s\n", n.Plate, modelSuffix(n.Model))
		fmt.Fprintf(&b, "👤 *Mecânico:* %s\n", n.Assignee)
		fmt.Fprintf(&b, "🕐 *Horário:* %s\n", n.Time)
		if n.Note != "" {
			fmt.Fprintf(&b, "\n📝 *Observação:* %s", n.Note)
		}
		b.WriteString("\n\n⚠️ *Ação necessária:* Verificar disponibilidade de peças")
	case model.NotifyReady:
		b.WriteString("✅ *CARRO PRONTO PARA RETIRADA*\n\n")
		fmt.Fprintf(&b, "🚗 *Veículo:* %s%s\n", n.Plate, modelSuffix(n.Model))
		fmt.Fprintf(&b, "👤 *Mecânico:* %s\n", n.Assignee)
		fmt.Fprintf(&b, "🕐 *Horário de conclusão:* %s\n", n.Time)
		if n.Note != "" {
			fmt.Fprintf(&b, "\n📝 *Observação:* %s", n.Note)
		}
		b.WriteString("\n\n📞 *Ação necessária:* Entrar em contato com o cliente")
	default:
		return fmt.Errorf("unknown notification type %q", n.Type)
	}

	return s.send(ctx, b.String())
}

// SendSync reports one propagation between Kommo and Trello. Used
// fire-and-forget by the reconciler.
func (s *TelegramService) SendSync(ctx context.Context, n *model.SyncNotification) error {
	var b strings.Builder

	switch n.Direction {
	case model.DirectionKommoToTrello:
		b.WriteString("🔄 *SINCRONIZAÇÃO KOMMO → TRELLO*\n\n")
		b.WriteString("✅ *Lead agendado criado no Trello*\n\n")
		fmt.Fprintf(&b, "🚗 *Placa:* %s\n", n.Plate)
		if n.Name != "" {
			fmt.Fprintf(&b, "👤 *Cliente:* %s\n", n.Name)
		}
		if n.Date != "" {
			fmt.Fprintf(&b, "📅 *Data:* %s\n", n.Date)
		}
		if n.CardURL != "" {
			fmt.Fprintf(&b, "\n🔗 [Ver card no Trello](%s)", n.CardURL)
		}
	case model.DirectionTrelloToKommo:
		b.WriteString("🔄 *SINCRONIZAÇÃO TRELLO → KOMMO*\n\n")
		fmt.Fprintf(&b, "🚗 *Placa:* %s\n", n.Plate)
		if n.StatusFrom != "" && n.StatusTo != "" {
			fmt.Fprintf(&b, "📋 *Status:* %s → %s\n", n.StatusFrom, n.StatusTo)
		}
		if n.LeadID != 0 {
			fmt.Fprintf(&b, "🆔 *Kommo Lead ID:* %d\n", n.LeadID)
		}
	default:
		return fmt.Errorf("unknown sync direction %q", n.Direction)
	}

	return s.send(ctx, b.String())
}

// NotifySync is the fire-and-forget wrapper the reconciler calls.
func (s *TelegramService) NotifySync(ctx context.Context, n *model.SyncNotification) {
	if err := s.SendSync(ctx, n); err != nil {
		log.WithFields(log.Fields{"direction": n.Direction, "error": err}).Warn("[telegram] sync notification failed")
	}
}

func modelSuffix(m string) string {
	if m == "" {
		return ""
	}
	return " (" + m + ")"
}
