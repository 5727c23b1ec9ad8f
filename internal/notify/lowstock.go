// Package notify tells operators in Telegram when a production run leaves a
// component running low.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ShariqSheikhh/AssemblyOS/internal/domain/orders"
	"github.com/ShariqSheikhh/AssemblyOS/internal/engine"
)

// Sender is satisfied by *tgbotapi.BotAPI.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type LowStock struct {
	bot       Sender
	log       *slog.Logger
	chatIDs   []int64
	threshold int64
}

// NewLowStock sends one message per production run to every distinct
// non-zero chat id. Components whose stock ends below threshold are listed.
func NewLowStock(bot Sender, log *slog.Logger, threshold int64, chatIDs ...int64) *LowStock {
	seen := make(map[int64]struct{}, len(chatIDs))
	var ids []int64
	for _, id := range chatIDs {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return &LowStock{bot: bot, log: log, chatIDs: ids, threshold: threshold}
}

func (n *LowStock) ProductionCommitted(_ context.Context, res engine.ProductionResult) {
	text := n.message(res)
	if text == "" {
		return
	}
	for _, chatID := range n.chatIDs {
		if _, err := n.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
			n.log.Warn("low stock notification failed", "chat_id", chatID, "run_id", res.RunID.String(), "err", err)
		}
	}
}

func (n *LowStock) OrderChanged(context.Context, orders.Order) {}

func (n *LowStock) message(res engine.ProductionResult) string {
	var b strings.Builder
	for _, c := range res.Components {
		if c.After >= n.threshold {
			continue
		}
		if b.Len() == 0 {
			fmt.Fprintf(&b, "⚠️ Low stock after producing %d × %s:\n", res.Quantity, res.Product.Name)
		}
		if c.After == 0 {
			fmt.Fprintf(&b, "• %s: out of stock\n", c.Name)
			continue
		}
		fmt.Fprintf(&b, "• %s: %d left (was %d)\n", c.Name, c.After, c.Before)
	}
	return strings.TrimSpace(b.String())
}
