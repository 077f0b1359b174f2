package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"montevecchio/internal/events"
	"montevecchio/internal/metrics"
	"montevecchio/internal/models"
)

const queueSize = 64

// TelegramSender is the part of tgbotapi.BotAPI used for notifications.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts a short line per household event to one chat.
// Events are queued by HandleEvent and delivered by Run at a limited rate.
type TelegramNotifier struct {
	sender  TelegramSender
	chatID  int64
	limiter *rate.Limiter
	loc     *time.Location
	queue   chan string
	logger  zerolog.Logger
}

func NewTelegramNotifier(sender TelegramSender, chatID int64, perSecond float64, loc *time.Location, logger *zerolog.Logger) *TelegramNotifier {
	if perSecond <= 0 {
		perSecond = 1
	}
	if loc == nil {
		loc = time.UTC
	}
	return &TelegramNotifier{
		sender:  sender,
		chatID:  chatID,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 3),
		loc:     loc,
		queue:   make(chan string, queueSize),
		logger:  logger.With().Str("component", "telegram_notifier").Logger(),
	}
}

// HandleEvent formats the event and queues it. It never blocks; a full
// queue drops the message.
func (n *TelegramNotifier) HandleEvent(e events.Event) error {
	text, err := n.Format(e)
	if err != nil {
		return err
	}
	if text == "" {
		return nil
	}
	select {
	case n.queue <- text:
	default:
		metrics.IncNotification("dropped")
		n.logger.Warn().Str("type", e.Type).Msg("Notification queue full, dropping message")
	}
	return nil
}

// Run delivers queued messages until ctx is cancelled.
func (n *TelegramNotifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-n.queue:
			if err := n.limiter.Wait(ctx); err != nil {
				return
			}
			if _, err := n.sender.Send(tgbotapi.NewMessage(n.chatID, text)); err != nil {
				metrics.IncNotification("failed")
				n.logger.Error().Err(err).Msg("Failed to send notification")
				continue
			}
			metrics.IncNotification("sent")
		}
	}
}

type claimPayload struct {
	Zone       models.Zone                `json:"zone"`
	UserName   string                     `json:"userName"`
	Assignment *models.CleaningAssignment `json:"assignment"`
	Previous   string                     `json:"previous"`
}

// Format renders the chat line for an event. Event types without a message
// return an empty string.
func (n *TelegramNotifier) Format(e events.Event) (string, error) {
	switch e.Type {
	case events.LaundryBooked:
		var r models.LaundryReservation
		if err := json.Unmarshal(e.Payload, &r); err != nil {
			return "", fmt.Errorf("decode %s: %w", e.Type, err)
		}
		return fmt.Sprintf("%s took %s from %s until %s", r.UserName, r.RackLabel, n.when(r.StartTime), n.when(r.EndTime())), nil

	case events.ShowerBooked:
		var b models.ShowerBooking
		if err := json.Unmarshal(e.Payload, &b); err != nil {
			return "", fmt.Errorf("decode %s: %w", e.Type, err)
		}
		text := fmt.Sprintf("%s booked the shower at %s", b.UserName, n.when(b.StartTime))
		if b.HasConflict {
			text += " (overlaps another booking)"
		}
		return text, nil

	case events.CleaningClaimed, events.CleaningReleased:
		var p claimPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return "", fmt.Errorf("decode %s: %w", e.Type, err)
		}
		zone := zoneName(p.Zone)
		if e.Type == events.CleaningReleased {
			return fmt.Sprintf("%s released the %s", p.UserName, zone), nil
		}
		if p.Previous != "" {
			return fmt.Sprintf("%s is cleaning the %s this week, taking over from %s", p.UserName, zone, p.Previous), nil
		}
		return fmt.Sprintf("%s is cleaning the %s this week", p.UserName, zone), nil

	case events.CleaningRotated:
		var p struct {
			WeekKey string `json:"weekKey"`
		}
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return "", fmt.Errorf("decode %s: %w", e.Type, err)
		}
		return fmt.Sprintf("New cleaning week %s: every zone is free again", p.WeekKey), nil

	case events.ShoppingAdded:
		var item models.ShoppingItem
		if err := json.Unmarshal(e.Payload, &item); err != nil {
			return "", fmt.Errorf("decode %s: %w", e.Type, err)
		}
		return fmt.Sprintf("Added to the shopping list: %s", item.Label), nil

	case events.BoardPosted:
		var msg models.BoardMessage
		if err := json.Unmarshal(e.Payload, &msg); err != nil {
			return "", fmt.Errorf("decode %s: %w", e.Type, err)
		}
		return fmt.Sprintf("%s on the blackboard: %s", msg.Author, msg.Text), nil
	}
	return "", nil
}

func (n *TelegramNotifier) when(t time.Time) string {
	return t.In(n.loc).Format("Mon 02/01 15:04")
}

func zoneName(z models.Zone) string {
	return strings.ReplaceAll(string(z), "-", " ")
}
