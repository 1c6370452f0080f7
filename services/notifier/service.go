// Package notifier runs the scheduled offer round: scrape upcoming
// lessons, cross them with subscribed users and message everyone who
// has not seen that slot yet.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"uscbot-backend/lib/scrapers/usc"
	"uscbot-backend/lib/telegram"
	"uscbot-backend/services/lessons"
)

var tracer = otel.Tracer("services/notifier")

// Lister is the slice of the scraper session the notifier needs.
type Lister interface {
	ListLessons(ctx context.Context, sport string, daysAhead int) ([]usc.TimeSlot, error)
}

type Messenger interface {
	SendMessage(ctx context.Context, params telegram.SendMessageParams) (telegram.Message, error)
}

type Service struct {
	store lessons.Service
	bot   Messenger
}

func NewService(store lessons.Service, bot Messenger) Service {
	return Service{store: store, bot: bot}
}

// NotifySport offers every new upcoming slot for sport to every
// subscriber. A recipient who blocked the bot is logged and skipped.
// Other per-recipient failures are logged too and the batch keeps
// going, the collected error surfaces once the round is over.
func (s Service) NotifySport(ctx context.Context, scraper Lister, sport string, daysAhead int) error {
	ctx, span := tracer.Start(ctx, "NotifySport")
	defer span.End()
	span.SetAttributes(attribute.String("sport", sport))

	slots, err := scraper.ListLessons(ctx, sport, daysAhead)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list lessons")
		return err
	}
	subscribers, err := s.store.ListUsersSubscribedTo(ctx, sport)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list subscribers")
		return err
	}

	slog.InfoContext(ctx, "offering lessons",
		"sport", sport, "slots", len(slots), "subscribers", len(subscribers))

	var failures []error
	for _, slot := range slots {
		for _, sub := range subscribers {
			if err := s.offer(ctx, sport, slot, sub); err != nil {
				slog.ErrorContext(ctx, "offer failed, continuing with the batch",
					"user_id", sub.UserID, "time", slot.Time, "err", err)
				span.RecordError(err)
				failures = append(failures, err)
			}
		}
	}
	if err := errors.Join(failures...); err != nil {
		span.SetStatus(codes.Error, "some offers failed")
		return err
	}
	return nil
}

func (s Service) offer(ctx context.Context, sport string, slot usc.TimeSlot, sub lessons.Subscriber) error {
	offered, err := s.store.HasUserBeenOffered(ctx, sport, slot.Time, sub.UserID)
	if err != nil {
		return err
	}
	if offered {
		return nil
	}

	key, err := s.store.RecordLessonOffer(ctx, sport, slot.Time, sub.UserID, slot.Trainer)
	if err != nil {
		return err
	}

	_, err = s.bot.SendMessage(ctx, telegram.SendMessageParams{
		ChatID:      sub.TelegramID,
		Text:        offerText(sport, slot),
		ReplyMarkup: telegram.YesNoKeyboard(key+",Y", key+",N"),
	})
	if err != nil {
		// blocked recipients must not sink the whole batch
		if telegram.IsForbidden(err) {
			slog.ErrorContext(ctx, "recipient forbids messages, skipping",
				"user_id", sub.UserID, "err", err)
			return nil
		}
		return err
	}

	slog.InfoContext(ctx, "offered lesson",
		"sport", sport, "time", slot.Time, "user_id", sub.UserID)
	return nil
}

func offerText(sport string, slot usc.TimeSlot) string {
	text := fmt.Sprintf("There is a %s lesson %s at %s.",
		sport, slot.Time.Weekday(), slot.Time.Format("15:04"))
	if slot.Trainer != "" {
		text += fmt.Sprintf(" The trainer is %s.", slot.Trainer)
	}
	return text + " Would you like to go?"
}
