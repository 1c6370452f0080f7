package usc

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"uscbot-backend/lib/browser"
	"uscbot-backend/lib/timezone"
)

// ListLessons enumerates every bookable slot for sport over the next
// daysAhead calendar days, today included. The calendar is returned
// to today before this reports back, also when it fails partway.
func (s *Session) ListLessons(ctx context.Context, sport string, daysAhead int) (slots []TimeSlot, err error) {
	ctx, span := tracer.Start(ctx, "ListLessons")
	defer span.End()
	defer s.resetAndReport(ctx, span, &err)

	if err = s.filterBySport(ctx, sport); err != nil {
		return nil, err
	}
	slots, err = s.collectLessons(ctx, sport, daysAhead)
	return slots, err
}

// BookLesson reserves the slot for sport starting at when. The slot
// must already be bookable; callers discover candidates through
// ListLessons. The calendar is returned to today on every exit path.
func (s *Session) BookLesson(ctx context.Context, sport string, when time.Time) (err error) {
	ctx, span := tracer.Start(ctx, "BookLesson")
	defer span.End()
	defer s.resetAndReport(ctx, span, &err)

	if err = s.filterBySport(ctx, sport); err != nil {
		return err
	}
	if err = s.goToDate(ctx, when); err != nil {
		return err
	}
	err = s.bookVisibleSlot(ctx, sport, when)
	return err
}

// resetAndReport is the shared exit path of the public workflows. The
// reset always runs; its failure never masks the failure that got us
// here.
func (s *Session) resetAndReport(ctx context.Context, span trace.Span, err *error) {
	if rerr := s.resetToToday(ctx); rerr != nil {
		if *err == nil {
			*err = rerr
		} else {
			slog.ErrorContext(ctx, "reset to today failed while unwinding", "err", rerr)
			span.RecordError(rerr)
		}
	}
	if *err != nil {
		span.RecordError(*err)
		span.SetStatus(codes.Error, (*err).Error())
	}
}

func (s *Session) collectLessons(ctx context.Context, sport string, targetDays int) ([]TimeSlot, error) {
	days, err := s.driver.FindAll(ctx, selDaySelector)
	if err != nil {
		return nil, fmt.Errorf("read day selector strip: %w", err)
	}
	windowLen := len(days)

	var out []TimeSlot
	dayAhead := 0
	for dayAhead < targetDays {
		if len(days) == 0 {
			// current window exhausted, advance one full window and
			// re-read the strip
			for i := 0; i < windowLen; i++ {
				advance, err := s.driver.Find(ctx, selAdvanceOneDay)
				if err != nil {
					return nil, fmt.Errorf("locate advance control: %w", err)
				}
				if err := s.driver.ScriptClick(ctx, advance); err != nil {
					return nil, fmt.Errorf("advance one day: %w", err)
				}
			}
			days, err = s.driver.FindAll(ctx, selDaySelector)
			if err != nil {
				return nil, fmt.Errorf("read day selector strip: %w", err)
			}
		}

		day := days[0]
		days = days[1:]
		dayAhead++

		if err := s.driver.ScriptClick(ctx, day); err != nil {
			return nil, fmt.Errorf("select day %d: %w", dayAhead, err)
		}

		slotLists, err := s.driver.FindAll(ctx, selSlotList)
		if err != nil {
			if browser.IsTimeout(err) {
				// a day with nothing bookable renders no slot list
				continue
			}
			return nil, fmt.Errorf("read slot cards: %w", err)
		}
		matching, err := s.driver.FilterPresent(ctx, slotLists, containsTextProbe(sport))
		if err != nil {
			return nil, fmt.Errorf("filter slot cards: %w", err)
		}

		for _, slot := range matching {
			ts, err := s.extractSlot(ctx, slot, dayAhead)
			if err != nil {
				return nil, err
			}
			out = append(out, ts)
		}
	}

	return out, nil
}

// extractSlot reads start time and trainer off one slot card. dayAhead
// is 1-based, 1 meaning the card belongs to today.
func (s *Session) extractSlot(ctx context.Context, slot browser.Element, dayAhead int) (TimeSlot, error) {
	// the calendar framework fills the card's text slightly after the
	// card itself appears
	s.driver.Settle(ctx)

	timeEl, err := s.driver.FindUnder(ctx, slot, selSlotStartTime)
	if err != nil {
		// only a genuinely absent label is a portal data problem, a
		// broken session surfaces as-is
		if !browser.IsNotFound(err) && !browser.IsTimeout(err) {
			return TimeSlot{}, fmt.Errorf("locate start time label: %w", err)
		}
		slog.ErrorContext(ctx, "time extraction failed", "slot", slot.Describe(), "err", err)
		return TimeSlot{}, &TimeExtractionError{Slot: slot.Describe()}
	}
	timeText, err := s.driver.Text(ctx, timeEl)
	if err != nil {
		return TimeSlot{}, fmt.Errorf("read start time label: %w", err)
	}
	if timeText == "" {
		slog.ErrorContext(ctx, "time extraction failed, start time label is blank", "slot", slot.Describe())
		return TimeSlot{}, &TimeExtractionError{Slot: slot.Describe()}
	}
	tod, err := time.ParseInLocation("15:04", timeText, timezone.Location)
	if err != nil {
		slog.ErrorContext(ctx, "time extraction failed, unparseable label", "slot", slot.Describe(), "label", timeText)
		return TimeSlot{}, &TimeExtractionError{Slot: slot.Describe()}
	}

	// unsupervised slots carry no trainer name
	trainer := ""
	if trainerEl, err := s.driver.FindUnder(ctx, slot, selSlotTrainer); err == nil {
		trainer, err = s.driver.Text(ctx, trainerEl)
		if err != nil {
			return TimeSlot{}, fmt.Errorf("read trainer label: %w", err)
		}
	}

	day := timezone.Now().AddDate(0, 0, dayAhead-1)
	start := time.Date(
		day.Year(), day.Month(), day.Day(),
		tod.Hour(), tod.Minute(), 0, 0,
		timezone.Location,
	)
	return TimeSlot{Time: start, Trainer: trainer}, nil
}

// bookVisibleSlot assumes the calendar already shows the right day
// with the sport filter applied.
func (s *Session) bookVisibleSlot(ctx context.Context, sport string, when time.Time) error {
	timeStr := when.In(timezone.Location).Format("15:04")

	slotLists, err := s.driver.FindAll(ctx, selSlotList)
	if err != nil {
		return fmt.Errorf("read slot cards: %w", err)
	}
	matches, err := s.driver.FilterPresent(ctx, slotLists, slotMatchProbe(sport, timeStr))
	if err != nil {
		return fmt.Errorf("filter slot cards: %w", err)
	}
	if len(matches) == 0 {
		return fmt.Errorf("%w: %s at %s", ErrSlotNotFound, sport, timeStr)
	}
	if len(matches) > 1 {
		// the portal is assumed to never show duplicates for one
		// sport and time, take the first if it does anyway
		slog.WarnContext(ctx, "multiple slot cards match, booking the first",
			"sport", sport, "time", timeStr, "matches", len(matches))
	}

	book, err := s.driver.FindUnder(ctx, matches[0], selSlotBookButton)
	if err != nil {
		return fmt.Errorf("locate book button: %w", err)
	}
	if err := s.driver.ScriptClick(ctx, book); err != nil {
		return fmt.Errorf("click book button: %w", err)
	}

	confirm, err := s.driver.Find(ctx, selDetailsBook)
	if err != nil {
		return fmt.Errorf("locate confirmation button: %w", err)
	}
	if err := s.driver.ScriptClick(ctx, confirm); err != nil {
		return fmt.Errorf("confirm booking: %w", err)
	}

	closeModal, err := s.driver.Find(ctx, selCloseDetailsTab)
	if err != nil {
		return fmt.Errorf("locate modal close button: %w", err)
	}
	if err := s.driver.Click(ctx, closeModal); err != nil {
		return fmt.Errorf("close details modal: %w", err)
	}
	return nil
}
