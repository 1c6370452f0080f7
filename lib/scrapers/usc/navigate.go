package usc

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/antzucaro/matchr"

	"uscbot-backend/lib/browser"
	"uscbot-backend/lib/timezone"
)

// maxDayWindows bounds how many day selector windows a navigation
// loop may traverse in one direction before giving up. The portal
// shows bookable slots at most a few weeks out, so hitting the bound
// means the calendar markup changed.
const maxDayWindows = 52

// filterBySport toggles the sport's checkbox in the filter dropdown.
// On failure the dropdown is closed again before the error surfaces.
func (s *Session) filterBySport(ctx context.Context, sport string) error {
	ctx, span := tracer.Start(ctx, "filterBySport")
	defer span.End()

	dropdown, err := s.driver.Find(ctx, selFilterDropdown)
	if err != nil {
		return fmt.Errorf("locate filter dropdown: %w", err)
	}
	if err := s.driver.Click(ctx, dropdown); err != nil {
		return fmt.Errorf("open filter dropdown: %w", err)
	}

	entry, err := s.driver.Find(ctx, sportEntryLocator(sport))
	if err != nil {
		if browser.IsTimeout(err) || browser.IsNotFound(err) {
			suggestion := s.closestSportLabel(ctx, sport)
			if cerr := s.driver.Click(ctx, dropdown); cerr != nil {
				slog.WarnContext(ctx, "failed to close filter dropdown", "err", cerr)
			}
			return &SportNotFoundError{Sport: sport, Suggestion: suggestion}
		}
		return fmt.Errorf("locate sport entry: %w", err)
	}

	// the label's overlay intercepts native clicks on the checkbox
	checkbox, err := s.driver.FindUnder(ctx, entry, selCheckboxInput)
	if err != nil {
		return fmt.Errorf("locate sport checkbox: %w", err)
	}
	if err := s.driver.ScriptClick(ctx, checkbox); err != nil {
		return fmt.Errorf("toggle sport checkbox: %w", err)
	}

	if err := s.driver.Click(ctx, dropdown); err != nil {
		return fmt.Errorf("close filter dropdown: %w", err)
	}
	return nil
}

// closestSportLabel reads every label in the open dropdown and
// returns the one nearest to want, for the "did you mean" hint.
// Best effort, an empty string means no usable candidate.
func (s *Session) closestSportLabel(ctx context.Context, want string) string {
	labels, err := s.driver.FindAll(ctx, selFilterLabels)
	if err != nil {
		return ""
	}

	best := ""
	bestDist := len(want)/2 + 1
	for _, label := range labels {
		text, err := s.driver.Text(ctx, label)
		if err != nil || text == "" {
			continue
		}
		dist := matchr.Levenshtein(strings.ToLower(want), strings.ToLower(text))
		if dist < bestDist {
			best = text
			bestDist = dist
		}
	}
	return best
}

// goToDate clicks the day selector entry for target, advancing the
// strip one window at a time until its label is visible.
func (s *Session) goToDate(ctx context.Context, target time.Time) error {
	ctx, span := tracer.Start(ctx, "goToDate")
	defer span.End()

	today := timezone.Now()
	targetDay := target.In(timezone.Location)
	if dateOnly(targetDay).Before(dateOnly(today)) {
		return &PastDateError{Date: targetDay}
	}

	label := todayLabel
	if !dateOnly(targetDay).Equal(dateOnly(today)) {
		label = dayLabel(targetDay)
	}

	for window := 0; window < maxDayWindows; window++ {
		days, err := s.driver.FindAll(ctx, selDaySelector)
		if err != nil {
			return fmt.Errorf("read day selector strip: %w", err)
		}
		matches, err := s.driver.FilterPresent(ctx, days, containsTextProbe(label))
		if err != nil {
			return fmt.Errorf("scan day selector strip: %w", err)
		}
		if len(matches) > 0 {
			if err := s.driver.ScriptClick(ctx, matches[0]); err != nil {
				return fmt.Errorf("select day %q: %w", label, err)
			}
			return nil
		}

		for range days {
			advance, err := s.driver.Find(ctx, selAdvanceOneDay)
			if err != nil {
				return fmt.Errorf("locate advance control: %w", err)
			}
			if err := s.driver.Click(ctx, advance); err != nil {
				return fmt.Errorf("advance one day: %w", err)
			}
		}
	}

	return fmt.Errorf("%w: day %q never became visible", ErrNavigationExhausted, label)
}

// resetToToday rewinds the day selector strip until "Vandaag" is
// visible again. Every workflow runs this on the way out, success or
// not, so the next call starts from a known position.
func (s *Session) resetToToday(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "resetToToday")
	defer span.End()

	for step := 0; step < maxDayWindows; step++ {
		days, err := s.driver.FindAll(ctx, selDaySelector)
		if err != nil {
			return fmt.Errorf("read day selector strip: %w", err)
		}
		today, err := s.driver.FilterPresent(ctx, days, containsTextProbe(todayLabel))
		if err != nil {
			return fmt.Errorf("scan day selector strip: %w", err)
		}
		if len(today) > 0 {
			return nil
		}

		back, err := s.driver.Find(ctx, selBackOneDay)
		if err != nil {
			return fmt.Errorf("locate back control: %w", err)
		}
		if err := s.driver.Click(ctx, back); err != nil {
			return fmt.Errorf("step back one day: %w", err)
		}
	}

	return fmt.Errorf("%w: %q never became visible stepping back", ErrNavigationExhausted, todayLabel)
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, timezone.Location)
}
