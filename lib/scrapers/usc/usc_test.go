package usc

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"uscbot-backend/lib/browser"
	"uscbot-backend/lib/timezone"
)

func newCalendar() *calendarDriver {
	return &calendarDriver{
		sports:     []string{"Schermen", "Voetbal", "Water polo"},
		slots:      map[int][]fakeSlot{},
		windowSize: 3,
	}
}

func at(base time.Time, daysAhead, hour, minute int) time.Time {
	d := base.AddDate(0, 0, daysAhead)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, timezone.Location)
}

func actionIndex(t *testing.T, actions []string, action string) int {
	t.Helper()
	idx := -1
	count := 0
	for i, a := range actions {
		if a == action {
			if idx == -1 {
				idx = i
			}
			count++
		}
	}
	require.Equalf(t, 1, count, "expected exactly one %q in %v", action, actions)
	return idx
}

func TestListLessons(t *testing.T) {
	today := timezone.Now()
	d := newCalendar()
	d.slots[0] = []fakeSlot{{sport: "Schermen", timeText: "18:00", trainer: "Alex"}}
	d.slots[1] = []fakeSlot{{sport: "Voetbal", timeText: "10:00", trainer: "Bo"}}
	d.slots[3] = []fakeSlot{{sport: "Schermen", timeText: "19:30", noTrainer: true}}

	s := &Session{driver: d}
	slots, err := s.ListLessons(context.Background(), "Schermen", 5)
	require.NoError(t, err)

	require.Len(t, slots, 2)
	require.True(t, slots[0].Time.Equal(at(today, 0, 18, 0)), "got %v", slots[0].Time)
	require.Equal(t, "Alex", slots[0].Trainer)
	require.True(t, slots[1].Time.Equal(at(today, 3, 19, 30)), "got %v", slots[1].Time)
	require.Equal(t, "", slots[1].Trainer)

	require.Equal(t, "Schermen", d.filtered)
	require.False(t, d.dropdown)
	require.Equal(t, 0, d.windowStart, "calendar must end positioned at today")
}

func TestListLessonsBlankTimeLabel(t *testing.T) {
	d := newCalendar()
	d.slots[0] = []fakeSlot{{sport: "Schermen", timeText: "", trainer: "Alex"}}

	s := &Session{driver: d}
	_, err := s.ListLessons(context.Background(), "Schermen", 2)

	var extractErr *TimeExtractionError
	require.ErrorAs(t, err, &extractErr)
	require.Equal(t, "slot:0/0", extractErr.Slot)
	require.Equal(t, 0, d.windowStart, "reset must run on the failure path")
}

func TestListLessonsBrokenSessionSurfaces(t *testing.T) {
	d := newCalendar()
	d.slots[0] = []fakeSlot{{sport: "Schermen", timeText: "18:00", trainer: "Alex"}}
	d.timeElErr = errors.New("websocket: close 1006 (abnormal closure)")

	s := &Session{driver: d}
	_, err := s.ListLessons(context.Background(), "Schermen", 2)

	// a dead session is not a portal data problem
	require.ErrorIs(t, err, d.timeElErr)
	var extractErr *TimeExtractionError
	require.False(t, errors.As(err, &extractErr), "got %v", err)
	require.Equal(t, 0, d.windowStart, "reset must run on the failure path")
}

func TestBookLesson(t *testing.T) {
	today := timezone.Now()
	d := newCalendar()
	d.slots[2] = []fakeSlot{{sport: "Schermen", timeText: "18:00", trainer: "Alex"}}

	s := &Session{driver: d}
	err := s.BookLesson(context.Background(), "Schermen", at(today, 2, 18, 0))
	require.NoError(t, err)

	require.True(t, d.booked)
	require.False(t, d.modalOpen)
	require.Equal(t, 0, d.windowStart)

	book := actionIndex(t, d.actions, "scriptclick:book:2/0")
	confirm := actionIndex(t, d.actions, "scriptclick:confirm")
	closeModal := actionIndex(t, d.actions, "click:close-modal")
	require.Less(t, book, confirm)
	require.Less(t, confirm, closeModal)
}

func TestBookLessonResetsOnConfirmTimeout(t *testing.T) {
	today := timezone.Now()
	d := newCalendar()
	d.failConfirm = true
	// day 4 sits in the second window, so the reset has real work
	d.slots[4] = []fakeSlot{{sport: "Schermen", timeText: "18:00", trainer: "Alex"}}

	s := &Session{driver: d}
	err := s.BookLesson(context.Background(), "Schermen", at(today, 4, 18, 0))

	require.True(t, browser.IsTimeout(err), "got %v", err)
	require.False(t, d.booked)
	require.Equal(t, 0, d.windowStart, "reset must rewind to today after the failure")
	actionIndex(t, d.actions, "scriptclick:book:4/0")
}

func TestBookLessonNoMatchingSlot(t *testing.T) {
	today := timezone.Now()
	d := newCalendar()
	d.slots[0] = []fakeSlot{{sport: "Schermen", timeText: "18:00", trainer: "Alex"}}

	s := &Session{driver: d}
	err := s.BookLesson(context.Background(), "Schermen", at(today, 0, 20, 0))

	require.ErrorIs(t, err, ErrSlotNotFound)
	require.Equal(t, 0, d.windowStart)
}

func TestGoToDatePast(t *testing.T) {
	d := newCalendar()
	s := &Session{driver: d}

	err := s.goToDate(context.Background(), timezone.Now().AddDate(0, 0, -1))

	var pastErr *PastDateError
	require.ErrorAs(t, err, &pastErr)
	require.Empty(t, d.actions, "no navigation may happen before the past date check")
}

func TestGoToDateExhaustsSafetyBound(t *testing.T) {
	d := newCalendar()
	s := &Session{driver: d}

	// far past any reachable window
	err := s.goToDate(context.Background(), timezone.Now().AddDate(0, 0, maxDayWindows*d.windowSize+10))
	require.ErrorIs(t, err, ErrNavigationExhausted)
}

func TestFilterBySportNotFound(t *testing.T) {
	d := newCalendar()
	s := &Session{driver: d}

	err := s.filterBySport(context.Background(), "Waterpolo")

	var notFound *SportNotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, "Waterpolo", notFound.Sport)
	require.Equal(t, "Water polo", notFound.Suggestion)
	require.False(t, d.dropdown, "dropdown must be closed again on failure")
	require.Empty(t, d.filtered)
}

func TestFilterPresentKeepsOrder(t *testing.T) {
	d := newCalendar()
	els := []browser.Element{
		&fakeElement{id: "a", text: "Voetbal 10:00"},
		&fakeElement{id: "b", text: "Schermen 18:00"},
		&fakeElement{id: "c", text: "Schermen 19:30"},
	}

	kept, err := d.FilterPresent(context.Background(), els, containsTextProbe("Schermen"))
	require.NoError(t, err)
	require.Equal(t, []browser.Element{els[1], els[2]}, kept)
}

func TestNewUnsupportedProvider(t *testing.T) {
	d := &loginDriver{}
	_, err := New(context.Background(), d, Options{Provider: "surf"})
	require.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestLogin(t *testing.T) {
	d := &loginDriver{}
	s, err := New(context.Background(), d, Options{
		Username: "student",
		Password: "hunter2",
		Provider: ProviderUvA,
	})
	require.NoError(t, err)
	require.NotNil(t, s)

	require.Equal(t, Timezone, d.tz)
	require.Equal(t, "student", d.typed[selUsernameInput.Query])
	require.Equal(t, "hunter2", d.typed[selPasswordInput.Query])
	require.Equal(t, []string{
		"navigate:" + LoginURL,
		"click:" + selOidcLoginButton.Query,
		"click:" + selInstitutionUvA.Query,
		"sendkeys:" + selUsernameInput.Query,
		"sendkeys:" + selPasswordInput.Query,
		"click:" + selLoginSubmit.Query,
	}, d.actions)
}

func TestLoginInstitutionFallback(t *testing.T) {
	d := &loginDriver{missing: map[browser.Locator]bool{selInstitutionUvA: true}}
	_, err := New(context.Background(), d, Options{
		Username: "student",
		Password: "hunter2",
		Provider: ProviderUvA,
	})
	require.NoError(t, err)
	require.Contains(t, d.actions, "scriptclick:"+selInstitutionUvAAlt.Query)
}

func TestLoginFailure(t *testing.T) {
	d := &loginDriver{missing: map[browser.Locator]bool{selUsernameInput: true}}
	_, err := New(context.Background(), d, Options{
		Username: "student",
		Password: "hunter2",
		Provider: ProviderUvA,
	})

	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, "locate username field", authErr.Step)
	require.True(t, browser.IsTimeout(err))
}

func TestDayLabel(t *testing.T) {
	monday := time.Date(2024, 9, 2, 12, 0, 0, 0, timezone.Location)
	require.Equal(t, "Ma 2-9", dayLabel(monday))

	sunday := time.Date(2024, 12, 15, 0, 0, 0, 0, timezone.Location)
	require.Equal(t, "Zo 15-12", dayLabel(sunday))
}

func TestErrorMessages(t *testing.T) {
	require.Equal(t,
		`sport "Waterpolo" not found in filter, did you mean "Water polo"?`,
		(&SportNotFoundError{Sport: "Waterpolo", Suggestion: "Water polo"}).Error())
	require.Equal(t,
		"date 2024-01-02 is in the past",
		(&PastDateError{Date: time.Date(2024, 1, 2, 10, 0, 0, 0, timezone.Location)}).Error())

	wrapped := fmt.Errorf("step: %w", errors.New("boom"))
	authErr := &AuthenticationError{Step: "submit credentials", Err: wrapped}
	require.ErrorIs(t, authErr, wrapped)
}
