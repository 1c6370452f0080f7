package usc

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"uscbot-backend/lib/browser"
	"uscbot-backend/lib/timezone"
)

type fakeElement struct {
	id   string
	text string
}

func (e *fakeElement) Describe() string { return e.id }

// fakeSlot is one bookable card on a simulated calendar day. An empty
// timeText simulates a card whose start time label never filled in.
type fakeSlot struct {
	sport     string
	timeText  string
	trainer   string
	noTrainer bool
}

// calendarDriver simulates the booking calendar page: a day selector
// strip showing windowSize days at a time, per-day slot cards and the
// filter dropdown. It records every click so tests can assert on
// ordering.
type calendarDriver struct {
	sports     []string
	slots      map[int][]fakeSlot
	windowSize int

	windowStart int
	selectedDay int
	dropdown    bool
	filtered    string
	modalOpen   bool
	booked      bool
	// failConfirm hides the confirmation button so Find on it times
	// out after the book click
	failConfirm bool
	// timeElErr makes the start time lookup fail with a driver error
	// instead of resolving the label element
	timeElErr error

	actions []string
}

var _ browser.Driver = (*calendarDriver)(nil)

func (d *calendarDriver) record(format string, args ...any) {
	d.actions = append(d.actions, fmt.Sprintf(format, args...))
}

func dayText(offset int) string {
	if offset == 0 {
		return todayLabel
	}
	return dayLabel(timezone.Now().AddDate(0, 0, offset))
}

func (d *calendarDriver) Navigate(ctx context.Context, url string) error {
	d.record("navigate:%s", url)
	return nil
}

func (d *calendarDriver) Find(ctx context.Context, loc browser.Locator) (browser.Element, error) {
	switch {
	case loc == selFilterDropdown:
		return &fakeElement{id: "dropdown"}, nil
	case loc == selAdvanceOneDay:
		return &fakeElement{id: "advance"}, nil
	case loc == selBackOneDay:
		return &fakeElement{id: "back"}, nil
	case loc == selDetailsBook:
		if d.modalOpen && !d.failConfirm {
			return &fakeElement{id: "confirm"}, nil
		}
		return nil, fmt.Errorf("%w: %s", browser.ErrTimeout, loc)
	case loc == selCloseDetailsTab:
		if d.modalOpen {
			return &fakeElement{id: "close-modal"}, nil
		}
		return nil, fmt.Errorf("%w: %s", browser.ErrTimeout, loc)
	case strings.HasPrefix(loc.Query, `//li[label[text()=`):
		for _, sport := range d.sports {
			if loc == sportEntryLocator(sport) && d.dropdown {
				return &fakeElement{id: "entry:" + sport}, nil
			}
		}
		return nil, fmt.Errorf("%w: %s", browser.ErrTimeout, loc)
	}
	return nil, fmt.Errorf("%w: %s", browser.ErrTimeout, loc)
}

func (d *calendarDriver) FindAll(ctx context.Context, loc browser.Locator) ([]browser.Element, error) {
	switch loc {
	case selDaySelector:
		var els []browser.Element
		for i := 0; i < d.windowSize; i++ {
			offset := d.windowStart + i
			els = append(els, &fakeElement{
				id:   fmt.Sprintf("day:%d", offset),
				text: dayText(offset),
			})
		}
		return els, nil
	case selFilterLabels:
		if !d.dropdown {
			return nil, fmt.Errorf("%w: %s", browser.ErrTimeout, loc)
		}
		var els []browser.Element
		for _, sport := range d.sports {
			els = append(els, &fakeElement{id: "label:" + sport, text: sport})
		}
		return els, nil
	case selSlotList:
		slots := d.slots[d.selectedDay]
		if len(slots) == 0 {
			return nil, fmt.Errorf("%w: %s", browser.ErrTimeout, loc)
		}
		var els []browser.Element
		for i, slot := range slots {
			els = append(els, &fakeElement{
				id:   fmt.Sprintf("slot:%d/%d", d.selectedDay, i),
				text: fmt.Sprintf("%s %s %s", slot.sport, slot.timeText, slot.trainer),
			})
		}
		return els, nil
	}
	return nil, fmt.Errorf("%w: %s", browser.ErrTimeout, loc)
}

func (d *calendarDriver) slotFor(el browser.Element) (fakeSlot, bool) {
	var day, idx int
	if _, err := fmt.Sscanf(el.Describe(), "slot:%d/%d", &day, &idx); err != nil {
		return fakeSlot{}, false
	}
	slots := d.slots[day]
	if idx >= len(slots) {
		return fakeSlot{}, false
	}
	return slots[idx], true
}

func (d *calendarDriver) FindUnder(ctx context.Context, el browser.Element, loc browser.Locator) (browser.Element, error) {
	if strings.HasPrefix(el.Describe(), "entry:") && loc == selCheckboxInput {
		return &fakeElement{id: "checkbox:" + strings.TrimPrefix(el.Describe(), "entry:")}, nil
	}
	if slot, ok := d.slotFor(el); ok {
		switch loc {
		case selSlotStartTime:
			if d.timeElErr != nil {
				return nil, d.timeElErr
			}
			return &fakeElement{id: el.Describe() + "/time", text: slot.timeText}, nil
		case selSlotTrainer:
			if slot.noTrainer {
				return nil, fmt.Errorf("%w: %s", browser.ErrNotFound, loc)
			}
			return &fakeElement{id: el.Describe() + "/trainer", text: slot.trainer}, nil
		case selSlotBookButton:
			return &fakeElement{id: "book:" + strings.TrimPrefix(el.Describe(), "slot:")}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", browser.ErrNotFound, loc)
}

var quotedRe = regexp.MustCompile(`"([^"]*)"|'([^']*)'`)

// FilterPresent approximates XPath text probes: an element passes when
// its text contains every quoted literal in the probe query.
func (d *calendarDriver) FilterPresent(ctx context.Context, els []browser.Element, probe browser.Locator) ([]browser.Element, error) {
	var needles []string
	for _, m := range quotedRe.FindAllStringSubmatch(probe.Query, -1) {
		if m[1] != "" {
			needles = append(needles, m[1])
		} else {
			needles = append(needles, m[2])
		}
	}

	var kept []browser.Element
	for _, el := range els {
		fe := el.(*fakeElement)
		match := true
		for _, needle := range needles {
			if !strings.Contains(fe.text, needle) {
				match = false
				break
			}
		}
		if match {
			kept = append(kept, el)
		}
	}
	return kept, nil
}

func (d *calendarDriver) apply(id string) {
	switch {
	case id == "dropdown":
		d.dropdown = !d.dropdown
	case id == "advance":
		d.windowStart++
	case id == "back":
		if d.windowStart > 0 {
			d.windowStart--
		}
	case id == "close-modal":
		d.modalOpen = false
	case id == "confirm":
		d.booked = true
	case strings.HasPrefix(id, "checkbox:"):
		d.filtered = strings.TrimPrefix(id, "checkbox:")
	case strings.HasPrefix(id, "day:"):
		fmt.Sscanf(id, "day:%d", &d.selectedDay)
	case strings.HasPrefix(id, "book:"):
		d.modalOpen = true
	}
}

func (d *calendarDriver) Click(ctx context.Context, el browser.Element) error {
	d.record("click:%s", el.Describe())
	d.apply(el.Describe())
	return nil
}

func (d *calendarDriver) ScriptClick(ctx context.Context, el browser.Element) error {
	d.record("scriptclick:%s", el.Describe())
	d.apply(el.Describe())
	return nil
}

func (d *calendarDriver) Text(ctx context.Context, el browser.Element) (string, error) {
	return strings.TrimSpace(el.(*fakeElement).text), nil
}

func (d *calendarDriver) SendKeys(ctx context.Context, el browser.Element, text string) error {
	d.record("sendkeys:%s", el.Describe())
	return nil
}

func (d *calendarDriver) SetTimezone(ctx context.Context, tz string) error {
	d.record("timezone:%s", tz)
	return nil
}

func (d *calendarDriver) Settle(ctx context.Context) {}

func (d *calendarDriver) Close(ctx context.Context) error {
	d.record("close")
	return nil
}

// loginDriver simulates the login flow pages. Locators listed in
// missing never resolve.
type loginDriver struct {
	missing map[browser.Locator]bool
	typed   map[string]string
	tz      string
	actions []string
}

var _ browser.Driver = (*loginDriver)(nil)

func (d *loginDriver) Navigate(ctx context.Context, url string) error {
	d.actions = append(d.actions, "navigate:"+url)
	return nil
}

func (d *loginDriver) Find(ctx context.Context, loc browser.Locator) (browser.Element, error) {
	if d.missing[loc] {
		return nil, fmt.Errorf("%w: %s", browser.ErrTimeout, loc)
	}
	return &fakeElement{id: loc.Query}, nil
}

func (d *loginDriver) FindAll(ctx context.Context, loc browser.Locator) ([]browser.Element, error) {
	return nil, fmt.Errorf("%w: %s", browser.ErrTimeout, loc)
}

func (d *loginDriver) FindUnder(ctx context.Context, el browser.Element, loc browser.Locator) (browser.Element, error) {
	return nil, fmt.Errorf("%w: %s", browser.ErrNotFound, loc)
}

func (d *loginDriver) FilterPresent(ctx context.Context, els []browser.Element, probe browser.Locator) ([]browser.Element, error) {
	return nil, nil
}

func (d *loginDriver) Click(ctx context.Context, el browser.Element) error {
	d.actions = append(d.actions, "click:"+el.Describe())
	return nil
}

func (d *loginDriver) ScriptClick(ctx context.Context, el browser.Element) error {
	d.actions = append(d.actions, "scriptclick:"+el.Describe())
	return nil
}

func (d *loginDriver) Text(ctx context.Context, el browser.Element) (string, error) {
	return "", nil
}

func (d *loginDriver) SendKeys(ctx context.Context, el browser.Element, text string) error {
	if d.typed == nil {
		d.typed = map[string]string{}
	}
	d.typed[el.Describe()] = text
	d.actions = append(d.actions, "sendkeys:"+el.Describe())
	return nil
}

func (d *loginDriver) SetTimezone(ctx context.Context, tz string) error {
	d.tz = tz
	return nil
}

func (d *loginDriver) Settle(ctx context.Context) {}

func (d *loginDriver) Close(ctx context.Context) error { return nil }
