package usc

import (
	"fmt"
	"time"

	"uscbot-backend/lib/browser"
)

const (
	LoginURL = "https://my.uscsport.nl/pages/login"
	Timezone = "Europe/Amsterdam"

	// todayLabel is the literal the portal uses to mark the current
	// day in the day selector strip.
	todayLabel = "Vandaag"
)

var (
	selOidcLoginButton = browser.CSS(`button[data-test-id="oidc-login-button"]`)
	selInstitutionUvA  = browser.CSS(`li[data-title="universiteit van amsterdam"]`)
	// the identity provider serves two shapes of the institution
	// picker, this one is the fallback
	selInstitutionUvAAlt = browser.XPath(`//input[@value="http://login.uva.nl/adfs/services/trust"]/..//button`)
	selUsernameInput     = browser.CSS(`input[id="userNameInput"]`)
	selPasswordInput     = browser.CSS(`input[id="passwordInput"]`)
	selLoginSubmit       = browser.CSS(`span[id="submitButton"]`)

	selFilterDropdown = browser.CSS(`i[class="fas text-primary fa-chevron-down"]`)
	selFilterLabels   = browser.XPath(`//li/label`)
	selCheckboxInput  = browser.CSS(`input`)

	selDaySelector   = browser.CSS(`a[data-test-id-day-selector="day-selector"]`)
	selAdvanceOneDay = browser.CSS(`a[data-test-id="advance-one-day-button"]`)
	selBackOneDay    = browser.XPath(`//i[@class="fa fa-chevron-left"]/..`)

	selSlotList        = browser.CSS(`div[data-test-id="bookable-slot-list"]`)
	selSlotStartTime   = browser.CSS(`p[data-test-id="bookable-slot-start-time"] > strong`)
	selSlotTrainer     = browser.CSS(`span[data-test-id="bookable-slot-supervisor-first-name"]`)
	selSlotBookButton  = browser.CSS(`button[data-test-id="bookable-slot-book-button"]`)
	selDetailsBook     = browser.CSS(`button[data-test-id="details-book-button"]`)
	selCloseDetailsTab = browser.CSS(`button[data-test-id="button-close-modal"]`)
)

func sportEntryLocator(sport string) browser.Locator {
	return browser.XPath(fmt.Sprintf(`//li[label[text()=%q]]`, sport))
}

func containsTextProbe(text string) browser.Locator {
	return browser.XPath(fmt.Sprintf(`.//*[contains(text(), %q)]`, text))
}

func slotMatchProbe(sport, timeStr string) browser.Locator {
	return browser.XPath(fmt.Sprintf(`*[contains(., '%s') and contains(., '%s')]`, sport, timeStr))
}

// shortWeekdays holds the Dutch abbreviations the portal renders in
// the day selector, indexed by time.Weekday (Sunday first).
var shortWeekdays = [7]string{"Zo", "Ma", "Di", "Wo", "Do", "Vr", "Za"}

// dayLabel builds the day selector text for a date, e.g. "Ma 2-9".
// Day and month carry no leading zeros.
func dayLabel(t time.Time) string {
	return fmt.Sprintf("%s %d-%d", shortWeekdays[t.Weekday()], t.Day(), int(t.Month()))
}
