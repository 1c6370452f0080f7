package usc

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"uscbot-backend/lib/browser"
)

var tracer = otel.Tracer("scrapers/usc")

// Provider names an identity flow on the portal's login page.
type Provider string

const ProviderUvA Provider = "uva"

// TimeSlot is one bookable opening on a calendar day. Trainer may be
// empty, the portal leaves it blank for unsupervised slots.
type TimeSlot struct {
	Time    time.Time
	Trainer string
}

type Options struct {
	Username string
	Password string
	Provider Provider
}

// Session is an authenticated browser session against the booking
// portal. It is bound to one identity and is not safe for concurrent
// use; the calendar is positioned at today whenever no workflow call
// is in flight.
type Session struct {
	driver browser.Driver
	opts   Options
}

// New logs in and returns a session positioned on the booking
// calendar at today. The caller owns the driver's lifetime, Close
// shuts it down.
func New(ctx context.Context, driver browser.Driver, opts Options) (*Session, error) {
	ctx, span := tracer.Start(ctx, "New")
	defer span.End()

	s := &Session{driver: driver, opts: opts}

	if opts.Provider != ProviderUvA {
		span.SetStatus(codes.Error, "unsupported provider")
		return nil, ErrUnsupportedProvider
	}

	// pin the reported zone before any page script runs so every
	// timestamp the calendar renders is Amsterdam wall time
	if err := driver.SetTimezone(ctx, Timezone); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to override timezone")
		return nil, err
	}

	if err := s.loginWithUvA(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login failed")
		return nil, err
	}

	return s, nil
}

func (s *Session) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Session) loginWithUvA(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "loginWithUvA")
	defer span.End()

	if err := s.driver.Navigate(ctx, LoginURL); err != nil {
		return &AuthenticationError{Step: "navigate to login page", Err: err}
	}

	oidc, err := s.driver.Find(ctx, selOidcLoginButton)
	if err != nil {
		return &AuthenticationError{Step: "locate provider button", Err: err}
	}
	if err := s.driver.Click(ctx, oidc); err != nil {
		return &AuthenticationError{Step: "click provider button", Err: err}
	}

	if err := s.selectInstitution(ctx); err != nil {
		return err
	}

	username, err := s.driver.Find(ctx, selUsernameInput)
	if err != nil {
		return &AuthenticationError{Step: "locate username field", Err: err}
	}
	if err := s.driver.SendKeys(ctx, username, s.opts.Username); err != nil {
		return &AuthenticationError{Step: "fill username", Err: err}
	}

	password, err := s.driver.Find(ctx, selPasswordInput)
	if err != nil {
		return &AuthenticationError{Step: "locate password field", Err: err}
	}
	if err := s.driver.SendKeys(ctx, password, s.opts.Password); err != nil {
		return &AuthenticationError{Step: "fill password", Err: err}
	}

	submit, err := s.driver.Find(ctx, selLoginSubmit)
	if err != nil {
		return &AuthenticationError{Step: "locate submit button", Err: err}
	}
	if err := s.driver.Click(ctx, submit); err != nil {
		return &AuthenticationError{Step: "submit credentials", Err: err}
	}

	slog.InfoContext(ctx, "uva login successful", "username", s.opts.Username)
	return nil
}

// selectInstitution picks the UvA entry on the identity provider's
// institution page. The page is served in two shapes; the fallback
// runs only when the primary entry is genuinely absent, anything else
// (a crashed session, a protocol error) stays fatal.
func (s *Session) selectInstitution(ctx context.Context) error {
	entry, err := s.driver.Find(ctx, selInstitutionUvA)
	if err == nil {
		if err := s.driver.Click(ctx, entry); err != nil {
			return &AuthenticationError{Step: "click institution entry", Err: err}
		}
		return nil
	}
	if !browser.IsTimeout(err) && !browser.IsNotFound(err) {
		return &AuthenticationError{Step: "locate institution entry", Err: err}
	}

	slog.WarnContext(ctx, "primary institution entry absent, trying alternate shape", "err", err)

	button, err := s.driver.Find(ctx, selInstitutionUvAAlt)
	if err != nil {
		return &AuthenticationError{Step: "locate alternate institution entry", Err: err}
	}
	// the alternate shape hides the button under an overlay, a native
	// click lands on the wrong element
	if err := s.driver.ScriptClick(ctx, button); err != nil {
		return &AuthenticationError{Step: "click alternate institution entry", Err: err}
	}
	return nil
}
