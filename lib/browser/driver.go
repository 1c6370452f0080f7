package browser

import (
	"context"
	"errors"
	"fmt"
)

type Kind int

const (
	ByCSS Kind = iota
	ByXPath
)

// Locator identifies zero, one or many elements on the current page.
// It is built, used and discarded, never stored.
type Locator struct {
	Query string
	Kind  Kind
}

func CSS(query string) Locator {
	return Locator{Query: query, Kind: ByCSS}
}

func XPath(query string) Locator {
	return Locator{Query: query, Kind: ByXPath}
}

func (l Locator) String() string {
	if l.Kind == ByXPath {
		return fmt.Sprintf("xpath(%s)", l.Query)
	}
	return fmt.Sprintf("css(%s)", l.Query)
}

// Element is an opaque handle to a resolved element. Handles are only
// valid while the page they were resolved on is still displayed.
type Element interface {
	// Describe returns a short human readable identity for logs.
	Describe() string
}

var (
	// ErrTimeout means an element never appeared within the bounded
	// wait. The driver writes a page dump before returning it.
	ErrTimeout = errors.New("timed out waiting for element")
	// ErrNotFound means an immediate (non-waiting) lookup found no
	// match.
	ErrNotFound = errors.New("element not found")
)

func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Driver is the surface the scraper drives the portal through. The
// production implementation is Chrome; tests substitute a scripted
// fake.
//
// Find and FindAll poll until the deadline configured on the driver,
// everything else acts on the DOM as it is right now.
type Driver interface {
	Navigate(ctx context.Context, url string) error

	// Find polls until at least one match exists and returns the
	// first, or ErrTimeout.
	Find(ctx context.Context, loc Locator) (Element, error)
	// FindAll polls until at least one match exists and returns all
	// of them, or ErrTimeout. It never returns an empty slice.
	FindAll(ctx context.Context, loc Locator) ([]Element, error)
	// FindUnder resolves a locator scoped beneath el without
	// waiting; absence is ErrNotFound.
	FindUnder(ctx context.Context, el Element, loc Locator) (Element, error)
	// FilterPresent keeps the candidates under which probe resolves,
	// preserving order. Per-candidate absence is swallowed.
	FilterPresent(ctx context.Context, els []Element, probe Locator) ([]Element, error)

	Click(ctx context.Context, el Element) error
	// ScriptClick dispatches a click from JavaScript, for elements
	// whose native click is intercepted by overlays.
	ScriptClick(ctx context.Context, el Element) error
	Text(ctx context.Context, el Element) (string, error)
	SendKeys(ctx context.Context, el Element, text string) error

	SetTimezone(ctx context.Context, tz string) error
	// Settle blocks for the post-action micro-update delay the
	// calendar framework needs before its text is stable.
	Settle(ctx context.Context)

	Close(ctx context.Context) error
}
