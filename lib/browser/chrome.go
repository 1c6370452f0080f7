package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

const (
	DefaultFindTimeout    = 5 * time.Second
	DefaultFindAllTimeout = 10 * time.Second
	DefaultPollInterval   = 200 * time.Millisecond
	DefaultSettleDelay    = 200 * time.Millisecond
	DefaultDumpPath       = "error_output_page.html"
)

type Options struct {
	// RemoteURL points at an already running browser's debugging
	// endpoint. When empty a headless Chrome is spawned locally.
	RemoteURL string
	Headless  bool

	FindTimeout    time.Duration
	FindAllTimeout time.Duration
	PollInterval   time.Duration
	SettleDelay    time.Duration
	// DumpPath is where the page markup goes when a lookup times
	// out. Overwritten on every dump.
	DumpPath string
}

func (o *Options) fillDefaults() {
	if o.FindTimeout == 0 {
		o.FindTimeout = DefaultFindTimeout
	}
	if o.FindAllTimeout == 0 {
		o.FindAllTimeout = DefaultFindAllTimeout
	}
	if o.PollInterval == 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.SettleDelay == 0 {
		o.SettleDelay = DefaultSettleDelay
	}
	if o.DumpPath == "" {
		o.DumpPath = DefaultDumpPath
	}
}

// Chrome drives one Chrome instance over the devtools protocol. It is
// not safe for concurrent use; one Chrome belongs to one scraper
// session.
type Chrome struct {
	opts        Options
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
}

var _ Driver = (*Chrome)(nil)

func NewChrome(ctx context.Context, opts Options) (*Chrome, error) {
	opts.fillDefaults()

	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if opts.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, opts.RemoteURL)
	} else {
		execOpts := append(
			chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", opts.Headless),
			chromedp.DisableGPU,
			chromedp.NoSandbox,
			chromedp.WindowSize(1920, 1080),
		)
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, execOpts...)
	}

	browserCtx, cancel := chromedp.NewContext(allocCtx)

	// connect eagerly so a broken chrome install fails construction
	// instead of the first lookup
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	return &Chrome{
		opts:        opts,
		ctx:         browserCtx,
		cancel:      cancel,
		allocCancel: allocCancel,
	}, nil
}

func (c *Chrome) Close(ctx context.Context) error {
	err := chromedp.Cancel(c.ctx)
	c.cancel()
	c.allocCancel()
	return err
}

func (c *Chrome) Navigate(ctx context.Context, url string) error {
	return chromedp.Run(c.ctx, chromedp.Navigate(url))
}

func (c *Chrome) SetTimezone(ctx context.Context, tz string) error {
	return chromedp.Run(c.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return emulation.SetTimezoneOverride(tz).Do(ctx)
	}))
}

func (c *Chrome) Settle(ctx context.Context) {
	select {
	case <-time.After(c.opts.SettleDelay):
	case <-ctx.Done():
	}
}

type chromeElement struct {
	node *cdp.Node
	desc string
}

func (e *chromeElement) Describe() string { return e.desc }

func asChromeElement(el Element) (*chromeElement, error) {
	ce, ok := el.(*chromeElement)
	if !ok {
		return nil, fmt.Errorf("element %q does not belong to this driver", el.Describe())
	}
	return ce, nil
}

func queryOption(l Locator) chromedp.QueryOption {
	if l.Kind == ByXPath {
		return chromedp.BySearch
	}
	return chromedp.ByQueryAll
}

// lookup runs one non-waiting node query against the current page.
func (c *Chrome) lookup(loc Locator) ([]Element, error) {
	var nodes []*cdp.Node
	err := chromedp.Run(c.ctx,
		chromedp.Nodes(loc.Query, &nodes, queryOption(loc), chromedp.AtLeast(0)),
	)
	if err != nil {
		return nil, err
	}
	els := make([]Element, len(nodes))
	for i, n := range nodes {
		els[i] = &chromeElement{
			node: n,
			desc: fmt.Sprintf("%s[%d]", loc, i),
		}
	}
	return els, nil
}

// poll re-runs lookup until at least one element is present or the
// timeout elapses. On timeout the current page markup is dumped for
// post-mortem inspection before ErrTimeout is returned.
func (c *Chrome) poll(ctx context.Context, loc Locator, timeout time.Duration) ([]Element, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		els, err := c.lookup(loc)
		if err != nil {
			return nil, fmt.Errorf("lookup %s: %w", loc, err)
		}
		if len(els) > 0 {
			return els, nil
		}

		select {
		case <-ticker.C:
		case <-deadline.C:
			c.dumpPage(ctx, loc)
			return nil, fmt.Errorf("%w: %s", ErrTimeout, loc)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *Chrome) Find(ctx context.Context, loc Locator) (Element, error) {
	els, err := c.poll(ctx, loc, c.opts.FindTimeout)
	if err != nil {
		return nil, err
	}
	return els[0], nil
}

func (c *Chrome) FindAll(ctx context.Context, loc Locator) ([]Element, error) {
	return c.poll(ctx, loc, c.opts.FindAllTimeout)
}

const xpathFirstJS = `function(expr) {
	return document.evaluate(
		expr, this, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null,
	).singleNodeValue;
}`

func (c *Chrome) FindUnder(ctx context.Context, el Element, loc Locator) (Element, error) {
	ce, err := asChromeElement(el)
	if err != nil {
		return nil, err
	}

	var found Element
	err = chromedp.Run(c.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		switch loc.Kind {
		case ByCSS:
			id, err := dom.QuerySelector(ce.node.NodeID, loc.Query).Do(ctx)
			if err != nil {
				// chrome reports a stale or detached parent the
				// same way as no match
				return fmt.Errorf("%w: %s under %s", ErrNotFound, loc, ce.desc)
			}
			if id == 0 {
				return fmt.Errorf("%w: %s under %s", ErrNotFound, loc, ce.desc)
			}
			found = &chromeElement{
				node: &cdp.Node{NodeID: id},
				desc: fmt.Sprintf("%s > %s", ce.desc, loc),
			}
			return nil

		case ByXPath:
			obj, err := c.callOnNode(ctx, ce, xpathFirstJS, false, loc.Query)
			if err != nil {
				return err
			}
			if obj == nil || obj.ObjectID == "" {
				return fmt.Errorf("%w: %s under %s", ErrNotFound, loc, ce.desc)
			}
			id, err := dom.RequestNode(obj.ObjectID).Do(ctx)
			if err != nil || id == 0 {
				return fmt.Errorf("%w: %s under %s", ErrNotFound, loc, ce.desc)
			}
			found = &chromeElement{
				node: &cdp.Node{NodeID: id},
				desc: fmt.Sprintf("%s > %s", ce.desc, loc),
			}
			return nil
		}
		return fmt.Errorf("unknown locator kind %d", loc.Kind)
	}))
	if err != nil {
		return nil, err
	}
	return found, nil
}

const xpathPresentJS = `function(expr) {
	return document.evaluate(
		expr, this, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null,
	).snapshotLength > 0;
}`

func (c *Chrome) FilterPresent(ctx context.Context, els []Element, probe Locator) ([]Element, error) {
	var kept []Element
	for _, el := range els {
		ce, err := asChromeElement(el)
		if err != nil {
			return nil, err
		}

		present := false
		err = chromedp.Run(c.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
			switch probe.Kind {
			case ByCSS:
				id, err := dom.QuerySelector(ce.node.NodeID, probe.Query).Do(ctx)
				present = err == nil && id != 0
			case ByXPath:
				obj, err := c.callOnNode(ctx, ce, xpathPresentJS, true, probe.Query)
				if err != nil {
					// absence of the probe under this candidate
					// is the expected negative outcome
					return nil
				}
				present = obj != nil && string(obj.Value) == "true"
			}
			return nil
		}))
		if err != nil {
			return nil, err
		}
		if present {
			kept = append(kept, el)
		}
	}
	return kept, nil
}

func (c *Chrome) Click(ctx context.Context, el Element) error {
	ce, err := asChromeElement(el)
	if err != nil {
		return err
	}
	return chromedp.Run(c.ctx, chromedp.MouseClickNode(ce.node))
}

const clickJS = `function() { this.click(); }`

func (c *Chrome) ScriptClick(ctx context.Context, el Element) error {
	ce, err := asChromeElement(el)
	if err != nil {
		return err
	}
	return chromedp.Run(c.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := c.callOnNode(ctx, ce, clickJS, false)
		return err
	}))
}

const textJS = `function() { return this.textContent; }`

func (c *Chrome) Text(ctx context.Context, el Element) (string, error) {
	ce, err := asChromeElement(el)
	if err != nil {
		return "", err
	}
	var text string
	err = chromedp.Run(c.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := c.callOnNode(ctx, ce, textJS, true)
		if err != nil {
			return err
		}
		if obj == nil || obj.Value == nil {
			return nil
		}
		return json.Unmarshal(obj.Value, &text)
	}))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

const setValueJS = `function(v) {
	this.value = v;
	this.dispatchEvent(new Event('input', { bubbles: true }));
	this.dispatchEvent(new Event('change', { bubbles: true }));
}`

func (c *Chrome) SendKeys(ctx context.Context, el Element, text string) error {
	ce, err := asChromeElement(el)
	if err != nil {
		return err
	}
	return chromedp.Run(c.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := dom.Focus().WithNodeID(ce.node.NodeID).Do(ctx); err != nil {
			return fmt.Errorf("focus %s: %w", ce.desc, err)
		}
		_, err := c.callOnNode(ctx, ce, setValueJS, false, text)
		return err
	}))
}

// callOnNode resolves the element to a remote object and invokes fn
// with the element bound to `this`. The ctx must be a cdp executor
// context (inside chromedp.Run).
func (c *Chrome) callOnNode(ctx context.Context, ce *chromeElement, fn string, byValue bool, args ...any) (*runtime.RemoteObject, error) {
	obj, err := dom.ResolveNode().WithNodeID(ce.node.NodeID).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", ce.desc, err)
	}

	callArgs := make([]*runtime.CallArgument, len(args))
	for i, a := range args {
		raw, err := json.Marshal(a)
		if err != nil {
			return nil, err
		}
		callArgs[i] = &runtime.CallArgument{Value: raw}
	}

	call := runtime.CallFunctionOn(fn).
		WithObjectID(obj.ObjectID).
		WithReturnByValue(byValue)
	if len(callArgs) > 0 {
		call = call.WithArguments(callArgs)
	}

	res, exc, err := call.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("call on %s: %w", ce.desc, err)
	}
	if exc != nil {
		return nil, fmt.Errorf("call on %s: %s", ce.desc, exc.Text)
	}
	if res != nil && res.Subtype == runtime.SubtypeNull {
		return nil, nil
	}
	return res, nil
}

func (c *Chrome) dumpPage(ctx context.Context, loc Locator) {
	if err := WritePageDump(c.ctx, c.opts.DumpPath); err != nil {
		slog.ErrorContext(ctx, "failed to write page dump",
			"path", c.opts.DumpPath,
			"locator", loc.String(),
			"err", err,
		)
		return
	}
	slog.WarnContext(ctx, "locator timed out, page dumped",
		"path", c.opts.DumpPath,
		"locator", loc.String(),
	)
}
