package browser

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"

	"uscbot-backend/lib/htmlutil"
)

// WritePageDump saves the current page markup to path and a short
// plain-text digest next to it (same name, .txt extension). The digest
// lists the title and every element carrying a data-test-id so a
// failed lookup can usually be diagnosed without opening the full
// markup. ctx must be a chromedp browser context.
func WritePageDump(ctx context.Context, path string) error {
	var markup string
	err := chromedp.Run(ctx, chromedp.OuterHTML("html", &markup, chromedp.ByQuery))
	if err != nil {
		return fmt.Errorf("read page markup: %w", err)
	}

	if err := os.WriteFile(path, []byte(markup), 0o644); err != nil {
		return fmt.Errorf("write page dump: %w", err)
	}

	digest, err := summarizePage(markup)
	if err != nil {
		// the markup itself is saved, the digest is best effort
		return nil
	}
	txtPath := strings.TrimSuffix(path, ".html") + ".txt"
	_ = os.WriteFile(txtPath, []byte(digest), 0o644)
	return nil
}

func summarizePage(markup string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "title: %s\n", htmlutil.CollapseWhitespace(doc.Find("title").Text()))
	fmt.Fprintf(&b, "url candidates:\n")
	doc.Find("base, link[rel=canonical]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			fmt.Fprintf(&b, "  %s\n", href)
		}
	})

	fmt.Fprintf(&b, "elements with data-test-id:\n")
	doc.Find("[data-test-id]").Each(func(_ int, s *goquery.Selection) {
		id, _ := s.Attr("data-test-id")
		text := htmlutil.CollapseWhitespace(s.Text())
		if len(text) > 80 {
			text = text[:80] + "..."
		}
		fmt.Fprintf(&b, "  %s: %q\n", id, text)
	})
	return b.String(), nil
}
