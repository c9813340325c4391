// Package detect decides whether a page snapshot means "tickets can be
// bought right now". The keyword detector is the default; the OpenAI one is
// for sites where fixed markers are too brittle.
package detect

import (
	"context"
	"strings"

	"github.com/nbenliogludev/go-ticket-sniper/internal/browser"
)

type Detector interface {
	// Detect returns true when the page offers tickets for sale.
	// An error means the detector could not tell; the caller treats it as a
	// transient poll failure, not as unavailability.
	Detect(ctx context.Context, page *browser.PageState) (bool, error)
}

// Keywords matches positive markers gated by negative ones: a page is
// available when some positive marker is present and no negative marker is.
type Keywords struct {
	Positive []string
	Negative []string
}

// DefaultKeywords covers the usual on-sale wording of ticket shops.
func DefaultKeywords() *Keywords {
	return &Keywords{
		Positive: []string{"book now", "buy tickets", "add to basket", "tickets available"},
		Negative: []string{"sold out", "not on sale", "sale has ended", "no tickets available"},
	}
}

func (k *Keywords) Detect(_ context.Context, page *browser.PageState) (bool, error) {
	haystack := strings.ToLower(page.Title + "\n" + page.Text)

	for _, neg := range k.Negative {
		if neg != "" && strings.Contains(haystack, strings.ToLower(neg)) {
			return false, nil
		}
	}
	for _, pos := range k.Positive {
		if pos != "" && strings.Contains(haystack, strings.ToLower(pos)) {
			return true, nil
		}
	}
	return false, nil
}
