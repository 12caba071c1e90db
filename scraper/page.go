package scraper

import (
	"context"
	"time"

	"ecotrade_flows/models"
)

// Page is the slice of browser automation the retrieval workflow drives.
// Selectors use the browser engine syntax (CSS, XPath, :has-text).
type Page interface {
	Goto(ctx context.Context, url string) error
	WaitForURL(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	// TypeKey sends a single keystroke sequence into the element.
	TypeKey(ctx context.Context, selector, key string) error
	Fill(ctx context.Context, selector, value string) error
	Count(ctx context.Context, selector string) (int, error)
	// OuterHTML returns the markup of every element matching selector.
	OuterHTML(ctx context.Context, selector string) ([]string, error)
	// CheckRow ticks the checkbox of the 1-based body row inside the nth
	// (0-based) match of tableSelector.
	CheckRow(ctx context.Context, tableSelector string, nth, row int) error
	// WaitFor polls a script expression until it is truthy or timeout passes.
	WaitFor(ctx context.Context, expression string, timeout time.Duration) error
	Evaluate(ctx context.Context, script string) error
	Content(ctx context.Context) (string, error)
	URL() string
	OnDownload(func(Download))
	Close() error
}

// Download is a file the portal pushed to the session.
type Download interface {
	SuggestedFilename() string
	SaveAs(path string) error
}

// Browser opens one isolated page session per account run.
type Browser interface {
	NewSession(ctx context.Context, acc *models.Account) (Page, error)
}
