package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/sirupsen/logrus"

	"ecotrade_flows/config"
	"ecotrade_flows/models"
)

const (
	navigationTimeout = 60 * time.Second
	actionTimeout     = 30 * time.Second
)

// PlaywrightBrowser launches a fresh Chromium per account so downloads and
// cookies never leak between logins.
type PlaywrightBrowser struct {
	cfg config.BrowserConfig
}

func NewPlaywrightBrowser(cfg config.BrowserConfig) *PlaywrightBrowser {
	return &PlaywrightBrowser{cfg: cfg}
}

func (b *PlaywrightBrowser) NewSession(ctx context.Context, acc *models.Account) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(b.cfg.Headless),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		AcceptDownloads: playwright.Bool(true),
	})
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(float64(actionTimeout.Milliseconds()))

	logrus.WithField("account", acc.Label()).Debug("browser session opened")
	return &playwrightPage{pw: pw, browser: browser, bctx: bctx, page: page}, nil
}

type playwrightPage struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	bctx    playwright.BrowserContext
	page    playwright.Page
}

func (p *playwrightPage) Goto(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   playwright.Float(float64(navigationTimeout.Milliseconds())),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	return err
}

func (p *playwrightPage) WaitForURL(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.page.WaitForURL(url, playwright.PageWaitForURLOptions{
		Timeout: playwright.Float(float64(navigationTimeout.Milliseconds())),
	})
}

func (p *playwrightPage) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.page.Locator(selector).First().Click()
}

func (p *playwrightPage) TypeKey(ctx context.Context, selector, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.page.Locator(selector).First().PressSequentially(key)
}

func (p *playwrightPage) Fill(ctx context.Context, selector, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.page.Locator(selector).First().Fill(value)
}

func (p *playwrightPage) Count(ctx context.Context, selector string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return p.page.Locator(selector).Count()
}

func (p *playwrightPage) OuterHTML(ctx context.Context, selector string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result, err := p.page.Locator(selector).EvaluateAll(`els => els.map(el => el.outerHTML)`)
	if err != nil {
		return nil, err
	}
	items, ok := result.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected outerHTML result %T", result)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (p *playwrightPage) CheckRow(ctx context.Context, tableSelector string, nth, row int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	box := p.page.Locator(tableSelector).Nth(nth).Locator(rowCheckboxSelector(row)).First()
	return box.Check()
}

func (p *playwrightPage) WaitFor(ctx context.Context, expression string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.WaitForFunction(expression, nil, playwright.PageWaitForFunctionOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w: %v", ErrWaitTimeout, err)
	}
	return err
}

func (p *playwrightPage) Evaluate(ctx context.Context, script string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Evaluate(script)
	return err
}

func (p *playwrightPage) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.page.Content()
}

func (p *playwrightPage) URL() string {
	return p.page.URL()
}

func (p *playwrightPage) OnDownload(fn func(Download)) {
	handle := detached(fn)
	p.page.OnDownload(func(d playwright.Download) {
		handle(d)
	})
}

// detached runs each download handler on a goroutine of its own. Playwright
// emits events on its connection goroutine, which must stay free to answer
// SaveAs.
func detached(fn func(Download)) func(Download) {
	return func(d Download) {
		go fn(d)
	}
}

func (p *playwrightPage) Close() error {
	var errs []error
	if p.page != nil {
		errs = append(errs, p.page.Close())
	}
	if p.bctx != nil {
		errs = append(errs, p.bctx.Close())
	}
	if p.browser != nil {
		errs = append(errs, p.browser.Close())
	}
	if p.pw != nil {
		errs = append(errs, p.pw.Stop())
	}
	return errors.Join(errs...)
}

func rowCheckboxSelector(row int) string {
	return fmt.Sprintf("tbody > tr:nth-child(%d) input[type='checkbox']", row)
}
