package scraper

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"ecotrade_flows/config"
)

const reportExt = ".txt"

// Fetch is the outcome of one download cycle.
type Fetch struct {
	Completed bool
	Path      string
}

// Coordinator runs one trigger-and-wait download cycle at a time for a page
// session. Downloads land in dir.
type Coordinator struct {
	page    Page
	dir     string
	timeout time.Duration
	pace    Pacing
	portal  *config.PortalProfile
	log     *logrus.Entry

	ready chan struct{}

	mu    sync.Mutex
	saved string
}

func NewCoordinator(page Page, dir string, timeout time.Duration, portal *config.PortalProfile, pace Pacing, log *logrus.Entry) *Coordinator {
	c := &Coordinator{
		page:    page,
		dir:     dir,
		timeout: timeout,
		pace:    pace,
		portal:  portal,
		log:     log,
		ready:   make(chan struct{}, 1),
	}
	page.OnDownload(c.handleDownload)
	return c
}

// handleDownload saves the file, records it as this cycle's artifact and
// raises the ready signal. Plain-text reports are discarded on arrival.
func (c *Coordinator) handleDownload(d Download) {
	defer c.signal()

	name := filepath.Base(d.SuggestedFilename())
	path := filepath.Join(c.dir, name)
	if err := d.SaveAs(path); err != nil {
		c.log.WithError(err).Warnf("Could not save download %s", name)
		return
	}

	if strings.EqualFold(filepath.Ext(name), reportExt) {
		if err := os.Remove(path); err != nil {
			c.log.WithError(err).Warnf("Could not discard text report %s", name)
			return
		}
		c.log.Infof("Discarded text report %s", name)
		return
	}
	c.mu.Lock()
	c.saved = path
	c.mu.Unlock()
	c.log.Infof("Download saved: %s", path)
}

func (c *Coordinator) signal() {
	select {
	case c.ready <- struct{}{}:
	default:
	}
}

func (c *Coordinator) reset() {
	select {
	case <-c.ready:
	default:
	}
	c.mu.Lock()
	c.saved = ""
	c.mu.Unlock()
}

func (c *Coordinator) savedPath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saved
}

// TriggerAndAwait fires trigger and waits for a download. A failed trigger,
// the "no files" page or a timeout give an incomplete Fetch; only context
// cancellation is returned as an error. A completed Fetch carries only the
// file saved during this cycle, so a discarded report yields an empty Path.
func (c *Coordinator) TriggerAndAwait(ctx context.Context, trigger func(context.Context) error) (Fetch, error) {
	if err := c.pace.Pause(ctx); err != nil {
		return Fetch{}, err
	}

	c.reset()
	if err := trigger(ctx); err != nil {
		if ctx.Err() != nil {
			return Fetch{}, ctx.Err()
		}
		c.log.WithError(err).Warn("Download trigger failed")
		return Fetch{}, nil
	}

	if err := c.pace.Settle(ctx, c.pace.TriggerSettle); err != nil {
		return Fetch{}, err
	}

	if c.noFilesPage(ctx) {
		c.log.Warn("Selected files are not present on the server, nothing downloaded")
		return Fetch{}, nil
	}

	c.log.Infof("Waiting up to %s for the download", c.timeout)
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case <-c.ready:
	case <-timer.C:
		c.log.Warn("Download did not complete in time")
		return Fetch{}, nil
	case <-ctx.Done():
		return Fetch{}, ctx.Err()
	}

	return Fetch{Completed: true, Path: c.savedPath()}, nil
}

func (c *Coordinator) noFilesPage(ctx context.Context) bool {
	if !strings.Contains(c.page.URL(), c.portal.NoFilesURL) {
		return false
	}
	content, err := c.page.Content(ctx)
	if err != nil {
		c.log.WithError(err).Debug("Could not read page content")
		return false
	}
	return strings.Contains(content, c.portal.NoFilesText)
}
