package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"ecotrade_flows/config"
	"ecotrade_flows/logging"
	"ecotrade_flows/models"
)

// OutcomeWriter appends rows to the outcome log.
type OutcomeWriter interface {
	SaveOutcome(ctx context.Context, o *models.Outcome) error
}

// ArtifactMirror copies an archived artifact to remote storage and returns
// where it went.
type ArtifactMirror interface {
	Mirror(ctx context.Context, acc *models.Account, path string) (string, error)
}

type WorkflowOptions struct {
	Pacing          Pacing
	DownloadTimeout time.Duration
	ResultsWait     time.Duration // bound on the round 2 listing showing an xml row
	Tag             string        // wholesaler tag in archived file names
	Mirror          ArtifactMirror
	Metrics         *Metrics
	LogOutput       io.Writer // process log, also receives run log lines
	Now             func() time.Time
}

// Workflow drives one account through login, the pending-flows round, the
// deliverable round and archiving.
type Workflow struct {
	browser  Browser
	portal   *config.PortalProfile
	outcomes OutcomeWriter
	opts     WorkflowOptions
}

func NewWorkflow(browser Browser, portal *config.PortalProfile, outcomes OutcomeWriter, opts WorkflowOptions) *Workflow {
	if opts.DownloadTimeout <= 0 {
		opts.DownloadTimeout = 300 * time.Second
	}
	if opts.ResultsWait <= 0 {
		opts.ResultsWait = 15 * time.Second
	}
	if opts.Tag == "" {
		opts.Tag = "ECOTRADE"
	}
	if opts.LogOutput == nil {
		opts.LogOutput = logrus.StandardLogger().Out
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Workflow{browser: browser, portal: portal, outcomes: outcomes, opts: opts}
}

// Run performs one attempt for acc. The result is never nil; a non-nil error
// is a hard failure the caller may retry. Empty-handed runs return a failed
// result without an error.
func (w *Workflow) Run(ctx context.Context, acc *models.Account, window models.Window) (*models.RunResult, error) {
	result := &models.RunResult{Username: acc.Username, Measure: acc.Measure}

	runLog, err := logging.OpenRunLog(acc.Root, acc.Measure.String(), w.opts.Now(), w.opts.LogOutput, logrus.Fields{
		"account": acc.Label(),
		"user":    acc.Username,
	})
	if err != nil {
		return result, err
	}
	defer runLog.Close()
	result.LogPath = runLog.Path

	r := &run{w: w, acc: acc, window: window, log: runLog.Logger}
	r.log.Infof("Starting retrieval for window %s", window)

	fetch, err := r.retrieve(ctx)
	if err != nil {
		r.enter(StateError)
		r.log.WithError(err).Error("Retrieval failed")
		var fault *HostFaultError
		if errors.As(err, &fault) {
			r.log.Errorf("Portal page snapshot:\n%s", fault.Snapshot)
		}
	} else {
		result.DownloadPath = fetch.Path
		result.Success = fetch.Completed && fetch.Path != ""
		if result.Success {
			result.DownloadPath = r.archive(ctx, fetch.Path)
		} else {
			r.log.Warn("No deliverable was downloaded")
		}
		r.enter(StateDone)
	}

	w.finalize(ctx, r, runLog, result)
	return result, err
}

// finalize records the outcome of a successful run with the full run log.
func (w *Workflow) finalize(ctx context.Context, r *run, runLog *logging.RunLog, result *models.RunResult) {
	if !result.Success {
		return
	}
	r.log.Info("Recording outcome")

	text, err := runLog.Contents()
	if err != nil {
		r.log.WithError(err).Warn("Could not read run log, recording empty log text")
		text = ""
	}

	outcome := &models.Outcome{
		ResellerID:   r.acc.ResellerID,
		WholesalerID: r.acc.WholesalerID,
		Measure:      r.acc.Measure,
		OperatedAt:   w.opts.Now(),
		ReferenceDay: r.window.End,
		WindowStart:  r.window.Start,
		WindowEnd:    r.window.End,
		LogText:      text,
		Success:      true,
	}
	if err := w.outcomes.SaveOutcome(ctx, outcome); err != nil {
		r.log.WithError(err).Error("Could not record outcome")
	}
}

// run is the state of one Workflow.Run.
type run struct {
	w      *Workflow
	acc    *models.Account
	window models.Window
	layout *config.MeasureProfile
	page   Page
	coord  *Coordinator
	log    *logrus.Entry
	state  State
	prefix string
}

func (r *run) enter(s State) {
	r.log.Debugf("state %s -> %s", r.state, s)
	r.state = s
}

func (r *run) pace() Pacing {
	return r.w.opts.Pacing
}

// retrieve runs every portal step inside one browser session. The session
// is closed before returning on every path.
func (r *run) retrieve(ctx context.Context) (fetch Fetch, err error) {
	layout, err := r.w.portal.Measure(r.acc.Measure.String())
	if err != nil {
		return Fetch{}, &StepError{State: r.state, Err: fmt.Errorf("%w: %v", ErrUnknownMeasure, err)}
	}
	r.layout = layout

	r.log.Info("Starting browser")
	page, err := r.w.browser.NewSession(ctx, r.acc)
	if err != nil {
		return Fetch{}, &StepError{State: r.state, Err: fmt.Errorf("open browser: %w", err)}
	}
	defer func() {
		if err == nil {
			r.pace().BeforeClose(ctx)
		}
		r.log.Info("Closing browser")
		if cerr := page.Close(); cerr != nil {
			r.log.WithError(cerr).Warn("Browser did not close cleanly")
		}
	}()
	r.page = page
	r.coord = NewCoordinator(page, r.acc.Root, r.w.opts.DownloadTimeout, r.w.portal, r.pace(), r.log)

	steps := []func(context.Context) error{
		r.login,
		r.openFlows,
		r.selectMeasure,
		r.clearPending,
		r.reopenFlows,
		r.search,
		r.selectDeliverables,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return Fetch{}, &StepError{State: r.state, Err: err}
		}
		if err := r.pace().Pause(ctx); err != nil {
			return Fetch{}, &StepError{State: r.state, Err: err}
		}
	}

	fetch, err = r.coord.TriggerAndAwait(ctx, r.script(r.layout.DownloadedTrigger))
	if err != nil {
		return Fetch{}, &StepError{State: r.state, Err: err}
	}
	r.w.opts.Metrics.ObserveDownload("deliverable", fetch)
	r.enter(StateRound2Downloaded)
	return fetch, nil
}

func (r *run) login(ctx context.Context) error {
	p := r.w.portal
	r.log.Info("Opening login page")
	if err := r.page.Goto(ctx, r.acc.PortalURL); err != nil {
		return fmt.Errorf("open login page: %w", err)
	}
	if err := r.checkFault(ctx); err != nil {
		return err
	}
	if err := r.typeSlowly(ctx, p.UsernameField, r.acc.Username); err != nil {
		return fmt.Errorf("type username: %w", err)
	}
	if err := r.typeSlowly(ctx, p.PasswordField, r.acc.Password); err != nil {
		return fmt.Errorf("type password: %w", err)
	}
	if err := r.pace().Pause(ctx); err != nil {
		return err
	}
	if err := r.page.Click(ctx, p.LoginButton); err != nil {
		return fmt.Errorf("submit login: %w", err)
	}
	if err := r.page.WaitForURL(ctx, p.HomeURL); err != nil {
		return fmt.Errorf("login did not reach home page: %w", err)
	}
	if err := r.checkFault(ctx); err != nil {
		return err
	}
	r.log.Info("Logged in")
	r.enter(StateLoggedIn)
	return nil
}

func (r *run) openFlows(ctx context.Context) error {
	p := r.w.portal
	if err := r.page.Click(ctx, p.FlowsLink); err != nil {
		return fmt.Errorf("open flows section: %w", err)
	}
	if err := r.page.WaitForURL(ctx, p.FlowsURL); err != nil {
		return fmt.Errorf("flows page did not load: %w", err)
	}
	if err := r.checkFault(ctx); err != nil {
		return err
	}
	r.log.Info("Flows page loaded")
	r.enter(StateNavigated)
	return nil
}

func (r *run) selectMeasure(ctx context.Context) error {
	if err := r.pace().Pause(ctx); err != nil {
		return err
	}
	if err := r.page.Click(ctx, r.layout.Tab); err != nil {
		return fmt.Errorf("select %s tab: %w", r.acc.Measure, err)
	}
	if err := r.pace().Settle(ctx, r.pace().TabSettle); err != nil {
		return err
	}
	if err := r.checkFault(ctx); err != nil {
		return err
	}
	r.prefix = r.layout.FieldPrefix
	r.log.Infof("Selected measure %s (field prefix %s)", r.acc.Measure, r.prefix)
	r.enter(StateMeasureSelected)
	return nil
}

// clearPending ticks and downloads the pending flow categories. The archive
// is not the deliverable and is deleted. Finding nothing is not an error.
func (r *run) clearPending(ctx context.Context) error {
	codes, err := PendingFlowCodes(r.acc.Measure)
	if err != nil {
		return err
	}

	list, err := r.readListing(ctx, r.layout.AvailableTable, r.w.portal.FallbackTable)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.log.WithError(err).Warn("Could not read the available flows table")
	}
	if !list.found {
		r.log.Warn("Available flows table not found")
	}

	selected := SelectRows(list.rows, codes, nil)
	ticked := r.tick(ctx, list, selected)
	r.w.opts.Metrics.AddSelected(r.acc.Measure.String(), "pending", ticked)
	r.log.Infof("Pending flows: %d rows, %d selected", len(list.rows), ticked)
	r.enter(StateRound1Selected)

	if ticked == 0 {
		r.log.Info("No pending flows to clear, moving on")
		return nil
	}

	fetch, err := r.coord.TriggerAndAwait(ctx, r.script(r.layout.AvailableTrigger))
	if err != nil {
		return err
	}
	r.w.opts.Metrics.ObserveDownload("pending", fetch)
	if fetch.Completed && fetch.Path != "" {
		if err := os.Remove(fetch.Path); err != nil {
			r.log.WithError(err).Warn("Could not delete pending-flows archive")
		} else {
			r.log.Infof("Deleted pending-flows archive %s", fetch.Path)
		}
	}
	r.enter(StateRound1Downloaded)
	return nil
}

// reopenFlows returns to the home page and reselects the measure; the
// search panel only renders on a fresh flows page.
func (r *run) reopenFlows(ctx context.Context) error {
	if err := r.page.Goto(ctx, r.w.portal.HomeURL); err != nil {
		return fmt.Errorf("return to home page: %w", err)
	}
	if err := r.checkFault(ctx); err != nil {
		return err
	}
	if err := r.pace().Pause(ctx); err != nil {
		return err
	}
	if err := r.openFlows(ctx); err != nil {
		return err
	}
	if err := r.pace().Pause(ctx); err != nil {
		return err
	}
	return r.selectMeasure(ctx)
}

func (r *run) search(ctx context.Context) error {
	from := r.window.Start.Format(models.DateLayout)
	to := r.window.End.Format(models.DateLayout)

	if err := r.pace().Pause(ctx); err != nil {
		return err
	}
	if err := r.typeSlowly(ctx, r.layout.SearchField, r.w.portal.SearchQuery); err != nil {
		return fmt.Errorf("type search query: %w", err)
	}
	if err := r.pace().Pause(ctx); err != nil {
		return err
	}
	if err := r.page.Fill(ctx, r.layout.DateFromField, from); err != nil {
		return fmt.Errorf("fill start date: %w", err)
	}
	if err := r.page.Fill(ctx, r.layout.DateToField, to); err != nil {
		return fmt.Errorf("fill end date: %w", err)
	}
	if err := r.pace().Pause(ctx); err != nil {
		return err
	}
	if err := r.page.Click(ctx, r.layout.SearchButton); err != nil {
		return fmt.Errorf("submit search: %w", err)
	}
	if err := r.pace().Settle(ctx, r.pace().SearchSettle); err != nil {
		return err
	}
	if err := r.checkFault(ctx); err != nil {
		return err
	}
	r.log.Infof("Searched %q between %s and %s", r.w.portal.SearchQuery, from, to)
	r.enter(StateRound2Searched)
	return nil
}

// selectDeliverables ticks the downloaded files matching the measure codes
// and the window. Nothing to tick aborts the run.
func (r *run) selectDeliverables(ctx context.Context) error {
	codes, err := DeliverableCodes(r.acc.Measure)
	if err != nil {
		return err
	}

	ready := fmt.Sprintf(`() => [...document.querySelectorAll(%s)].some(tr => tr.innerText.includes(".xml"))`,
		strconv.Quote(r.layout.DownloadedTable+" tbody tr"))
	if err := r.page.WaitFor(ctx, ready, r.w.opts.ResultsWait); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.log.WithError(err).Warn("Search results show no xml row yet")
	}

	list, err := r.readListing(ctx, r.layout.DownloadedTable, "")
	if err != nil {
		return fmt.Errorf("read downloaded files: %w", err)
	}
	if !list.found {
		return ErrListingMissing
	}

	selected := SelectRows(list.rows, codes, &r.window)
	if len(selected) == 0 {
		return ErrNoDeliverable
	}
	ticked := r.tick(ctx, list, selected)
	r.w.opts.Metrics.AddSelected(r.acc.Measure.String(), "deliverable", ticked)
	if ticked == 0 {
		return fmt.Errorf("%w: none of %d matching rows could be ticked", ErrNoDeliverable, len(selected))
	}
	r.log.Infof("Downloaded files: %d rows, %d selected", len(list.rows), ticked)
	r.enter(StateRound2Selected)
	return nil
}

type listing struct {
	selector string
	nth      int
	found    bool
	rows     []models.ListingRow
}

// readListing extracts the first table matching primary, or the last table
// matching fallback when primary is absent.
func (r *run) readListing(ctx context.Context, primary, fallback string) (listing, error) {
	tables, err := r.page.OuterHTML(ctx, primary)
	if err != nil {
		return listing{}, err
	}
	list := listing{selector: primary}

	if len(tables) == 0 && fallback != "" {
		r.log.Info("Primary table not found, trying fallback")
		tables, err = r.page.OuterHTML(ctx, fallback)
		if err != nil {
			return listing{}, err
		}
		list.selector = fallback
		list.nth = len(tables) - 1
	}
	if len(tables) == 0 {
		return listing{}, nil
	}

	list.found = true
	list.rows, err = ParseListing(tables[list.nth])
	return list, err
}

func (r *run) tick(ctx context.Context, list listing, rows []models.ListingRow) int {
	ticked := 0
	for _, row := range rows {
		if err := r.page.CheckRow(ctx, list.selector, list.nth, row.Index); err != nil {
			r.log.WithError(err).Warnf("Could not tick row %d (%s)", row.Index, row.Name)
			continue
		}
		r.log.Infof("Selected: %s %s", row.Name, row.DateText)
		ticked++
	}
	return ticked
}

func (r *run) script(js string) func(context.Context) error {
	return func(ctx context.Context) error {
		r.log.Info("Starting download")
		return r.page.Evaluate(ctx, js)
	}
}

func (r *run) typeSlowly(ctx context.Context, selector, text string) error {
	for _, ch := range text {
		if err := r.page.TypeKey(ctx, selector, string(ch)); err != nil {
			return err
		}
		if err := r.pace().Keystroke(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) checkFault(ctx context.Context) error {
	content, err := r.page.Content(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.log.WithError(err).Debug("Could not read page for fault check")
		return nil
	}
	for _, marker := range r.w.portal.FaultMarkers {
		if marker != "" && strings.Contains(content, marker) {
			return newHostFault(r.page.URL(), marker, content)
		}
	}
	return nil
}

// archive moves the deliverable into the dated tree and mirrors it. On
// failure the original path is kept.
func (r *run) archive(ctx context.Context, path string) string {
	dest, err := Organize(path, r.acc.Root, r.w.opts.Tag, r.w.opts.Now())
	if err != nil {
		r.log.WithError(err).Error("Could not archive the download, keeping original path")
		return path
	}
	r.log.Infof("Archived as %s", dest)
	r.enter(StateOrganized)

	if r.w.opts.Mirror != nil {
		key, err := r.w.opts.Mirror.Mirror(ctx, r.acc, dest)
		if err != nil {
			r.log.WithError(err).Warn("Could not mirror the archive")
		} else {
			r.log.Infof("Mirrored to %s", key)
		}
	}
	return dest
}
