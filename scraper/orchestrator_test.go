package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecotrade_flows/models"
)

type staticAccounts struct {
	accounts []models.Account
	err      error
	tag      string
}

func (s *staticAccounts) ActiveAccounts(_ context.Context, tag string) ([]models.Account, error) {
	s.tag = tag
	return s.accounts, s.err
}

type stubResolver struct {
	window models.Window
	err    error
	calls  int
}

func (r *stubResolver) Resolve(context.Context, int64, int64, models.MeasureType) (models.Window, error) {
	r.calls++
	return r.window, r.err
}

type runCall struct {
	username string
	window   models.Window
}

// scriptedRunner answers each Run for a username with the next scripted step.
type scriptedRunner struct {
	mu    sync.Mutex
	steps map[string][]runStep
	calls []runCall
}

type runStep struct {
	success bool
	err     error
}

func (r *scriptedRunner) Run(_ context.Context, acc *models.Account, window models.Window) (*models.RunResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, runCall{username: acc.Username, window: window})

	result := &models.RunResult{Username: acc.Username, Measure: acc.Measure, LogPath: "/tmp/run.txt"}
	steps := r.steps[acc.Username]
	if len(steps) == 0 {
		return result, errBoom
	}
	step := steps[0]
	r.steps[acc.Username] = steps[1:]
	result.Success = step.success
	if step.success {
		result.DownloadPath = "/data/archive.zip"
	}
	return result, step.err
}

type notification struct {
	username string
	success  bool
	err      error
}

type recordingNotifier struct {
	sent []notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, acc *models.Account, result *models.RunResult, runErr error) error {
	n.sent = append(n.sent, notification{username: acc.Username, success: result != nil && result.Success, err: runErr})
	return n.err
}

type recordingAttempts struct {
	attempts []*models.Attempt
}

func (r *recordingAttempts) RecordAttempt(_ context.Context, a *models.Attempt) error {
	r.attempts = append(r.attempts, a)
	return nil
}

func account(username string, measure models.MeasureType, id int64) models.Account {
	return models.Account{
		WholesalerID: id,
		ResellerID:   1,
		Reseller:     "Acme Energia",
		Username:     username,
		Measure:      measure,
		Root:         "/data/" + username,
		PortalURL:    loginURL,
	}
}

type orchestratorFixture struct {
	accounts *staticAccounts
	resolver *stubResolver
	runner   *scriptedRunner
	notifier *recordingNotifier
	attempts *recordingAttempts
	metrics  *Metrics
}

func newOrchestratorFixture(accounts ...models.Account) *orchestratorFixture {
	return &orchestratorFixture{
		accounts: &staticAccounts{accounts: accounts},
		resolver: &stubResolver{window: models.Window{Start: time.Date(2025, 5, 7, 0, 0, 0, 0, time.Local), End: time.Date(2025, 5, 14, 0, 0, 0, 0, time.Local)}},
		runner:   &scriptedRunner{steps: map[string][]runStep{}},
		notifier: &recordingNotifier{},
		attempts: &recordingAttempts{},
		metrics:  NewMetrics(),
	}
}

func (f *orchestratorFixture) build(opts OrchestratorOptions) *Orchestrator {
	if opts.PartnerTag == "" {
		opts.PartnerTag = "ecotrade"
	}
	opts.Attempts = f.attempts
	opts.Metrics = f.metrics
	return NewOrchestrator(f.accounts, f.resolver, f.runner, f.notifier, opts)
}

func TestOrchestrator_RetriesUntilExhausted(t *testing.T) {
	f := newOrchestratorFixture(account("acme01", models.MeasurePower, 10))
	f.runner.steps["acme01"] = []runStep{{err: errBoom}, {success: false}, {err: ErrNoDeliverable}}

	summary, err := f.build(OrchestratorOptions{MaxRetries: 3}).RunAll(context.Background())
	require.NoError(t, err)

	assert.Len(t, f.runner.calls, 3)
	assert.Len(t, f.notifier.sent, 3, "one notification per attempt")
	require.Len(t, f.attempts.attempts, 3)
	for i, a := range f.attempts.attempts {
		assert.Equal(t, i+1, a.Number)
		assert.False(t, a.Success)
	}
	assert.Equal(t, errBoom.Error(), f.attempts.attempts[0].Error)
	assert.Empty(t, f.attempts.attempts[1].Error)

	assert.Equal(t, 1, summary.Accounts)
	assert.Equal(t, 0, summary.Succeeded)
	assert.Equal(t, []string{"Acme Energia/Power"}, summary.Abandoned)
	assert.Equal(t, "ecotrade", f.accounts.tag)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Abandoned.WithLabelValues("Power")))
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.AttemptsTotal.WithLabelValues("Power", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ErrorsTotal.WithLabelValues("structural")))
}

func TestOrchestrator_StopsOnFirstSuccess(t *testing.T) {
	f := newOrchestratorFixture(account("acme01", models.MeasurePower, 10))
	f.runner.steps["acme01"] = []runStep{{err: errBoom}, {success: true}, {success: true}}

	summary, err := f.build(OrchestratorOptions{MaxRetries: 3}).RunAll(context.Background())
	require.NoError(t, err)

	assert.Len(t, f.runner.calls, 2)
	require.Len(t, f.notifier.sent, 2)
	assert.NotNil(t, f.notifier.sent[0].err)
	assert.True(t, f.notifier.sent[1].success)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Empty(t, summary.Abandoned)

	require.Len(t, f.attempts.attempts, 2)
	assert.True(t, f.attempts.attempts[1].Success)
	assert.Equal(t, "/data/archive.zip", f.attempts.attempts[1].DownloadPath)
	assert.NotEqual(t, f.attempts.attempts[0].ID, f.attempts.attempts[1].ID)
}

func TestOrchestrator_AccountFailureDoesNotBlockNext(t *testing.T) {
	f := newOrchestratorFixture(
		account("broken", models.MeasurePower, 10),
		account("solo", models.MeasureGas, 12),
	)
	f.runner.steps["solo"] = []runStep{{success: true}}

	summary, err := f.build(OrchestratorOptions{MaxRetries: 2}).RunAll(context.Background())
	require.NoError(t, err)

	require.Len(t, f.runner.calls, 3)
	assert.Equal(t, "broken", f.runner.calls[0].username)
	assert.Equal(t, "broken", f.runner.calls[1].username)
	assert.Equal(t, "solo", f.runner.calls[2].username)
	assert.Equal(t, 2, summary.Accounts)
	assert.Equal(t, 1, summary.Succeeded)
}

func TestOrchestrator_ResolveErrorSkipsRunAndNotification(t *testing.T) {
	f := newOrchestratorFixture(account("acme01", models.MeasurePower, 10))
	f.resolver.err = errors.New("database unreachable")

	summary, err := f.build(OrchestratorOptions{MaxRetries: 2}).RunAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, f.resolver.calls)
	assert.Empty(t, f.runner.calls)
	assert.Empty(t, f.notifier.sent)
	require.Len(t, f.attempts.attempts, 2)
	assert.Contains(t, f.attempts.attempts[0].Error, "database unreachable")
	assert.Len(t, summary.Abandoned, 1)
}

func TestOrchestrator_ForceDateOverridesWatermark(t *testing.T) {
	f := newOrchestratorFixture(account("acme01", models.MeasurePower, 10))
	f.runner.steps["acme01"] = []runStep{{success: true}}
	forced := time.Date(2025, 3, 2, 15, 4, 0, 0, time.Local)

	_, err := f.build(OrchestratorOptions{MaxRetries: 1, ForceDate: &forced}).RunAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, f.resolver.calls)
	require.Len(t, f.runner.calls, 1)
	day := time.Date(2025, 3, 2, 0, 0, 0, 0, time.Local)
	assert.Equal(t, models.Window{Start: day, End: day}, f.runner.calls[0].window)
}

func TestOrchestrator_RosterError(t *testing.T) {
	f := newOrchestratorFixture()
	f.accounts.err = errBoom

	_, err := f.build(OrchestratorOptions{MaxRetries: 1}).RunAll(context.Background())
	assert.ErrorIs(t, err, errBoom)
}

func TestOrchestrator_NotifyFailureIsNotAttemptFailure(t *testing.T) {
	f := newOrchestratorFixture(account("acme01", models.MeasurePower, 10))
	f.runner.steps["acme01"] = []runStep{{success: true}}
	f.notifier.err = errors.New("smtp down")

	summary, err := f.build(OrchestratorOptions{MaxRetries: 3}).RunAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Len(t, f.runner.calls, 1)
}

func TestOrchestrator_RunAccountFilters(t *testing.T) {
	f := newOrchestratorFixture(
		account("acme01", models.MeasurePower, 10),
		account("acme01", models.MeasureGas, 11),
		account("solo", models.MeasureGas, 12),
	)
	f.runner.steps["acme01"] = []runStep{{success: true}}

	summary, err := f.build(OrchestratorOptions{MaxRetries: 1}).RunAccount(context.Background(), "acme01", "gas")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Accounts)
	require.Len(t, f.runner.calls, 1)
	assert.Equal(t, "acme01", f.runner.calls[0].username)
}

func TestOrchestrator_Commands(t *testing.T) {
	f := newOrchestratorFixture(account("acme01", models.MeasurePower, 10))
	o := f.build(OrchestratorOptions{MaxRetries: 1})
	ctx := context.Background()

	require.NoError(t, o.HandleCommand(ctx, &models.Command{ID: 1, Command: models.CmdPause}))
	assert.True(t, o.IsPaused())

	summary, err := o.RunAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Accounts)
	assert.Empty(t, f.runner.calls)

	require.NoError(t, o.HandleCommand(ctx, &models.Command{ID: 2, Command: models.CmdResume}))
	assert.False(t, o.IsPaused())

	f.runner.steps["acme01"] = []runStep{{success: true}}
	params, _ := json.Marshal(models.CommandParams{Username: "acme01"})
	require.NoError(t, o.HandleCommand(ctx, &models.Command{ID: 3, Command: models.CmdRunAccount, Params: params}))
	assert.Len(t, f.runner.calls, 1)

	err = o.HandleCommand(ctx, &models.Command{ID: 4, Command: models.CmdRunAccount})
	assert.Error(t, err)

	err = o.HandleCommand(ctx, &models.Command{ID: 5, Command: "reboot"})
	assert.Error(t, err)

	err = o.HandleCommand(ctx, &models.Command{ID: 6, Command: models.CmdRunNow, Params: json.RawMessage(`{bad`)})
	assert.Error(t, err)
}

func TestOrchestrator_CancelledContextStops(t *testing.T) {
	f := newOrchestratorFixture(account("acme01", models.MeasurePower, 10))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.build(OrchestratorOptions{MaxRetries: 3}).RunAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.runner.calls)
}
