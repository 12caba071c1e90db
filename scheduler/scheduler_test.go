package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecotrade_flows/config"
	"ecotrade_flows/models"
	"ecotrade_flows/scraper"
)

type fakeRunner struct {
	mu       sync.Mutex
	runs     int
	commands []models.CommandType
	err      error
}

func (r *fakeRunner) RunAll(context.Context) (*scraper.Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs++
	return &scraper.Summary{}, r.err
}

func (r *fakeRunner) HandleCommand(_ context.Context, cmd *models.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, cmd.Command)
	return r.err
}

func (r *fakeRunner) runCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}

type fakeQueue struct {
	mu        sync.Mutex
	pending   []models.Command
	processed []int64
	err       error
}

func (q *fakeQueue) GetPendingCommands(context.Context) ([]models.Command, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out, q.err
}

func (q *fakeQueue) MarkCommandProcessed(_ context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.processed = append(q.processed, id)
	return nil
}

func TestLocalLock(t *testing.T) {
	var l LocalLock
	ctx := context.Background()

	release, ok, err := l.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	release2, ok, err := l.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	release2()
}

func TestNewLocker_DefaultsToLocal(t *testing.T) {
	lock, closeFn, err := NewLocker(context.Background(), "")
	require.NoError(t, err)
	assert.IsType(t, &LocalLock{}, lock)
	assert.NoError(t, closeFn())

	_, _, err = NewLocker(context.Background(), "not a url")
	assert.Error(t, err)
}

func TestProcessCommands(t *testing.T) {
	runner := &fakeRunner{}
	queue := &fakeQueue{pending: []models.Command{
		{ID: 1, Command: models.CmdPause},
		{ID: 2, Command: models.CmdRunNow},
	}}
	s := New(config.SchedulerConfig{}, runner, queue, nil)

	s.processCommands(context.Background())

	assert.Equal(t, []models.CommandType{models.CmdPause, models.CmdRunNow}, runner.commands)
	assert.Equal(t, []int64{1, 2}, queue.processed)
}

func TestProcessCommands_FailedCommandStillMarked(t *testing.T) {
	runner := &fakeRunner{err: errors.New("unknown command")}
	queue := &fakeQueue{pending: []models.Command{{ID: 7, Command: "reboot"}}}
	s := New(config.SchedulerConfig{}, runner, queue, nil)

	s.processCommands(context.Background())
	assert.Equal(t, []int64{7}, queue.processed)
}

func TestRunCommandSkippedWhileRunInProgress(t *testing.T) {
	runner := &fakeRunner{}
	lock := &LocalLock{}
	queue := &fakeQueue{pending: []models.Command{
		{ID: 1, Command: models.CmdRunNow},
		{ID: 2, Command: models.CmdResume},
	}}
	s := New(config.SchedulerConfig{}, runner, queue, lock)

	release, ok, _ := lock.TryLock(context.Background())
	require.True(t, ok)
	defer release()

	s.processCommands(context.Background())
	assert.Equal(t, []models.CommandType{models.CmdResume}, runner.commands)
	assert.Equal(t, []int64{1, 2}, queue.processed)

	require.NoError(t, s.TriggerNow(context.Background()))
	assert.Equal(t, 0, runner.runCount())
}

func TestStart_InvalidCron(t *testing.T) {
	s := New(config.SchedulerConfig{Cron: "every tuesday"}, &fakeRunner{}, &fakeQueue{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := s.Start(ctx)
	assert.Error(t, err)
}

func TestStart_IntervalRuns(t *testing.T) {
	runner := &fakeRunner{}
	s := New(config.SchedulerConfig{Interval: 20 * time.Millisecond}, runner, &fakeQueue{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Start(ctx))
	assert.Eventually(t, func() bool { return runner.runCount() >= 2 }, 2*time.Second, 10*time.Millisecond)
	s.Stop()
}
