// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/auditrun/internal/pipeline/model"
	"github.com/ManuGH/auditrun/internal/pipeline/runner"
	"github.com/ManuGH/auditrun/internal/pipeline/stages"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	mu     sync.Mutex
	events []model.Event
	closed int
}

func (r *recorder) Publish(_ string, ev model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) Close(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
}

func (r *recorder) snapshot() []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Event(nil), r.events...)
}

type script struct {
	lines    []string
	exitCode int
	stderr   []string
	spawnErr error
}

type fakeTask struct {
	lines chan string
	out   runner.Outcome
}

func (t *fakeTask) Lines() <-chan string { return t.lines }
func (t *fakeTask) Wait() runner.Outcome { return t.out }

type fakeStarter struct {
	mu      sync.Mutex
	scripts map[string]script
	calls   []runner.Invocation
}

func (f *fakeStarter) Start(_ context.Context, inv runner.Invocation) (Task, error) {
	f.mu.Lock()
	f.calls = append(f.calls, inv)
	sc := f.scripts[inv.Task]
	f.mu.Unlock()

	if sc.spawnErr != nil {
		return nil, &runner.SpawnError{Task: inv.Task, Err: sc.spawnErr}
	}
	ch := make(chan string, len(sc.lines))
	for _, l := range sc.lines {
		ch <- l
	}
	close(ch)
	return &fakeTask{lines: ch, out: runner.Outcome{Task: inv.Task, ExitCode: sc.exitCode, Stderr: sc.stderr}}, nil
}

func (f *fakeStarter) tasks() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.Task)
	}
	return out
}

func request(site model.Site) model.Request {
	return model.Request{
		Site:             site,
		SubjectName:      "Acme",
		OutputLocation:   "/data/out",
		RecipientAddress: "ops@example.com",
	}
}

func running(step int, msg, detail string) model.Event {
	return model.Event{Step: step, Total: stages.Total, Message: msg, Status: model.StatusRunning, Detail: detail}
}

func assertMonotonic(t *testing.T, events []model.Event) {
	t.Helper()
	require.NotEmpty(t, events)
	last := 0
	for i, ev := range events {
		assert.GreaterOrEqual(t, ev.Step, last, "event %d step regressed", i)
		last = ev.Step
		if i < len(events)-1 {
			assert.False(t, ev.IsTerminal(), "terminal event at %d before the end", i)
		}
	}
	assert.True(t, events[len(events)-1].IsTerminal())
}

func TestExecute_AllStepsSucceed(t *testing.T) {
	pub := &recorder{}
	starter := &fakeStarter{scripts: map[string]script{
		stages.TaskProductAnalyzer: {lines: []string{"found 3 products", "", "  "}},
	}}
	o := New(pub, starter, Options{})

	require.NoError(t, o.Execute(context.Background(), "s1", request(model.SiteAmazon)))

	want := []model.Event{
		running(1, "Analyzing products", ""),
		running(1, "Analyzing products", "found 3 products"),
		running(2, "Scraping product images", ""),
		running(3, "Extracting text from images", ""),
		running(4, "Detecting QR codes and barcodes", ""),
		running(5, "Checking credentials", ""),
		running(6, "Sending exception report", ""),
		{Step: 6, Total: 6, Message: "Pipeline completed successfully", Status: model.StatusCompleted},
	}
	if diff := cmp.Diff(want, pub.snapshot()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, pub.closed)
	assert.Equal(t, []string{
		stages.TaskProductAnalyzer, stages.TaskImageScraper, stages.TaskTextExtractor,
		stages.TaskQROrchestrator, stages.TaskCredentialCheck, stages.TaskExceptionReporter,
	}, starter.tasks())
}

func TestExecute_StageFailureStopsPipeline(t *testing.T) {
	pub := &recorder{}
	starter := &fakeStarter{scripts: map[string]script{
		stages.TaskTextExtractor: {exitCode: 1, stderr: []string{"Traceback ...", "network timeout"}},
	}}
	o := New(pub, starter, Options{})

	err := o.Execute(context.Background(), "s1", request(model.SiteAmazon))
	require.Error(t, err)
	var sf *runner.StageFailure
	require.ErrorAs(t, err, &sf)
	assert.Equal(t, 1, sf.ExitCode)

	events := pub.snapshot()
	assertMonotonic(t, events)
	last := events[len(events)-1]
	assert.Equal(t, model.StatusError, last.Status)
	assert.Equal(t, 3, last.Step)
	assert.Contains(t, last.Message, "Step 3 failed")
	assert.Contains(t, last.Message, "network timeout")
	assert.Contains(t, last.Detail, "network timeout")

	for _, ev := range events {
		assert.LessOrEqual(t, ev.Step, 3)
	}
	assert.Equal(t, []string{stages.TaskProductAnalyzer, stages.TaskImageScraper, stages.TaskTextExtractor}, starter.tasks())
	assert.Equal(t, 1, pub.closed)
}

func TestExecute_FusedStep(t *testing.T) {
	pub := &recorder{}
	starter := &fakeStarter{scripts: map[string]script{}}
	o := New(pub, starter, Options{})

	require.NoError(t, o.Execute(context.Background(), "s1", request(model.SiteBlinkit)))

	events := pub.snapshot()
	assertMonotonic(t, events)
	assert.Equal(t, running(1, "Scraping products and images (steps 1-2)", ""), events[0])
	assert.Equal(t, 3, events[1].Step, "step 2 is covered by the fused invocation")
	for _, ev := range events {
		assert.Equal(t, stages.Total, ev.Total)
	}
	assert.Equal(t, stages.Total, events[len(events)-1].Step)
	assert.Equal(t, stages.TaskBlinkitScraper, starter.tasks()[0])
	assert.Len(t, starter.tasks(), 5)
}

func TestExecute_SkippedStep(t *testing.T) {
	pub := &recorder{}
	starter := &fakeStarter{scripts: map[string]script{}}
	o := New(pub, starter, Options{})

	require.NoError(t, o.Execute(context.Background(), "s1", request(model.SiteFlipkart)))

	var steps []int
	for _, ev := range pub.snapshot() {
		if ev.Status == model.StatusRunning {
			steps = append(steps, ev.Step)
		}
	}
	assert.Equal(t, []int{1, 3, 4, 5, 6}, steps)
}

func TestExecute_SpawnError(t *testing.T) {
	pub := &recorder{}
	starter := &fakeStarter{scripts: map[string]script{
		stages.TaskImageScraper: {spawnErr: exec.ErrNotFound},
	}}
	o := New(pub, starter, Options{})

	err := o.Execute(context.Background(), "s1", request(model.SiteAmazon))
	var se *runner.SpawnError
	require.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, exec.ErrNotFound)

	events := pub.snapshot()
	assertMonotonic(t, events)
	last := events[len(events)-1]
	assert.Equal(t, model.StatusError, last.Status)
	assert.Equal(t, 2, last.Step)
	assert.Contains(t, last.Detail, "image_scraper")
	assert.Len(t, starter.tasks(), 2)
}

func TestExecute_CanceledBeforeStart(t *testing.T) {
	pub := &recorder{}
	starter := &fakeStarter{scripts: map[string]script{}}
	o := New(pub, starter, Options{StartDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := o.Execute(ctx, "s1", request(model.SiteZepto))
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, starter.tasks())

	events := pub.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, model.StatusError, events[0].Status)
	assert.Equal(t, "Pipeline canceled", events[0].Message)
	assert.Equal(t, 1, pub.closed)
}

func TestExecute_StartDelay(t *testing.T) {
	pub := &recorder{}
	starter := &fakeStarter{scripts: map[string]script{}}
	o := New(pub, starter, Options{StartDelay: 30 * time.Millisecond})

	start := time.Now()
	require.NoError(t, o.Execute(context.Background(), "s1", request(model.SiteZepto)))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestExecute_CanceledStageIsError(t *testing.T) {
	pub := &recorder{}
	starter := &fakeStarter{scripts: map[string]script{}}
	o := New(pub, starter, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	starter.scripts[stages.TaskProductAnalyzer] = script{}
	wrapped := &cancelingStarter{fakeStarter: starter, cancel: cancel, at: stages.TaskQROrchestrator}
	o.starter = wrapped

	err := o.Execute(ctx, "s1", request(model.SiteAmazon))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	events := pub.snapshot()
	assertMonotonic(t, events)
	assert.Equal(t, model.StatusError, events[len(events)-1].Status)
	assert.NotContains(t, starter.tasks(), stages.TaskCredentialCheck)
}

// cancelingStarter cancels the run right after starting task at.
type cancelingStarter struct {
	*fakeStarter
	cancel context.CancelFunc
	at     string
}

func (c *cancelingStarter) Start(ctx context.Context, inv runner.Invocation) (Task, error) {
	task, err := c.fakeStarter.Start(ctx, inv)
	if inv.Task == c.at {
		c.cancel()
	}
	return task, err
}

func TestExecute_UnknownSite(t *testing.T) {
	pub := &recorder{}
	o := New(pub, &fakeStarter{}, Options{})

	err := o.Execute(context.Background(), "s1", model.Request{Site: "ebay"})
	require.Error(t, err)
	events := pub.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, model.StatusError, events[0].Status)
	assert.Equal(t, 0, events[0].Step)
}

func TestFailureKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&runner.SpawnError{Task: "x", Err: exec.ErrNotFound}, "spawn"},
		{&runner.StageFailure{Task: "x", ExitCode: 1}, "stage_failure"},
		{&runner.StageFailure{Task: "x", ExitCode: -1, TimedOut: true}, "timeout"},
		{&runner.StageFailure{Task: "x", ExitCode: -1, Canceled: true}, "canceled"},
		{context.Canceled, "canceled"},
		{errors.New("unknown site"), "plan"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, failureKind(fmt.Errorf("session s1 step 2: %w", tt.err)), tt.err.Error())
	}
}
