// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/auditrun/internal/config"
	"github.com/ManuGH/auditrun/internal/health"
	"github.com/ManuGH/auditrun/internal/log"
	"github.com/ManuGH/auditrun/internal/pipeline/model"
	"github.com/ManuGH/auditrun/internal/pipeline/stages"
)

func shellConfig(t *testing.T, override map[string]string) config.AppConfig {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	cfg := config.Defaults()
	cfg.Version = "test"
	cfg.Pipeline.StartDelay = 100 * time.Millisecond
	cfg.API.SSEKeepAlive = time.Hour
	cfg.Tasks.Commands = make(map[string][]string)
	for _, task := range stages.TaskNames() {
		script := "echo " + task + " working; echo; echo " + task + " done"
		if s, ok := override[task]; ok {
			script = s
		}
		cfg.Tasks.Commands[task] = []string{"sh", "-c", script}
	}
	return cfg
}

func startRun(t *testing.T, cfg config.AppConfig, body string) (*httptest.Server, string) {
	t.Helper()
	rt := buildRuntime(cfg, log.WithComponent("test"))
	srv := httptest.NewServer(rt.server.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = rt.sessions.Shutdown(context.Background())
		rt.hub.Shutdown()
	})

	resp, err := http.Post(srv.URL+"/api/v1/pipelines", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var started struct {
		SessionID string `json:"sessionId"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&started))
	require.NotEmpty(t, started.SessionID)
	return srv, started.SessionID
}

func streamEvents(t *testing.T, srv *httptest.Server, sessionID string) []model.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/pipelines/"+sessionID+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out []model.Event
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line, ok := strings.CutPrefix(sc.Text(), "data: ")
		if !ok {
			continue
		}
		var ev model.Event
		require.NoError(t, json.Unmarshal([]byte(line), &ev))
		out = append(out, ev)
	}
	return out
}

func TestRuntime_AmazonRunCompletes(t *testing.T) {
	cfg := shellConfig(t, nil)
	srv, id := startRun(t, cfg, `{"site":"amazon","subjectName":"Acme","outputLocation":"/tmp/out","recipientAddress":"ops@example.com"}`)

	events := streamEvents(t, srv, id)
	require.NotEmpty(t, events)

	assert.Equal(t, model.ConnectedEvent(stages.Total), events[0])
	last := events[len(events)-1]
	assert.Equal(t, model.StatusCompleted, last.Status)
	assert.Equal(t, stages.Total, last.Step)
	assert.Equal(t, "Pipeline completed successfully", last.Message)

	details := make(map[int][]string)
	for _, ev := range events[1:] {
		assert.Equal(t, stages.Total, ev.Total)
		if ev.IsDetail() {
			details[ev.Step] = append(details[ev.Step], ev.Detail)
		}
	}
	assert.Equal(t, []string{"credential_check working", "credential_check done"},
		details[stages.StepCredentialCheck], "task stdout is forwarded as detail, blank lines skipped")
	assert.Len(t, details, stages.Total)
}

func TestRuntime_OutputBurstStillEndsWithTerminal(t *testing.T) {
	const lines = 3000
	cfg := shellConfig(t, map[string]string{
		stages.TaskTextExtractor: fmt.Sprintf(`i=0; while [ $i -lt %d ]; do echo "page $i"; i=$((i+1)); done`, lines),
	})
	cfg.API.SubscriberBuffer = 16
	srv, id := startRun(t, cfg, `{"site":"amazon","subjectName":"Acme","outputLocation":"/tmp/out","recipientAddress":"ops@example.com"}`)

	events := streamEvents(t, srv, id)
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.Equal(t, model.StatusCompleted, last.Status)
	assert.Equal(t, stages.Total, last.Step)

	var transitions []int
	var extracted int
	for _, ev := range events[1:] {
		switch {
		case ev.IsTerminal():
		case ev.IsDetail():
			if ev.Step == stages.StepTextExtraction {
				extracted++
			}
		default:
			transitions = append(transitions, ev.Step)
		}
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, transitions)
	assert.Positive(t, extracted)
	assert.LessOrEqual(t, extracted, lines)
}

func TestRuntime_FailingTaskEndsRun(t *testing.T) {
	cfg := shellConfig(t, map[string]string{
		stages.TaskCredentialCheck: "echo checking; echo vault unreachable >&2; exit 3",
	})
	srv, id := startRun(t, cfg, `{"site":"zepto","subjectName":"Acme","outputLocation":"/tmp/out","recipientAddress":"ops@example.com"}`)

	events := streamEvents(t, srv, id)
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.Equal(t, model.StatusError, last.Status)
	assert.Equal(t, stages.StepCredentialCheck, last.Step)
	assert.True(t, strings.HasPrefix(last.Message, "Step 5 failed"), last.Message)
	assert.Contains(t, last.Detail, "vault unreachable")

	var sawCheck bool
	for _, ev := range events {
		assert.LessOrEqual(t, ev.Step, stages.StepCredentialCheck, "no step runs after a failure")
		assert.NotContains(t, ev.Detail, stages.TaskExceptionReporter)
		if ev.Detail == "checking" {
			sawCheck = true
		}
	}
	assert.True(t, sawCheck)
}

func TestRuntime_SeparateMetricsListener(t *testing.T) {
	cfg := shellConfig(t, nil)
	rt := buildRuntime(cfg, log.WithComponent("test"))
	assert.Nil(t, rt.metrics)

	cfg.API.MetricsAddr = "127.0.0.1:0"
	rt = buildRuntime(cfg, log.WithComponent("test"))
	require.NotNil(t, rt.metrics)

	srv := httptest.NewServer(rt.server.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBuildHealth_ScriptsAndOverrides(t *testing.T) {
	scripts := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(scripts, "flipkart.py"), []byte("print('ok')\n"), 0o600))

	cfg := shellConfig(t, nil)
	delete(cfg.Tasks.Commands, stages.TaskFlipkartScraper)
	delete(cfg.Tasks.Commands, stages.TaskBlinkitScraper)
	cfg.Tasks.ScriptsDir = scripts
	cfg.Tasks.Interpreter = []string{"sh"}

	rt := buildRuntime(cfg, log.WithComponent("test"))
	t.Cleanup(rt.hub.Shutdown)
	resp := rt.health.Ready(context.Background())

	assert.False(t, resp.Ready)
	assert.Equal(t, health.StatusHealthy, resp.Checks["script:flipkart_scraper"].Status)
	assert.Equal(t, health.StatusUnhealthy, resp.Checks["script:blinkit_scraper"].Status)
	assert.Equal(t, health.StatusHealthy, resp.Checks["command:zepto_scraper"].Status)
	assert.Equal(t, health.StatusHealthy, resp.Checks["interpreter"].Status)
	assert.Equal(t, health.StatusHealthy, resp.Checks["sessions"].Status)
	assert.Error(t, health.PerformStartupChecks(context.Background(), rt.health))

	require.NoError(t, rt.sessions.Shutdown(context.Background()))
	assert.Equal(t, health.StatusUnhealthy, rt.health.Ready(context.Background()).Checks["sessions"].Status)
}
