// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package runner spawns one external task, streams its standard output line
// by line and resolves to a typed outcome.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/ManuGH/auditrun/internal/log"
	"github.com/ManuGH/auditrun/internal/metrics"
	"github.com/ManuGH/auditrun/internal/procgroup"
	"github.com/rs/zerolog"
)

const (
	defaultStdoutTail   = 200
	defaultStderrTail   = 200
	defaultMaxLineBytes = 1024 * 1024
	defaultLineBuffer   = 64
)

// Resolver maps a task name to the argv prefix that runs it.
type Resolver interface {
	Command(task string) ([]string, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(task string) ([]string, error)

// Command implements Resolver.
func (f ResolverFunc) Command(task string) ([]string, error) { return f(task) }

// Invocation is one task call: a task name and its ordered arguments.
type Invocation struct {
	Task string
	Args []string
}

// Options tune process supervision.
type Options struct {
	WorkDir      string
	Env          []string      // nil inherits the daemon environment
	StdoutTail   int           // stdout lines kept for the outcome
	StderrTail   int           // stderr lines kept for the outcome
	MaxLineBytes int           // longest stdout line surfaced as one event
	KillGrace    time.Duration // SIGTERM to SIGKILL escalation on cancel
	Timeout      time.Duration // 0 disables the per-task limit
}

// Outcome is the result of one task run.
type Outcome struct {
	Task      string
	PID       int
	ExitCode  int
	Stdout    []string
	Stderr    []string
	Truncated int // stdout lines evicted from the tail
	Duration  time.Duration
	TimedOut  bool
	Canceled  bool
	timeout   time.Duration
}

// Success reports a zero exit status.
func (o Outcome) Success() bool {
	return o.ExitCode == 0 && !o.TimedOut && !o.Canceled
}

// Err returns a *StageFailure unless the task succeeded.
func (o Outcome) Err() error {
	if o.Success() {
		return nil
	}
	return &StageFailure{
		Task:     o.Task,
		ExitCode: o.ExitCode,
		Stderr:   o.Stderr,
		TimedOut: o.TimedOut,
		Canceled: o.Canceled,
		Timeout:  o.timeout,
	}
}

// Runner starts external tasks. It holds no per-run state and is safe for
// concurrent use.
type Runner struct {
	resolver Resolver
	opts     Options
	logger   zerolog.Logger
}

// New creates a Runner.
func New(resolver Resolver, opts Options) *Runner {
	if opts.StdoutTail <= 0 {
		opts.StdoutTail = defaultStdoutTail
	}
	if opts.StderrTail <= 0 {
		opts.StderrTail = defaultStderrTail
	}
	if opts.MaxLineBytes <= 0 {
		opts.MaxLineBytes = defaultMaxLineBytes
	}
	return &Runner{
		resolver: resolver,
		opts:     opts,
		logger:   log.WithComponent("runner"),
	}
}

// Process is a running task.
type Process struct {
	inv     Invocation
	cmd     *exec.Cmd
	lines   chan string
	done    chan struct{}
	stdout  *LineRing
	stderr  *LineRing
	started time.Time
	parent  context.Context
	runCtx  context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	logger  zerolog.Logger

	mu      sync.Mutex
	stopEsc func()
	outcome Outcome
}

// Start spawns the task. Exactly one attempt is made; a task that cannot be
// started yields a *SpawnError. Canceling ctx terminates the process group.
func (r *Runner) Start(ctx context.Context, inv Invocation) (*Process, error) {
	logger := log.WithContext(ctx, r.logger).With().Str(log.FieldTask, inv.Task).Logger()

	argv, err := r.resolver.Command(inv.Task)
	if err == nil && len(argv) == 0 {
		err = fmt.Errorf("%w: empty command", ErrUnknownTask)
	}
	if err != nil {
		metrics.IncTaskStart(inv.Task, "spawn_error")
		return nil, &SpawnError{Task: inv.Task, Err: err}
	}

	var runCtx context.Context
	var cancel context.CancelFunc
	if r.opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}

	args := append(append([]string(nil), argv[1:]...), inv.Args...)
	// #nosec G204 -- task commands come from operator configuration
	cmd := exec.CommandContext(runCtx, argv[0], args...)
	cmd.Dir = r.opts.WorkDir
	cmd.Env = r.opts.Env
	procgroup.Set(cmd)

	p := &Process{
		inv:     inv,
		cmd:     cmd,
		lines:   make(chan string, defaultLineBuffer),
		done:    make(chan struct{}),
		stdout:  NewLineRing(r.opts.StdoutTail),
		stderr:  NewLineRing(r.opts.StderrTail),
		parent:  ctx,
		runCtx:  runCtx,
		cancel:  cancel,
		timeout: r.opts.Timeout,
		logger:  logger,
	}
	cmd.Stderr = p.stderr
	cmd.Cancel = func() error {
		stop, err := procgroup.Terminate(cmd, r.opts.KillGrace)
		p.mu.Lock()
		p.stopEsc = stop
		p.mu.Unlock()
		return err
	}
	if r.opts.KillGrace > 0 {
		cmd.WaitDelay = 2 * r.opts.KillGrace
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		metrics.IncTaskStart(inv.Task, "spawn_error")
		return nil, &SpawnError{Task: inv.Task, Err: err}
	}
	if err := cmd.Start(); err != nil {
		cancel()
		metrics.IncTaskStart(inv.Task, "spawn_error")
		return nil, &SpawnError{Task: inv.Task, Err: err}
	}
	p.started = time.Now()
	metrics.IncTaskStart(inv.Task, "ok")
	logger.Debug().
		Int(log.FieldPID, cmd.Process.Pid).
		Strs("args", inv.Args).
		Str(log.FieldEvent, "task.started").
		Msg("task started")

	go p.monitor(stdout, r.opts.MaxLineBytes)
	return p, nil
}

// Run starts the task, hands every stdout line to onLine as it arrives and
// waits for the exit status.
func (r *Runner) Run(ctx context.Context, inv Invocation, onLine func(string)) (Outcome, error) {
	p, err := r.Start(ctx, inv)
	if err != nil {
		return Outcome{Task: inv.Task}, err
	}
	for line := range p.Lines() {
		if onLine != nil {
			onLine(line)
		}
	}
	return p.Wait(), nil
}

// Lines yields stdout lines as they are produced and is closed at EOF.
// Callers must drain it before Wait can return.
func (p *Process) Lines() <-chan string {
	return p.lines
}

// PID returns the operating system process id.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// Wait blocks until the task exited and returns its outcome.
func (p *Process) Wait() Outcome {
	<-p.done
	return p.outcome
}

func (p *Process) monitor(stdout io.Reader, maxLine int) {
	defer close(p.done)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	for scanner.Scan() {
		line := scanner.Text()
		p.stdout.Add(line)
		select {
		case p.lines <- line:
		case <-p.runCtx.Done():
			// Nobody is waiting for progress of a dying task; keep reading
			// so the process never blocks on a full pipe.
		}
	}
	if err := scanner.Err(); err != nil {
		p.logger.Warn().Err(err).Str(log.FieldEvent, "task.stdout_error").Msg("stdout scan aborted, discarding rest")
		_, _ = io.Copy(io.Discard, stdout)
	}
	close(p.lines)

	waitErr := p.cmd.Wait()
	p.mu.Lock()
	if p.stopEsc != nil {
		p.stopEsc()
	}
	p.mu.Unlock()
	p.stderr.Flush()

	out := Outcome{
		Task:      p.inv.Task,
		PID:       p.cmd.Process.Pid,
		Stdout:    p.stdout.Lines(),
		Stderr:    p.stderr.Lines(),
		Truncated: p.stdout.Truncated(),
		Duration:  time.Since(p.started),
		timeout:   p.timeout,
	}
	if waitErr != nil {
		switch {
		case p.parent.Err() != nil:
			out.Canceled = true
		case errors.Is(p.runCtx.Err(), context.DeadlineExceeded):
			out.TimedOut = true
		}
	}
	p.cancel()

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		out.ExitCode = 0
	case errors.As(waitErr, &exitErr):
		out.ExitCode = exitErr.ExitCode()
	default:
		// Interrupted tasks that exit cleanly surface the context error here.
		out.ExitCode = -1
		if !out.Canceled && !out.TimedOut {
			out.Stderr = append(out.Stderr, waitErr.Error())
		}
	}
	p.outcome = out

	reason := "exit0"
	switch {
	case out.Canceled:
		reason = "canceled"
	case out.TimedOut:
		reason = "timeout"
	case out.ExitCode != 0:
		reason = "exit_nonzero"
	}
	metrics.ObserveTaskExit(p.inv.Task, reason, out.Duration)
	p.logger.Debug().
		Int(log.FieldExitCode, out.ExitCode).
		Dur("duration", out.Duration).
		Str("reason", reason).
		Str(log.FieldEvent, "task.exited").
		Msg("task exited")
}
