// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package orchestrator walks a session's stage plan, runs one external task
// per step and translates task output into progress events.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/auditrun/internal/log"
	"github.com/ManuGH/auditrun/internal/pipeline/model"
	"github.com/ManuGH/auditrun/internal/pipeline/runner"
	"github.com/ManuGH/auditrun/internal/pipeline/stages"
	"github.com/ManuGH/auditrun/internal/telemetry"
)

const tracerName = "auditrun.orchestrator"

// Publisher receives the events of a session. Publish must not block.
type Publisher interface {
	Publish(sessionID string, ev model.Event)
	Close(sessionID string)
}

// Task is a started external task.
type Task interface {
	Lines() <-chan string
	Wait() runner.Outcome
}

// TaskStarter spawns external tasks.
type TaskStarter interface {
	Start(ctx context.Context, inv runner.Invocation) (Task, error)
}

// Options configure an Orchestrator.
type Options struct {
	Stages stages.Options
	// StartDelay is waited before the first step so that an observer opening
	// the event stream right after start sees every event.
	StartDelay time.Duration
	Logger     *zerolog.Logger
}

// Orchestrator executes pipeline runs. It is stateless between runs and safe
// for concurrent use; each Execute call owns its own session.
type Orchestrator struct {
	pub     Publisher
	starter TaskStarter
	opts    Options
	logger  zerolog.Logger
}

// New creates an Orchestrator.
func New(pub Publisher, starter TaskStarter, opts Options) *Orchestrator {
	logger := log.WithComponent("orchestrator")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Orchestrator{pub: pub, starter: starter, opts: opts, logger: logger}
}

// Execute runs the pipeline for req under sessionID and returns once the
// session reached a terminal status. Exactly one terminal event is published;
// the returned error mirrors an error event.
func (o *Orchestrator) Execute(ctx context.Context, sessionID string, req model.Request) (err error) {
	defer o.pub.Close(sessionID)

	ctx = log.ContextWithSessionID(ctx, sessionID)
	logger := o.logger.With().
		Str(log.FieldSessionID, sessionID).
		Str(log.FieldSite, string(req.Site)).
		Logger()

	ctx, span := telemetry.Tracer(tracerName).Start(ctx, "pipeline.execute")
	span.SetAttributes(telemetry.SessionAttributes(sessionID, string(req.Site), stages.Total)...)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetAttributes(telemetry.ErrorAttributes(failureKind(err))...)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}()

	r := &run{o: o, id: sessionID, sess: model.NewSession(sessionID, stages.Total), logger: logger}

	plan, err := stages.Build(req, o.opts.Stages)
	if err != nil {
		return r.fail(0, "Pipeline could not be planned", err)
	}

	if o.opts.StartDelay > 0 {
		t := time.NewTimer(o.opts.StartDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return r.fail(0, "Pipeline canceled", ctx.Err())
		case <-t.C:
		}
	}

	logger.Info().Str(log.FieldEvent, "pipeline.started").Int(log.FieldTotal, plan.Total).Msg("pipeline started")

	for _, step := range plan.Steps {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return r.fail(r.sess.Step, "Pipeline canceled", ctxErr)
		}
		if stepErr := r.step(ctx, step); stepErr != nil {
			return r.fail(step.Index, fmt.Sprintf("Step %d failed: %s", step.Index, step.Label), stepErr)
		}
	}

	ev, err := r.sess.Finish(model.StatusCompleted, plan.Total, "Pipeline completed successfully", "")
	if err != nil {
		return err
	}
	o.pub.Publish(sessionID, ev)
	logger.Info().Str(log.FieldEvent, "pipeline.completed").Msg("pipeline completed")
	return nil
}

// run is the per-session state of one Execute call.
type run struct {
	o      *Orchestrator
	id     string
	sess   *model.Session
	logger zerolog.Logger
}

func (r *run) step(ctx context.Context, step stages.Step) (err error) {
	ctx, span := telemetry.Tracer(tracerName).Start(ctx, "pipeline.step",
		trace.WithAttributes(telemetry.StepAttributes(step.Index, step.Through, step.Invocation.Task)...))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	ev, err := r.sess.Advance(step.Index, step.Message())
	if err != nil {
		return err
	}
	r.o.pub.Publish(r.id, ev)

	logger := r.logger.With().Int(log.FieldStep, step.Index).Str(log.FieldTask, step.Invocation.Task).Logger()
	logger.Info().Str(log.FieldEvent, "step.started").Msg(step.Message())

	task, err := r.o.starter.Start(ctx, step.Invocation)
	if err != nil {
		return err
	}

	for line := range task.Lines() {
		if strings.TrimSpace(line) == "" {
			continue
		}
		ev, perr := r.sess.Progress(line)
		if perr != nil {
			continue
		}
		r.o.pub.Publish(r.id, ev)
	}

	out := task.Wait()
	span.SetAttributes(attribute.Int(telemetry.ExitCodeKey, out.ExitCode))
	if err := out.Err(); err != nil {
		return err
	}
	logger.Info().
		Str(log.FieldEvent, "step.completed").
		Dur("duration", out.Duration).
		Msg("step completed")
	return nil
}

// fail publishes the single error event of the session and returns cause
// wrapped with the step context.
func (r *run) fail(step int, message string, cause error) error {
	if step < r.sess.Step {
		step = r.sess.Step
	}
	detail := cause.Error()
	var sf *runner.StageFailure
	if errors.As(cause, &sf) {
		if d := sf.Detail(); d != "" {
			detail = d
		}
		message = message + ": " + sf.Error()
	}

	ev, err := r.sess.Finish(model.StatusError, step, message, detail)
	if err == nil {
		r.o.pub.Publish(r.id, ev)
	}

	var spawn *runner.SpawnError
	logEvt := r.logger.Error()
	if errors.Is(cause, context.Canceled) || (sf != nil && sf.Canceled) {
		logEvt = r.logger.Warn()
	}
	logEvt.Err(cause).
		Str(log.FieldEvent, "pipeline.failed").
		Int(log.FieldStep, step).
		Bool("spawn_error", errors.As(cause, &spawn)).
		Strs("stderr", stderrOf(sf)).
		Msg(message)

	return fmt.Errorf("session %s step %d: %w", r.id, step, cause)
}

func stderrOf(sf *runner.StageFailure) []string {
	if sf == nil {
		return nil
	}
	return sf.Stderr
}

// failureKind classifies a run error for span attributes.
func failureKind(err error) string {
	var spawn *runner.SpawnError
	var sf *runner.StageFailure
	switch {
	case errors.As(err, &spawn):
		return "spawn"
	case errors.As(err, &sf) && sf.TimedOut:
		return "timeout"
	case errors.Is(err, context.Canceled), errors.As(err, &sf) && sf.Canceled:
		return "canceled"
	case sf != nil:
		return "stage_failure"
	default:
		return "plan"
	}
}
