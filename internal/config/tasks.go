// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"path/filepath"

	"github.com/ManuGH/auditrun/internal/pipeline/runner"
	"github.com/ManuGH/auditrun/internal/pipeline/stages"
)

// scriptFiles maps task names to the script shipped for them.
var scriptFiles = map[string]string{
	stages.TaskProductAnalyzer:   "product_analyzer.py",
	stages.TaskFlipkartScraper:   "flipkart.py",
	stages.TaskBlinkitScraper:    "blinkit.py",
	stages.TaskZeptoScraper:      "zepto.py",
	stages.TaskImageScraper:      "image_scraper.py",
	stages.TaskTextExtractor:     "text_extractor.py",
	stages.TaskQROrchestrator:    "qr_orchestrator.py",
	stages.TaskCredentialCheck:   "credential_check.py",
	stages.TaskExceptionReporter: "exception_reporter.py",
}

// Command implements runner.Resolver. An explicit tasks.commands entry wins;
// otherwise the task's script is run through the interpreter.
func (t TasksConfig) Command(task string) ([]string, error) {
	if argv, ok := t.Commands[task]; ok {
		if len(argv) == 0 {
			return nil, fmt.Errorf("%w: %q has an empty command", runner.ErrUnknownTask, task)
		}
		return append([]string(nil), argv...), nil
	}
	script, ok := scriptFiles[task]
	if !ok {
		return nil, fmt.Errorf("%w: %q", runner.ErrUnknownTask, task)
	}
	if len(t.Interpreter) == 0 {
		return nil, fmt.Errorf("no interpreter configured for task %q", task)
	}
	argv := append([]string(nil), t.Interpreter...)
	return append(argv, filepath.Join(t.ScriptsDir, script)), nil
}

// ScriptPath returns the script a task runs through the interpreter. It
// reports false for overridden and unknown tasks.
func (t TasksConfig) ScriptPath(task string) (string, bool) {
	if _, ok := t.Commands[task]; ok {
		return "", false
	}
	script, ok := scriptFiles[task]
	if !ok {
		return "", false
	}
	return filepath.Join(t.ScriptsDir, script), true
}

// RunnerOptions derives task supervision options from the configuration.
func (c AppConfig) RunnerOptions() runner.Options {
	return runner.Options{
		WorkDir:    c.Tasks.WorkDir,
		StdoutTail: c.Pipeline.StdoutTail,
		StderrTail: c.Pipeline.StderrTail,
		KillGrace:  c.Pipeline.KillGrace,
		Timeout:    c.Pipeline.TaskTimeout,
	}
}

var _ runner.Resolver = TasksConfig{}
