// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package stages holds the fixed pipeline definition and turns a validated
// request into the concrete, ordered list of task invocations for its site.
package stages

import (
	"fmt"

	"github.com/ManuGH/auditrun/internal/pipeline/model"
	"github.com/ManuGH/auditrun/internal/pipeline/runner"
)

// Logical steps of the pipeline. Their count is the total every session
// declares, whatever its site.
const (
	StepProductAnalysis = iota + 1
	StepImageScraping
	StepTextExtraction
	StepQRDetection
	StepCredentialCheck
	StepExceptionReport

	Total = StepExceptionReport
)

// Task names as known to the task resolver.
const (
	TaskProductAnalyzer   = "product_analyzer"
	TaskFlipkartScraper   = "flipkart_scraper"
	TaskBlinkitScraper    = "blinkit_scraper"
	TaskZeptoScraper      = "zepto_scraper"
	TaskImageScraper      = "image_scraper"
	TaskTextExtractor     = "text_extractor"
	TaskQROrchestrator    = "qr_orchestrator"
	TaskCredentialCheck   = "credential_check"
	TaskExceptionReporter = "exception_reporter"
)

// Labels of the logical steps, indexed by step number.
var labels = [Total + 1]string{
	StepProductAnalysis: "Analyzing products",
	StepImageScraping:   "Scraping product images",
	StepTextExtraction:  "Extracting text from images",
	StepQRDetection:     "Detecting QR codes and barcodes",
	StepCredentialCheck: "Checking credentials",
	StepExceptionReport: "Sending exception report",
}

// Label returns the human-readable label of a logical step.
func Label(step int) string {
	if step < 1 || step > Total {
		return fmt.Sprintf("Step %d", step)
	}
	return labels[step]
}

// TaskNames lists every task a plan may invoke.
func TaskNames() []string {
	return []string{
		TaskProductAnalyzer,
		TaskFlipkartScraper,
		TaskBlinkitScraper,
		TaskZeptoScraper,
		TaskImageScraper,
		TaskTextExtractor,
		TaskQROrchestrator,
		TaskCredentialCheck,
		TaskExceptionReporter,
	}
}

// Step is one external invocation reported under step Index. A fused step
// covers the logical steps Index..Through with a single invocation.
type Step struct {
	Index      int
	Through    int
	Label      string
	Invocation runner.Invocation
}

// Fused reports whether the step covers more than one logical step.
func (s Step) Fused() bool { return s.Through > s.Index }

// Message is the text of the step's running event.
func (s Step) Message() string {
	if s.Fused() {
		return fmt.Sprintf("%s (steps %d-%d)", s.Label, s.Index, s.Through)
	}
	return s.Label
}

// Plan is the ordered invocation list for one request. Logical steps that do
// not appear in Steps are skipped for that site, but the step numbering and
// Total stay fixed.
type Plan struct {
	Site  model.Site
	Total int
	Steps []Step
}

// Validate checks that steps are strictly increasing, do not overlap and stay
// within 1..Total.
func (p Plan) Validate() error {
	if p.Total < 1 {
		return fmt.Errorf("plan for %s has no steps", p.Site)
	}
	last := 0
	for _, s := range p.Steps {
		if s.Index <= last {
			return fmt.Errorf("plan for %s: step %d out of order", p.Site, s.Index)
		}
		if s.Through < s.Index || s.Through > p.Total {
			return fmt.Errorf("plan for %s: step %d covers invalid range %d-%d", p.Site, s.Index, s.Index, s.Through)
		}
		if s.Invocation.Task == "" {
			return fmt.Errorf("plan for %s: step %d has no task", p.Site, s.Index)
		}
		last = s.Through
	}
	return nil
}

// Options adjust invocations independent of the request.
type Options struct {
	Headless bool // pass --headless to browser-driven scrapers
}

type builder func(req model.Request, opts Options) []Step

var builders = map[model.Site]builder{
	model.SiteAmazon:   buildAmazon,
	model.SiteFlipkart: buildStorefront(TaskFlipkartScraper),
	model.SiteBlinkit:  buildBlinkit,
	model.SiteZepto:    buildStorefront(TaskZeptoScraper),
}

// Build returns the deterministic plan for req.
func Build(req model.Request, opts Options) (Plan, error) {
	b, ok := builders[req.Site]
	if !ok {
		return Plan{}, fmt.Errorf("no stage builder for site %q", req.Site)
	}
	steps := append(b(req, opts), tail(req)...)
	p := Plan{Site: req.Site, Total: Total, Steps: steps}
	if err := p.Validate(); err != nil {
		return Plan{}, err
	}
	return p, nil
}

func single(step int, task string, args ...string) Step {
	return Step{
		Index:      step,
		Through:    step,
		Label:      Label(step),
		Invocation: runner.Invocation{Task: task, Args: args},
	}
}

// Amazon runs the generic analyzer and a separate image scraper.
func buildAmazon(req model.Request, opts Options) []Step {
	return []Step{
		single(StepProductAnalysis, TaskProductAnalyzer, string(req.Site), req.SubjectName, req.OutputLocation),
		single(StepImageScraping, TaskImageScraper, req.OutputLocation),
	}
}

// Blinkit's scraper downloads images in the same run when asked to, so the
// first two logical steps collapse into one invocation.
func buildBlinkit(req model.Request, opts Options) []Step {
	args := scraperArgs(req, opts)
	args = append(args, "--images")
	return []Step{{
		Index:      StepProductAnalysis,
		Through:    StepImageScraping,
		Label:      "Scraping products and images",
		Invocation: runner.Invocation{Task: TaskBlinkitScraper, Args: args},
	}}
}

// Flipkart and Zepto scrapers save images alongside the product sheet; the
// image scraping step is skipped.
func buildStorefront(task string) builder {
	return func(req model.Request, opts Options) []Step {
		return []Step{
			single(StepProductAnalysis, task, scraperArgs(req, opts)...),
		}
	}
}

func scraperArgs(req model.Request, opts Options) []string {
	args := []string{"--brand", req.SubjectName, "--out-dir", req.OutputLocation}
	if opts.Headless {
		args = append(args, "--headless")
	}
	return args
}

func tail(req model.Request) []Step {
	return []Step{
		single(StepTextExtraction, TaskTextExtractor, req.OutputLocation),
		single(StepQRDetection, TaskQROrchestrator, req.OutputLocation),
		single(StepCredentialCheck, TaskCredentialCheck, req.OutputLocation),
		single(StepExceptionReport, TaskExceptionReporter, req.OutputLocation, req.RecipientAddress),
	}
}
