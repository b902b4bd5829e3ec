package filter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/mikey/phishguard/internal/core"
	"github.com/mikey/phishguard/internal/credentials"
	"go.uber.org/zap"
)

var errNoMailbox = errors.New("no mailbox configured")

// UsageReporter exposes per-key request counters
type UsageReporter interface {
	Stats() []credentials.Usage
}

// CliFilter analyses single messages, URLs and batches from the command
// line and prints a report for each
type CliFilter struct {
	analyzer  core.Analyzer
	urls      core.URLChecker
	scheduler *core.Scheduler
	usage     UsageReporter
	logger    *zap.Logger
	out       io.Writer
	verbose   bool
}

// NewCliFilter creates a new CLI filter. scheduler may be nil when no
// mailbox is configured.
func NewCliFilter(
	analyzer core.Analyzer,
	urls core.URLChecker,
	scheduler *core.Scheduler,
	usage UsageReporter,
	logger *zap.Logger,
	out io.Writer,
	verbose bool,
) *CliFilter {
	return &CliFilter{
		analyzer:  analyzer,
		urls:      urls,
		scheduler: scheduler,
		usage:     usage,
		logger:    logger,
		out:       out,
		verbose:   verbose,
	}
}

// ProcessMessage parses a raw RFC 5322 message, analyses it and prints the verdict
func (f *CliFilter) ProcessMessage(ctx context.Context, raw []byte) (*core.Verdict, error) {
	req, msg, err := parseMessage(raw)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(f.out, "\n=== Email Summary ===\n")
	fmt.Fprintf(f.out, "From: %s\n", msg.Header.Get("From"))
	fmt.Fprintf(f.out, "To: %s\n", msg.Header.Get("To"))
	fmt.Fprintf(f.out, "Subject: %s\n", req.Subject)
	fmt.Fprintf(f.out, "Body length: %d bytes\n", len(req.Body)+len(req.HTML))
	fmt.Fprintf(f.out, "Attachments: %d\n", len(req.Attachments))
	if f.verbose {
		preview := req.Body
		if len(preview) > 500 {
			preview = preview[:500] + "..."
		}
		fmt.Fprintf(f.out, "\nBody preview:\n%s\n", preview)
	}

	return f.ProcessRequest(ctx, req)
}

// ProcessRequest analyses an already parsed request and prints the verdict
func (f *CliFilter) ProcessRequest(ctx context.Context, req *core.AnalysisRequest) (*core.Verdict, error) {
	fmt.Fprintf(f.out, "\n=== Analysis ===\n")
	start := time.Now()
	verdict, err := f.analyzer.Analyze(ctx, req)
	if err != nil {
		f.logger.Error("Failed to analyze email", zap.Error(err))
		fmt.Fprintf(f.out, "Error: %v\n", err)
		return nil, err
	}

	f.printVerdict(verdict)
	fmt.Fprintf(f.out, "Processing time: %v\n", time.Since(start).Round(time.Millisecond))
	return verdict, nil
}

// ScanBatch runs a mailbox batch and prints the outcome of every item
func (f *CliFilter) ScanBatch(ctx context.Context, ids []string) (*core.BatchOutcome, error) {
	if f.scheduler == nil {
		return nil, errNoMailbox
	}
	outcome, err := f.scheduler.ScanBatch(ctx, ids)
	if err != nil {
		return nil, err
	}
	f.printBatch(outcome)
	return outcome, nil
}

// ScanUnread scans up to maxItems unread mailbox items and prints the outcome
func (f *CliFilter) ScanUnread(ctx context.Context, maxItems int) (*core.BatchOutcome, error) {
	if f.scheduler == nil {
		return nil, errNoMailbox
	}
	outcome, err := f.scheduler.ScanUnread(ctx, maxItems)
	if err != nil {
		return nil, err
	}
	f.printBatch(outcome)
	return outcome, nil
}

// CheckURL submits one URL for analysis and prints its reputation
func (f *CliFilter) CheckURL(ctx context.Context, url string) (*core.URLCheck, error) {
	fmt.Fprintf(f.out, "\n=== URL Check ===\n")
	start := time.Now()
	check, err := f.urls.CheckURL(ctx, url)
	if err != nil {
		f.logger.Error("Failed to check URL", zap.String("url", url), zap.Error(err))
		fmt.Fprintf(f.out, "Error: %v\n", err)
		return nil, err
	}

	fmt.Fprintf(f.out, "URL: %s\n", check.URL)
	if check.SubmissionID != "" {
		fmt.Fprintf(f.out, "Analysis ID: %s\n", check.SubmissionID)
	}
	if check.Error != "" {
		fmt.Fprintf(f.out, "Status: unknown\n  error: %s\n", check.Error)
	} else {
		status := "clean"
		if check.Malicious > 0 {
			status = "MALICIOUS"
		}
		fmt.Fprintf(f.out, "Status: %s\n", status)
		fmt.Fprintf(f.out, "Detections: malicious=%d suspicious=%d harmless=%d\n",
			check.Malicious, check.Suspicious, check.Harmless)
	}
	fmt.Fprintf(f.out, "Processing time: %v\n", time.Since(start).Round(time.Millisecond))
	return check, nil
}

// Report prints verdict label totals for the mailbox and the request
// counters of every reputation key
func (f *CliFilter) Report(ctx context.Context, maxItems int) error {
	fmt.Fprintf(f.out, "\n=== Mailbox ===\n")
	if f.scheduler == nil {
		fmt.Fprintf(f.out, "Not configured\n")
	} else {
		counts, err := f.scheduler.CountLabels(ctx, maxItems)
		if err != nil {
			f.logger.Error("Failed to count labelled emails", zap.Error(err))
			return err
		}
		fmt.Fprintf(f.out, "Phishing: %d\n", counts.Phishing)
		fmt.Fprintf(f.out, "Safe: %d\n", counts.Safe)
		fmt.Fprintf(f.out, "Phishing rate: %.1f%%\n", counts.PhishingRate())
	}

	fmt.Fprintf(f.out, "\n=== Reputation keys ===\n")
	if f.usage == nil {
		return nil
	}
	for _, u := range f.usage.Stats() {
		fmt.Fprintf(f.out, "key %d: window=%d total=%d rate_limited=%d\n",
			u.Slot, u.Requests, u.TotalRequests, u.LimitedCount)
	}
	return nil
}

func (f *CliFilter) printBatch(outcome *core.BatchOutcome) {
	fmt.Fprintf(f.out, "\n=== Batch %s ===\n", outcome.BatchID)
	fmt.Fprintf(f.out, "Workers: %d\n", outcome.Workers)
	for _, item := range outcome.Items {
		switch {
		case !item.Success:
			fmt.Fprintf(f.out, "%-24s ERROR     %s\n", item.ID, item.Error)
		case item.Verdict.IsPhishing:
			fmt.Fprintf(f.out, "%-24s PHISHING  %s\n", item.ID, strings.Join(item.Verdict.Threats, ","))
		default:
			fmt.Fprintf(f.out, "%-24s safe\n", item.ID)
		}
	}
	fmt.Fprintf(f.out, "Processed: %d  Flagged: %d  Safe: %d  Errors: %d  (%v)\n",
		outcome.Processed, outcome.Flagged, outcome.Safe, outcome.Errored,
		outcome.Duration.Round(time.Millisecond))
}

func (f *CliFilter) printVerdict(v *core.Verdict) {
	fmt.Fprintf(f.out, "\n=== Results ===\n")
	fmt.Fprintf(f.out, "Is phishing: %t\n", v.IsPhishing)
	fmt.Fprintf(f.out, "Outcome: %s\n", v.Outcome())
	if len(v.Threats) > 0 {
		fmt.Fprintf(f.out, "Threats: %s\n", strings.Join(v.Threats, ", "))
	}

	stages := make([]string, 0, len(v.Details))
	for stage := range v.Details {
		stages = append(stages, string(stage))
	}
	sort.Strings(stages)
	for _, name := range stages {
		switch r := v.Details[core.Stage(name)].(type) {
		case *core.FileResult:
			fmt.Fprintf(f.out, "Files: %d checked, %d detections\n", r.TotalFiles, r.TotalMalicious())
			f.printErrors(r.Errors)
		case *core.URLResult:
			fmt.Fprintf(f.out, "URLs: %d checked, %d detections\n", r.TotalURLs, r.TotalMalicious())
			if f.verbose {
				for _, u := range r.URLs {
					fmt.Fprintf(f.out, "  %s malicious=%d suspicious=%d harmless=%d\n",
						u.URL, u.Malicious, u.Suspicious, u.Harmless)
				}
			}
			f.printErrors(r.Errors)
		case *core.FraudResult:
			fmt.Fprintf(f.out, "Fraud: detected=%t confidence=%d threshold=%d method=%s\n",
				r.Detected, r.Confidence, r.Threshold, r.Method)
			if r.Reason != "" {
				fmt.Fprintf(f.out, "  Reason: %s\n", r.Reason)
			}
			if len(r.Indicators) > 0 {
				fmt.Fprintf(f.out, "  Indicators: %s\n", strings.Join(r.Indicators, "; "))
			}
		}
	}
}

func (f *CliFilter) printErrors(errs []string) {
	for _, e := range errs {
		fmt.Fprintf(f.out, "  error: %s\n", e)
	}
}

// Start is a no-op for the CLI filter
func (f *CliFilter) Start() error {
	return nil
}

// Stop is a no-op for the CLI filter
func (f *CliFilter) Stop() error {
	return nil
}
