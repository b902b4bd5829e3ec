package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// checkFiles hashes every downloadable attachment and looks it up
func (p *Pipeline) checkFiles(ctx context.Context, req *AnalysisRequest) (StageResult, error) {
	if len(req.Attachments) == 0 {
		return nil, nil
	}
	p.logger.Info("Analyzing attachments", zap.Int("count", len(req.Attachments)))

	result := &FileResult{TotalFiles: len(req.Attachments)}
	for i, att := range req.Attachments {
		if i >= MaxAttachments {
			result.Errors = append(result.Errors,
				fmt.Sprintf("%s: skipped, over the %d attachment limit", att.Filename, MaxAttachments))
			continue
		}
		if att.Content == nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: content unavailable", att.Filename))
			continue
		}

		hash := att.Hash()
		check := FileCheck{Filename: att.Filename, Hash: hash}
		counts, _, err := p.lookup(ctx, "file:"+hash, func(ctx context.Context) (*ReputationCounts, error) {
			return p.reputation.CheckFileHash(ctx, hash)
		})
		if err != nil {
			if errors.Is(err, ErrNoCredentials) {
				return nil, err
			}
			p.logger.Error("Failed to check attachment",
				zap.String("filename", att.Filename),
				zap.Error(err))
			check.Error = err.Error()
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", att.Filename, err))
		} else {
			check.ReputationCounts = *counts
		}
		result.Files = append(result.Files, check)
	}

	if result.Malicious() {
		p.logger.Warn("Malicious attachment detected", zap.Int("detections", result.TotalMalicious()))
	}
	return result, nil
}

// checkURLs looks up the caller's URLs, or those found in the text, with
// bounded concurrency. Results keep input order.
func (p *Pipeline) checkURLs(ctx context.Context, req *AnalysisRequest) (StageResult, error) {
	urls := req.URLs
	if len(urls) == 0 {
		urls = ExtractURLs(req.Subject, req.Body, req.HTML)
	}
	if len(urls) == 0 {
		return nil, nil
	}
	var skipped []string
	if len(urls) > MaxURLs {
		skipped = urls[MaxURLs:]
		urls = urls[:MaxURLs]
	}
	p.logger.Info("Analyzing URLs", zap.Int("count", len(urls)), zap.Int("workers", p.cfg.URLWorkers))

	checks := make([]URLCheck, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.URLWorkers)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			check, err := p.checkURL(gctx, u)
			if err != nil {
				return err
			}
			checks[i] = check
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &URLResult{TotalURLs: len(urls) + len(skipped), URLs: checks}
	for _, c := range checks {
		if c.Error != "" {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", c.URL, c.Error))
		}
	}
	for _, u := range skipped {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: skipped, over the %d URL limit", u, MaxURLs))
	}
	if result.Malicious() {
		p.logger.Warn("Malicious URL detected", zap.Int("detections", result.TotalMalicious()))
	}
	return result, nil
}

// CheckURL looks up a single caller-supplied URL outside of any email
func (p *Pipeline) CheckURL(ctx context.Context, url string) (*URLCheck, error) {
	url = strings.TrimSpace(url)
	if !ValidURL(url) {
		return nil, invalid("url", "invalid URL format: %s", url)
	}
	check, err := p.checkURL(ctx, url)
	if err != nil {
		return nil, err
	}
	return &check, nil
}

// checkURL submits one URL, waits for the service to finish, then polls once.
// Only credential exhaustion is returned as an error.
func (p *Pipeline) checkURL(ctx context.Context, url string) (URLCheck, error) {
	check := URLCheck{URL: url}
	counts, _, err := p.lookup(ctx, "url:"+url, func(ctx context.Context) (*ReputationCounts, error) {
		id, err := p.reputation.SubmitURL(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("submit: %w", err)
		}
		check.SubmissionID = id

		p.logger.Debug("URL submitted, waiting for analysis",
			zap.String("url", url),
			zap.Duration("wait", p.cfg.AnalysisWait))
		if err := p.sleep(ctx, p.cfg.AnalysisWait); err != nil {
			return nil, err
		}
		return p.reputation.GetURLVerdict(ctx, id)
	})
	if err != nil {
		if errors.Is(err, ErrNoCredentials) {
			return check, err
		}
		p.logger.Error("Failed to check URL", zap.String("url", url), zap.Error(err))
		check.Error = err.Error()
		return check, nil
	}

	check.ReputationCounts = *counts
	return check, nil
}

// checkFraud always runs when earlier stages stayed negative
func (p *Pipeline) checkFraud(ctx context.Context, req *AnalysisRequest) (StageResult, error) {
	p.logger.Info("Analyzing CEO fraud")

	result := &FraudResult{Method: MethodEmpty}
	if classified := p.classifier.Classify(ctx, req.Subject, req.Body, req.HTML); classified != nil {
		copied := *classified
		result = &copied
	}
	result.Threshold = p.cfg.FraudThreshold

	if result.Malicious() {
		p.logger.Warn("CEO fraud detected",
			zap.Int("confidence", result.Confidence),
			zap.String("method", result.Method))
	}
	return result, nil
}
