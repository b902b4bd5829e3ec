package core

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Analysis limits. Attachments and URLs past their limit are skipped and
// recorded in the stage evidence; only batch size and caller URL lists are
// rejected outright.
const (
	MaxAttachments = 10
	MaxURLs        = 50
	MaxBatchSize   = 100

	maxSubjectLen = 500
	maxBodyLen    = 50000
	maxHTMLLen    = 100000
)

var (
	urlFormat = regexp.MustCompile(`(?i)^https?://` +
		`(?:(?:[A-Z0-9](?:[A-Z0-9-]{0,61}[A-Z0-9])?\.)+[A-Z]{2,63}\.?|localhost|\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})` +
		`(?::\d+)?(?:/?|[/?]\S+)$`)
	itemIDFormat = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidateRequest rejects requests whose shape is malformed before any
// stage runs. Message content is never rejected for its size: a mail with
// many or large attachments is still analysed.
func ValidateRequest(req *AnalysisRequest) error {
	if req == nil {
		return invalid("request", "body is required")
	}
	for _, a := range req.Attachments {
		if a.Filename == "" {
			return invalid("attachments", "attachment must have a filename")
		}
	}
	if len(req.URLs) > MaxURLs {
		return invalid("urls", "maximum %d URLs allowed", MaxURLs)
	}
	for _, u := range req.URLs {
		if !ValidURL(u) {
			return invalid("urls", "invalid URL format: %s", u)
		}
	}
	return nil
}

// ValidURL reports whether s looks like an absolute http(s) URL
func ValidURL(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && urlFormat.MatchString(s)
}

// ValidateItemIDs checks a batch of mailbox ids
func ValidateItemIDs(ids []string) error {
	if len(ids) == 0 {
		return invalid("ids", "at least one id is required")
	}
	if len(ids) > MaxBatchSize {
		return invalid("ids", "maximum %d ids per batch", MaxBatchSize)
	}
	for _, id := range ids {
		if !itemIDFormat.MatchString(id) {
			return invalid("ids", "malformed id %q", id)
		}
	}
	return nil
}

// sanitized returns a copy with null bytes removed and text parts bounded
func sanitized(req *AnalysisRequest) *AnalysisRequest {
	out := *req
	out.Subject = sanitizeString(req.Subject, maxSubjectLen)
	out.Body = sanitizeString(req.Body, maxBodyLen)
	out.HTML = sanitizeString(req.HTML, maxHTMLLen)
	return &out
}

func sanitizeString(s string, max int) string {
	s = strings.ReplaceAll(s, "\x00", "")
	if len(s) > max {
		s = truncateUTF8(s, max)
	}
	return strings.TrimSpace(strings.ToValidUTF8(s, ""))
}

// truncateUTF8 cuts s to at most max bytes without splitting a rune
func truncateUTF8(s string, max int) string {
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
