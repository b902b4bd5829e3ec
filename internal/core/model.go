package core

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Stage identifies one step of the analysis pipeline
type Stage string

const (
	StageFile  Stage = "file"
	StageURL   Stage = "url"
	StageFraud Stage = "fraud"
	StageNone  Stage = "none"
)

// Threat tags attached to a verdict by the stage that triggered it
const (
	ThreatMaliciousFile = "malicious_file"
	ThreatMaliciousURL  = "malicious_url"
	ThreatCEOFraud      = "ceo_fraud"
)

// Outcome is the terminal state of one pipeline run
type Outcome int

const (
	AllClear Outcome = iota
	FileTriggered
	URLTriggered
	FraudTriggered
)

func (o Outcome) String() string {
	switch o {
	case FileTriggered:
		return "file_triggered"
	case URLTriggered:
		return "url_triggered"
	case FraudTriggered:
		return "fraud_triggered"
	default:
		return "all_clear"
	}
}

// Attachment is one file attached to an email. Content is nil when the
// mailbox could not download it.
type Attachment struct {
	Filename string
	MimeType string
	Content  []byte
}

// Hash returns the hex SHA-256 of the attachment content
func (a Attachment) Hash() string {
	sum := sha256.Sum256(a.Content)
	return hex.EncodeToString(sum[:])
}

// AnalysisRequest is the content of one email handed to the pipeline.
// URLs, when set, replaces extraction from the text parts.
type AnalysisRequest struct {
	Subject     string
	Body        string
	HTML        string
	Attachments []Attachment
	URLs        []string
}

// Text joins subject, body and HTML the way every text-based stage sees them
func (r *AnalysisRequest) Text() string {
	return r.Subject + " " + r.Body + " " + r.HTML
}

// ReputationCounts is the engine tally returned by the reputation service
type ReputationCounts struct {
	Malicious  int `json:"malicious"`
	Suspicious int `json:"suspicious"`
	Harmless   int `json:"harmless"`
}

// StageResult is the evidence produced by one pipeline stage
type StageResult interface {
	Stage() Stage
	// Malicious is derived from the stage's own evidence, never stored
	Malicious() bool
	Threat() string
}

// FileCheck is the reputation outcome for one attachment
type FileCheck struct {
	Filename string
	Hash     string
	ReputationCounts
	Error string `json:",omitempty"`
}

// FileResult holds the attachment stage evidence
type FileResult struct {
	TotalFiles int
	Files      []FileCheck
	Errors     []string
}

func (r *FileResult) Stage() Stage   { return StageFile }
func (r *FileResult) Threat() string { return ThreatMaliciousFile }

// TotalMalicious sums malicious detections over all checked files
func (r *FileResult) TotalMalicious() int {
	total := 0
	for _, f := range r.Files {
		total += f.Malicious
	}
	return total
}

func (r *FileResult) Malicious() bool { return r.TotalMalicious() > 0 }

// URLCheck is the reputation outcome for one URL
type URLCheck struct {
	URL          string
	SubmissionID string `json:",omitempty"`
	ReputationCounts
	Error string `json:",omitempty"`
}

// URLResult holds the URL stage evidence
type URLResult struct {
	TotalURLs int
	URLs      []URLCheck
	Errors    []string
}

func (r *URLResult) Stage() Stage   { return StageURL }
func (r *URLResult) Threat() string { return ThreatMaliciousURL }

// TotalMalicious sums malicious detections over all URLs, without deduplication
func (r *URLResult) TotalMalicious() int {
	total := 0
	for _, u := range r.URLs {
		total += u.Malicious
	}
	return total
}

func (r *URLResult) Malicious() bool { return r.TotalMalicious() > 0 }

// Fraud classification methods
const (
	MethodAI         = "ai"
	MethodAISemantic = "ai_semantic"
	MethodHeuristic  = "heuristic"
	MethodEmpty      = "empty"
)

// FraudResult holds the business-email-compromise stage evidence
type FraudResult struct {
	Detected   bool
	Confidence int
	Threshold  int
	Reason     string
	Indicators []string
	Method     string
}

func (r *FraudResult) Stage() Stage   { return StageFraud }
func (r *FraudResult) Threat() string { return ThreatCEOFraud }

func (r *FraudResult) Malicious() bool {
	return r.Detected && r.Confidence >= r.Threshold
}

// Verdict is the final, explainable decision for one email. Details only
// contains the stages that actually ran.
type Verdict struct {
	IsPhishing      bool
	TriggeringStage Stage
	Threats         []string
	Details         map[Stage]StageResult
}

func newVerdict(trigger StageResult, details map[Stage]StageResult) *Verdict {
	v := &Verdict{
		TriggeringStage: StageNone,
		Threats:         []string{},
		Details:         details,
	}
	if trigger != nil {
		v.IsPhishing = true
		v.TriggeringStage = trigger.Stage()
		v.Threats = append(v.Threats, trigger.Threat())
	}
	return v
}

// Outcome maps the triggering stage to the pipeline's terminal state
func (v *Verdict) Outcome() Outcome {
	switch v.TriggeringStage {
	case StageFile:
		return FileTriggered
	case StageURL:
		return URLTriggered
	case StageFraud:
		return FraudTriggered
	default:
		return AllClear
	}
}

// Labels names the mailbox labels applied after a verdict
type Labels struct {
	Phishing string
	Safe     string
}

// Label picks the mailbox label for this verdict
func (v *Verdict) Label(l Labels) string {
	if v.IsPhishing {
		return l.Phishing
	}
	return l.Safe
}

// ItemOutcome is the per-email result of a batch scan
type ItemOutcome struct {
	ID      string
	Success bool
	Verdict *Verdict
	Error   string
	Worker  int
}

// BatchOutcome aggregates a whole batch scan
type BatchOutcome struct {
	BatchID   string
	Workers   int
	Items     []ItemOutcome
	Processed int
	Flagged   int
	Safe      int
	Errored   int
	Duration  time.Duration
}

// CacheEntry is a cached reputation lookup for one artifact
type CacheEntry struct {
	Key       string
	Counts    ReputationCounts
	LastSeen  time.Time
	ExpiresAt time.Time
}
