package fraud

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/mikey/phishguard/internal/core"
)

const maxSemanticConfidence = 95

// aiResponse is the JSON object the prompt asks the model for
type aiResponse struct {
	Detected   bool     `json:"detected"`
	Confidence float64  `json:"confidence"`
	Reason     string   `json:"reason"`
	Indicators []string `json:"indicators"`
	RiskScore  float64  `json:"risk_score"`
}

var (
	embeddedObject   = regexp.MustCompile(`(?s)\{.*\}`)
	codeFence        = regexp.MustCompile("```(?:json)?")
	statedConfidence = regexp.MustCompile(`["']?confidence["']?\s*[:=]\s*(\d+)`)
	wordPattern      = regexp.MustCompile(`[\p{L}\p{N}]+`)
)

var (
	fraudWords   = []string{"fraud", "scam", "phishing", "detected", "suspicious", "malicious", "true", "yes", "impersonation"}
	safeWords    = []string{"safe", "legitimate", "benign", "normal", "false", "no"}
	fraudPhrases = []string{"ceo fraud", "red flag"}
	safePhrases  = []string{"not detected", "not fraud", "no indication"}
)

// parseCompletion turns a model answer into a result, trying strict JSON,
// then a JSON object embedded in prose or code fences, then a scan for
// indicator words. ok is false when none of the layers found anything.
func parseCompletion(content string) (result *core.FraudResult, ok bool) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, false
	}

	var resp aiResponse
	if err := json.Unmarshal([]byte(content), &resp); err == nil {
		return resp.toResult(), true
	}

	unfenced := codeFence.ReplaceAllString(content, "")
	if obj := embeddedObject.FindString(unfenced); obj != "" {
		if err := json.Unmarshal([]byte(obj), &resp); err == nil {
			return resp.toResult(), true
		}
	}

	return scanIndicators(content)
}

func (r aiResponse) toResult() *core.FraudResult {
	confidence := clamp(int(math.Round(r.Confidence)))
	if risk := clamp(int(math.Round(r.RiskScore))); risk > 0 {
		confidence = risk
	}
	reason := r.Reason
	if reason == "" {
		reason = "AI analysis"
	}
	indicators := r.Indicators
	if indicators == nil {
		indicators = []string{}
	}
	return &core.FraudResult{
		Detected:   r.Detected,
		Confidence: confidence,
		Reason:     reason,
		Indicators: indicators,
		Method:     core.MethodAI,
	}
}

// scanIndicators estimates a verdict from the wording of a free-text answer
func scanIndicators(content string) (*core.FraudResult, bool) {
	lower := strings.ToLower(content)
	words := make(map[string]bool)
	for _, w := range wordPattern.FindAllString(lower, -1) {
		words[w] = true
	}

	fraudScore := countMatches(lower, words, fraudWords, fraudPhrases)
	safeScore := countMatches(lower, words, safeWords, safePhrases)

	confidence := 0
	if m := statedConfidence.FindStringSubmatch(lower); m != nil {
		confidence, _ = strconv.Atoi(m[1])
	}
	if fraudScore == 0 && safeScore == 0 && confidence == 0 {
		return nil, false
	}

	if confidence == 0 {
		switch {
		case fraudScore > safeScore:
			confidence = min(70, 50+fraudScore*5)
		case safeScore > fraudScore:
			confidence = max(10, 30-safeScore*3)
		default:
			confidence = 50
		}
	}

	excerpt := content
	if len(excerpt) > 200 {
		excerpt = strings.ToValidUTF8(excerpt[:200], "")
	}
	return &core.FraudResult{
		Detected:   fraudScore > safeScore && fraudScore > 0,
		Confidence: clamp(min(confidence, maxSemanticConfidence)),
		Reason:     "Estimated from the wording of the AI answer: " + excerpt,
		Indicators: []string{},
		Method:     core.MethodAISemantic,
	}, true
}

func countMatches(lower string, words map[string]bool, singles, phrases []string) int {
	n := 0
	for _, w := range singles {
		if words[w] {
			n++
		}
	}
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			n++
		}
	}
	return n
}
