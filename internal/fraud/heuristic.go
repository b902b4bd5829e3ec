package fraud

import (
	"fmt"
	"strings"

	"github.com/mikey/phishguard/internal/core"
	"golang.org/x/text/cases"
)

type category struct {
	name     string
	weight   int
	keywords []string
}

// Signal categories of a funds-transfer request. Vietnamese terms cover the
// mail the service was first deployed against.
var categories = []category{
	{
		name:   "urgency",
		weight: 30,
		keywords: []string{
			"urgent", "urgently", "asap", "immediately", "right now", "right away",
			"today", "as soon as possible", "quickly", "in a meeting",
			"gấp", "khẩn", "ngay", "đang họp",
		},
	},
	{
		name:   "money",
		weight: 40,
		keywords: []string{
			"transfer", "wire", "payment", "invoice", "funds", "million", "usd", "$",
			"gift card", "remittance",
			"chuyển", "tiền", "triệu", "100tr", "thanh toán",
		},
	},
	{
		name:   "account",
		weight: 20,
		keywords: []string{
			"account", "bank", "iban", "swift", "routing number", "beneficiary",
			"stk", "số tài khoản", "ngân hàng", "tech em", "tech anh",
		},
	},
	{
		name:   "secrecy",
		weight: 10,
		keywords: []string{
			"don't call", "do not call", "confidential", "keep this between us",
			"don't tell", "do not tell", "discreet", "can't talk", "cannot talk",
			"đừng gọi", "bí mật", "không gọi",
		},
	},
}

var folder = cases.Fold()

// heuristic classifies text from keyword categories alone
func heuristic(text, reason string) *core.FraudResult {
	folded := folder.String(text)

	matched := make(map[string]bool, len(categories))
	confidence := 0
	indicators := []string{}
	for _, cat := range categories {
		for _, kw := range cat.keywords {
			if strings.Contains(folded, folder.String(kw)) {
				matched[cat.name] = true
				confidence += cat.weight
				indicators = append(indicators, fmt.Sprintf("%s: %q", cat.name, kw))
				break
			}
		}
	}

	urgency, money := matched["urgency"], matched["money"]
	account, secrecy := matched["account"], matched["secrecy"]
	detected := (urgency && money) || (money && account) || (urgency && account && secrecy)

	return &core.FraudResult{
		Detected:   detected,
		Confidence: clamp(confidence),
		Reason:     reason,
		Indicators: indicators,
		Method:     core.MethodHeuristic,
	}
}

func clamp(v int) int {
	return max(0, min(100, v))
}
