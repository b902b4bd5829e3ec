package fraud

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mikey/phishguard/internal/core"
	"github.com/mikey/phishguard/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockLLM struct {
	mock.Mock
}

func (m *mockLLM) Complete(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

func (m *mockLLM) Name() string { return "mock-model" }

const (
	ceoSubject = "Urgent transfer"
	ceoBody    = "transfer 100 million to account 0123456789, don't call, I'm in a meeting"
)

func newClassifier(llm core.LLMClient) *Classifier {
	logger := zap.NewNop()
	return NewClassifier(llm, utils.NewTextProcessor(logger), Config{}, logger)
}

func TestClassifyEmptyTextSkipsProvider(t *testing.T) {
	llm := &mockLLM{}
	result := newClassifier(llm).Classify(context.Background(), "", "  ", "<p> </p>")

	assert.False(t, result.Detected)
	assert.Equal(t, 0, result.Confidence)
	assert.Equal(t, core.MethodEmpty, result.Method)
	llm.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestClassifyWithoutProviderUsesHeuristic(t *testing.T) {
	result := newClassifier(nil).Classify(context.Background(), ceoSubject, ceoBody, "")

	assert.True(t, result.Detected)
	assert.Equal(t, 100, result.Confidence)
	assert.Equal(t, core.MethodHeuristic, result.Method)
	assert.Len(t, result.Indicators, 4)
}

func TestClassifyStrictJSON(t *testing.T) {
	llm := &mockLLM{}
	llm.On("Complete", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "transfer 100 million") && !strings.Contains(p, "<b>")
	})).Return(`{"detected":true,"confidence":70,"reason":"urgent transfer request","indicators":["urgency","secrecy"]}`, nil)

	result := newClassifier(llm).Classify(context.Background(), ceoSubject, ceoBody, "<b>CEO</b>")

	assert.True(t, result.Detected)
	assert.Equal(t, 70, result.Confidence)
	assert.Equal(t, "urgent transfer request", result.Reason)
	assert.Equal(t, []string{"urgency", "secrecy"}, result.Indicators)
	assert.Equal(t, core.MethodAI, result.Method)
	llm.AssertExpectations(t)
}

func TestClassifyProviderFailureFallsBack(t *testing.T) {
	tests := []struct {
		name       string
		completion string
		err        error
	}{
		{name: "unreachable", err: errors.New("connection refused")},
		{name: "rate limited", err: core.ErrRateLimited},
		{name: "empty completion", completion: "   "},
		{name: "unusable completion", completion: "I cannot help with that request."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &mockLLM{}
			llm.On("Complete", mock.Anything, mock.Anything).Return(tt.completion, tt.err)

			result := newClassifier(llm).Classify(context.Background(), ceoSubject, ceoBody, "")

			assert.Equal(t, core.MethodHeuristic, result.Method)
			assert.True(t, result.Detected)
			assert.Equal(t, 100, result.Confidence)
		})
	}
}

func TestParseCompletionLayers(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		detected   bool
		confidence int
		method     string
	}{
		{
			name:       "strict json",
			content:    `{"detected": false, "confidence": 12, "reason": "routine"}`,
			detected:   false,
			confidence: 12,
			method:     core.MethodAI,
		},
		{
			name:       "risk score overrides confidence",
			content:    `{"detected": true, "confidence": 40, "risk_score": 85}`,
			detected:   true,
			confidence: 85,
			method:     core.MethodAI,
		},
		{
			name:       "fenced json",
			content:    "```json\n{\"detected\": true, \"confidence\": 64}\n```",
			detected:   true,
			confidence: 64,
			method:     core.MethodAI,
		},
		{
			name:       "json inside prose",
			content:    "Here is my analysis: {\"detected\": true, \"confidence\": 55} Hope this helps.",
			detected:   true,
			confidence: 55,
			method:     core.MethodAI,
		},
		{
			name:       "out of range confidence is clamped",
			content:    `{"detected": true, "confidence": 180}`,
			detected:   true,
			confidence: 100,
			method:     core.MethodAI,
		},
		{
			name:       "prose with stated confidence",
			content:    "This is clearly CEO fraud, suspicious. confidence: 85",
			detected:   true,
			confidence: 85,
			method:     core.MethodAISemantic,
		},
		{
			name:       "prose stated confidence is capped",
			content:    "Fraud detected, confidence: 99",
			detected:   true,
			confidence: 95,
			method:     core.MethodAISemantic,
		},
		{
			name:       "prose leaning safe",
			content:    "The message looks legitimate and safe.",
			detected:   false,
			confidence: 24,
			method:     core.MethodAISemantic,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, ok := parseCompletion(tt.content)
			require.True(t, ok)
			assert.Equal(t, tt.detected, result.Detected)
			assert.Equal(t, tt.confidence, result.Confidence)
			assert.Equal(t, tt.method, result.Method)
		})
	}
}

func TestParseCompletionNothingUsable(t *testing.T) {
	_, ok := parseCompletion("")
	assert.False(t, ok)

	_, ok = parseCompletion("I cannot help with that request.")
	assert.False(t, ok)
}

func TestHeuristicCategories(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		detected   bool
		confidence int
	}{
		{name: "benign", text: "Lunch on Friday? Let me know.", detected: false, confidence: 0},
		{name: "money and account", text: "Please update the bank payment details", detected: true, confidence: 60},
		{name: "urgency alone", text: "Urgent: please review the slides", detected: false, confidence: 30},
		{name: "urgency account secrecy", text: "URGENT, send me the account number. Keep this between us", detected: true, confidence: 60},
		{name: "vietnamese", text: "Chuyển gấp 100tr vào STK này, đừng gọi anh đang họp", detected: true, confidence: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := heuristic(tt.text, "test")
			assert.Equal(t, tt.detected, result.Detected)
			assert.Equal(t, tt.confidence, result.Confidence)
			assert.Equal(t, core.MethodHeuristic, result.Method)
		})
	}
}
