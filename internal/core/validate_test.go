package core

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestValidURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://example.com", true},
		{"http://sub.example.co.uk/path?q=1", true},
		{"http://localhost:8080/", true},
		{"http://10.0.0.1/login", true},
		{"  https://example.com  ", true},
		{"ftp://example.com", false},
		{"example.com", false},
		{"https://", false},
		{"", false},
		{"https://exa mple.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidURL(tt.url))
		})
	}
}

func TestValidateRequestLimits(t *testing.T) {
	assert.NoError(t, ValidateRequest(&AnalysisRequest{}))

	urls := make([]string, MaxURLs+1)
	for i := range urls {
		urls[i] = "https://example.com"
	}
	assert.ErrorIs(t, ValidateRequest(&AnalysisRequest{URLs: urls}), ErrValidation)
	assert.NoError(t, ValidateRequest(&AnalysisRequest{URLs: urls[:MaxURLs]}))

	many := make([]Attachment, MaxAttachments+5)
	for i := range many {
		many[i] = Attachment{Filename: "scan.pdf", Content: []byte("x")}
	}
	assert.NoError(t, ValidateRequest(&AnalysisRequest{Attachments: many}), "mail content is never rejected for size")
}

func TestValidateItemIDs(t *testing.T) {
	assert.NoError(t, ValidateItemIDs([]string{"18c1a2b3", "msg_01-x"}))
	assert.ErrorIs(t, ValidateItemIDs([]string{}), ErrValidation)
	assert.ErrorIs(t, ValidateItemIDs([]string{"a b"}), ErrValidation)
	assert.ErrorIs(t, ValidateItemIDs([]string{""}), ErrValidation)
}

func TestSanitized(t *testing.T) {
	req := &AnalysisRequest{
		Subject: "  Hi\x00 there " + strings.Repeat("s", maxSubjectLen),
		Body:    "body\x00",
		HTML:    strings.Repeat("h", maxHTMLLen+10),
	}
	out := sanitized(req)

	assert.True(t, strings.HasPrefix(out.Subject, "Hi there "))
	assert.LessOrEqual(t, len(out.Subject), maxSubjectLen)
	assert.Equal(t, "body", out.Body)
	assert.Len(t, out.HTML, maxHTMLLen)
	assert.Contains(t, req.Body, "\x00", "input is not modified")
}

func TestSanitizedKeepsRunesWhole(t *testing.T) {
	subject := strings.Repeat("a", maxSubjectLen-1) + "Chuyển khoản gấp"
	out := sanitized(&AnalysisRequest{Subject: subject})

	assert.True(t, utf8.ValidString(out.Subject))
	assert.Equal(t, strings.Repeat("a", maxSubjectLen-1)+"C", out.Subject)

	cut := sanitized(&AnalysisRequest{Subject: strings.Repeat("a", maxSubjectLen-1) + "ể"})
	assert.Equal(t, strings.Repeat("a", maxSubjectLen-1), cut.Subject)
}
