package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractURLs(t *testing.T) {
	urls := ExtractURLs(
		"Reset at https://evil.example/reset now",
		`Click <a href="http://evil.example/login?id=1">here</a> or https://evil.example/reset`,
		"HTTPS://Upper.example/x and https://other.example/",
	)
	assert.Equal(t, []string{
		"https://evil.example/reset",
		"http://evil.example/login?id=1",
		"HTTPS://Upper.example/x",
		"https://other.example/",
	}, urls)

	assert.Empty(t, ExtractURLs("no links here", ""))
}
