package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := NewFromViper(NewEmptyViper())
	require.NoError(t, cfg.Validate())

	rep := cfg.GetReputation()
	assert.Equal(t, "https://www.virustotal.com/api/v3", rep.BaseURL)
	assert.Equal(t, 30*time.Second, rep.Timeout)
	assert.Equal(t, 15*time.Second, rep.AnalysisWait)
	assert.Equal(t, time.Minute, rep.Window)
	assert.Equal(t, 4, rep.RequestsPerWindow)
	assert.Empty(t, rep.APIKeys)

	fraud := cfg.GetFraud()
	assert.Equal(t, 30, fraud.Threshold)
	assert.Equal(t, 45*time.Second, fraud.Timeout)

	scan := cfg.GetScan()
	assert.Equal(t, 2, scan.MaxWorkers)
	assert.Equal(t, 10, scan.MaxEmails)

	assert.Equal(t, "memory", cfg.GetCache().Type)
	assert.Equal(t, "X-Phishing-Status", cfg.GetServer().Headers.Status)
}

func TestCommaSeparatedKeys(t *testing.T) {
	v := NewEmptyViper()
	v.Set("reputation.api_keys", "k1, k2 ,,k3")
	cfg := NewFromViper(v)

	assert.Equal(t, []string{"k1", "k2", "k3"}, cfg.GetReputation().APIKeys)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value interface{}
	}{
		{name: "threshold above 100", key: "fraud.threshold", value: 150},
		{name: "negative threshold", key: "fraud.threshold", value: -1},
		{name: "zero quota", key: "reputation.requests_per_window", value: 0},
		{name: "bad duration", key: "reputation.window", value: "a minute"},
		{name: "no workers", key: "scan.max_workers", value: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewEmptyViper()
			v.Set(tt.key, tt.value)
			assert.Error(t, NewFromViper(v).Validate())
		})
	}
}

func TestNewReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
reputation:
  api_keys: ["alpha", "beta"]
  requests_per_window: 8
fraud:
  threshold: 45
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := New(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, cfg.GetReputation().APIKeys)
	assert.Equal(t, 8, cfg.GetReputation().RequestsPerWindow)
	assert.Equal(t, 45, cfg.GetFraud().Threshold)
	assert.Equal(t, 2, cfg.GetScan().URLWorkers)
}
