package di

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mikey/phishguard/internal/config"
	"github.com/mikey/phishguard/internal/core"
	"github.com/mikey/phishguard/internal/credentials"
	"github.com/mikey/phishguard/internal/factory"
	"github.com/mikey/phishguard/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const testConfig = `
llm:
  provider: none
reputation:
  api_keys: [key-a, key-b]
cache:
  type: memory
mailbox:
  credentials_file: ""
server:
  filter_type: postfix
  listen_address: 127.0.0.1:0
`

func TestBuildContainerWiresPipeline(t *testing.T) {
	container, err := BuildContainer(writeConfig(t, testConfig))
	require.NoError(t, err)
	defer Shutdown(container)

	err = container.Invoke(func(
		analyzer core.Analyzer,
		urls core.URLChecker,
		pool *credentials.Pool,
		cache factory.Repository,
		scheduler *core.Scheduler,
		llm core.LLMClient,
		filter ports.EmailFilter,
	) {
		assert.NotNil(t, analyzer)
		assert.Same(t, analyzer, urls)
		assert.Equal(t, 2, pool.Len())
		assert.NotNil(t, cache)
		assert.Nil(t, scheduler)
		assert.Nil(t, llm)
		assert.NotNil(t, filter)
	})
	require.NoError(t, err)
}

func TestBuildCLIContainerAppliesFlags(t *testing.T) {
	flags := &CLIFlags{
		ConfigFile:   writeConfig(t, testConfig),
		APIKeys:      "k1,k2,k3",
		AnalysisWait: "1s",
		Threshold:    55,
		NoCache:      true,
	}
	container, err := BuildCLIContainer(flags)
	require.NoError(t, err)
	defer Shutdown(container)

	err = container.Invoke(func(cfg *config.Config, pool *credentials.Pool, cache factory.Repository) {
		assert.Equal(t, "cli", cfg.GetServer().FilterType)
		assert.Equal(t, 55, cfg.GetFraud().Threshold)
		assert.Equal(t, 3, pool.Len())
		assert.Nil(t, cache)
	})
	require.NoError(t, err)
}

func TestItemIDs(t *testing.T) {
	flags := &CLIFlags{IDs: " a1, ,b2,"}
	assert.Equal(t, []string{"a1", "b2"}, flags.ItemIDs())
	assert.Empty(t, (&CLIFlags{}).ItemIDs())
}
