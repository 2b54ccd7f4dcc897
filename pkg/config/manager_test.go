// Copyright © 2025 jackelyj <dreamerlyj@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innovationmech/msgpipe/pkg/config/testutil"
)

type layeredConfig struct {
	Endpoint struct {
		Address string `mapstructure:"address"`
	} `mapstructure:"endpoint"`
	Repository struct {
		Backend string `mapstructure:"backend"`
		Redis   struct {
			MaxLen int    `mapstructure:"max_len"`
			Stream string `mapstructure:"stream"`
		} `mapstructure:"redis"`
	} `mapstructure:"repository"`
}

func TestHierarchicalPrecedence(t *testing.T) {
	sb := testutil.NewSandbox(t)
	sb.SetEnv("MSGPIPE_ENDPOINT_ADDRESS", ":9300")
	sb.SetEnv("MSGPIPE_REPOSITORY_REDIS_MAX_LEN", "200")

	sb.WriteFile("msgpipe.yaml", `
endpoint:
  address: ":9000"
repository:
  backend: file
  redis:
    max_len: 10
    stream: base
`)
	sb.WriteFile("msgpipe.dev.yaml", `
endpoint:
  address: ":9100"
repository:
  backend: redis
  redis:
    stream: dev
`)
	sb.WriteFile("msgpipe.override.yaml", `
endpoint:
  address: ":9200"
repository:
  redis:
    max_len: 100
`)

	m := NewManager(Options{
		WorkDir:            sb.Dir,
		EnvironmentName:    "dev",
		EnvPrefix:          "MSGPIPE",
		EnableAutomaticEnv: true,
	})
	m.SetDefault("endpoint.address", ":8080")
	m.SetDefault("repository.redis.max_len", 1)
	require.NoError(t, m.Load())

	var cfg layeredConfig
	require.NoError(t, m.Unmarshal(&cfg))

	// defaults < base < env file < override < env vars
	assert.Equal(t, ":9300", cfg.Endpoint.Address)
	assert.Equal(t, 200, cfg.Repository.Redis.MaxLen)
	assert.Equal(t, "dev", cfg.Repository.Redis.Stream)
	assert.Equal(t, "redis", cfg.Repository.Backend)
}

func TestMissingFilesAreIgnored(t *testing.T) {
	sb := testutil.NewSandbox(t)
	sb.WriteFile("msgpipe.yaml", `endpoint: { address: ":8000" }`)

	opts := DefaultOptions()
	opts.WorkDir = sb.Dir
	opts.EnvironmentName = "prod"
	m := NewManager(opts)
	require.NoError(t, m.Load())

	var cfg layeredConfig
	require.NoError(t, m.Unmarshal(&cfg))
	assert.Equal(t, ":8000", cfg.Endpoint.Address)
}

func TestBrokenFileKeepsState(t *testing.T) {
	sb := testutil.NewSandbox(t)
	sb.WriteFile("msgpipe.yaml", "endpoint:\n  address: \":8000\"\n")
	sb.WriteFile("msgpipe.override.yaml", "endpoint: [unclosed\n")

	opts := DefaultOptions()
	opts.WorkDir = sb.Dir
	m := NewManager(opts)
	err := m.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load override config")
	assert.Equal(t, ":8000", m.Get("endpoint.address"))
}

func TestFilePath(t *testing.T) {
	m := NewManager(Options{WorkDir: "/etc/msgpipe", ConfigType: "yml", EnvironmentName: "Prod"})
	assert.Equal(t, "/etc/msgpipe/msgpipe.yaml", m.FilePath(BaseLayer))
	assert.Equal(t, "/etc/msgpipe/msgpipe.prod.yaml", m.FilePath(EnvironmentFileLayer))
	assert.Equal(t, "/etc/msgpipe/msgpipe.override.yaml", m.FilePath(OverrideFileLayer))
	assert.Empty(t, m.FilePath(EnvironmentVariablesLayer))
}

func TestUnmarshalNilTarget(t *testing.T) {
	m := NewManager(DefaultOptions())
	assert.Error(t, m.Unmarshal(nil))
}
