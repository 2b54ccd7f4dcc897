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

// Package config loads msgpipe settings from layered files and the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// Layer is one level of the configuration hierarchy.
//
// Precedence (low → high): Defaults < Base < EnvironmentFile < OverrideFile < EnvironmentVariables
type Layer int

const (
	// DefaultsLayer holds values registered with SetDefault.
	DefaultsLayer Layer = iota
	// BaseLayer is msgpipe.yaml.
	BaseLayer
	// EnvironmentFileLayer is msgpipe.<env>.yaml.
	EnvironmentFileLayer
	// OverrideFileLayer is msgpipe.override.yaml, usually kept out of version control.
	OverrideFileLayer
	// EnvironmentVariablesLayer is MSGPIPE_* variables.
	EnvironmentVariablesLayer
)

// Options configures the Manager.
type Options struct {
	// WorkDir resolves relative config file paths.
	WorkDir string
	// ConfigBaseName is the file name without extension. Default "msgpipe".
	ConfigBaseName string
	// ConfigType is yaml, yml or json. Default yaml.
	ConfigType string
	// EnvironmentName selects the environment file, "dev" reads msgpipe.dev.yaml.
	EnvironmentName string
	// OverrideFilename defaults to <base>.override.<ext>.
	OverrideFilename string
	// EnvPrefix is prepended to environment variable names.
	EnvPrefix string
	// EnableAutomaticEnv maps keys to variables, endpoint.address → MSGPIPE_ENDPOINT_ADDRESS.
	EnableAutomaticEnv bool
}

// DefaultOptions reads msgpipe*.yaml from the working directory.
func DefaultOptions() Options {
	return Options{
		WorkDir:            ".",
		ConfigBaseName:     "msgpipe",
		ConfigType:         "yaml",
		EnvPrefix:          "MSGPIPE",
		EnableAutomaticEnv: true,
	}
}

// Manager merges the configuration layers into one viper instance.
type Manager struct {
	mu      sync.RWMutex
	v       *viper.Viper
	options Options
}

// NewManager creates a Manager. Nothing is read until Load.
func NewManager(options Options) *Manager {
	if options.ConfigType == "" {
		options.ConfigType = "yaml"
	}
	if options.ConfigBaseName == "" {
		options.ConfigBaseName = "msgpipe"
	}
	if options.WorkDir == "" {
		options.WorkDir = "."
	}

	v := viper.New()
	if options.EnableAutomaticEnv {
		if options.EnvPrefix != "" {
			v.SetEnvPrefix(options.EnvPrefix)
		}
		v.AutomaticEnv()
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	}
	return &Manager{v: v, options: options}
}

// SetDefault sets the value used when no layer provides key. Keys only
// reachable through environment variables need a default to be unmarshalled.
func (m *Manager) SetDefault(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.v.SetDefault(key, value)
}

// Load merges the file layers in precedence order. Missing files are skipped.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.mergeFileIfExists(m.FilePath(BaseLayer)); err != nil {
		return fmt.Errorf("load base config: %w", err)
	}
	if m.options.EnvironmentName != "" {
		if err := m.mergeFileIfExists(m.FilePath(EnvironmentFileLayer)); err != nil {
			return fmt.Errorf("load env config: %w", err)
		}
	}
	if err := m.mergeFileIfExists(m.FilePath(OverrideFileLayer)); err != nil {
		return fmt.Errorf("load override config: %w", err)
	}
	return nil
}

// Unmarshal decodes the merged settings into target.
func (m *Manager) Unmarshal(target any) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if target == nil {
		return errors.New("target must not be nil")
	}
	return m.v.Unmarshal(target)
}

// Get returns the merged value of key.
func (m *Manager) Get(key string) any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.v.Get(key)
}

// AllSettings returns the merged settings.
func (m *Manager) AllSettings() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.v.AllSettings()
}

// MergeConfigMap merges settings on top of what is loaded so far. Files loaded
// later and environment variables still win.
func (m *Manager) MergeConfigMap(settings map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.v.MergeConfigMap(settings)
}

// FilePath returns the file read for a layer, or "" for layers without a file.
func (m *Manager) FilePath(layer Layer) string {
	dir := m.options.WorkDir
	base := m.options.ConfigBaseName
	ext := m.normalizedConfigExt()
	switch layer {
	case BaseLayer:
		return filepath.Join(dir, base+"."+ext)
	case EnvironmentFileLayer:
		return filepath.Join(dir, fmt.Sprintf("%s.%s.%s", base, strings.ToLower(m.options.EnvironmentName), ext))
	case OverrideFileLayer:
		name := m.options.OverrideFilename
		if name == "" {
			name = base + ".override." + ext
		}
		return filepath.Join(dir, name)
	default:
		return ""
	}
}

func (m *Manager) normalizedConfigExt() string {
	switch t := strings.ToLower(m.options.ConfigType); t {
	case "yml":
		return "yaml"
	case "yaml", "json":
		return t
	default:
		return "yaml"
	}
}

func (m *Manager) mergeFileIfExists(path string) error {
	if path == "" {
		return nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	// Parse into a scratch instance so a broken file leaves the merged state untouched.
	tmp := viper.New()
	tmp.SetConfigType(m.normalizedConfigExt())
	if err := tmp.ReadConfig(bytes.NewReader(content)); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return m.v.MergeConfigMap(tmp.AllSettings())
}
