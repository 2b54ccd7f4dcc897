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

// Package global holds the flags shared by every msgpipe command.
package global

import (
	"github.com/innovationmech/msgpipe/pkg/config"
	"github.com/innovationmech/msgpipe/pkg/logger"
)

// Options are the persistent root flags.
type Options struct {
	// ConfigDir is searched for msgpipe.yaml and its layers.
	ConfigDir string
	// Env selects msgpipe.<env>.yaml.
	Env string
}

// Settings loads and validates the configuration and applies the log level.
func (o *Options) Settings() (*config.Settings, error) {
	opts := config.DefaultOptions()
	if o.ConfigDir != "" {
		opts.WorkDir = o.ConfigDir
	}
	opts.EnvironmentName = o.Env
	s, err := config.Load(opts)
	if err != nil {
		return nil, err
	}
	if err := logger.SetLevel(s.Logging.Level); err != nil {
		return nil, err
	}
	return s, nil
}
