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

package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Logger is the process-wide logger.
	Logger *zap.Logger
	// mu protects Logger and level
	mu sync.RWMutex
	// level is shared by every logger built here so it can change at runtime
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// InitLogger builds the production logger once. Later calls are no-ops.
func InitLogger() {
	mu.Lock()
	defer mu.Unlock()

	if Logger != nil {
		return
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	l, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	Logger = l
}

// GetLogger returns the process-wide logger, initializing it if necessary.
func GetLogger() *zap.Logger {
	mu.RLock()
	if Logger != nil {
		defer mu.RUnlock()
		return Logger
	}
	mu.RUnlock()

	InitLogger()

	mu.RLock()
	defer mu.RUnlock()
	return Logger
}

// SetLevel changes the minimum level of the process-wide logger.
func SetLevel(name string) error {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return err
	}
	level.SetLevel(lvl)
	return nil
}

// GetLevel returns the current minimum level name.
func GetLevel() string {
	return level.Level().String()
}

// OrDefault returns l, or the process-wide logger when l is nil.
func OrDefault(l *zap.Logger) *zap.Logger {
	if l != nil {
		return l
	}
	return GetLogger()
}

// ResetLogger flushes and drops the logger. Tests only.
func ResetLogger() {
	mu.Lock()
	defer mu.Unlock()

	if Logger != nil {
		_ = Logger.Sync()
	}
	Logger = nil
	level.SetLevel(zapcore.InfoLevel)
}
