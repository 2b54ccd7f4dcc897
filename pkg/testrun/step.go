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

// Package testrun records dispatches into a replayable text file.
//
// A test run file looks like
//
//	V1
//	/*>! [#0] MetadataStep */
//	name: signup
//	/*>! [#1] InvocationStep */
//	kind: command
//	contentType: CreateUser
//	payload: '{"first":"Ann","last":"Lee"}'
//	expectedStatus: Completed
//
// Each step body is YAML decoded into the step type named on its delimiter line.
package testrun

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/innovationmech/msgpipe/pkg/pipeline"
)

// ErrFormat is returned for any malformed test run file.
var ErrFormat = errors.New("test run format error")

// Step is one entry of a test run.
type Step interface {
	Validate() error
}

// MetadataStep describes the run. Every run starts with one.
type MetadataStep struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description,omitempty"`
	RecordedAt  time.Time `yaml:"recordedAt,omitempty"`
	Tags        []string  `yaml:"tags,omitempty"`
}

// Validate requires a name.
func (m *MetadataStep) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("%w: metadata step needs a name", ErrFormat)
	}
	return nil
}

// InvocationStep is one dispatch and its expected outcome.
type InvocationStep struct {
	Kind        string `yaml:"kind"`
	ContentType string `yaml:"contentType"`
	// Payload is the JSON encoded payload.
	Payload        string `yaml:"payload"`
	ExpectedStatus string `yaml:"expectedStatus"`
	ExpectedError  string `yaml:"expectedError,omitempty"`
}

// Validate checks the kind, status and content type.
func (s *InvocationStep) Validate() error {
	if _, err := pipeline.ParseKind(s.Kind); err != nil {
		return fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if s.ContentType == "" {
		return fmt.Errorf("%w: invocation step needs a content type", ErrFormat)
	}
	status, err := pipeline.ParseStatus(s.ExpectedStatus)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if !status.Terminal() {
		return fmt.Errorf("%w: expected status %s is not terminal", ErrFormat, status)
	}
	return nil
}

// Registry maps step type names to Go types. Lookups try the short name first
// and fall back to the full name.
type Registry struct {
	mu    sync.RWMutex
	full  map[string]reflect.Type
	short map[string][]string
}

// NewRegistry returns a registry that knows the built-in steps.
func NewRegistry() *Registry {
	r := &Registry{
		full:  make(map[string]reflect.Type),
		short: make(map[string][]string),
	}
	r.Register(&MetadataStep{}, &InvocationStep{})
	return r
}

// Register adds the types of the given step samples. Samples must be pointers.
func (r *Registry) Register(samples ...Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range samples {
		t := reflect.TypeOf(s)
		if t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		name := pipeline.TypeName(t)
		if _, ok := r.full[name]; ok {
			continue
		}
		r.full[name] = t
		short := pipeline.ShortName(name)
		r.short[short] = append(r.short[short], name)
	}
}

// Lookup returns the step type registered under name.
func (r *Registry) Lookup(name string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if names := r.short[name]; len(names) == 1 {
		return r.full[names[0]], true
	}
	t, ok := r.full[name]
	return t, ok
}

// nameOf returns the name written on a delimiter line: the short name when it
// is unambiguous, the full name otherwise.
func (r *Registry) nameOf(s Step) string {
	t := reflect.TypeOf(s)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	full := pipeline.TypeName(t)
	short := pipeline.ShortName(full)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if names := r.short[short]; len(names) > 1 {
		return full
	}
	return short
}

// Run is an ordered list of steps, the first of which is a MetadataStep.
type Run struct {
	Steps []Step
}

// NewRun starts a run with its metadata.
func NewRun(meta MetadataStep) *Run {
	return &Run{Steps: []Step{&meta}}
}

// Add appends steps.
func (r *Run) Add(steps ...Step) {
	r.Steps = append(r.Steps, steps...)
}

// Metadata returns the leading metadata step, or nil.
func (r *Run) Metadata() *MetadataStep {
	if len(r.Steps) == 0 {
		return nil
	}
	m, _ := r.Steps[0].(*MetadataStep)
	return m
}

// Invocations returns the invocation steps in order.
func (r *Run) Invocations() []*InvocationStep {
	var out []*InvocationStep
	for _, s := range r.Steps {
		if inv, ok := s.(*InvocationStep); ok {
			out = append(out, inv)
		}
	}
	return out
}

// Validate checks every step and the leading metadata step.
func (r *Run) Validate() error {
	if r.Metadata() == nil {
		return fmt.Errorf("%w: a run must start with a metadata step", ErrFormat)
	}
	for i, s := range r.Steps {
		if s == nil {
			return fmt.Errorf("%w: step #%d is nil", ErrFormat, i)
		}
		if err := s.Validate(); err != nil {
			return fmt.Errorf("step #%d: %w", i, err)
		}
	}
	return nil
}
