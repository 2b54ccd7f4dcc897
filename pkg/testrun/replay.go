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

package testrun

import (
	"context"
	"fmt"
	"strings"

	"github.com/innovationmech/msgpipe/pkg/pipeline"
)

// Result is the outcome of replaying one invocation step.
type Result struct {
	// Index is the step position in the run.
	Index  int
	Step   *InvocationStep
	Status pipeline.Status
	Error  string
	// Mismatch describes how the outcome differs from the expectation; empty when it matches.
	Mismatch string
}

// Report collects replay results.
type Report struct {
	Name    string
	Results []Result
}

// Passed reports whether every invocation matched its expectation.
func (r *Report) Passed() bool {
	return len(r.Mismatches()) == 0
}

// Mismatches returns the results that did not match.
func (r *Report) Mismatches() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Mismatch != "" {
			out = append(out, res)
		}
	}
	return out
}

func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d invocations, %d mismatches", r.Name, len(r.Results), len(r.Mismatches()))
	for _, res := range r.Mismatches() {
		fmt.Fprintf(&b, "\n  #%d %s %s: %s", res.Index, res.Step.Kind, res.Step.ContentType, res.Mismatch)
	}
	return b.String()
}

// Replay dispatches every invocation step of run through svc in order and
// compares the outcome with the recorded expectation. Dispatch errors are part
// of the outcome; only a cancelled ctx or an invalid run stops the replay.
func Replay(ctx context.Context, svc *pipeline.Service, run *Run) (*Report, error) {
	if err := run.Validate(); err != nil {
		return nil, err
	}
	report := &Report{Name: run.Metadata().Name}
	for i, step := range run.Steps {
		inv, ok := step.(*InvocationStep)
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Results = append(report.Results, replayStep(ctx, svc, i, inv))
	}
	return report, nil
}

func replayStep(ctx context.Context, svc *pipeline.Service, index int, step *InvocationStep) Result {
	res := Result{Index: index, Step: step}
	kind, err := pipeline.ParseKind(step.Kind)
	if err != nil {
		res.Mismatch = err.Error()
		return res
	}
	payload, err := svc.Types().Decode(step.ContentType, []byte(step.Payload))
	if err != nil {
		res.Mismatch = err.Error()
		return res
	}
	mc, err := svc.Dispatch(ctx, kind, payload)
	if mc == nil {
		res.Mismatch = err.Error()
		return res
	}
	res.Status = mc.Status()
	res.Error = mc.Message.ErrorMessage()

	want, _ := pipeline.ParseStatus(step.ExpectedStatus)
	switch {
	case res.Status != want:
		res.Mismatch = fmt.Sprintf("status %s, want %s", res.Status, want)
	case step.ExpectedError != "" && res.Error != step.ExpectedError:
		res.Mismatch = fmt.Sprintf("error %q, want %q", res.Error, step.ExpectedError)
	}
	return res
}
