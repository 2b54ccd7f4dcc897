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
	"encoding/json"
	"sync"

	"github.com/innovationmech/msgpipe/pkg/pipeline"
)

// RecorderID is the middleware id of Recorder.
const RecorderID = "test-run-recorder"

// Recorder is a middleware that appends an invocation step for every message
// that reaches a terminal status. Place it anywhere in the chain; it records
// in its post-action. One recorder may be shared by several pipelines.
type Recorder struct {
	mu  sync.Mutex
	run *Run
}

// NewRecorder starts recording a run described by meta.
func NewRecorder(meta MetadataStep) *Recorder {
	return &Recorder{run: NewRun(meta)}
}

func (r *Recorder) ID() string { return RecorderID }

func (r *Recorder) Execute(*pipeline.MessageContext) error { return nil }

// PostAction records the message. Payloads that cannot be encoded are not
// recorded.
func (r *Recorder) PostAction(mc *pipeline.MessageContext) error {
	msg := mc.Message
	if !msg.Status().Terminal() {
		return nil
	}
	payload, err := json.Marshal(msg.Content)
	if err != nil {
		return err
	}
	step := &InvocationStep{
		Kind:           msg.Kind.String(),
		ContentType:    msg.ContentType,
		Payload:        string(payload),
		ExpectedStatus: msg.Status().String(),
		ExpectedError:  msg.ErrorMessage(),
	}
	r.mu.Lock()
	r.run.Add(step)
	r.mu.Unlock()
	return nil
}

// Run returns a snapshot of the recorded run.
func (r *Recorder) Run() *Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	steps := make([]Step, len(r.run.Steps))
	copy(steps, r.run.Steps)
	return &Run{Steps: steps}
}
