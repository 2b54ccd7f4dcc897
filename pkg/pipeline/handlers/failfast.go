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

package handlers

import (
	"fmt"

	"github.com/innovationmech/msgpipe/pkg/pipeline"
)

// FailFastID is the middleware id of FailFast.
const FailFastID = "fail-fast"

// FailFastMode decides what happens to a handler failure once the chain is done.
type FailFastMode int

const (
	// Raise returns the original handler error from the pipeline invocation.
	Raise FailFastMode = iota
	// Capture records the failure with its stack on the MessageContext instead of raising it.
	Capture
	// Off leaves failures on the message only.
	Off
)

func (m FailFastMode) String() string {
	switch m {
	case Capture:
		return "capture"
	case Off:
		return "off"
	default:
		return "raise"
	}
}

// ParseFailFastMode parses "raise", "capture" or "off".
func ParseFailFastMode(name string) (FailFastMode, error) {
	switch name {
	case "", "raise":
		return Raise, nil
	case "capture":
		return Capture, nil
	case "off":
		return Off, nil
	}
	return 0, fmt.Errorf("%w: unknown fail-fast mode %q", pipeline.ErrConfiguration, name)
}

// FailFast is a post-action applying the failure policy of a pipeline.
// Rejected messages are never raised.
type FailFast struct {
	Mode FailFastMode
}

// NewFailFast creates the post-action for mode.
func NewFailFast(mode FailFastMode) *FailFast {
	return &FailFast{Mode: mode}
}

// ID implements pipeline.Middleware.
func (f *FailFast) ID() string { return FailFastID }

// Execute does nothing; all the work happens in PostAction.
func (f *FailFast) Execute(*pipeline.MessageContext) error { return nil }

// PostAction raises or captures the failure of a Failed message.
func (f *FailFast) PostAction(mc *pipeline.MessageContext) error {
	if mc.Status() != pipeline.Failed {
		return nil
	}
	err := mc.Err()
	switch f.Mode {
	case Raise:
		return err
	case Capture:
		mc.Capture(pipeline.NewCapturedFailure(FailFastID, err))
		mc.Message.ExtraData["failure.captured"] = true
	}
	return nil
}
