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

package pipeline

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// CapturedFailure is a handler failure recorded for later inspection.
type CapturedFailure struct {
	// Err is the original business error.
	Err error
	// Stacked is Err annotated with the stack of the capturing call.
	Stacked    error
	Middleware string
	At         time.Time
}

// NewCapturedFailure records err together with the current call stack.
func NewCapturedFailure(middleware string, err error) *CapturedFailure {
	return &CapturedFailure{
		Err:        err,
		Stacked:    errors.WithStack(err),
		Middleware: middleware,
		At:         time.Now().UTC(),
	}
}

// Rethrow returns the original error so callers can raise it when they choose to.
func (f *CapturedFailure) Rethrow() error {
	if f == nil {
		return nil
	}
	return f.Err
}

// Detail formats the failure with its captured stack.
func (f *CapturedFailure) Detail() string {
	if f == nil {
		return ""
	}
	return fmt.Sprintf("%+v", f.Stacked)
}
