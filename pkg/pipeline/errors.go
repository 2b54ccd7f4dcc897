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
	"errors"
	"fmt"
	"reflect"
	"strings"
)

var (
	// ErrHandlerNotFound means no handler matched a command or query payload.
	ErrHandlerNotFound = errors.New("handler not found")
	// ErrAmbiguousHandler means more than one handler matched where exactly one is required.
	ErrAmbiguousHandler = errors.New("ambiguous handler")
	// ErrDependencyResolution means a handler collaborator could not be supplied.
	ErrDependencyResolution = errors.New("dependency resolution failed")
	// ErrRejected marks a message refused by a pre-execution middleware.
	ErrRejected = errors.New("message rejected")
	// ErrRepository wraps persistence failures.
	ErrRepository = errors.New("repository failure")
	// ErrCancelled marks a dispatch whose context was cancelled before it finished.
	ErrCancelled = errors.New("dispatch cancelled")

	// ErrConfiguration is the parent of all setup-time errors.
	ErrConfiguration = errors.New("pipeline configuration error")
	// ErrDuplicateMiddleware is returned when a middleware id is already present in the chain.
	ErrDuplicateMiddleware = fmt.Errorf("%w: duplicate middleware id", ErrConfiguration)
	// ErrMiddlewareNotFound is returned when an insertion target or removal id is unknown.
	ErrMiddlewareNotFound = fmt.Errorf("%w: middleware not found", ErrConfiguration)
	// ErrDuplicatePipeline is returned when a kind already has a registered pipeline.
	ErrDuplicatePipeline = fmt.Errorf("%w: pipeline already registered for kind", ErrConfiguration)
	// ErrPipelineNotFound is returned when no pipeline accepts a kind.
	ErrPipelineNotFound = errors.New("no pipeline registered for kind")

	// ErrInvalidTransition is returned when a status change leaves a terminal state.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrDurationAlreadySet is returned on a second attempt to record the execution duration.
	ErrDurationAlreadySet = errors.New("execution duration already set")
	// ErrUnknownContentType is returned when a content type is not present in the type registry.
	ErrUnknownContentType = errors.New("unknown content type")
	// ErrInvalidPayload is returned for nil payloads.
	ErrInvalidPayload = errors.New("invalid payload")
)

// DispatchError adds dispatch coordinates to a framework error.
type DispatchError struct {
	// Op is the step that failed, typically a middleware id.
	Op          string
	Kind        Kind
	ContentType string
	// Type is the unmet or offending type, when there is one.
	Type  reflect.Type
	Cause error
}

func (e *DispatchError) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Cause != nil {
		b.WriteString(e.Cause.Error())
	} else {
		b.WriteString("dispatch failed")
	}
	if e.ContentType != "" {
		fmt.Fprintf(&b, " [%s %s]", e.Kind, e.ContentType)
	}
	if e.Type != nil {
		fmt.Fprintf(&b, " (type %s)", e.Type)
	}
	return b.String()
}

func (e *DispatchError) Unwrap() error {
	return e.Cause
}

// RecordedError is an error restored from a persisted record. Only its text
// and original type name survive the round trip.
type RecordedError struct {
	TypeName string
	Text     string
}

func (e *RecordedError) Error() string {
	return e.Text
}

// ErrorType returns the name of the error's dynamic type, unwrapping
// RecordedError to the type it was recorded with.
func ErrorType(err error) string {
	if err == nil {
		return ""
	}
	var rec *RecordedError
	if errors.As(err, &rec) {
		return rec.TypeName
	}
	return reflect.TypeOf(err).String()
}
