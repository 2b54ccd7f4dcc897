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

// Package middleware contains optional pipeline steps: payload validation,
// structured logging, Prometheus metrics and OpenTelemetry tracing.
package middleware

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/innovationmech/msgpipe/pkg/pipeline"
)

// ValidationID is the middleware id of Validation.
const ValidationID = "validation"

// Validatable is implemented by payloads with rules that struct tags cannot express.
type Validatable interface {
	Validate() error
}

// Validation rejects messages whose payload fails its `validate` struct tags
// or its own Validate method. It must run before the executor; a rejected
// message is never handed to a handler.
type Validation struct {
	validator *validator.Validate
}

// NewValidation creates the middleware with a fresh validator.
func NewValidation() *Validation {
	return NewValidationWith(validator.New(validator.WithRequiredStructEnabled()))
}

// NewValidationWith uses v, which may carry custom rules.
func NewValidationWith(v *validator.Validate) *Validation {
	return &Validation{validator: v}
}

// ID implements pipeline.Middleware.
func (v *Validation) ID() string { return ValidationID }

// Execute validates the payload and rejects the message on failure.
func (v *Validation) Execute(mc *pipeline.MessageContext) error {
	msg := mc.Message
	if msg.Status() != pipeline.Processing {
		return nil
	}
	err := v.check(msg.Content)
	if err == nil {
		return nil
	}
	msg.ExtraData["validation.failed"] = describe(err)
	if rerr := msg.Reject(fmt.Errorf("%w: %w", pipeline.ErrRejected, err)); rerr != nil {
		return rerr
	}
	return nil
}

func (v *Validation) check(payload any) error {
	if isStruct(payload) {
		if err := v.validator.Struct(payload); err != nil {
			return err
		}
	}
	if vp, ok := payload.(Validatable); ok {
		return vp.Validate()
	}
	return nil
}

func isStruct(payload any) bool {
	t := reflect.TypeOf(payload)
	if t == nil {
		return false
	}
	if t.Kind() == reflect.Pointer {
		if reflect.ValueOf(payload).IsNil() {
			return false
		}
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct
}

// describe lists the failing fields of a validator error, or the error text.
func describe(err error) string {
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return err.Error()
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f.Field()+":"+f.Tag())
	}
	return strings.Join(parts, ",")
}
