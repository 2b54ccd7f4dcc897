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

// Package repository persists finished messages as an append-only audit trail.
//
// Backends live in the sub-packages; this package holds the record model,
// the query filter, an in-memory backend and the pipeline middleware.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/innovationmech/msgpipe/pkg/pipeline"
)

// ErrClosed is returned by a repository after Close.
var ErrClosed = errors.New("repository closed")

// Repository stores terminal messages and retrieves them by filter.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Add appends one message in a terminal status.
	Add(ctx context.Context, msg *pipeline.Message) error
	// Query returns the stored records matching f in insertion order.
	Query(ctx context.Context, f Filter) ([]*Record, error)
	Close() error
}

// Record is the persisted form of a Message. Content and ExtraData hold JSON.
type Record struct {
	ID           uuid.UUID       `json:"id"`
	Kind         pipeline.Kind   `json:"kind"`
	ContentType  string          `json:"contentType"`
	Content      json.RawMessage `json:"content,omitempty"`
	ExtraData    json.RawMessage `json:"extraData,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	DurationMS   int64           `json:"executionDuration"`
	Status       pipeline.Status `json:"status"`
	ErrorType    string          `json:"errorType,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
}

// FromMessage converts a terminal message into a record.
func FromMessage(msg *pipeline.Message) (*Record, error) {
	if msg == nil {
		return nil, pipeline.ErrInvalidPayload
	}
	if !msg.Status().Terminal() {
		return nil, fmt.Errorf("%w: message %s is still %s", pipeline.ErrInvalidTransition, msg.ID, msg.Status())
	}
	r := &Record{
		ID:           msg.ID,
		Kind:         msg.Kind,
		ContentType:  msg.ContentType,
		CreatedAt:    msg.CreatedAt.UTC(),
		DurationMS:   msg.DurationMillis(),
		Status:       msg.Status(),
		ErrorType:    msg.ErrorType(),
		ErrorMessage: msg.ErrorMessage(),
	}
	if msg.Content != nil {
		content, err := json.Marshal(msg.Content)
		if err != nil {
			return nil, fmt.Errorf("encode content of %s: %w", msg.ID, err)
		}
		r.Content = content
	}
	if len(msg.ExtraData) > 0 {
		extra, err := json.Marshal(msg.ExtraData)
		if err != nil {
			return nil, fmt.Errorf("encode extra data of %s: %w", msg.ID, err)
		}
		r.ExtraData = extra
	}
	return r, nil
}

// Duration returns the recorded execution duration.
func (r *Record) Duration() time.Duration {
	return time.Duration(r.DurationMS) * time.Millisecond
}

// Message rebuilds a message from the record. Content stays raw JSON.
func (r *Record) Message() (*pipeline.Message, error) {
	var extra map[string]any
	if len(r.ExtraData) > 0 {
		if err := json.Unmarshal(r.ExtraData, &extra); err != nil {
			return nil, fmt.Errorf("decode extra data of %s: %w", r.ID, err)
		}
	}
	var err error
	if r.ErrorMessage != "" || r.ErrorType != "" {
		err = &pipeline.RecordedError{TypeName: r.ErrorType, Text: r.ErrorMessage}
	}
	var content any
	if len(r.Content) > 0 {
		content = r.Content
	}
	return pipeline.Restore(r.ID, r.Kind, r.ContentType, content, r.CreatedAt, r.Status, r.Duration(), err, extra), nil
}

// Filter selects records. Zero-valued fields do not constrain the result.
type Filter struct {
	Kinds    []pipeline.Kind
	Statuses []pipeline.Status
	// ContentTypes match either the full or the short type name.
	ContentTypes []string
	// From is inclusive, To exclusive.
	From, To    time.Time
	MinDuration time.Duration
	MaxDuration time.Duration
	// Limit caps the number of records returned; 0 means no limit.
	Limit int
}

// Match reports whether r satisfies every constraint of f.
func (f Filter) Match(r *Record) bool {
	if len(f.Kinds) > 0 && !contains(f.Kinds, r.Kind) {
		return false
	}
	if len(f.Statuses) > 0 && !contains(f.Statuses, r.Status) {
		return false
	}
	if len(f.ContentTypes) > 0 && !f.matchContentType(r.ContentType) {
		return false
	}
	if !f.From.IsZero() && r.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !r.CreatedAt.Before(f.To) {
		return false
	}
	d := r.Duration()
	if f.MinDuration > 0 && d < f.MinDuration {
		return false
	}
	if f.MaxDuration > 0 && d > f.MaxDuration {
		return false
	}
	return true
}

func (f Filter) matchContentType(ct string) bool {
	short := pipeline.ShortName(ct)
	for _, want := range f.ContentTypes {
		if want == ct || want == short {
			return true
		}
	}
	return false
}

// Apply filters records in order and honours Limit.
func (f Filter) Apply(records []*Record) []*Record {
	var out []*Record
	for _, r := range records {
		if !f.Match(r) {
			continue
		}
		out = append(out, r)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

func contains[T comparable](set []T, v T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
