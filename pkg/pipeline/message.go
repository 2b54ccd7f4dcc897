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
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message is the transportable record of one dispatch.
//
// Content and ContentType are fixed at creation. Status, error and duration
// are changed only through the transition methods, which enforce the state
// machine and the set-once rule for the duration.
type Message struct {
	ID          uuid.UUID
	Kind        Kind
	ContentType string
	Content     any
	CreatedAt   time.Time
	// ExtraData carries middleware annotations and is persisted with the message.
	ExtraData map[string]any

	mu          sync.RWMutex
	status      Status
	err         error
	duration    time.Duration
	durationSet bool
}

// NewMessage wraps payload in a Processing message with a fresh id.
func NewMessage(kind Kind, payload any) (*Message, error) {
	if payload == nil {
		return nil, fmt.Errorf("%w: nil %s payload", ErrInvalidPayload, kind)
	}
	return &Message{
		ID:          uuid.New(),
		Kind:        kind,
		ContentType: ContentTypeOf(payload),
		Content:     payload,
		CreatedAt:   time.Now().UTC(),
		ExtraData:   make(map[string]any),
		status:      Processing,
	}, nil
}

// Status returns the current status.
func (m *Message) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Err returns the captured failure or rejection reason.
func (m *Message) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

// ErrorMessage is the text of Err, or "" when there is none.
func (m *Message) ErrorMessage() string {
	if err := m.Err(); err != nil {
		return err.Error()
	}
	return ""
}

// ErrorType is the type name of Err, or "" when there is none.
func (m *Message) ErrorType() string {
	return ErrorType(m.Err())
}

// Duration returns the time spent in the executor.
func (m *Message) Duration() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.duration
}

// DurationMillis returns Duration in whole milliseconds.
func (m *Message) DurationMillis() int64 {
	return m.Duration().Milliseconds()
}

// HasDuration reports whether the executor recorded a duration.
func (m *Message) HasDuration() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.durationSet
}

// SetDuration records the execution duration. It may be called once.
func (m *Message) SetDuration(d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.durationSet {
		return ErrDurationAlreadySet
	}
	if d < 0 {
		d = 0
	}
	m.duration = d
	m.durationSet = true
	return nil
}

// Complete moves a processing message to Completed.
func (m *Message) Complete() error {
	return m.transition(Completed, nil)
}

// Fail moves a processing message to Failed. err must not be nil.
func (m *Message) Fail(err error) error {
	if err == nil {
		return fmt.Errorf("%w: Failed requires an error", ErrInvalidTransition)
	}
	return m.transition(Failed, err)
}

// Reject moves a processing message to Rejected. reason is optional; when
// given it is kept as the message error so callers can see why.
func (m *Message) Reject(reason error) error {
	return m.transition(Rejected, reason)
}

func (m *Message) transition(to Status, err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !canTransition(m.status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.status, to)
	}
	m.status = to
	m.err = err
	return nil
}

// Restore rebuilds a message from persisted state. It is meant for
// repositories and does not validate the transition history.
func Restore(id uuid.UUID, kind Kind, contentType string, content any, createdAt time.Time,
	status Status, duration time.Duration, err error, extra map[string]any) *Message {
	if extra == nil {
		extra = make(map[string]any)
	}
	return &Message{
		ID:          id,
		Kind:        kind,
		ContentType: contentType,
		Content:     content,
		CreatedAt:   createdAt,
		ExtraData:   extra,
		status:      status,
		err:         err,
		duration:    duration,
		durationSet: true,
	}
}

type messageJSON struct {
	ID                uuid.UUID      `json:"id"`
	Kind              Kind           `json:"kind"`
	ContentType       string         `json:"contentType"`
	Content           any            `json:"content,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
	ExecutionDuration int64          `json:"executionDuration"`
	Status            Status         `json:"status"`
	ErrorMessage      string         `json:"errorMessage,omitempty"`
	ErrorType         string         `json:"errorType,omitempty"`
	ExtraData         map[string]any `json:"extraData,omitempty"`
}

// MarshalJSON emits the message with derived error fields and the duration in milliseconds.
func (m *Message) MarshalJSON() ([]byte, error) {
	m.mu.RLock()
	out := messageJSON{
		ID:                m.ID,
		Kind:              m.Kind,
		ContentType:       m.ContentType,
		Content:           m.Content,
		CreatedAt:         m.CreatedAt,
		ExecutionDuration: m.duration.Milliseconds(),
		Status:            m.status,
		ExtraData:         m.ExtraData,
	}
	if m.err != nil {
		out.ErrorMessage = m.err.Error()
		out.ErrorType = ErrorType(m.err)
	}
	m.mu.RUnlock()
	return json.Marshal(out)
}

// UnmarshalJSON restores a message encoded by MarshalJSON. Content is left as
// raw JSON because its Go type is not known here.
func (m *Message) UnmarshalJSON(data []byte) error {
	var in struct {
		messageJSON
		Content json.RawMessage `json:"content,omitempty"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	var err error
	if in.ErrorMessage != "" || in.ErrorType != "" {
		err = &RecordedError{TypeName: in.ErrorType, Text: in.ErrorMessage}
	}
	var content any
	if len(in.Content) > 0 {
		content = in.Content
	}
	restored := Restore(in.ID, in.Kind, in.ContentType, content, in.CreatedAt, in.Status,
		time.Duration(in.ExecutionDuration)*time.Millisecond, err, in.ExtraData)
	m.ID, m.Kind, m.ContentType, m.Content = restored.ID, restored.Kind, restored.ContentType, restored.Content
	m.CreatedAt, m.ExtraData = restored.CreatedAt, restored.ExtraData
	m.mu.Lock()
	m.status, m.err, m.duration, m.durationSet = restored.status, restored.err, restored.duration, true
	m.mu.Unlock()
	return nil
}
