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
	"strconv"
	"strings"
)

// Kind classifies a message and decides which pipeline it is routed to.
type Kind uint8

const (
	// Command asks the system to change state. Exactly one handler is required.
	Command Kind = iota
	// Event records something that happened. Zero or more handlers may listen.
	Event
	// Query asks for data. Exactly one handler is required and its return value is the result.
	Query
)

// Kinds lists every message kind in declaration order.
var Kinds = []Kind{Command, Event, Query}

var kindNames = [...]string{"command", "event", "query"}

// String returns the lower-case wire name of the kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	return int(k) < len(kindNames)
}

// ParseKind parses a wire name ("command", "event", "query", any case) or the
// one-byte numeric alias ("0", "1", "2").
func ParseKind(s string) (Kind, error) {
	s = strings.TrimSpace(s)
	for i, name := range kindNames {
		if strings.EqualFold(s, name) {
			return Kind(i), nil
		}
	}
	if len(s) == 1 && s[0] >= '0' && int(s[0]-'0') < len(kindNames) {
		return Kind(s[0] - '0'), nil
	}
	return 0, fmt.Errorf("unknown message kind %q", s)
}

// MarshalJSON encodes the kind by name.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON accepts both the name and the numeric form.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		var n uint8
		if err2 := json.Unmarshal(data, &n); err2 != nil {
			return err
		}
		name = strconv.Itoa(int(n))
	}
	parsed, err := ParseKind(name)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Status is the execution state of a message.
//
// Processing is the only non-terminal state. A message moves at most once,
// into Completed, Failed or Rejected, and never leaves a terminal state.
type Status uint8

const (
	Processing Status = iota
	Completed
	Failed
	Rejected
)

var statusNames = [...]string{"Processing", "Completed", "Failed", "Rejected"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "Status(" + strconv.Itoa(int(s)) + ")"
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == Completed || s == Failed || s == Rejected
}

// Valid reports whether s is one of the declared statuses.
func (s Status) Valid() bool {
	return int(s) < len(statusNames)
}

// ParseStatus parses a status name, case-insensitively.
func ParseStatus(s string) (Status, error) {
	for i, name := range statusNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return Status(i), nil
		}
	}
	return 0, fmt.Errorf("unknown message status %q", s)
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseStatus(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// canTransition is the whole state machine.
func canTransition(from, to Status) bool {
	return from == Processing && to.Terminal()
}
