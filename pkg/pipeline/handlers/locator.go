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
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/innovationmech/msgpipe/pkg/pipeline"
)

// LocatorID is the middleware id of the Locator.
const LocatorID = "locator"

// DefaultPrefixes are the method-name prefixes that mark handlers per kind.
// Each kind has its own prefix so a payload only runs under its own kind.
var DefaultPrefixes = map[pipeline.Kind]string{
	pipeline.Command: "Handle",
	pipeline.Query:   "Query",
	pipeline.Event:   "On",
}

// Locator maps payload types to handler bindings.
//
// All modules are scanned once when the locator is built. Lookups per payload
// type are computed on first use and cached; the cache is safe for concurrent
// dispatches.
type Locator struct {
	kinds   []pipeline.Kind
	modules map[reflect.Type]*Module
	// groups maps each kind to the kind its prefix was first scanned under.
	groups map[pipeline.Kind]pipeline.Kind
	// candidates is the immutable scan result.
	candidates []pipeline.Binding

	mu    sync.RWMutex
	cache map[reflect.Type][]pipeline.Binding
	// discoveries counts cache misses.
	discoveries atomic.Int64
}

// NewLocator scans modules for handlers of the given kinds. Two handlers for
// the same command or query payload type are reported as ErrAmbiguousHandler.
func NewLocator(kinds []pipeline.Kind, modules []*Module, prefixes map[pipeline.Kind]string) (*Locator, error) {
	if len(kinds) == 0 {
		return nil, fmt.Errorf("%w: locator needs at least one kind", pipeline.ErrConfiguration)
	}
	if prefixes == nil {
		prefixes = DefaultPrefixes
	}
	l := &Locator{
		kinds:   append([]pipeline.Kind(nil), kinds...),
		modules: make(map[reflect.Type]*Module, len(modules)),
		groups:  make(map[pipeline.Kind]pipeline.Kind, len(kinds)),
		cache:   make(map[reflect.Type][]pipeline.Binding),
	}
	for _, m := range modules {
		if m == nil {
			continue
		}
		if _, dup := l.modules[m.typ]; dup {
			return nil, fmt.Errorf("%w: module %s registered twice", pipeline.ErrConfiguration, m.typ)
		}
		l.modules[m.typ] = m
	}

	scanned := make(map[string]pipeline.Kind)
	for _, kind := range kinds {
		prefix, ok := prefixes[kind]
		if !ok || prefix == "" {
			return nil, fmt.Errorf("%w: no handler prefix for %s", pipeline.ErrConfiguration, kind)
		}
		if group, done := scanned[prefix]; done {
			l.groups[kind] = group
			continue
		}
		scanned[prefix] = kind
		l.groups[kind] = kind
		for _, m := range modules {
			if m == nil {
				continue
			}
			found, err := scan(kind, m.typ, prefix)
			if err != nil {
				return nil, err
			}
			l.candidates = append(l.candidates, found...)
		}
	}

	if err := l.checkAmbiguity(); err != nil {
		return nil, err
	}
	return l, nil
}

// scan extracts handler bindings from the method set of t.
func scan(kind pipeline.Kind, t reflect.Type, prefix string) ([]pipeline.Binding, error) {
	var found []pipeline.Binding
	for i := 0; i < t.NumMethod(); i++ {
		method := t.Method(i)
		if !method.IsExported() || !strings.HasPrefix(method.Name, prefix) {
			continue
		}
		ft := method.Type
		if ft.IsVariadic() {
			continue
		}
		// In(0) is the receiver.
		next := 1
		withCtx := false
		if ft.NumIn() > next && ft.In(next) == contextType {
			withCtx = true
			next++
		}
		if ft.NumIn() <= next {
			continue
		}
		if err := checkResults(ft); err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %v", pipeline.ErrConfiguration, t, method.Name, err)
		}
		b := pipeline.Binding{
			Kind:        kind,
			Module:      t,
			Method:      method,
			Payload:     ft.In(next),
			WithContext: withCtx,
		}
		for j := next + 1; j < ft.NumIn(); j++ {
			b.Extra = append(b.Extra, ft.In(j))
		}
		found = append(found, b)
	}
	return found, nil
}

func checkResults(ft reflect.Type) error {
	switch ft.NumOut() {
	case 0, 1:
		return nil
	case 2:
		if ft.Out(1) != errorType {
			return fmt.Errorf("second result must be error, got %s", ft.Out(1))
		}
		return nil
	default:
		return fmt.Errorf("handlers return at most (value, error), got %d results", ft.NumOut())
	}
}

// checkAmbiguity rejects duplicate single-handler bindings known at build time.
func (l *Locator) checkAmbiguity() error {
	if !l.needsSingle() {
		return nil
	}
	byPayload := make(map[reflect.Type][]pipeline.Binding)
	for _, b := range l.candidates {
		if b.Kind == pipeline.Event {
			continue
		}
		byPayload[b.Payload] = append(byPayload[b.Payload], b)
	}
	for payload, bs := range byPayload {
		if len(bs) > 1 {
			return &pipeline.DispatchError{
				Op:    LocatorID,
				Type:  payload,
				Cause: fmt.Errorf("%w: %s and %s", pipeline.ErrAmbiguousHandler, bs[0], bs[1]),
			}
		}
	}
	return nil
}

func (l *Locator) needsSingle() bool {
	for _, k := range l.kinds {
		if k != pipeline.Event {
			return true
		}
	}
	return false
}

// ID implements pipeline.Middleware.
func (l *Locator) ID() string { return LocatorID }

// Execute stores the bindings for the message payload in mc.Bindings.
func (l *Locator) Execute(mc *pipeline.MessageContext) error {
	bindings, err := l.Find(mc.Message.Kind, reflect.TypeOf(mc.Message.Content))
	if err != nil {
		var de *pipeline.DispatchError
		if errors.As(err, &de) {
			de.Kind, de.ContentType = mc.Message.Kind, mc.Message.ContentType
		}
		return err
	}
	mc.Bindings = bindings
	return nil
}

// Find returns the handlers for payload type t. Events get every match,
// commands and queries exactly one.
func (l *Locator) Find(kind pipeline.Kind, t reflect.Type) ([]pipeline.Binding, error) {
	if t == nil {
		return nil, pipeline.ErrInvalidPayload
	}
	group, ok := l.groups[kind]
	if !ok {
		return nil, &pipeline.DispatchError{Op: LocatorID, Kind: kind, Type: t, Cause: pipeline.ErrPipelineNotFound}
	}
	var bindings []pipeline.Binding
	for _, b := range l.lookup(t) {
		if b.Kind == group {
			bindings = append(bindings, b)
		}
	}
	if kind == pipeline.Event {
		return bindings, nil
	}
	switch len(bindings) {
	case 0:
		return nil, &pipeline.DispatchError{Op: LocatorID, Type: t, Cause: pipeline.ErrHandlerNotFound}
	case 1:
		return bindings, nil
	default:
		return nil, &pipeline.DispatchError{
			Op:    LocatorID,
			Type:  t,
			Cause: fmt.Errorf("%w: %d handlers", pipeline.ErrAmbiguousHandler, len(bindings)),
		}
	}
}

func (l *Locator) lookup(t reflect.Type) []pipeline.Binding {
	l.mu.RLock()
	bindings, ok := l.cache[t]
	l.mu.RUnlock()
	if ok {
		return bindings
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if bindings, ok := l.cache[t]; ok {
		return bindings
	}
	l.discoveries.Add(1)
	for _, b := range l.candidates {
		if b.Payload == t || (b.Payload.Kind() == reflect.Interface && t.Implements(b.Payload)) {
			bindings = append(bindings, b)
		}
	}
	l.cache[t] = bindings
	return bindings
}

// Module returns the registered module declaring t.
func (l *Locator) Module(t reflect.Type) (*Module, bool) {
	m, ok := l.modules[t]
	return m, ok
}

// Bindings returns every scanned handler binding.
func (l *Locator) Bindings() []pipeline.Binding {
	return append([]pipeline.Binding(nil), l.candidates...)
}

// PayloadTypes returns the concrete payload types handled by the scanned modules.
func (l *Locator) PayloadTypes() []reflect.Type {
	seen := make(map[reflect.Type]bool)
	var types []reflect.Type
	for _, b := range l.candidates {
		if b.Payload.Kind() == reflect.Interface || seen[b.Payload] {
			continue
		}
		seen[b.Payload] = true
		types = append(types, b.Payload)
	}
	return types
}

// Discoveries returns how many payload types were resolved against the scan result.
func (l *Locator) Discoveries() int64 {
	return l.discoveries.Load()
}
