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
	"reflect"
	"sort"
	"strings"
	"sync"
)

// ContentTypeOf returns the fully-qualified name of the payload's type,
// "<import path>.<TypeName>", looking through pointers.
func ContentTypeOf(payload any) string {
	if payload == nil {
		return ""
	}
	return TypeName(reflect.TypeOf(payload))
}

// TypeName returns the fully-qualified name of t, looking through pointers.
func TypeName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.PkgPath() == "" || t.Name() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

// ShortName strips the import path from a fully-qualified content type.
func ShortName(contentType string) string {
	if i := strings.LastIndex(contentType, "."); i >= 0 {
		return contentType[i+1:]
	}
	return contentType
}

// TypeRegistry maps content types to the Go types handlers expect, so that
// payloads arriving as bytes can be decoded into the right shape.
type TypeRegistry struct {
	mu    sync.RWMutex
	full  map[string]reflect.Type
	short map[string][]string
}

// NewTypeRegistry creates an empty registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		full:  make(map[string]reflect.Type),
		short: make(map[string][]string),
	}
}

// Register adds payload types. Each argument is either a sample value or a reflect.Type.
func (r *TypeRegistry) Register(samples ...any) {
	for _, s := range samples {
		t, ok := s.(reflect.Type)
		if !ok {
			t = reflect.TypeOf(s)
		}
		if t != nil {
			r.RegisterType(t)
		}
	}
}

// RegisterType adds a single type. Registering the same name twice keeps the first type.
func (r *TypeRegistry) RegisterType(t reflect.Type) {
	name := TypeName(t)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.full[name]; exists {
		return
	}
	r.full[name] = t
	short := ShortName(name)
	r.short[short] = append(r.short[short], name)
}

// Lookup resolves a content type by full name, then by short name when the
// short name is unique.
func (r *TypeRegistry) Lookup(name string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.full[name]; ok {
		return t, true
	}
	if names := r.short[name]; len(names) == 1 {
		return r.full[names[0]], true
	}
	return nil, false
}

// Names returns the registered full names, sorted.
func (r *TypeRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.full))
	for name := range r.full {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Decode unmarshals JSON data into a fresh value of the type registered under name.
// The returned value has exactly the registered shape (pointer or value).
func (r *TypeRegistry) Decode(name string, data []byte) (any, error) {
	t, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownContentType, name)
	}
	base := t
	if base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	ptr := reflect.New(base)
	if len(data) > 0 {
		if err := json.Unmarshal(data, ptr.Interface()); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
	}
	if t.Kind() == reflect.Pointer {
		return ptr.Interface(), nil
	}
	return ptr.Elem().Interface(), nil
}
