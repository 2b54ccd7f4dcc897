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

// Package webhook forwards audit records to a remote web service.
//
// The service is expected to accept
//
//	POST {base}/messages        body: one record
//	POST {base}/messages/query  body: a filter, response: a JSON array of records
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/innovationmech/msgpipe/pkg/pipeline"
	"github.com/innovationmech/msgpipe/pkg/repository"
)

// DefaultTimeout bounds every request unless WithTimeout says otherwise.
const DefaultTimeout = 5 * time.Second

// Option configures a Repository.
type Option func(*Repository)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Repository) {
		if d > 0 {
			r.client.Timeout = d
		}
	}
}

// WithHTTPClient replaces the HTTP client. Its timeout is kept as is.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Repository) {
		if c != nil {
			r.client = c
		}
	}
}

// Repository is a client of the remote audit service.
type Repository struct {
	base   string
	client *http.Client
}

// New returns a repository posting to base, which must be an absolute http(s) URL.
func New(base string, opts ...Option) (*Repository, error) {
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid webhook url %q", pipeline.ErrConfiguration, base)
	}
	r := &Repository{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// queryRequest is the wire form of a Filter.
type queryRequest struct {
	Kinds         []pipeline.Kind   `json:"kinds,omitempty"`
	Statuses      []pipeline.Status `json:"statuses,omitempty"`
	ContentTypes  []string          `json:"contentTypes,omitempty"`
	From          *time.Time        `json:"from,omitempty"`
	To            *time.Time        `json:"to,omitempty"`
	MinDurationMS int64             `json:"minDurationMs,omitempty"`
	MaxDurationMS int64             `json:"maxDurationMs,omitempty"`
	Limit         int               `json:"limit,omitempty"`
}

func newQueryRequest(f repository.Filter) queryRequest {
	q := queryRequest{
		Kinds:         f.Kinds,
		Statuses:      f.Statuses,
		ContentTypes:  f.ContentTypes,
		MinDurationMS: f.MinDuration.Milliseconds(),
		MaxDurationMS: f.MaxDuration.Milliseconds(),
		Limit:         f.Limit,
	}
	if !f.From.IsZero() {
		q.From = &f.From
	}
	if !f.To.IsZero() {
		q.To = &f.To
	}
	return q
}

// Add implements repository.Repository.
func (r *Repository) Add(ctx context.Context, msg *pipeline.Message) error {
	rec, err := repository.FromMessage(msg)
	if err != nil {
		return err
	}
	return r.post(ctx, "/messages", rec, nil)
}

// Query implements repository.Repository. The filter is applied again on the
// response so a lenient server cannot widen the result.
func (r *Repository) Query(ctx context.Context, f repository.Filter) ([]*repository.Record, error) {
	var records []*repository.Record
	if err := r.post(ctx, "/messages/query", newQueryRequest(f), &records); err != nil {
		return nil, err
	}
	return f.Apply(records), nil
}

// Close releases idle connections.
func (r *Repository) Close() error {
	r.client.CloseIdleConnections()
	return nil
}

func (r *Repository) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode webhook request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.base+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook %s: %s: %s", path, resp.Status, strings.TrimSpace(string(text)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode webhook %s response: %w", path, err)
	}
	return nil
}
