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

// Package redis appends audit records to a Redis stream.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/innovationmech/msgpipe/pkg/pipeline"
	"github.com/innovationmech/msgpipe/pkg/repository"
)

// DefaultStream is the stream key used when none is configured.
const DefaultStream = "msgpipe:messages"

const recordField = "record"

// StreamClient is the subset of the go-redis client used by the repository.
type StreamClient interface {
	XAdd(ctx context.Context, a *goredis.XAddArgs) *goredis.StringCmd
	XRange(ctx context.Context, stream, start, stop string) *goredis.XMessageSliceCmd
	Close() error
}

// Option configures a Repository.
type Option func(*Repository)

// WithStream sets the stream key.
func WithStream(name string) Option {
	return func(r *Repository) {
		if name != "" {
			r.stream = name
		}
	}
}

// WithMaxLen trims the stream to about n entries on every add. Zero keeps everything.
func WithMaxLen(n int64) Option {
	return func(r *Repository) { r.maxLen = n }
}

// Repository stores one stream entry per message. The entry carries the
// record as JSON plus a few flat fields for inspection with redis-cli.
type Repository struct {
	client StreamClient
	stream string
	maxLen int64
}

// New wraps client.
func New(client StreamClient, opts ...Option) (*Repository, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: nil redis client", pipeline.ErrConfiguration)
	}
	r := &Repository{client: client, stream: DefaultStream}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Dial connects to the Redis server at addr.
func Dial(addr string, opts ...Option) (*Repository, error) {
	if addr == "" {
		return nil, fmt.Errorf("%w: redis address is required", pipeline.ErrConfiguration)
	}
	return New(goredis.NewClient(&goredis.Options{Addr: addr}), opts...)
}

// Stream returns the stream key.
func (r *Repository) Stream() string {
	return r.stream
}

// Add implements repository.Repository.
func (r *Repository) Add(ctx context.Context, msg *pipeline.Message) error {
	rec, err := repository.FromMessage(msg)
	if err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", rec.ID, err)
	}
	args := &goredis.XAddArgs{
		Stream: r.stream,
		ID:     "*",
		Values: []any{
			recordField, string(data),
			"id", rec.ID.String(),
			"kind", rec.Kind.String(),
			"status", rec.Status.String(),
			"content_type", rec.ContentType,
		},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}
	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", r.stream, err)
	}
	return nil
}

// Query implements repository.Repository. The stream is read in full and
// filtered locally.
func (r *Repository) Query(ctx context.Context, f repository.Filter) ([]*repository.Record, error) {
	entries, err := r.client.XRange(ctx, r.stream, "-", "+").Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("xrange %s: %w", r.stream, err)
	}
	records := make([]*repository.Record, 0, len(entries))
	for _, e := range entries {
		raw, ok := e.Values[recordField].(string)
		if !ok {
			continue
		}
		var rec repository.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decode stream entry %s: %w", e.ID, err)
		}
		records = append(records, &rec)
	}
	return f.Apply(records), nil
}

// Close closes the client.
func (r *Repository) Close() error {
	return r.client.Close()
}
