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

// Package file is a flat append-only audit backend with an optional gzip layer.
package file

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/gzip"

	"github.com/innovationmech/msgpipe/pkg/pipeline"
	"github.com/innovationmech/msgpipe/pkg/repository"
)

// ErrCompressionMismatch is returned when an existing file was written with
// the other compression setting.
var ErrCompressionMismatch = errors.New("audit file compression does not match")

// Option configures a Repository.
type Option func(*Repository)

// WithCompression writes gzip members. Each Open starts a new member; the
// stream is flushed after every record. An unfinished member left by a crash
// is closed off on the next Open.
func WithCompression() Option {
	return func(r *Repository) { r.compress = true }
}

// Repository appends records to a single file. One writer holds the file;
// Add and Query are serialized by a mutex.
type Repository struct {
	path     string
	compress bool

	mu     sync.Mutex
	file   *os.File
	zw     *gzip.Writer
	buf    bytes.Buffer
	closed bool
}

// Open opens or creates the audit file at path.
func Open(path string, opts ...Option) (*Repository, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: audit file path is required", pipeline.ErrConfiguration)
	}
	r := &Repository{path: path}
	for _, opt := range opts {
		opt(r)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	if err := r.checkExisting(); err != nil {
		return nil, err
	}
	if err := r.repair(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit file %s: %w", path, err)
	}
	r.file = f
	if r.compress {
		r.zw = gzip.NewWriter(f)
	}
	return r, nil
}

func (r *Repository) checkExisting() error {
	f, err := os.Open(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	var magic [2]byte
	n, err := io.ReadFull(f, magic[:])
	if n == 0 {
		return nil
	}
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return err
	}
	compressed := n == 2 && magic[0] == 0x1f && magic[1] == 0x8b
	if compressed != r.compress {
		return fmt.Errorf("%w: %s (compressed=%t)", ErrCompressionMismatch, r.path, compressed)
	}
	return nil
}

// repair cuts an existing file back to its last complete record so that new
// records start on a clean boundary. A compressed file whose last member was
// never finished is rewritten as a single member.
func (r *Repository) repair() error {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) || len(data) == 0 {
		return nil
	}
	if err != nil {
		return err
	}

	raw, clean := data, true
	if r.compress {
		raw, clean = nil, false
		if zr, err := gzip.NewReader(bytes.NewReader(data)); err == nil {
			// ReadAll keeps whatever was decoded before the stream broke off.
			raw, err = io.ReadAll(zr)
			clean = err == nil
		}
	}
	end, err := completePrefix(raw)
	if err != nil {
		return fmt.Errorf("audit file %s: %w", r.path, err)
	}
	if clean && end == int64(len(raw)) {
		return nil
	}
	if !r.compress {
		return os.Truncate(r.path, end)
	}
	return rewriteCompressed(r.path, raw[:end])
}

func rewriteCompressed(path string, raw []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("repair audit file %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("repair audit file %s: %w", path, err)
	}
	zw := gzip.NewWriter(tmp)
	if _, err = zw.Write(raw); err != nil {
		return fmt.Errorf("repair audit file %s: %w", path, err)
	}
	if err = zw.Close(); err != nil {
		return fmt.Errorf("repair audit file %s: %w", path, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("repair audit file %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("repair audit file %s: %w", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("repair audit file %s: %w", path, err)
	}
	return nil
}

// Path returns the file location.
func (r *Repository) Path() string {
	return r.path
}

// Add implements repository.Repository.
func (r *Repository) Add(ctx context.Context, msg *pipeline.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec, err := repository.FromMessage(msg)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return repository.ErrClosed
	}
	r.buf.Reset()
	encode(&r.buf, rec)

	if r.zw != nil {
		if _, err := r.zw.Write(r.buf.Bytes()); err != nil {
			return fmt.Errorf("write audit record: %w", err)
		}
		if err := r.zw.Flush(); err != nil {
			return fmt.Errorf("flush audit record: %w", err)
		}
		return nil
	}
	if _, err := r.file.Write(r.buf.Bytes()); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	return nil
}

// Query implements repository.Repository by scanning the whole file.
func (r *Repository) Query(ctx context.Context, f repository.Filter) ([]*repository.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, repository.ErrClosed
	}
	records, err := readFile(r.path)
	if err != nil {
		return nil, err
	}
	return f.Apply(records), nil
}

// Close finishes the gzip member and closes the file.
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	var err error
	if r.zw != nil {
		err = r.zw.Close()
	}
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// ReadFile decodes every complete record stored at path.
func ReadFile(path string) ([]*repository.Record, error) {
	return readFile(path)
}

func readFile(path string) ([]*repository.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadAll(bufio.NewReader(f))
}
