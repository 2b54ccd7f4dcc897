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

package file

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/innovationmech/msgpipe/pkg/pipeline"
	"github.com/innovationmech/msgpipe/pkg/repository"
)

// Chunk tags. Every chunk is tag(1) length(4, big endian) data(length).
const (
	tagBegin     byte = 0x01
	tagID        byte = 0x02
	tagKind      byte = 0x03
	tagType      byte = 0x04
	tagContent   byte = 0x05
	tagExtra     byte = 0x06
	tagCreated   byte = 0x07
	tagDuration  byte = 0x08
	tagStatus    byte = 0x09
	tagErrorType byte = 0x0A
	tagErrorText byte = 0x0B
	tagEnd       byte = 0xFF
)

// maxChunk bounds a single chunk so a corrupt length cannot exhaust memory.
const maxChunk = 64 << 20

// ErrCorrupt is returned when a complete chunk sequence is not a valid record.
var ErrCorrupt = errors.New("corrupt audit record")

// encode appends the chunks of r to buf.
func encode(buf *bytes.Buffer, r *repository.Record) {
	chunk(buf, tagBegin, nil)
	chunk(buf, tagID, r.ID[:])
	chunk(buf, tagKind, []byte{byte(r.Kind)})
	chunk(buf, tagType, []byte(r.ContentType))
	chunk(buf, tagContent, r.Content)
	if len(r.ExtraData) > 0 {
		chunk(buf, tagExtra, r.ExtraData)
	}
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(r.CreatedAt.UnixNano()))
	chunk(buf, tagCreated, ts[:])
	var d [4]byte
	binary.BigEndian.PutUint32(d[:], clampMillis(r.DurationMS))
	chunk(buf, tagDuration, d[:])
	chunk(buf, tagStatus, []byte{byte(r.Status)})
	if r.ErrorType != "" {
		chunk(buf, tagErrorType, []byte(r.ErrorType))
	}
	if r.ErrorMessage != "" {
		chunk(buf, tagErrorText, []byte(r.ErrorMessage))
	}
	chunk(buf, tagEnd, nil)
}

func chunk(buf *bytes.Buffer, tag byte, data []byte) {
	var hdr [5]byte
	hdr[0] = tag
	binary.BigEndian.PutUint32(hdr[1:], uint32(len(data)))
	buf.Write(hdr[:])
	buf.Write(data)
}

func clampMillis(ms int64) uint32 {
	switch {
	case ms < 0:
		return 0
	case ms > math.MaxUint32:
		return math.MaxUint32
	}
	return uint32(ms)
}

// Reader decodes records from a plain or gzip-compressed audit stream.
// A truncated trailing record ends the stream like io.EOF.
type Reader struct {
	r *bufio.Reader
	// n counts decoded bytes consumed, for plain streams the file offset.
	n int64
}

// NewReader detects compression from the first bytes of r.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open compressed audit stream: %w", err)
		}
		return &Reader{r: bufio.NewReader(zr)}, nil
	}
	return &Reader{r: br}, nil
}

// Next returns the next record, or io.EOF at the end of the stream.
func (rd *Reader) Next() (*repository.Record, error) {
	tag, data, err := rd.chunk()
	if err != nil {
		return nil, err
	}
	if tag != tagBegin {
		return nil, fmt.Errorf("%w: expected begin marker, got tag 0x%02x", ErrCorrupt, tag)
	}

	r := &repository.Record{}
	var seenID, seenStatus bool
	for {
		tag, data, err = rd.chunk()
		if err != nil {
			return nil, err
		}
		switch tag {
		case tagEnd:
			if !seenID || !seenStatus {
				return nil, fmt.Errorf("%w: record without id or status", ErrCorrupt)
			}
			return r, nil
		case tagBegin:
			return nil, fmt.Errorf("%w: nested begin marker", ErrCorrupt)
		case tagID:
			id, err := uuid.FromBytes(data)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
			}
			r.ID, seenID = id, true
		case tagKind:
			if len(data) != 1 || !pipeline.Kind(data[0]).Valid() {
				return nil, fmt.Errorf("%w: bad kind", ErrCorrupt)
			}
			r.Kind = pipeline.Kind(data[0])
		case tagType:
			r.ContentType = string(data)
		case tagContent:
			if len(data) > 0 {
				r.Content = data
			}
		case tagExtra:
			r.ExtraData = data
		case tagCreated:
			if len(data) != 8 {
				return nil, fmt.Errorf("%w: bad timestamp", ErrCorrupt)
			}
			r.CreatedAt = time.Unix(0, int64(binary.BigEndian.Uint64(data))).UTC()
		case tagDuration:
			if len(data) != 4 {
				return nil, fmt.Errorf("%w: bad duration", ErrCorrupt)
			}
			r.DurationMS = int64(binary.BigEndian.Uint32(data))
		case tagStatus:
			if len(data) != 1 || !pipeline.Status(data[0]).Valid() {
				return nil, fmt.Errorf("%w: bad status", ErrCorrupt)
			}
			r.Status, seenStatus = pipeline.Status(data[0]), true
		case tagErrorType:
			r.ErrorType = string(data)
		case tagErrorText:
			r.ErrorMessage = string(data)
		default:
			// unknown chunks from newer writers are skipped
		}
	}
}

// chunk reads one chunk. Any short read, including one in the middle of a
// chunk, is reported as io.EOF.
func (rd *Reader) chunk() (byte, []byte, error) {
	var hdr [5]byte
	if _, err := io.ReadFull(rd.r, hdr[:]); err != nil {
		return 0, nil, eof(err)
	}
	n := binary.BigEndian.Uint32(hdr[1:])
	if n > maxChunk {
		return 0, nil, fmt.Errorf("%w: chunk of %d bytes", ErrCorrupt, n)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(rd.r, data); err != nil {
		return 0, nil, eof(err)
	}
	rd.n += int64(len(hdr)) + int64(n)
	return hdr[0], data, nil
}

func eof(err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return io.EOF
	}
	return err
}

// completePrefix returns the length of the leading run of complete records in
// an uncompressed stream.
func completePrefix(data []byte) (int64, error) {
	rd := &Reader{r: bufio.NewReader(bytes.NewReader(data))}
	var end int64
	for {
		_, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return end, nil
		}
		if err != nil {
			return end, err
		}
		end = rd.n
	}
}

// ReadAll decodes every complete record of r.
func ReadAll(r io.Reader) ([]*repository.Record, error) {
	rd, err := NewReader(r)
	if err != nil {
		return nil, err
	}
	var records []*repository.Record
	for {
		rec, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
}
