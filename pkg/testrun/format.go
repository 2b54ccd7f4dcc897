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

package testrun

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Version is the only file version understood by this package.
const Version = 1

var delimiter = regexp.MustCompile(`^/\*>! \[#(\d+)\] (\S+) \*/$`)

func delimiterLine(index int, name string) string {
	return fmt.Sprintf("/*>! [#%d] %s */", index, name)
}

// Write encodes run. The run is validated first.
func Write(w io.Writer, run *Run, reg *Registry) error {
	if reg == nil {
		reg = NewRegistry()
	}
	if err := run.Validate(); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "V%d\n", Version)
	for i, step := range run.Steps {
		name := reg.nameOf(step)
		if _, ok := reg.Lookup(name); !ok {
			return fmt.Errorf("%w: step type %s is not registered", ErrFormat, name)
		}
		body, err := yaml.Marshal(step)
		if err != nil {
			return fmt.Errorf("encode step #%d: %w", i, err)
		}
		bw.WriteString(delimiterLine(i, name))
		bw.WriteByte('\n')
		bw.Write(body)
	}
	return bw.Flush()
}

// Read decodes a run. Any deviation from the format is an ErrFormat.
func Read(r io.Reader, reg *Registry) (*Run, error) {
	if reg == nil {
		reg = NewRegistry()
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: empty file", ErrFormat)
	}
	header := strings.TrimSpace(strings.TrimPrefix(sc.Text(), "\ufeff"))
	if header != fmt.Sprintf("V%d", Version) {
		return nil, fmt.Errorf("%w: unsupported header %q, want V%d", ErrFormat, header, Version)
	}

	run := &Run{}
	var (
		current reflect.Type
		name    string
		body    bytes.Buffer
	)
	flush := func() error {
		if current == nil {
			return nil
		}
		step, err := decodeStep(current, body.Bytes())
		if err != nil {
			return fmt.Errorf("%w: step #%d (%s): %v", ErrFormat, len(run.Steps), name, err)
		}
		run.Steps = append(run.Steps, step)
		body.Reset()
		return nil
	}

	for line := 2; sc.Scan(); line++ {
		text := sc.Text()
		m := delimiter.FindStringSubmatch(strings.TrimRight(text, " \t\r"))
		if m == nil {
			if current == nil {
				if strings.TrimSpace(text) == "" {
					continue
				}
				return nil, fmt.Errorf("%w: line %d: content before the first step", ErrFormat, line)
			}
			body.WriteString(text)
			body.WriteByte('\n')
			continue
		}
		if err := flush(); err != nil {
			return nil, err
		}
		index, _ := strconv.Atoi(m[1])
		if index != len(run.Steps) {
			return nil, fmt.Errorf("%w: line %d: step #%d out of order, want #%d", ErrFormat, line, index, len(run.Steps))
		}
		t, ok := reg.Lookup(m[2])
		if !ok {
			return nil, fmt.Errorf("%w: line %d: unknown step type %s", ErrFormat, line, m[2])
		}
		current, name = t, m[2]
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	if err := run.Validate(); err != nil {
		return nil, err
	}
	return run, nil
}

func decodeStep(t reflect.Type, body []byte) (Step, error) {
	ptr := reflect.New(t)
	if len(bytes.TrimSpace(body)) > 0 {
		if err := yaml.Unmarshal(body, ptr.Interface()); err != nil {
			return nil, err
		}
	}
	step, ok := ptr.Interface().(Step)
	if !ok {
		return nil, fmt.Errorf("%s is not a step", t)
	}
	return step, nil
}

// Save writes run to path, creating parent directories.
func Save(path string, run *Run, reg *Registry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := Write(&buf, run, reg); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// Load reads the run stored at path.
func Load(path string, reg *Registry) (*Run, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	run, err := Read(f, reg)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return run, nil
}
