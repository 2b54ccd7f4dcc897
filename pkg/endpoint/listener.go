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

package endpoint

import (
	"errors"
	"net"
	"sync/atomic"
	"time"
)

// DefaultAcceptTimeout bounds a single wait for an incoming connection.
const DefaultAcceptTimeout = 500 * time.Millisecond

type deadlineSetter interface {
	SetDeadline(t time.Time) error
}

// pollingListener waits for connections in bounded slices so that a stop
// request is noticed within one accept timeout, even when the underlying
// listener is never closed.
type pollingListener struct {
	net.Listener
	timeout time.Duration
	stopped atomic.Bool
}

func newPollingListener(ln net.Listener, timeout time.Duration) *pollingListener {
	if timeout <= 0 {
		timeout = DefaultAcceptTimeout
	}
	return &pollingListener{Listener: ln, timeout: timeout}
}

func (l *pollingListener) Accept() (net.Conn, error) {
	dl, canPoll := l.Listener.(deadlineSetter)
	for {
		if l.stopped.Load() {
			return nil, net.ErrClosed
		}
		if canPoll {
			if err := dl.SetDeadline(time.Now().Add(l.timeout)); err != nil {
				if l.stopped.Load() {
					return nil, net.ErrClosed
				}
				return nil, err
			}
		}
		conn, err := l.Listener.Accept()
		if err == nil {
			return conn, nil
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			continue
		}
		if l.stopped.Load() || errors.Is(err, net.ErrClosed) {
			return nil, net.ErrClosed
		}
		return nil, err
	}
}

// stop makes the next poll return net.ErrClosed without closing the socket.
func (l *pollingListener) stop() {
	l.stopped.Store(true)
}

func (l *pollingListener) Close() error {
	l.stopped.Store(true)
	return l.Listener.Close()
}
