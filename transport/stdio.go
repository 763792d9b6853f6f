// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
)

// Stdio is a Transport over newline-delimited frames on an arbitrary
// io.ReadWriteCloser pair, typically os.Stdin/os.Stdout for a subprocess
// peer. The sender appends a single '\n' after every frame; the receiver
// buffers bytes until a newline and emits the run that preceded it. Empty
// lines are dropped.
type Stdio struct {
	r io.Reader
	w io.Writer
	c io.Closer
}

// NewStdio returns a Transport that reads frames from r and writes them to
// w. c, if non-nil, is closed by Connection.Close; otherwise Close is a
// no-op beyond marking the connection done.
func NewStdio(r io.Reader, w io.Writer, c io.Closer) *Stdio {
	return &Stdio{r: r, w: w, c: c}
}

func (s *Stdio) Connect(ctx context.Context) (Connection, error) {
	conn := &stdioConn{
		scanner: bufio.NewScanner(s.r),
		w:       s.w,
		closer:  s.c,
		lines:   make(chan []byte, 64),
		done:    make(chan struct{}),
	}
	conn.scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	go conn.readLoop()
	return wrap(conn), nil
}

type stdioConn struct {
	noSessionID

	scanner *bufio.Scanner
	w       io.Writer
	closer  io.Closer

	lines chan []byte

	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
	readErr   error
	readErrMu sync.Mutex
}

func (c *stdioConn) readLoop() {
	defer close(c.lines)
	for c.scanner.Scan() {
		line := c.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		buf := make([]byte, len(line))
		copy(buf, line)
		select {
		case c.lines <- buf:
		case <-c.done:
			return
		}
	}
	if err := c.scanner.Err(); err != nil {
		c.readErrMu.Lock()
		c.readErr = err
		c.readErrMu.Unlock()
	}
}

func (c *stdioConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrConnectionClosed
	case line, ok := <-c.lines:
		if !ok {
			c.readErrMu.Lock()
			err := c.readErr
			c.readErrMu.Unlock()
			if err != nil {
				return nil, fmt.Errorf("transport: stdio read: %w", err)
			}
			return nil, io.EOF
		}
		return line, nil
	}
}

func (c *stdioConn) Write(ctx context.Context, frame []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.w.Write(frame); err != nil {
		return fmt.Errorf("transport: stdio write: %w", err)
	}
	if _, err := c.w.Write([]byte("\n")); err != nil {
		return fmt.Errorf("transport: stdio write: %w", err)
	}
	return nil
}

func (c *stdioConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if c.closer != nil {
			err = c.closer.Close()
		}
	})
	return err
}
