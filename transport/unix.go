// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// maxUnixPathBytes is the largest usable sun_path length for this
// platform's AF_UNIX address. Linux's sockaddr_un.sun_path is 108 bytes
// including the NUL terminator (107 usable); most BSDs use 104 (103
// usable).
var maxUnixPathBytes = len(unix.RawSockaddrUnix{}.Path) - 1

// ErrSocketPathTooLong is returned when a Unix-domain socket path exceeds
// the platform's sun_path capacity.
var ErrSocketPathTooLong = errors.New("transport: socket path too long")

// UnixCleanupPolicy governs how UnixServer behaves when its bind path
// already exists on disk.
type UnixCleanupPolicy int

const (
	// RemoveExisting unconditionally unlinks the path before binding.
	RemoveExisting UnixCleanupPolicy = iota
	// FailIfExists refuses to bind if the path already exists.
	FailIfExists
	// ReuseIfPossible attempts to connect to the existing path first; if the
	// connection is refused (stale socket file with no listener), the path
	// is unlinked and bound fresh. If the connection succeeds, binding fails
	// since another listener is already live.
	ReuseIfPossible
)

// UnixServer is a Transport that accepts Unix-domain socket connections at
// Path. Each accepted connection is exposed through the same Connection
// returned by Connect: Connect's receive stream interleaves frames from
// whichever connection is currently accepted, prefixed by a
// NewConnectionFrame sentinel whenever a new one arrives, so a single
// long-lived server can serve sequential clients.
type UnixServer struct {
	Path    string
	Cleanup UnixCleanupPolicy
}

// NewUnixServer returns a Transport that listens on path, applying cleanup
// when a stale socket file is found there.
func NewUnixServer(path string, cleanup UnixCleanupPolicy) *UnixServer {
	return &UnixServer{Path: path, Cleanup: cleanup}
}

func (s *UnixServer) Connect(ctx context.Context) (Connection, error) {
	if len(s.Path) > maxUnixPathBytes {
		return Connection{}, fmt.Errorf("%w: %d bytes (max %d)", ErrSocketPathTooLong, len(s.Path), maxUnixPathBytes)
	}

	if err := s.applyCleanup(); err != nil {
		return Connection{}, err
	}

	ln, err := net.Listen("unix", s.Path)
	if err != nil {
		return Connection{}, fmt.Errorf("transport: unix listen: %w", err)
	}

	conn := &unixServerConn{
		ln:     ln,
		path:   s.Path,
		frames: make(chan []byte, 64),
		done:   make(chan struct{}),
	}
	go conn.acceptLoop()
	return wrap(conn), nil
}

func (s *UnixServer) applyCleanup() error {
	_, statErr := os.Stat(s.Path)
	exists := statErr == nil

	switch s.Cleanup {
	case RemoveExisting:
		if exists {
			if err := os.Remove(s.Path); err != nil {
				return fmt.Errorf("transport: removing stale socket: %w", err)
			}
		}
	case FailIfExists:
		if exists {
			return fmt.Errorf("transport: socket path %q already exists", s.Path)
		}
	case ReuseIfPossible:
		if exists {
			if c, err := net.Dial("unix", s.Path); err == nil {
				c.Close()
				return fmt.Errorf("transport: socket path %q already has an active listener", s.Path)
			}
			if err := os.Remove(s.Path); err != nil {
				return fmt.Errorf("transport: removing stale socket: %w", err)
			}
		}
	}
	return nil
}

type unixServerConn struct {
	noSessionID

	ln     net.Listener
	path   string
	frames chan []byte

	mu        sync.Mutex
	active    net.Conn
	closeOnce sync.Once
	done      chan struct{}
}

func (c *unixServerConn) acceptLoop() {
	for {
		nc, err := c.ln.Accept()
		if err != nil {
			return
		}
		c.mu.Lock()
		c.active = nc
		c.mu.Unlock()

		select {
		case c.frames <- NewConnectionFrame:
		case <-c.done:
			nc.Close()
			return
		}
		go readNonblockingFrames(nc, c.frames, c.done)
	}
}

// readNonblockingFrames reads newline-delimited frames from nc using a raw
// non-blocking read so EAGAIN is observed explicitly rather than relying on
// the runtime netpoller to mask it, matching the socket's non-blocking
// operating mode. Each complete line becomes one frame.
func readNonblockingFrames(nc net.Conn, out chan<- []byte, done <-chan struct{}) {
	uc, ok := nc.(*net.UnixConn)
	if !ok {
		return
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return
	}

	var buf bytes.Buffer
	readBuf := make([]byte, 64*1024)
	for {
		var n int
		var readErr error
		opErr := raw.Read(func(fd uintptr) bool {
			n, readErr = unix.Read(int(fd), readBuf)
			if readErr == unix.EAGAIN {
				return false // not ready; let the runtime poll again
			}
			return true
		})
		if opErr != nil {
			return
		}
		if readErr != nil && readErr != unix.EAGAIN {
			return
		}
		if n == 0 {
			return // peer closed
		}
		buf.Write(readBuf[:n])
		for {
			data := buf.Bytes()
			idx := bytes.IndexByte(data, '\n')
			if idx < 0 {
				break
			}
			line := data[:idx]
			if len(line) > 0 {
				frame := make([]byte, len(line))
				copy(frame, line)
				select {
				case out <- frame:
				case <-done:
					return
				}
			}
			buf.Next(idx + 1)
		}
	}
}

func (c *unixServerConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrConnectionClosed
	case frame := <-c.frames:
		return frame, nil
	}
}

func (c *unixServerConn) Write(ctx context.Context, frame []byte) error {
	c.mu.Lock()
	conn := c.active
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("transport: unix server has no accepted connection")
	}
	if _, err := conn.Write(append(append([]byte(nil), frame...), '\n')); err != nil {
		return fmt.Errorf("transport: unix write: %w", err)
	}
	return nil
}

func (c *unixServerConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ln.Close()
		c.mu.Lock()
		if c.active != nil {
			c.active.Close()
		}
		c.mu.Unlock()
	})
	return nil
}

// UnixClient is a Transport that dials a Unix-domain socket at Path.
type UnixClient struct {
	Path string
}

// NewUnixClient returns a Transport that connects to an existing
// UnixServer listening at path.
func NewUnixClient(path string) *UnixClient {
	return &UnixClient{Path: path}
}

func (c *UnixClient) Connect(ctx context.Context) (Connection, error) {
	if len(c.Path) > maxUnixPathBytes {
		return Connection{}, fmt.Errorf("%w: %d bytes (max %d)", ErrSocketPathTooLong, len(c.Path), maxUnixPathBytes)
	}
	var d net.Dialer
	nc, err := d.DialContext(ctx, "unix", c.Path)
	if err != nil {
		return Connection{}, fmt.Errorf("transport: unix dial: %w", err)
	}
	conn := &unixClientConn{conn: nc, frames: make(chan []byte, 64), done: make(chan struct{})}
	go readNonblockingFrames(nc, conn.frames, conn.done)
	return wrap(conn), nil
}

type unixClientConn struct {
	noSessionID

	conn      net.Conn
	frames    chan []byte
	closeOnce sync.Once
	done      chan struct{}
}

func (c *unixClientConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrConnectionClosed
	case frame := <-c.frames:
		return frame, nil
	}
}

func (c *unixClientConn) Write(ctx context.Context, frame []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	if _, err := c.conn.Write(append(append([]byte(nil), frame...), '\n')); err != nil {
		return fmt.Errorf("transport: unix write: %w", err)
	}
	return nil
}

func (c *unixClientConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
	return nil
}
