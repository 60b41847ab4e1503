package redisserver

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	// initialBufferLen is the starting capacity of a connection read buffer.
	initialBufferLen = 512

	// DefaultMaxBufferLen caps how many unparsed bytes one connection may
	// accumulate while waiting for a frame to complete.
	DefaultMaxBufferLen = 1 << 20

	// retainBufferLen is the largest buffer kept between frames; anything
	// bigger is released once its frame is handled.
	retainBufferLen = 64 * 1024
)

// Conn represents a single client connection.
type Conn struct {
	id      string
	netConn net.Conn
	bw      *bufio.Writer

	buf       []byte
	maxBuffer int

	closed atomic.Bool
}

func newConn(c net.Conn, maxBuffer int) *Conn {
	if maxBuffer <= 0 {
		maxBuffer = DefaultMaxBufferLen
	}
	return &Conn{
		id:        ulid.Make().String(),
		netConn:   c,
		bw:        bufio.NewWriter(c),
		buf:       make([]byte, 0, initialBufferLen),
		maxBuffer: maxBuffer,
	}
}

// ID returns the connection's unique identifier.
func (c *Conn) ID() string {
	return c.id
}

func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.netConn.Close()
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.netConn.RemoteAddr()
}

// RemoteIP returns the peer host without the port.
func (c *Conn) RemoteIP() string {
	addr := c.netConn.RemoteAddr().String()
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// ReadFrame reads from the peer until the buffer holds one complete frame.
//
// The first read waits up to idleTimeout; once bytes arrive, the rest of the
// frame must arrive within readTimeout. Bytes following the frame in the same
// read cycle are discarded and their count returned. A zero timeout disables
// the corresponding deadline.
//
// Returns io.EOF when the peer closes between frames and
// io.ErrUnexpectedEOF when it closes mid-frame.
func (c *Conn) ReadFrame(idleTimeout, readTimeout time.Duration) (Frame, int, error) {
	c.resetBuffer()

	if err := c.setReadDeadline(idleTimeout); err != nil {
		return Frame{}, 0, err
	}

	for {
		if len(c.buf) == cap(c.buf) {
			c.growBuffer()
		}

		n, err := c.netConn.Read(c.buf[len(c.buf):cap(c.buf)])
		if n > 0 {
			first := len(c.buf) == 0
			c.buf = c.buf[:len(c.buf)+n]

			f, used, perr := Parse(c.buf)
			if perr == nil {
				return f, len(c.buf) - used, nil
			}
			if !errors.Is(perr, ErrIncomplete) {
				return Frame{}, 0, perr
			}
			if len(c.buf) >= c.maxBuffer {
				return Frame{}, 0, fmt.Errorf("%w: read buffer exceeds %d bytes", ErrLimitExceeded, c.maxBuffer)
			}
			if first {
				if err := c.setReadDeadline(readTimeout); err != nil {
					return Frame{}, 0, err
				}
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) && len(c.buf) > 0 {
				return Frame{}, 0, io.ErrUnexpectedEOF
			}
			return Frame{}, 0, err
		}
	}
}

// WriteFrame serializes f and flushes it to the peer.
func (c *Conn) WriteFrame(f Frame, writeTimeout time.Duration) error {
	if err := WriteFrame(c.bw, f); err != nil {
		return err
	}
	if writeTimeout > 0 {
		if err := c.netConn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			return err
		}
	}
	return c.bw.Flush()
}

func (c *Conn) setReadDeadline(timeout time.Duration) error {
	if timeout <= 0 {
		return c.netConn.SetReadDeadline(time.Time{})
	}
	return c.netConn.SetReadDeadline(time.Now().Add(timeout))
}

func (c *Conn) resetBuffer() {
	if cap(c.buf) > retainBufferLen {
		c.buf = make([]byte, 0, initialBufferLen)
		return
	}
	c.buf = c.buf[:0]
}

// growBuffer doubles the buffer capacity, never beyond maxBuffer. ReadFrame
// stops at maxBuffer before this can be called on a full buffer.
func (c *Conn) growBuffer() {
	newCap := 2 * cap(c.buf)
	if newCap > c.maxBuffer {
		newCap = c.maxBuffer
	}
	grown := make([]byte, len(c.buf), newCap)
	copy(grown, c.buf)
	c.buf = grown
}
