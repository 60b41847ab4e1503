package connection

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/yndnr/tinykv/internal/server/redisserver"
)

// DefaultTimeout bounds dialing and each request/reply round trip.
const DefaultTimeout = 5 * time.Second

// ErrMalformedReply is returned when the server sends bytes that are not a
// valid reply.
var ErrMalformedReply = errors.New("malformed reply")

// ReplyKind identifies the type of a server reply.
type ReplyKind uint8

const (
	ReplyStatus ReplyKind = iota + 1
	ReplyError
	ReplyBulk
	ReplyNil
)

func (k ReplyKind) String() string {
	switch k {
	case ReplyStatus:
		return "status"
	case ReplyError:
		return "error"
	case ReplyBulk:
		return "bulk"
	case ReplyNil:
		return "nil"
	default:
		return "unknown"
	}
}

// Reply is one decoded server reply.
type Reply struct {
	Kind ReplyKind
	Str  string
}

// replyView is the machine-readable form of a Reply. Value is null for the
// null bulk string.
type replyView struct {
	Type  string  `json:"type" yaml:"type"`
	Value *string `json:"value" yaml:"value"`
}

func (r Reply) view() replyView {
	v := replyView{Type: r.Kind.String()}
	if r.Kind != ReplyNil {
		s := r.Str
		v.Value = &s
	}
	return v
}

// MarshalJSON implements json.Marshaler.
func (r Reply) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.view())
}

// MarshalYAML implements yaml.Marshaler.
func (r Reply) MarshalYAML() (any, error) {
	return r.view(), nil
}

// ServerError is an error reply sent by the server.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return e.Message
}

// Err returns a *ServerError for error replies and nil otherwise.
func (r Reply) Err() error {
	if r.Kind == ReplyError {
		return &ServerError{Message: r.Str}
	}
	return nil
}

// IsNil reports whether the reply is the null bulk string.
func (r Reply) IsNil() bool {
	return r.Kind == ReplyNil
}

// String renders the reply the way redis-cli does.
func (r Reply) String() string {
	switch r.Kind {
	case ReplyStatus:
		return r.Str
	case ReplyError:
		return "(error) " + r.Str
	case ReplyBulk:
		return strconv.Quote(r.Str)
	case ReplyNil:
		return "(nil)"
	default:
		return "(unknown)"
	}
}

// Client is a single connection to a tinykv server. It is not safe for
// concurrent use; share connections through a Pool instead.
type Client struct {
	addr    string
	conn    net.Conn
	br      *bufio.Reader
	timeout time.Duration
}

// Dial connects to addr. A zero timeout means DefaultTimeout.
func Dial(ctx context.Context, addr string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	return &Client{
		addr:    addr,
		conn:    conn,
		br:      bufio.NewReader(conn),
		timeout: timeout,
	}, nil
}

// Addr returns the server address.
func (c *Client) Addr() string {
	return c.addr
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Do sends one command and waits for its reply. Error replies are returned
// as a Reply with Kind ReplyError and a nil error; the returned error is for
// transport and decoding failures, after which the client must be closed.
func (c *Client) Do(ctx context.Context, args ...string) (Reply, error) {
	if len(args) == 0 {
		return Reply{}, errors.New("empty command")
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return Reply{}, err
	}

	if _, err := c.conn.Write(redisserver.EncodeCommand(args...)); err != nil {
		return Reply{}, fmt.Errorf("send %s: %w", args[0], err)
	}

	reply, err := ReadReply(c.br)
	if err != nil {
		return Reply{}, fmt.Errorf("read reply: %w", err)
	}
	return reply, nil
}

// ReadReply decodes one reply. The server only sends simple strings, errors,
// bulk strings and the null bulk string.
func ReadReply(br *bufio.Reader) (Reply, error) {
	line, err := readLine(br)
	if err != nil {
		return Reply{}, err
	}
	if line == "" {
		return Reply{}, fmt.Errorf("%w: empty line", ErrMalformedReply)
	}

	switch line[0] {
	case '+':
		return Reply{Kind: ReplyStatus, Str: line[1:]}, nil
	case '-':
		return Reply{Kind: ReplyError, Str: line[1:]}, nil
	case '$':
		n, err := strconv.Atoi(line[1:])
		if err != nil {
			return Reply{}, fmt.Errorf("%w: bad bulk length %q", ErrMalformedReply, line[1:])
		}
		if n == -1 {
			return Reply{Kind: ReplyNil}, nil
		}
		if n < 0 || n > redisserver.MaxBulkLen {
			return Reply{}, fmt.Errorf("%w: bulk length %d out of range", ErrMalformedReply, n)
		}

		buf := make([]byte, n+2)
		if _, err := io.ReadFull(br, buf); err != nil {
			return Reply{}, err
		}
		if buf[n] != '\r' || buf[n+1] != '\n' {
			return Reply{}, fmt.Errorf("%w: bulk not terminated by CRLF", ErrMalformedReply)
		}
		return Reply{Kind: ReplyBulk, Str: string(buf[:n])}, nil
	default:
		return Reply{}, fmt.Errorf("%w: unexpected type byte %q", ErrMalformedReply, line[0])
	}
}

func readLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		return "", err
	}
	if !strings.HasSuffix(line, "\r\n") {
		return "", fmt.Errorf("%w: line not terminated by CRLF", ErrMalformedReply)
	}
	return line[:len(line)-2], nil
}
