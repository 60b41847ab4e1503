package redisserver

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Protocol limits to prevent DoS attacks.
const (
	// MaxArrayLen limits the number of elements in a RESP array.
	// The widest command we serve is SET key value PX ms.
	MaxArrayLen = 1024

	// MaxBulkLen limits the size of a single bulk string (512KB).
	MaxBulkLen = 512 * 1024

	// MaxInlineLen limits the length of a simple string line (4KB).
	MaxInlineLen = 4 * 1024

	// MaxDepth limits array nesting so hostile input cannot grow the stack.
	MaxDepth = 8

	// maxHeaderLen bounds "$<n>\r\n" and "*<n>\r\n" header lines.
	maxHeaderLen = 32
)

var (
	ErrProtocol = errors.New("resp: protocol error")

	// ErrIncomplete reports that the buffer ends before the frame does.
	// More bytes from the peer may complete it.
	ErrIncomplete = fmt.Errorf("%w: incomplete frame", ErrProtocol)

	ErrLimitExceeded = fmt.Errorf("%w: limit exceeded", ErrProtocol)

	// ErrUnsupportedFrame is returned when serializing a frame kind the
	// server never emits (arrays).
	ErrUnsupportedFrame = errors.New("resp: unsupported frame")
)

var crlf = []byte("\r\n")

// Parse decodes one frame from the start of buf.
//
// It returns the frame and the exact number of bytes it occupies (type byte,
// header, delimiters and payload), so a following frame starts at buf[n:].
// Every failure wraps ErrProtocol; failures caused only by missing bytes also
// wrap ErrIncomplete.
func Parse(buf []byte) (Frame, int, error) {
	return parseFrame(buf, 0)
}

func parseFrame(buf []byte, depth int) (Frame, int, error) {
	if len(buf) == 0 {
		return Frame{}, 0, fmt.Errorf("%w: empty buffer", ErrIncomplete)
	}

	switch buf[0] {
	case '+':
		return parseSimpleString(buf)
	case '$':
		return parseBulkString(buf)
	case '*':
		return parseArray(buf, depth)
	default:
		return Frame{}, 0, fmt.Errorf("%w: unknown frame type %q", ErrProtocol, buf[0])
	}
}

// "+<text>\r\n"
func parseSimpleString(buf []byte) (Frame, int, error) {
	line, n, err := readLine(buf, MaxInlineLen)
	if err != nil {
		return Frame{}, 0, err
	}
	if !utf8.Valid(line) {
		return Frame{}, 0, fmt.Errorf("%w: simple string is not valid UTF-8", ErrProtocol)
	}
	return SimpleString(string(line)), n, nil
}

// "$<len>\r\n<payload>\r\n"
func parseBulkString(buf []byte) (Frame, int, error) {
	line, off, err := readLine(buf, maxHeaderLen)
	if err != nil {
		return Frame{}, 0, err
	}
	size, err := parseInt(line, "bulk length")
	if err != nil {
		return Frame{}, 0, err
	}
	// $-1 is only ever sent by the server.
	if size < 0 {
		return Frame{}, 0, fmt.Errorf("%w: invalid bulk length %d", ErrProtocol, size)
	}
	if size > MaxBulkLen {
		return Frame{}, 0, fmt.Errorf("%w: bulk length %d exceeds limit %d", ErrLimitExceeded, size, MaxBulkLen)
	}

	end := off + int(size)
	if len(buf) > end && buf[end] != '\r' {
		return Frame{}, 0, fmt.Errorf("%w: invalid bulk terminator", ErrProtocol)
	}
	if len(buf) < end+len(crlf) {
		return Frame{}, 0, fmt.Errorf("%w: bulk payload needs %d bytes, have %d", ErrIncomplete, end+len(crlf), len(buf))
	}
	if buf[end+1] != '\n' {
		return Frame{}, 0, fmt.Errorf("%w: invalid bulk terminator", ErrProtocol)
	}

	payload := buf[off:end]
	if !utf8.Valid(payload) {
		return Frame{}, 0, fmt.Errorf("%w: bulk string is not valid UTF-8", ErrProtocol)
	}
	return BulkString(string(payload)), end + len(crlf), nil
}

// "*<count>\r\n" followed by count frames.
func parseArray(buf []byte, depth int) (Frame, int, error) {
	if depth >= MaxDepth {
		return Frame{}, 0, fmt.Errorf("%w: array nesting exceeds depth %d", ErrLimitExceeded, MaxDepth)
	}

	line, consumed, err := readLine(buf, maxHeaderLen)
	if err != nil {
		return Frame{}, 0, err
	}
	count, err := parseInt(line, "array length")
	if err != nil {
		return Frame{}, 0, err
	}
	if count < 0 {
		return Frame{}, 0, fmt.Errorf("%w: invalid array length %d", ErrProtocol, count)
	}
	if count > MaxArrayLen {
		return Frame{}, 0, fmt.Errorf("%w: array length %d exceeds limit %d", ErrLimitExceeded, count, MaxArrayLen)
	}

	items := make([]Frame, 0, count)
	for i := int64(0); i < count; i++ {
		item, n, err := parseFrame(buf[consumed:], depth+1)
		if err != nil {
			return Frame{}, 0, err
		}
		items = append(items, item)
		consumed += n
	}
	return Array(items...), consumed, nil
}

// readLine returns the bytes between the type byte and the first CRLF, and
// the offset just past that CRLF.
func readLine(buf []byte, maxLen int) ([]byte, int, error) {
	i := bytes.Index(buf[1:], crlf)
	if i < 0 {
		if len(buf)-1 > maxLen {
			return nil, 0, fmt.Errorf("%w: line length exceeds limit %d", ErrLimitExceeded, maxLen)
		}
		return nil, 0, fmt.Errorf("%w: missing CRLF", ErrIncomplete)
	}
	if i > maxLen {
		return nil, 0, fmt.Errorf("%w: line length exceeds limit %d", ErrLimitExceeded, maxLen)
	}
	return buf[1 : 1+i], 1 + i + len(crlf), nil
}

func parseInt(line []byte, what string) (int64, error) {
	n, err := strconv.ParseInt(string(line), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", ErrProtocol, what, line)
	}
	return n, nil
}

// Serialize encodes a reply frame.
//
// Only simple strings, bulk strings, null bulk strings and errors are
// supported; arrays return ErrUnsupportedFrame.
func Serialize(f Frame) ([]byte, error) {
	return AppendFrame(nil, f)
}

// AppendFrame appends the wire encoding of f to dst.
func AppendFrame(dst []byte, f Frame) ([]byte, error) {
	switch f.Kind {
	case KindSimpleString:
		dst = append(dst, '+')
		dst = append(dst, f.Str...)
	case KindError:
		dst = append(dst, '-')
		dst = append(dst, errorLineReplacer.Replace(f.Str)...)
	case KindBulkString:
		dst = append(dst, '$')
		dst = strconv.AppendInt(dst, int64(len(f.Str)), 10)
		dst = append(dst, crlf...)
		dst = append(dst, f.Str...)
	case KindNullBulkString:
		dst = append(dst, "$-1"...)
	default:
		return dst, fmt.Errorf("%w: cannot serialize %s", ErrUnsupportedFrame, f.Kind)
	}
	return append(dst, crlf...), nil
}

// Error text is a single line on the wire.
var errorLineReplacer = strings.NewReplacer("\r", " ", "\n", " ")

// WriteFrame writes the encoding of f to w without flushing.
func WriteFrame(w *bufio.Writer, f Frame) error {
	b, err := AppendFrame(w.AvailableBuffer(), f)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// EncodeCommand encodes a client request as an array of bulk strings.
func EncodeCommand(args ...string) []byte {
	b := make([]byte, 0, 16+len(args)*16)
	b = append(b, '*')
	b = strconv.AppendInt(b, int64(len(args)), 10)
	b = append(b, crlf...)
	for _, arg := range args {
		b = append(b, '$')
		b = strconv.AppendInt(b, int64(len(arg)), 10)
		b = append(b, crlf...)
		b = append(b, arg...)
		b = append(b, crlf...)
	}
	return b
}
