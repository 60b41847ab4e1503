package redisserver

import (
	"strconv"
	"strings"
)

// Kind identifies the wire type of a Frame.
type Kind uint8

const (
	KindSimpleString Kind = iota + 1
	KindBulkString
	KindArray
	KindNullBulkString
	// KindError is only ever written by the server.
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindSimpleString:
		return "simple string"
	case KindBulkString:
		return "bulk string"
	case KindArray:
		return "array"
	case KindNullBulkString:
		return "null bulk string"
	case KindError:
		return "error"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Frame is one self-delimiting unit of the RESP wire protocol.
//
// Str carries the text of simple strings, bulk strings and errors.
// Items carries the children of an array.
type Frame struct {
	Kind  Kind
	Str   string
	Items []Frame
}

func SimpleString(s string) Frame {
	return Frame{Kind: KindSimpleString, Str: s}
}

func BulkString(s string) Frame {
	return Frame{Kind: KindBulkString, Str: s}
}

func Array(items ...Frame) Frame {
	return Frame{Kind: KindArray, Items: items}
}

func NullBulkString() Frame {
	return Frame{Kind: KindNullBulkString}
}

// ErrorFrame builds an error reply ("-<msg>\r\n").
func ErrorFrame(msg string) Frame {
	return Frame{Kind: KindError, Str: msg}
}

// Common replies.
var (
	framePong = SimpleString("PONG")
	frameOK   = SimpleString("OK")
	frameNull = NullBulkString()
)

// String renders the frame for debug logging.
func (f Frame) String() string {
	var b strings.Builder
	f.writeTo(&b)
	return b.String()
}

func (f Frame) writeTo(b *strings.Builder) {
	switch f.Kind {
	case KindSimpleString:
		b.WriteString("SimpleString(" + strconv.Quote(f.Str) + ")")
	case KindBulkString:
		b.WriteString("BulkString(" + strconv.Quote(f.Str) + ")")
	case KindError:
		b.WriteString("Error(" + strconv.Quote(f.Str) + ")")
	case KindNullBulkString:
		b.WriteString("NullBulkString")
	case KindArray:
		b.WriteString("Array[")
		for i, item := range f.Items {
			if i > 0 {
				b.WriteString(", ")
			}
			item.writeTo(b)
		}
		b.WriteString("]")
	default:
		b.WriteString(f.Kind.String())
	}
}
