package redisserver

import (
	"bufio"
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"
)

// ============================================================
// Parse Tests
// ============================================================

func TestParse_Frames(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Frame
	}{
		{
			name:  "simple string",
			input: "+OK\r\n",
			want:  SimpleString("OK"),
		},
		{
			name:  "empty simple string",
			input: "+\r\n",
			want:  SimpleString(""),
		},
		{
			name:  "bulk string",
			input: "$5\r\nhello\r\n",
			want:  BulkString("hello"),
		},
		{
			name:  "empty bulk string",
			input: "$0\r\n\r\n",
			want:  BulkString(""),
		},
		{
			name:  "bulk string with CRLF in payload",
			input: "$4\r\na\r\nb\r\n",
			want:  BulkString("a\r\nb"),
		},
		{
			name:  "multibyte utf-8 bulk",
			input: "$6\r\n日本\r\n",
			want:  BulkString("日本"),
		},
		{
			name:  "ping command",
			input: "*1\r\n$4\r\nPING\r\n",
			want:  Array(BulkString("PING")),
		},
		{
			name:  "set with px",
			input: "*5\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n$2\r\nPX\r\n$3\r\n100\r\n",
			want: Array(
				BulkString("SET"), BulkString("k"), BulkString("v"),
				BulkString("PX"), BulkString("100"),
			),
		},
		{
			name:  "nested array",
			input: "*2\r\n+a\r\n*1\r\n$1\r\nb\r\n",
			want:  Array(SimpleString("a"), Array(BulkString("b"))),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, n, err := Parse([]byte(tt.input))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse() = %v, want %v", got, tt.want)
			}
			if n != len(tt.input) {
				t.Errorf("consumed = %d, want %d", n, len(tt.input))
			}
		})
	}
}

func TestParse_EchoExampleConsumesWholeBuffer(t *testing.T) {
	input := []byte("*2\r\n$4\r\nECHO\r\n$2\r\nhi\r\n")
	if len(input) != 22 {
		t.Fatalf("len(input) = %d, want 22", len(input))
	}

	got, n, err := Parse(input)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if n != 22 {
		t.Errorf("consumed = %d, want 22", n)
	}
	if want := Array(BulkString("ECHO"), BulkString("hi")); !reflect.DeepEqual(got, want) {
		t.Errorf("Parse() = %v, want %v", got, want)
	}
}

func TestParse_EmptyArray(t *testing.T) {
	got, n, err := Parse([]byte("*0\r\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if n != 4 {
		t.Errorf("consumed = %d, want 4", n)
	}
	if got.Kind != KindArray || len(got.Items) != 0 {
		t.Errorf("Parse() = %v, want empty array", got)
	}
}

func TestParse_ReportsOnlyFirstFrame(t *testing.T) {
	input := "+first\r\n+second\r\n"

	got, n, err := Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !reflect.DeepEqual(got, SimpleString("first")) {
		t.Errorf("first frame = %v", got)
	}
	if n != len("+first\r\n") {
		t.Errorf("consumed = %d, want %d", n, len("+first\r\n"))
	}

	got, m, err := Parse([]byte(input)[n:])
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !reflect.DeepEqual(got, SimpleString("second")) {
		t.Errorf("second frame = %v", got)
	}
	if n+m != len(input) {
		t.Errorf("total consumed = %d, want %d", n+m, len(input))
	}
}

// ============================================================
// Parse Tests - Errors
// ============================================================

func TestParse_Incomplete(t *testing.T) {
	full := "*2\r\n$4\r\nECHO\r\n$2\r\nhi\r\n"

	// Every strict prefix must ask for more bytes rather than fail hard.
	for i := 0; i < len(full); i++ {
		_, _, err := Parse([]byte(full[:i]))
		if !errors.Is(err, ErrIncomplete) {
			t.Errorf("prefix %q: error = %v, want ErrIncomplete", full[:i], err)
		}
		if !errors.Is(err, ErrProtocol) {
			t.Errorf("prefix %q: error = %v, want ErrProtocol", full[:i], err)
		}
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unknown type byte", ":1\r\n"},
		{"inline command", "PING\r\n"},
		{"null bulk from client", "$-1\r\n"},
		{"negative bulk length", "$-2\r\n"},
		{"non numeric bulk length", "$abc\r\nxyz\r\n"},
		{"empty bulk length", "$\r\n\r\n"},
		{"negative array length", "*-1\r\n"},
		{"non numeric array length", "*x\r\n"},
		{"bulk shorter than declared", "$5\r\nhi\r\n\r\n"},
		{"bulk longer than declared", "$1\r\nhello\r\n"},
		{"bulk terminator not CRLF", "$2\r\nhi\r\r"},
		{"invalid utf-8 bulk", "$2\r\n\xff\xfe\r\n"},
		{"invalid utf-8 simple", "+\xff\r\n"},
		{"bad item inside array", "*2\r\n$1\r\na\r\n:1\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, n, err := Parse([]byte(tt.input))
			if !errors.Is(err, ErrProtocol) {
				t.Fatalf("error = %v, want ErrProtocol", err)
			}
			if errors.Is(err, ErrIncomplete) {
				t.Errorf("error = %v, must not be ErrIncomplete", err)
			}
			if n != 0 {
				t.Errorf("consumed = %d, want 0", n)
			}
		})
	}
}

func TestParse_Limits(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"array too long", "*1025\r\n"},
		{"bulk too long", "$524289\r\n"},
		{"simple string line too long", "+" + strings.Repeat("a", MaxInlineLen+1) + "\r\n"},
		{"unterminated simple string too long", "+" + strings.Repeat("a", MaxInlineLen+1)},
		{"header too long", "$" + strings.Repeat("1", maxHeaderLen+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Parse([]byte(tt.input))
			if !errors.Is(err, ErrLimitExceeded) {
				t.Errorf("error = %v, want ErrLimitExceeded", err)
			}
			if !errors.Is(err, ErrProtocol) {
				t.Errorf("error = %v, want ErrProtocol", err)
			}
		})
	}
}

func TestParse_MaxDepth(t *testing.T) {
	nest := func(depth int) string {
		return strings.Repeat("*1\r\n", depth) + "+x\r\n"
	}

	if _, _, err := Parse([]byte(nest(MaxDepth))); err != nil {
		t.Fatalf("depth %d: error = %v", MaxDepth, err)
	}

	_, _, err := Parse([]byte(nest(MaxDepth + 1)))
	if !errors.Is(err, ErrLimitExceeded) {
		t.Errorf("depth %d: error = %v, want ErrLimitExceeded", MaxDepth+1, err)
	}
}

// ============================================================
// Serialize Tests
// ============================================================

func TestSerialize(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		want  string
	}{
		{"pong", SimpleString("PONG"), "+PONG\r\n"},
		{"bulk", BulkString("hi"), "$2\r\nhi\r\n"},
		{"empty bulk", BulkString(""), "$0\r\n\r\n"},
		{"bulk byte length", BulkString("日本"), "$6\r\n日本\r\n"},
		{"null bulk", NullBulkString(), "$-1\r\n"},
		{"error", ErrorFrame("ERR unknown command 'foo'"), "-ERR unknown command 'foo'\r\n"},
		{"error keeps one line", ErrorFrame("ERR a\r\nb"), "-ERR a  b\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Serialize(tt.frame)
			if err != nil {
				t.Fatalf("Serialize() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Serialize() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSerialize_ArrayUnsupported(t *testing.T) {
	_, err := Serialize(Array(BulkString("x")))
	if !errors.Is(err, ErrUnsupportedFrame) {
		t.Errorf("error = %v, want ErrUnsupportedFrame", err)
	}
}

func TestSerialize_RoundTrip(t *testing.T) {
	frames := []Frame{
		SimpleString("OK"),
		BulkString("hello world"),
		BulkString("line1\r\nline2"),
		BulkString(""),
	}

	for _, f := range frames {
		b, err := Serialize(f)
		if err != nil {
			t.Fatalf("Serialize(%v) error = %v", f, err)
		}

		got, n, err := Parse(b)
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", b, err)
		}
		if !reflect.DeepEqual(got, f) {
			t.Errorf("round trip = %v, want %v", got, f)
		}
		if n != len(b) {
			t.Errorf("consumed = %d, want %d", n, len(b))
		}
	}
}

func TestWriteFrame(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	if err := WriteFrame(w, SimpleString("OK")); err != nil {
		t.Fatal(err)
	}
	if err := WriteFrame(w, NullBulkString()); err != nil {
		t.Fatal(err)
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}

	if got, want := buf.String(), "+OK\r\n$-1\r\n"; got != want {
		t.Errorf("written = %q, want %q", got, want)
	}
}

func TestEncodeCommand(t *testing.T) {
	if got := string(EncodeCommand("ECHO", "hi")); got != "*2\r\n$4\r\nECHO\r\n$2\r\nhi\r\n" {
		t.Errorf("EncodeCommand(ECHO hi) = %q", got)
	}
	if got := string(EncodeCommand("PING")); got != "*1\r\n$4\r\nPING\r\n" {
		t.Errorf("EncodeCommand(PING) = %q", got)
	}

	got, _, err := Parse(EncodeCommand("SET", "k", "", "PX", "10"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	want := Array(
		BulkString("SET"), BulkString("k"), BulkString(""),
		BulkString("PX"), BulkString("10"),
	)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Parse(EncodeCommand) = %v, want %v", got, want)
	}
}

// ============================================================
// Frame Tests
// ============================================================

func TestFrame_String(t *testing.T) {
	f := Array(BulkString("SET"), SimpleString("ok"), NullBulkString(), ErrorFrame("bad"))
	want := `Array[BulkString("SET"), SimpleString("ok"), NullBulkString, Error("bad")]`
	if got := f.String(); got != want {
		t.Errorf("String() = %s, want %s", got, want)
	}
	if got := Kind(99).String(); got != "kind(99)" {
		t.Errorf("Kind(99).String() = %s", got)
	}
}
