package redisserver

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"

	"github.com/yndnr/tinykv/internal/telemetry/metric"
)

var (
	// ErrCommandFormat marks a well-formed frame that is not a valid command
	// invocation.
	ErrCommandFormat = errors.New("command format error")

	// ErrUnknownCommand marks a command name outside the dispatch table.
	ErrUnknownCommand = errors.New("unknown command")
)

// CommandError is a command failure answered with an error reply while the
// connection stays open. Message is the reply text without the "ERR " prefix.
type CommandError struct {
	Kind    error
	Message string
}

func (e *CommandError) Error() string {
	return e.Message
}

func (e *CommandError) Unwrap() error {
	return e.Kind
}

func formatError(format string, args ...any) error {
	return &CommandError{Kind: ErrCommandFormat, Message: fmt.Sprintf(format, args...)}
}

func wrongArgs(cmd string) error {
	return formatError("wrong number of arguments for '%s' command", cmd)
}

// Store is the key-value table the dispatcher reads and writes.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string)
	SetWithTTL(key, value string, ttl time.Duration)
}

type commandFunc func(h *CommandHandler, args []Frame) (Frame, error)

// Command names are matched after case folding.
var commandTable = map[string]commandFunc{
	"ping": (*CommandHandler).handlePing,
	"echo": (*CommandHandler).handleEcho,
	"get":  (*CommandHandler).handleGet,
	"set":  (*CommandHandler).handleSet,
}

// CommandHandler dispatches commands to the store or a static responder.
type CommandHandler struct {
	store       Store
	logger      *slog.Logger
	metrics     *metric.Registry
	rateLimiter *rateLimiter
}

// NewCommandHandler creates a new CommandHandler. metrics may be nil.
// rateLimit is in commands per second per client IP; 0 disables it.
func NewCommandHandler(store Store, rateLimit int, metrics *metric.Registry, logger *slog.Logger) *CommandHandler {
	if logger == nil {
		logger = slog.Default()
	}

	var rl *rateLimiter
	if rateLimit > 0 {
		rl = newRateLimiter(rateLimit)
	}

	return &CommandHandler{
		store:       store,
		logger:      logger,
		metrics:     metrics,
		rateLimiter: rl,
	}
}

// ExtractCommand splits a request into its command name and arguments.
//
// The request must be a non-empty array whose first element is a bulk
// string. The name is returned as sent.
func ExtractCommand(f Frame) (string, []Frame, error) {
	if f.Kind != KindArray {
		return "", nil, formatError("expected array, got %s", f.Kind)
	}
	if len(f.Items) == 0 {
		return "", nil, formatError("empty command")
	}
	head := f.Items[0]
	if head.Kind != KindBulkString {
		return "", nil, formatError("command name must be a bulk string, got %s", head.Kind)
	}
	return head.Str, f.Items[1:], nil
}

// Handle executes one request and returns the reply frame. Command failures
// are turned into error replies; Handle never fails the connection.
// conn may be nil, which skips rate limiting.
func (h *CommandHandler) Handle(conn *Conn, req Frame) Frame {
	name, args, err := ExtractCommand(req)
	if err != nil {
		h.metrics.ObserveCommand("invalid", metric.StatusError, 0)
		return errorReply(err)
	}

	cmd := foldName(name)
	fn, ok := commandTable[cmd]
	if !ok {
		h.logger.Debug("unknown command", "cmd", name)
		h.metrics.ObserveCommand("unknown", metric.StatusError, 0)
		return errorReply(&CommandError{
			Kind:    ErrUnknownCommand,
			Message: fmt.Sprintf("unknown command '%s'", name),
		})
	}

	if h.rateLimiter != nil && conn != nil && !h.rateLimiter.allow(conn.RemoteIP()) {
		h.metrics.ObserveCommand(cmd, metric.StatusError, 0)
		return ErrorFrame("ERR rate limit exceeded")
	}

	start := time.Now()
	reply, err := fn(h, args)
	if err != nil {
		h.metrics.ObserveCommand(cmd, metric.StatusError, 0)
		return errorReply(err)
	}
	h.metrics.ObserveCommand(cmd, metric.StatusOK, time.Since(start))
	return reply
}

func errorReply(err error) Frame {
	return ErrorFrame("ERR " + err.Error())
}

// foldName normalizes command names and option tokens. Names are ASCII, so
// anything else is returned unchanged and never matches the table. A Caser
// is stateful, so one is built per call.
func foldName(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return s
		}
	}
	return cases.Fold().String(s)
}

// PING [message]
func (h *CommandHandler) handlePing(args []Frame) (Frame, error) {
	switch len(args) {
	case 0:
		return framePong, nil
	case 1:
		msg, err := stringArg(args[0])
		if err != nil {
			return Frame{}, err
		}
		return BulkString(msg), nil
	default:
		return Frame{}, wrongArgs("ping")
	}
}

// ECHO <message>
//
// The argument frame is returned unchanged.
func (h *CommandHandler) handleEcho(args []Frame) (Frame, error) {
	if len(args) != 1 {
		return Frame{}, wrongArgs("echo")
	}
	if args[0].Kind == KindArray {
		return Frame{}, formatError("ECHO argument must be a string")
	}
	return args[0], nil
}

// GET <key>
func (h *CommandHandler) handleGet(args []Frame) (Frame, error) {
	if len(args) != 1 {
		return Frame{}, wrongArgs("get")
	}
	key, err := bulkArg(args[0])
	if err != nil {
		return Frame{}, err
	}

	value, ok := h.store.Get(key)
	if !ok {
		return frameNull, nil
	}
	return valueReply(value), nil
}

// valueReply encodes a stored value. A simple string cannot carry CR or LF,
// so such values go out as bulk strings.
func valueReply(value string) Frame {
	if strings.ContainsAny(value, "\r\n") {
		return BulkString(value)
	}
	return SimpleString(value)
}

// SET <key> <value> [PX <milliseconds>]
func (h *CommandHandler) handleSet(args []Frame) (Frame, error) {
	if len(args) != 2 && len(args) != 4 {
		return Frame{}, wrongArgs("set")
	}
	key, err := bulkArg(args[0])
	if err != nil {
		return Frame{}, err
	}
	value, err := bulkArg(args[1])
	if err != nil {
		return Frame{}, err
	}

	if len(args) == 2 {
		h.store.Set(key, value)
		return frameOK, nil
	}

	opt, err := bulkArg(args[2])
	if err != nil {
		return Frame{}, err
	}
	if foldName(opt) != "px" {
		return Frame{}, formatError("syntax error")
	}
	raw, err := bulkArg(args[3])
	if err != nil {
		return Frame{}, err
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms > math.MaxInt64/int64(time.Millisecond) {
		return Frame{}, formatError("value is not an integer or out of range")
	}
	if ms < 0 {
		return Frame{}, formatError("invalid expire time in 'set' command")
	}

	h.store.SetWithTTL(key, value, time.Duration(ms)*time.Millisecond)
	return frameOK, nil
}

func bulkArg(f Frame) (string, error) {
	if f.Kind != KindBulkString {
		return "", formatError("expected bulk string argument, got %s", f.Kind)
	}
	return f.Str, nil
}

// stringArg accepts simple and bulk strings.
func stringArg(f Frame) (string, error) {
	if f.Kind != KindBulkString && f.Kind != KindSimpleString {
		return "", formatError("expected string argument, got %s", f.Kind)
	}
	return f.Str, nil
}
