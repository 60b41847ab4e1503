package command

import (
	"strconv"

	"github.com/urfave/cli/v2"
)

// PingCommand returns the ping command.
func PingCommand() *cli.Command {
	return &cli.Command{
		Name:      "ping",
		Usage:     "Check that the server is alive",
		ArgsUsage: "[message]",
		Action: func(c *cli.Context) error {
			if c.NArg() > 1 {
				return usageError(c)
			}
			return do(c, append([]string{"PING"}, c.Args().Slice()...)...)
		},
	}
}

// EchoCommand returns the echo command.
func EchoCommand() *cli.Command {
	return &cli.Command{
		Name:      "echo",
		Usage:     "Have the server echo a message",
		ArgsUsage: "<message>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return usageError(c)
			}
			return do(c, "ECHO", c.Args().First())
		},
	}
}

// GetCommand returns the get command.
func GetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Get the value of a key",
		ArgsUsage: "<key>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return usageError(c)
			}
			return do(c, "GET", c.Args().First())
		},
	}
}

// SetCommand returns the set command.
func SetCommand() *cli.Command {
	return &cli.Command{
		Name:      "set",
		Usage:     "Set a key, optionally with an expiry",
		ArgsUsage: "<key> <value>",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:  "px",
				Usage: "expire the key after this many milliseconds",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return usageError(c)
			}
			args := []string{"SET", c.Args().Get(0), c.Args().Get(1)}
			if c.IsSet("px") {
				args = append(args, "PX", strconv.FormatInt(c.Int64("px"), 10))
			}
			return do(c, args...)
		},
	}
}

// RawCommand returns the raw command, which sends its arguments unchanged.
func RawCommand() *cli.Command {
	return &cli.Command{
		Name:      "raw",
		Usage:     "Send an arbitrary command",
		ArgsUsage: "<command> [args...]",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return usageError(c)
			}
			return do(c, c.Args().Slice()...)
		},
	}
}
