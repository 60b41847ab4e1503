package command

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/tinykv/internal/cli/connection"
	"github.com/yndnr/tinykv/internal/cli/output"
	"github.com/yndnr/tinykv/internal/infra/buildinfo"
)

// DefaultAddr is the server address used when --addr is not given.
const DefaultAddr = "127.0.0.1:6379"

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "tinykv-cli",
		Usage:   "tinykv command-line client",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			PingCommand(),
			EchoCommand(),
			GetCommand(),
			SetCommand(),
			RawCommand(),
			BenchCommand(),
		},
		Before: func(c *cli.Context) error {
			_, err := output.NewFormatter(output.Format(c.String("output")))
			return err
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "addr",
			Aliases: []string{"a"},
			Usage:   "tinykv server address",
			EnvVars: []string{"TINYKV_ADDR"},
			Value:   DefaultAddr,
		},
		&cli.DurationFlag{
			Name:    "timeout",
			Aliases: []string{"t"},
			Usage:   "dial and request timeout",
			Value:   connection.DefaultTimeout,
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   string(output.FormatTable),
		},
	}
}

// GlobalFlags defines flags available to all commands.
type GlobalFlags struct {
	Addr    string
	Timeout time.Duration
	Output  output.Format
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	return &GlobalFlags{
		Addr:    c.String("addr"),
		Timeout: c.Duration("timeout"),
		Output:  output.Format(c.String("output")),
	}
}

// do dials the server, runs one command and prints the reply. Error replies
// are returned as errors so the process exits non-zero.
func do(c *cli.Context, args ...string) error {
	flags := ParseGlobalFlags(c)

	formatter, err := output.NewFormatter(flags.Output)
	if err != nil {
		return err
	}

	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}

	client, err := connection.Dial(ctx, flags.Addr, flags.Timeout)
	if err != nil {
		return err
	}
	defer client.Close()

	reply, err := client.Do(ctx, args...)
	if err != nil {
		return err
	}
	if err := reply.Err(); err != nil {
		return err
	}

	return formatter.Format(c.App.Writer, reply)
}

func usageError(c *cli.Context) error {
	return fmt.Errorf("usage: %s %s %s", c.App.Name, c.Command.Name, c.Command.ArgsUsage)
}
