package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

const usage = `usage: authsession [flags] <command> [args]

commands:
  login          log in with --email and --password
  register       create an account and log in
  me             fetch the profile of the logged in user
  status         show what the session holds
  route <path>   decide whether navigation to path is allowed
  token          print a usable access token, renewing it if needed
  sync           keep the profile in sync and serve /metrics until interrupted
  logout         end the session`

var errUsage = errors.New(usage)

func main() {
	// Initialize context that cancelled on SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout, os.Getenv, os.Getwd, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, describe(err))
		os.Exit(1)
	}
}

func run(
	ctx context.Context,
	out io.Writer,
	getenv func(string) string,
	getwd func() (string, error),
	args []string,
) error {
	c := NewConfig()

	if err := c.LoadDotEnv(getwd); err != nil {
		return fmt.Errorf("error while loading .env: %w", err)
	}
	if err := c.LoadEnv(getenv); err != nil {
		return fmt.Errorf("error while loading environment: %w", err)
	}
	rest, err := c.ParseFlags(args)
	if err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}

	if len(rest) == 0 {
		return errUsage
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		return fmt.Errorf("unknown command %q\n%w", rest[0], errUsage)
	}

	app, err := NewApp(ctx, c)
	if err != nil {
		return err
	}
	defer app.Close()

	return cmd(ctx, app, out, rest[1:])
}
