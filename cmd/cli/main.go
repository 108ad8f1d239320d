package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vk/redogrid/internal/app"
	"github.com/vk/redogrid/internal/cli"
	"github.com/vk/redogrid/internal/config"
	"github.com/vk/redogrid/internal/hcl"
)

// main is the entrypoint for the redogrid application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Stderr, os.Args[1:])
	stop()

	if err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitFailure)
	}
}

// run encapsulates the main application logic for easier testing and error
// handling. Usage and configuration problems come back as a *cli.ExitError
// with the usage exit code. outW receives help text and the application log;
// stdout is left to the build tool.
func run(ctx context.Context, outW io.Writer, args []string) (err error) {
	appConfig, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("application startup panicked: %v", r)
		}
	}()

	redogrid := app.NewApp(outW, appConfig, hcl.NewLoader())
	return classify(redogrid.Run(ctx))
}

// classify maps configuration errors onto the usage exit code.
func classify(err error) error {
	var cfgErr *config.ConfigurationError
	if errors.As(err, &cfgErr) {
		return &cli.ExitError{Code: cli.ExitUsage, Message: err.Error()}
	}
	return err
}
