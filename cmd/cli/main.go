package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/vk/rulegrid/internal/app"
	"github.com/vk/rulegrid/internal/cli"
)

// main is the entrypoint for the rulegrid application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := run(os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitFailure)
	}
}

// run parses args, builds the app and runs it. The report goes to outW,
// usage text and logs to errW.
func run(outW, errW io.Writer, args []string) error {
	appConfig, shouldExit, err := cli.Parse(args, errW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	rulegrid, err := app.NewApp(outW, errW, appConfig)
	if err != nil {
		return &cli.ExitError{Code: cli.ExitFailure, Message: err.Error()}
	}
	if err := rulegrid.Run(context.Background()); err != nil {
		return &cli.ExitError{Code: cli.ExitFailure, Message: err.Error()}
	}
	return nil
}
