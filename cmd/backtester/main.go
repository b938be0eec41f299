// Command backtester builds and backtests multi-expiry option strategies.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"options-backtester/internal/cli"
	apperrors "options-backtester/internal/errors"
	"options-backtester/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCmd(logging.NewLogger())
	if err := root.ExecuteContext(ctx); err != nil {
		red := color.New(color.FgRed).SprintFunc()
		fmt.Fprintf(os.Stderr, "%s [%s]: %v\n", red("Error"), apperrors.Kind(err), err)
		stop()
		os.Exit(1)
	}
}
