// Command aiweather-watch observes a running service from the terminal.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/aiweather/internal/watch"
	"github.com/okian/aiweather/pkg/logger"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := logger.InitWithFormat(logger.FormatText, os.Stderr); err != nil {
		_, _ = os.Stderr.WriteString("Error: " + err.Error() + "\n")
		return 1
	}

	cli := watch.NewCLI()
	cli.SetArgs(args)
	if err := cli.Execute(ctx); err != nil {
		logger.Get().Error(ctx, "watch failed", logger.Error(err))
		return 1
	}
	return 0
}
