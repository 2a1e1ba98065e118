// Command fss runs the per-user file storage service and its admin tooling.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MenxLi/fss/internal/cmd/serve"
	"github.com/MenxLi/fss/internal/cmd/user"
	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:  "fss",
		Usage: "per-user file storage service",
		Commands: []*cli.Command{
			serve.Command(),
			user.Command(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
