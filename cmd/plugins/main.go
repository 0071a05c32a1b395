// Command plugins lists, installs and removes plugins of a host application.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/git-pkgs/plugins/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := cli.Execute(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}
