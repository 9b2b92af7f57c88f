package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/codelif/futexsync/internal/cli"
)

const (
	cmdName = "futexsync"

	shortDesc = "Futex-based synchronization primitives toolkit."
	longDesc  = `futexsync exercises and inspects mutexes, reader/writer locks, condition
variables and once cells built directly on Linux futex words, both in
process-private memory and in memfd regions shared between processes.`
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := cli.NewRootCmd(cmdName, shortDesc, longDesc)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, strings.TrimLeft(err.Error(), "\n"))
		os.Exit(1)
	}
}
