// Command fragments assembles a page from its fragment placeholders.
//
//	fragments load --page site/index.html --out assembled.html
//	fragments load --page index.html --base https://example.org/article/
//	fragments list --page site/index.html
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "fragments",
		Short:         "Load HTML fragments into their page placeholders.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newLoadCmd(), newListCmd())
	return root
}
