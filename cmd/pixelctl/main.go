package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/templui/pixelplan/cmd/pixelctl/cmd"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "pixelctl",
		Short:        "Operator tools for pixelplan",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(cmd.MigrateCmd())
	rootCmd.AddCommand(cmd.PlansCmd())
	rootCmd.AddCommand(cmd.ThumbnailsCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
