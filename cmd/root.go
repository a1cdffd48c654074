// Package cmd defines the CLI commands for the sitecrawler executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/site-text-crawler/internal/app"
)

// newRootCmd creates the root command. opts are forwarded to every app.New call.
func newRootCmd(opts ...app.Option) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "sitecrawler",
		Short: "Download the readable text of a single website.",
		Long: `sitecrawler walks one website starting from its homepage, including links hidden
behind navigation dropdowns, and saves the readable text of every page it finds.
Progress is kept in a session file so an interrupted crawl resumes where it left off.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./sitecrawler.yaml or $XDG_CONFIG_HOME/sitecrawler/config.yaml)")
	cmd.AddCommand(newRunCmd(&cfgFile, opts...))
	return cmd
}

// Execute runs the CLI and exits non-zero when a command fails.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
