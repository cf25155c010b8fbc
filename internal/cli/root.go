package cli

import (
	"context"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/asyfig/asyfig/pkg/buildinfo"
)

// Execute runs the asyfig CLI and returns an error if any command fails.
// This is the main entry point for the CLI application.
//
// The function sets up the root command with all subcommands (render, formats,
// completion), configures logging based on the --verbose flag, and executes
// the command tree against ctx, so signal-driven cancellation from main
// reaches the compiler subprocess.
//
// Logging:
//   - Default: warn level (logs to stderr)
//   - With --verbose (-v): debug level
//
// The logger is attached to the context and accessible to all commands via
// loggerFromContext.
func Execute(ctx context.Context) error {
	var verbose bool

	root := &cobra.Command{
		Use:          "asyfig",
		Short:        "Asyfig renders Asymptote diagrams via the asy compiler",
		Long:         `Asyfig is a CLI tool for compiling Asymptote vector-graphics source into image artifacts. It runs the external asy compiler in an isolated scratch directory and collects the produced output.`,
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true, // main prints the final error exactly once
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := charmlog.WarnLevel
			if verbose {
				level = charmlog.DebugLevel
			}
			cmdCtx := withLogger(cmd.Context(), newLogger(os.Stderr, level))
			cmd.SetContext(cmdCtx)
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(newRenderCmd())
	root.AddCommand(newFormatsCmd())
	root.AddCommand(newCompletionCmd())

	return root.ExecuteContext(ctx)
}
