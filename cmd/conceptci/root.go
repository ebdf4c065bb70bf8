package main

import (
	"log/slog"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	app := &appContext{}

	cmd := &cobra.Command{
		Use:   "conceptci",
		Short: "conceptci - bootstrap confidence intervals and A-share concept boards",
		Long: `conceptci estimates means with percentile bootstrap confidence intervals
and manages A-share concept boards.

Concept constituents are found by a chat-completion model with web search,
stored in a local JSON file, quoted in real time and summarized with the
same bootstrap estimator.`,
		Version:      version,
		SilenceUsage: true,
	}

	debugLogging := cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	noColor := cmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	cmd.PersistentFlags().StringVar(&app.configDir, "config", ".", "Directory to start searching for .conceptci.yaml")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if *debugLogging {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
		if *noColor {
			color.NoColor = true
		}
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return inputError(err)
	})

	// Add subcommands
	cmd.AddCommand(newCICommand(app))
	cmd.AddCommand(newChatCommand(app))
	cmd.AddCommand(newConceptCommand(app))
	cmd.AddCommand(newServeCommand(app))

	return cmd
}

// inputArgs marks positional argument failures as input errors.
func inputArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		return inputError(validate(cmd, args))
	}
}

func execute() error {
	rootCmd := newRootCommand()
	err := rootCmd.Execute()
	if err != nil && strings.HasPrefix(err.Error(), "unknown command") {
		return inputError(err)
	}
	return err
}
