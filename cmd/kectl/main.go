// Command kectl runs and operates a knowledge base client.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BlueBird-project/ke-client-go/pkg/config"
)

var (
	Version   = "v0.1.0"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	flagConfig    string
	flagEnvFile   string
	flagLogFormat string
	flagLogLevel  string
	flagAdmin     string
)

var rootCmd = &cobra.Command{
	Use:           "kectl",
	Short:         "Knowledge engine client",
	Version:       fmt.Sprintf("%s (%s, %s)", Version, Commit, BuildTime),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger(flagLogFormat, flagLogLevel)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&flagConfig, "config", "c", "", "YAML file with a 'ke' settings section")
	flags.StringVar(&flagEnvFile, "env-file", config.DefaultEnvFile, "dotenv file with KE_ settings")
	flags.StringVar(&flagLogFormat, "log-format", "text", "log format: text|json")
	flags.StringVar(&flagLogLevel, "log-level", "info", "log level: debug|info|warn|error")
	flags.StringVar(&flagAdmin, "admin", config.DefaultAdminAddr, "admin API address of a running client")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(runCmd, registerCmd, askCmd, postCmd, interactionsCmd, eventsCmd, pruneCmd, archiveCmd, reportCmd, mcpCmd)
}

func newLogger(format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	}
	return nil, fmt.Errorf("invalid log format %q", format)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
