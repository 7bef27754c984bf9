package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zamadev/sandbox/internal/config"
)

var (
	cfgFile    string
	appVersion string // set in Execute, reported by serve and mcp
)

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	appVersion = version
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sandbox",
		Short: "Developer console for managing API keys and usage",
		Long: `Sandbox: a developer console for an API platform.

Sign in with the demo account or as a guest, create and rotate encrypted API
keys, explore request usage and costs, and copy integration snippets. The
same operations are served over a REST API and a built-in MCP server for AI
agents.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./sandbox.yaml)")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory for the SQLite profile (default: ~/.sandbox)")

	cobra.OnInitialize(initConfig)

	// Add subcommands
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newStopCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newGuestCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newRefreshCmd())
	cmd.AddCommand(newKeyCmd())
	cmd.AddCommand(newProfileCmd())
	cmd.AddCommand(newUsageCmd())
	cmd.AddCommand(newDocsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))

	return cmd
}

func initConfig() {
	config.Configure(viper.GetViper(), cfgFile)
}
