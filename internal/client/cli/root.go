// Package cli implements the sync agent's command-line interface.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/client/config"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	Verbose bool
}

// NewRootCommand creates the root command for the sync agent.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "pbooks-agent",
		Short: "On-device sync agent for the property books authority",
		Long: "Runs the offline-first sync engine: queues local changes durably, " +
			"pushes them with optimistic concurrency, pulls the tenant change feed " +
			"and surfaces conflicts for review.",
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewConflictsCommand(opts))

	return cmd
}

// loadConfig builds the agent configuration from defaults, JSON overlay and
// environment variables.
func loadConfig() *config.Config {
	return config.LoadConfig()
}
