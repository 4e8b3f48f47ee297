package cli

import (
	"github.com/spf13/cobra"

	"github.com/dkeye/Meet/internal/config"
)

type Dependencies struct {
	Config *config.Config
}

// NewRootCmd runs the server when no subcommand is given.
func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "meet",
		Short:         "Meeting session coordination server",
		Long:          "Coordinates meeting sessions: membership, waiting-room admission, the presenter slot, recording and the session event stream.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Serve(cmd.Context(), deps.Config)
		},
	}

	rootCmd.AddCommand(NewServeCmd(deps))
	rootCmd.AddCommand(NewConfigCmd(deps))

	return rootCmd
}
