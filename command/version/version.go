package version

import (
	"github.com/spf13/cobra"

	"github.com/0xPolygon/edge-p2p/command/output"
	"github.com/0xPolygon/edge-p2p/network/host"
	"github.com/0xPolygon/edge-p2p/version"
)

func GetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Returns the current edge-p2p version",
		Args:  cobra.NoArgs,
		Run:   runCommand,
	}
}

func runCommand(cmd *cobra.Command, _ []string) {
	outputter := output.InitializeOutputter(cmd)
	defer outputter.WriteOutput()

	outputter.SetCommandResult(
		&VersionResult{
			Version:         version.Version,
			ProtocolVersion: host.DefaultProtocolVersion,
		},
	)
}
