package probe

import (
	"context"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/0xPolygon/edge-p2p/command/output"
)

func GetCommand() *cobra.Command {
	probeCmd := &cobra.Command{
		Use:     "probe <enode-url | host:port>",
		Short:   "Connects to a peer, completes the handshake, measures a ping and prints what the peer announced",
		Args:    cobra.ExactArgs(1),
		PreRunE: runPreRun,
		Run:     runCommand,
	}

	probeCmd.Flags().DurationVar(
		&params.timeout,
		timeoutFlag,
		defaultTimeout,
		"the deadline for dialing, handshaking and pinging the peer",
	)

	return probeCmd
}

func runPreRun(_ *cobra.Command, args []string) error {
	params.rawTarget = args[0]

	return params.initTarget()
}

func runCommand(cmd *cobra.Command, _ []string) {
	outputter := output.InitializeOutputter(cmd)
	defer outputter.WriteOutput()

	ctx, cancel := context.WithTimeout(cmd.Context(), params.timeout)
	defer cancel()

	result, err := probe(ctx, hclog.NewNullLogger(), params.target)
	if err != nil {
		outputter.SetError(err)

		return
	}

	outputter.SetCommandResult(result)
}
