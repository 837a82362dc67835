package server

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/0xPolygon/edge-p2p/command"
	"github.com/0xPolygon/edge-p2p/command/helper"
	"github.com/0xPolygon/edge-p2p/command/output"
	"github.com/0xPolygon/edge-p2p/network/host/nodedb"
	"github.com/0xPolygon/edge-p2p/server"
)

func GetCommand() *cobra.Command {
	serverCmd := &cobra.Command{
		Use:     "server",
		Short:   "Starts the p2p node: listens for peers, dials bootnodes and keeps sessions alive",
		Args:    cobra.NoArgs,
		PreRunE: runPreRun,
		Run:     runCommand,
	}

	setFlags(serverCmd)

	return serverCmd
}

func setFlags(cmd *cobra.Command) {
	defaultConfig := params.rawConfig

	cmd.Flags().StringVar(
		&params.configPath,
		configFlag,
		"",
		"the path to the CLI config. Supports .json, .hcl, .yaml and .yml",
	)

	cmd.Flags().StringVar(
		&params.rawConfig.LogLevel,
		command.LogLevelFlag,
		defaultConfig.LogLevel,
		fmt.Sprintf(
			"the log level for console output. Default: %s",
			defaultConfig.LogLevel,
		),
	)

	cmd.Flags().BoolVar(
		&params.rawConfig.JSONLogFormat,
		jsonLogFormatFlag,
		defaultConfig.JSONLogFormat,
		"write logs in json format",
	)

	cmd.Flags().StringVar(
		&params.rawConfig.DataDir,
		dataDirFlag,
		defaultConfig.DataDir,
		"the data directory holding the node key and the known nodes. "+
			"If omitted, both are kept in memory",
	)

	cmd.Flags().StringVar(
		&params.rawConfig.NodeStore,
		nodeStoreFlag,
		defaultConfig.NodeStore,
		fmt.Sprintf(
			"the backend of the known nodes store (%s, %s or %s). Default: %s",
			nodedb.BackendLevelDB,
			nodedb.BackendBolt,
			nodedb.BackendMemory,
			defaultConfig.NodeStore,
		),
	)

	cmd.Flags().StringVar(
		&params.rawConfig.Network.ListenAddr,
		listenFlag,
		defaultConfig.Network.ListenAddr,
		fmt.Sprintf(
			"the address and port peers connect to (address:port). Default: %s",
			defaultConfig.Network.ListenAddr,
		),
	)

	cmd.Flags().Uint16Var(
		&params.rawConfig.Network.AdvertisedPort,
		advertisedPortFlag,
		0,
		"the listen port announced to peers, if it differs from the bound one",
	)

	cmd.Flags().StringVar(
		&params.rawConfig.Telemetry.PrometheusAddr,
		prometheusAddressFlag,
		"",
		"the address and port for the prometheus instrumentation service (address:port)",
	)

	cmd.Flags().StringArrayVar(
		&params.rawConfig.Network.Bootnodes,
		bootnodeFlag,
		[]string{},
		"enode url of a node dialed with its identity verified (repeatable)",
	)

	cmd.Flags().StringArrayVar(
		&params.rawConfig.Network.Pinned,
		pinnedFlag,
		[]string{},
		"enode url of a node kept connected even if it presents another identity (repeatable)",
	)

	cmd.Flags().StringArrayVar(
		&params.rawConfig.Network.Peers,
		peerFlag,
		[]string{},
		"host:port of a peer dialed without a known identity (repeatable)",
	)

	cmd.Flags().IntVar(
		&params.rawConfig.Network.MaxPeers,
		maxPeersFlag,
		defaultConfig.Network.MaxPeers,
		fmt.Sprintf(
			"the client's max number of peers allowed. Default: %d",
			defaultConfig.Network.MaxPeers,
		),
	)

	cmd.Flags().IntVar(
		&params.rawConfig.Network.MaxDials,
		maxDialsFlag,
		defaultConfig.Network.MaxDials,
		fmt.Sprintf(
			"the max number of outbound dials in flight. Default: %d",
			defaultConfig.Network.MaxDials,
		),
	)
}

func runPreRun(cmd *cobra.Command, _ []string) error {
	// Check if the config file has been specified
	if isConfigFileSpecified(cmd) {
		if err := params.mergeConfigFile(cmd.Flags().Changed); err != nil {
			return err
		}
	}

	if err := params.validateFlags(); err != nil {
		return err
	}

	return params.initRawParams()
}

func isConfigFileSpecified(cmd *cobra.Command) bool {
	return cmd.Flags().Changed(configFlag)
}

func runCommand(cmd *cobra.Command, _ []string) {
	outputter := output.InitializeOutputter(cmd)

	if err := runServerLoop(params.generateConfig(), outputter); err != nil {
		outputter.SetError(err)
		outputter.WriteOutput()

		return
	}
}

func runServerLoop(
	config *server.Config,
	outputter output.OutputFormatter,
) error {
	serverInstance, err := server.NewServer(config)
	if err != nil {
		return err
	}

	return helper.HandleSignals(serverInstance.Close, outputter)
}
