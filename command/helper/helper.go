package helper

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ryanuber/columnize"
	"github.com/spf13/cobra"

	"github.com/0xPolygon/edge-p2p/command"
	"github.com/0xPolygon/edge-p2p/command/output"
)

const gracefulShutdownTimeout = 5 * time.Second

var (
	errShutdownBySignal  = errors.New("shutdown by signal channel")
	errShutdownByTimeout = errors.New("shutdown by timeout")
)

type ClientCloseResult struct {
	Message string `json:"message"`
}

func (r *ClientCloseResult) GetOutput() string {
	return r.Message
}

// HandleSignals is a helper method for handling signals sent to the console
// Like stop, error, etc.
func HandleSignals(
	closeFn func() error,
	outputter output.OutputFormatter,
) error {
	signalCh := make(chan os.Signal, 4)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	defer signal.Stop(signalCh)

	sig := <-signalCh

	closeMessage := fmt.Sprintf("\n[SIGNAL] Caught signal: %v\n", sig)
	closeMessage += "Gracefully shutting down client...\n"

	outputter.SetCommandResult(&ClientCloseResult{
		Message: closeMessage,
	})
	outputter.WriteOutput()

	gracefulCh := make(chan error, 1)

	go func() {
		gracefulCh <- closeFn()
	}()

	select {
	case <-signalCh:
		return errShutdownBySignal
	case <-time.After(gracefulShutdownTimeout):
		return errShutdownByTimeout
	case err := <-gracefulCh:
		return err
	}
}

// RegisterJSONOutputFlag registers the --json output setting for all child commands
func RegisterJSONOutputFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().Bool(
		command.JSONOutputFlag,
		false,
		"get all outputs in json format (default false)",
	)
}

// FormatList formats a list, using a specific blank value replacement
func FormatList(in []string) string {
	columnConf := columnize.DefaultConfig()
	columnConf.Empty = "<none>"

	return columnize.Format(in, columnConf)
}

// FormatKV formats key value pairs:
//
// Key = Value
//
// Key = <none>
func FormatKV(in []string) string {
	columnConf := columnize.DefaultConfig()
	columnConf.Empty = "<none>"
	columnConf.Glue = " = "

	return columnize.Format(in, columnConf)
}
