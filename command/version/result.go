package version

import (
	"bytes"
	"fmt"

	"github.com/0xPolygon/edge-p2p/command/helper"
)

type VersionResult struct {
	Version         string `json:"version"`
	ProtocolVersion uint64 `json:"protocolVersion"`
}

func (r *VersionResult) GetOutput() string {
	var buffer bytes.Buffer

	buffer.WriteString("\n[VERSION INFO]\n")
	buffer.WriteString(helper.FormatKV([]string{
		fmt.Sprintf("Release version|%s", r.Version),
		fmt.Sprintf("Protocol version|%d", r.ProtocolVersion),
	}))

	return buffer.String()
}
