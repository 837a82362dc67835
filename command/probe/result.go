package probe

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/0xPolygon/edge-p2p/command/helper"
	"github.com/0xPolygon/edge-p2p/network/session"
)

type ProbeResult struct {
	ID       string            `json:"id"`
	ClientID string            `json:"client"`
	Host     string            `json:"host"`
	Port     uint16            `json:"port"`
	Caps     []string          `json:"caps"`
	LastPing string            `json:"last_ping"`
	ConnID   string            `json:"conn_id"`
	Mode     string            `json:"mode"`
	Notes    map[string]string `json:"notes,omitempty"`
}

func newProbeResult(info session.PeerInfo) *ProbeResult {
	caps := make([]string, 0, len(info.Caps))
	for _, c := range info.Caps {
		caps = append(caps, c.String())
	}

	return &ProbeResult{
		ID:       info.ID.String(),
		ClientID: info.ClientID,
		Host:     info.Host,
		Port:     info.Port,
		Caps:     caps,
		LastPing: info.LastPing.String(),
		ConnID:   info.ConnID,
		Mode:     info.Mode,
		Notes:    info.Notes,
	}
}

func (r *ProbeResult) GetOutput() string {
	var buffer bytes.Buffer

	buffer.WriteString("\n[PEER INFO]\n")
	buffer.WriteString(helper.FormatKV([]string{
		fmt.Sprintf("ID|%s", r.ID),
		fmt.Sprintf("Client|%s", r.ClientID),
		fmt.Sprintf("Endpoint|%s:%d", r.Host, r.Port),
		fmt.Sprintf("Capabilities|%s", strings.Join(r.Caps, ",")),
		fmt.Sprintf("Ping|%s", r.LastPing),
		fmt.Sprintf("Connection|%s", r.ConnID),
		fmt.Sprintf("Mode|%s", r.Mode),
	}))

	if len(r.Notes) > 0 {
		keys := make([]string, 0, len(r.Notes))
		for k := range r.Notes {
			keys = append(keys, k)
		}

		sort.Strings(keys)

		rows := make([]string, 0, len(keys)+1)
		rows = append(rows, "Note|Value")

		for _, k := range keys {
			rows = append(rows, fmt.Sprintf("%s|%s", k, r.Notes[k]))
		}

		buffer.WriteString("\n\n[NOTES]\n")
		buffer.WriteString(helper.FormatList(rows))
	}

	buffer.WriteString("\n")

	return buffer.String()
}
