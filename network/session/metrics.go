package session

import (
	"github.com/0xPolygon/edge-p2p/network/wire"
	"github.com/armon/go-metrics"
)

const sessionMetrics = "session"

func metricName(parts ...string) []string {
	return append([]string{"network", sessionMetrics}, parts...)
}

func reportFrameIn(code wire.PacketType, size int) {
	metrics.IncrCounterWithLabels(metricName("frames_in"), 1, []metrics.Label{{Name: "type", Value: packetLabel(code)}})
	metrics.IncrCounter(metricName("bytes_in"), float32(size))
}

func reportFrameOut(size int) {
	metrics.IncrCounter(metricName("frames_out"), 1)
	metrics.IncrCounter(metricName("bytes_out"), float32(size))
}

func reportDisconnect(reason wire.DiscReason) {
	metrics.IncrCounterWithLabels(metricName("disconnects"), 1, []metrics.Label{{Name: "reason", Value: reason.String()}})
}

func reportPingRTT(ms float32) {
	metrics.AddSample(metricName("ping_rtt_ms"), ms)
}

func packetLabel(code wire.PacketType) string {
	if code.IsCore() {
		return code.String()
	}

	return "capability"
}
