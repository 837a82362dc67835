package host

import (
	"github.com/armon/go-metrics"
)

// hostMetrics is a prefix used for host-related metrics
const hostMetrics = "host"

func reportPeers(count int) {
	metrics.SetGauge([]string{"network", hostMetrics, "peers"}, float32(count))
}

func reportDial(ok bool) {
	result := "failed"
	if ok {
		result = "ok"
	}

	metrics.IncrCounterWithLabels(
		[]string{"network", hostMetrics, "dials"},
		1,
		[]metrics.Label{{Name: "result", Value: result}},
	)
}
