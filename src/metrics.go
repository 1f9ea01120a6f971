package keeshond

/*------------------------------------------------------------------
 *
 * Purpose:	Operational counters for the whole stack.
 *
 * Description:	Counters work without registration; applications that
 *		want them scraped call RegisterMetrics with their
 *		registry (or prometheus.DefaultRegisterer).
 *
 *------------------------------------------------------------------*/

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricFramesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "keeshond_frames_received_total",
		Help: "AX.25 frames decoded from KISS ports.",
	})
	metricFramesTransmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "keeshond_frames_transmitted_total",
		Help: "AX.25 frames handed to KISS ports.",
	})
	metricDecodeErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "keeshond_decode_errors_total",
		Help: "Inbound frames dropped by the AX.25 decoder.",
	})
	metricTXExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "keeshond_tx_expired_total",
		Help: "Queued transmissions dropped after their deadline.",
	})
	metricDedupDrops = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "keeshond_aprs_dedup_drops_total",
		Help: "APRS frames suppressed as duplicates.",
	})
	metricDigipeats = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "keeshond_digipeats_total",
		Help: "Frames repeated by the UI digipeater.",
	})
	metricRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "keeshond_aprs_message_retries_total",
		Help: "APRS message retransmissions.",
	})
)

// RegisterMetrics registers the stack's counters with reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(
		metricFramesReceived,
		metricFramesTransmitted,
		metricDecodeErrors,
		metricTXExpired,
		metricDedupDrops,
		metricDigipeats,
		metricRetries,
	)
}
