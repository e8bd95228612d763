// Package services – domain metrics
//
// Prometheus collectors for the negotiation engine. Labels are chosen for
// bounded cardinality: intents, action types, and statuses are all small
// closed sets defined in the domain package.
package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// repliesProcessed counts inbound replies by interpreted intent.
	repliesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduling_replies_processed_total",
			Help: "Inbound replies processed, labeled by interpreted intent.",
		},
		[]string{"intent"},
	)

	// transitions counts state-machine transitions by destination status.
	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduling_status_transitions_total",
			Help: "Request status transitions, labeled by new status.",
		},
		[]string{"to"},
	)

	// outreachSent counts outbound messages by kind (initial/follow_up/reminder).
	outreachSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduling_outreach_sent_total",
			Help: "Outbound outreach messages sent, labeled by kind.",
		},
		[]string{"kind"},
	)

	// noShows counts detected no-shows.
	noShows = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduling_no_shows_total",
			Help: "Confirmed meetings detected as no-shows.",
		},
	)

	// attentionRaised counts attention items by reason.
	attentionRaised = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduling_attention_items_total",
			Help: "Attention items raised for human review, labeled by reason.",
		},
		[]string{"reason"},
	)

	// sweepActions counts sweep dispatches by claimed action type and outcome.
	sweepActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduling_sweep_actions_total",
			Help: "Due automation actions handled by the sweep, labeled by action and outcome.",
		},
		[]string{"action", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(repliesProcessed, transitions, outreachSent, noShows, attentionRaised, sweepActions)
}
