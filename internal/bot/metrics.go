package bot

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Label values are drawn from small fixed sets (update kinds, command names,
// outcomes) so cardinality stays bounded.
var (
	// updatesTotal counts handled updates by kind and outcome
	// (ok, error, duplicate, ignored).
	updatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_updates_total",
			Help: "Total number of Telegram updates handled.",
		},
		[]string{"kind", "outcome"},
	)

	// updateLat records the time spent handling one update.
	updateLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bot_update_duration_seconds",
			Help:    "Duration of Telegram update handling in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// commandsTotal counts commands by name and outcome (ok, rejected, error).
	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_commands_total",
			Help: "Total number of bot commands processed.",
		},
		[]string{"command", "outcome"},
	)

	// deliveriesTotal counts broadcast deliveries per post channel attempt.
	deliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_deliveries_total",
			Help: "Total number of broadcast deliveries by outcome.",
		},
		[]string{"outcome"},
	)

	// linksGenerated counts referral links written by /req.
	linksGenerated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "referral_links_generated_total",
			Help: "Total number of referral links generated.",
		},
	)

	// referralStarts counts /start <token> openings by whether the token resolved.
	referralStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_starts_total",
			Help: "Total number of deep-link /start openings.",
		},
		[]string{"outcome"},
	)

	// purgedUpdates counts expired processed-update rows removed.
	purgedUpdates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_processed_updates_purged_total",
			Help: "Total number of expired processed-update records purged.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		updatesTotal, updateLat, commandsTotal, deliveriesTotal,
		linksGenerated, referralStarts, purgedUpdates,
	)
}
