package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"service", "method", "path", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)

	InstanceSetupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "instance_setups_total",
			Help: "Setup operations by outcome (created, resynced, degraded, failure).",
		},
		[]string{"result"},
	)

	InstanceSyncsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "instance_syncs_total",
			Help: "Sync operations by resulting canonical status.",
		},
		[]string{"status"},
	)

	ConnectionStatePollsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "connection_state_polls_total",
			Help: "Individual connection-state polls issued to the provider.",
		},
	)

	WebhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Provider webhook events received, by event name.",
		},
		[]string{"event"},
	)

	CampaignForwardsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_forwards_total",
			Help: "Campaign forwards to the workflow engine by outcome.",
		},
		[]string{"result"},
	)

	AuthenticationAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authentication_attempts_total",
			Help: "Caller authentication attempts by method and result.",
		},
		[]string{"method", "result"},
	)
)

func MustRegister(serviceName string) {
	HTTPRequestsTotal = HTTPRequestsTotal.MustCurryWith(prometheus.Labels{"service": serviceName})
	HTTPRequestDurationSeconds = HTTPRequestDurationSeconds.MustCurryWith(prometheus.Labels{"service": serviceName}).(*prometheus.HistogramVec)

	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		InstanceSetupsTotal,
		InstanceSyncsTotal,
		ConnectionStatePollsTotal,
		WebhookEventsTotal,
		CampaignForwardsTotal,
		AuthenticationAttemptsTotal,
	)
}
