package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobExecutionsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_job_executions_total",
			Help: "Total number of job executions by template type and status",
		},
		[]string{"template_type", "status"},
	)

	JobExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "scheduler_job_execution_duration_seconds",
			Help: "Duration of job executions in seconds",
		},
		[]string{"template_type"},
	)

	JobsSkippedOverlap = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_jobs_skipped_overlap_total",
			Help: "Due jobs skipped because a previous execution was still running",
		},
		[]string{"job_name"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Total number of notifications delivered by channel",
		},
		[]string{"channel"},
	)

	NotificationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_failed_total",
			Help: "Total number of notification delivery failures by channel and error code",
		},
		[]string{"channel", "error_code"},
	)

	NotificationsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_enqueued_total",
			Help: "Total number of notifications enqueued by trigger and channel",
		},
		[]string{"trigger", "channel"},
	)

	OptOutSyncs = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifications_opt_out_syncs_total",
			Help: "Carrier-reported opt-outs synced back to user preferences",
		},
	)
)
