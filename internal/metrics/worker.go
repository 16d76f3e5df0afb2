package metrics

import "time"

// JobStarted marks a job as executing.
func JobStarted(jobType string) {
	JobsInFlight.WithLabelValues(jobType).Inc()
}

// JobCompleted records a successful job completion
func JobCompleted(jobType string, duration time.Duration) {
	JobsInFlight.WithLabelValues(jobType).Dec()
	JobsTotal.WithLabelValues(jobType, "completed").Inc()
	JobDuration.WithLabelValues(jobType).Observe(duration.Seconds())
}

// JobFailed records a job failure. permanent failures are not retried.
func JobFailed(jobType string, permanent bool) {
	JobsInFlight.WithLabelValues(jobType).Dec()
	if permanent {
		JobsTotal.WithLabelValues(jobType, "failed").Inc()
		return
	}
	JobsTotal.WithLabelValues(jobType, "retried").Inc()
	JobRetriesTotal.WithLabelValues(jobType).Inc()
}

// AIGeneration records one AI call and the tokens it consumed.
func AIGeneration(kind, status string, inputTokens, outputTokens int) {
	AIGenerations.WithLabelValues(kind, status).Inc()
	if inputTokens > 0 {
		AITokensTotal.WithLabelValues("input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		AITokensTotal.WithLabelValues("output").Add(float64(outputTokens))
	}
}
