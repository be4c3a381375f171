package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"fragment-loader/internal/fetchqueue"
	"fragment-loader/internal/models"
)

var (
	// Page load counters exposed on /metrics.
	// received: requests pulled from Kafka; completed/degraded/failed: final load status.
	workerLoadsReceived  uint64
	workerLoadsCompleted uint64
	workerLoadsDegraded  uint64
	workerLoadsFailed    uint64

	// Fragment outcomes reported by the fetch queue observer.
	workerFragmentsLoaded  uint64
	workerFragmentsFailed  uint64
	workerFragmentRetries  uint64
	workerFragmentInFlight int64 // gauge: fragment fetch attempts currently running

	// Histogram buckets for fragment fetch latency (seconds); the +Inf bucket is implicit.
	fetchLatencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5}
	// Counts per bucket; last slot holds the +Inf bucket.
	fetchLatencyCounts = make([]uint64, len(fetchLatencyBuckets)+1)
	fetchLatencySumNs  uint64
	fetchLatencyCount  uint64

	// Fragment fetches answered with HTTP 429.
	workerRateLimitHitsTotal uint64

	workerCommitErrorsTotal uint64
	commitLatencyBuckets    = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}
	commitLatencyCounts     = make([]uint64, len(commitLatencyBuckets)+1)
	commitLatencySumNs      uint64
	commitLatencyCount      uint64

	metricsProxyURL string
)

func startMetricsServer(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", handleMetrics)

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("metrics shutdown error: %v", err)
		}
	}()

	go func() {
		log.Printf("metrics listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
}

func handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	body := fmt.Sprintf(
		"fragments_worker_up 1\n"+
			"fragments_worker_loads_received_total %d\n"+
			"fragments_worker_loads_completed_total %d\n"+
			"fragments_worker_loads_degraded_total %d\n"+
			"fragments_worker_loads_failed_total %d\n"+
			"fragments_worker_fragments_loaded_total %d\n"+
			"fragments_worker_fragments_failed_total %d\n"+
			"fragments_worker_fragment_retries_total %d\n"+
			"fragments_worker_fragment_in_flight %d\n",
		atomic.LoadUint64(&workerLoadsReceived),
		atomic.LoadUint64(&workerLoadsCompleted),
		atomic.LoadUint64(&workerLoadsDegraded),
		atomic.LoadUint64(&workerLoadsFailed),
		atomic.LoadUint64(&workerFragmentsLoaded),
		atomic.LoadUint64(&workerFragmentsFailed),
		atomic.LoadUint64(&workerFragmentRetries),
		atomic.LoadInt64(&workerFragmentInFlight),
	)
	if metricsProxyURL != "" {
		body += "# HELP fragments_worker_proxy_info Proxy URL this worker uses (1 when set).\n"
		body += "# TYPE fragments_worker_proxy_info gauge\n"
		body += fmt.Sprintf("fragments_worker_proxy_info{proxy=\"%s\"} 1\n", escapeMetricLabel(metricsProxyURL))
	}
	body += "# HELP fragments_worker_rate_limit_hits_total Fragment fetches answered with HTTP 429.\n"
	body += "# TYPE fragments_worker_rate_limit_hits_total counter\n"
	body += fmt.Sprintf(
		"fragments_worker_rate_limit_hits_total %d\n"+
			"fragments_worker_commit_errors_total %d\n",
		atomic.LoadUint64(&workerRateLimitHitsTotal),
		atomic.LoadUint64(&workerCommitErrorsTotal),
	)

	var histogram strings.Builder
	histogram.WriteString("# HELP fragments_worker_fetch_latency_seconds Fragment fetch attempt latency.\n")
	histogram.WriteString("# TYPE fragments_worker_fetch_latency_seconds histogram\n")
	appendHistogram(&histogram, "fragments_worker_fetch_latency_seconds", fetchLatencyBuckets,
		fetchLatencyCounts, &fetchLatencySumNs, &fetchLatencyCount, "%.2f")

	var commitHist strings.Builder
	commitHist.WriteString("# HELP fragments_worker_commit_latency_seconds Kafka commit latency.\n")
	commitHist.WriteString("# TYPE fragments_worker_commit_latency_seconds histogram\n")
	appendHistogram(&commitHist, "fragments_worker_commit_latency_seconds", commitLatencyBuckets,
		commitLatencyCounts, &commitLatencySumNs, &commitLatencyCount, "%.3f")

	_, _ = w.Write([]byte(body + histogram.String() + commitHist.String()))
}

// escapeMetricLabel escapes backslash and double quote for Prometheus label values.
func escapeMetricLabel(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	return strings.ReplaceAll(s, "\"", "\\\"")
}

// appendHistogram writes a Prometheus histogram (buckets, +Inf, sum, count) to sb.
// counts must have len(buckets)+1 elements; leFmt formats bucket bounds (e.g. "%.2f").
func appendHistogram(sb *strings.Builder, name string, buckets []float64, counts []uint64, sumNs, count *uint64, leFmt string) {
	var cumulative uint64
	for i, bound := range buckets {
		cumulative += atomic.LoadUint64(&counts[i])
		sb.WriteString(fmt.Sprintf("%s_bucket{le=\"%s\"} %d\n", name, fmt.Sprintf(leFmt, bound), cumulative))
	}
	cumulative += atomic.LoadUint64(&counts[len(buckets)])
	sb.WriteString(fmt.Sprintf("%s_bucket{le=\"+Inf\"} %d\n", name, cumulative))
	sumSeconds := float64(atomic.LoadUint64(sumNs)) / float64(time.Second)
	sb.WriteString(fmt.Sprintf("%s_sum %.6f\n", name, sumSeconds))
	sb.WriteString(fmt.Sprintf("%s_count %d\n", name, atomic.LoadUint64(count)))
}

// metricsFetcher records latency, in-flight attempts and 429s around every fragment fetch.
type metricsFetcher struct {
	next fetchqueue.Fetcher
}

func (f metricsFetcher) Fetch(ctx context.Context, locator string) ([]byte, error) {
	atomic.AddInt64(&workerFragmentInFlight, 1)
	defer atomic.AddInt64(&workerFragmentInFlight, -1)

	start := time.Now()
	body, err := f.next.Fetch(ctx, locator)
	observeFetchLatency(time.Since(start))
	if fetchqueue.StatusCode(err) == http.StatusTooManyRequests {
		atomic.AddUint64(&workerRateLimitHitsTotal, 1)
	}
	return body, err
}

// observeQueueEvent counts retries and terminal fragment outcomes.
func observeQueueEvent(e fetchqueue.Event) {
	switch e.State {
	case fetchqueue.StateRetryScheduled:
		atomic.AddUint64(&workerFragmentRetries, 1)
	case fetchqueue.StateSucceeded:
		atomic.AddUint64(&workerFragmentsLoaded, 1)
	case fetchqueue.StateFailedTerminal:
		atomic.AddUint64(&workerFragmentsFailed, 1)
	}
}

func countLoadOutcome(status string) {
	switch status {
	case models.StatusCompleted:
		atomic.AddUint64(&workerLoadsCompleted, 1)
	case models.StatusDegraded:
		atomic.AddUint64(&workerLoadsDegraded, 1)
	case models.StatusFailed:
		atomic.AddUint64(&workerLoadsFailed, 1)
	}
}

// observeFetchLatency updates a manual Prometheus histogram.
func observeFetchLatency(duration time.Duration) {
	observeHistogram(duration, fetchLatencyBuckets, fetchLatencyCounts, &fetchLatencySumNs, &fetchLatencyCount)
}

// observeCommitLatency updates the Kafka commit latency histogram.
func observeCommitLatency(duration time.Duration) {
	observeHistogram(duration, commitLatencyBuckets, commitLatencyCounts, &commitLatencySumNs, &commitLatencyCount)
}

func observeHistogram(duration time.Duration, buckets []float64, counts []uint64, sumNs, count *uint64) {
	if duration <= 0 {
		return
	}
	seconds := duration.Seconds()
	bucketIndex := len(buckets)
	for i, bound := range buckets {
		if seconds <= bound {
			bucketIndex = i
			break
		}
	}
	atomic.AddUint64(&counts[bucketIndex], 1)
	atomic.AddUint64(sumNs, uint64(duration.Nanoseconds()))
	atomic.AddUint64(count, 1)
}
