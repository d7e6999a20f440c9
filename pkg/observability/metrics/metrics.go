package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
)

var (
	searchesTotal        atomic.Int64
	searchResultsTotal   atomic.Int64
	providerLookups      atomic.Int64
	meteredSearches      atomic.Int64
	meteringFailures     atomic.Int64
	usageEventsPublished atomic.Int64
	usageEventsRelayed   atomic.Int64
	usageRelayFailures   atomic.Int64
	rateLimited          atomic.Int64

	failuresMu sync.Mutex
	failures   = map[string]int64{}
)

func ObserveSearch(results int) {
	searchesTotal.Add(1)
	searchResultsTotal.Add(int64(results))
}

func ObserveProviderLookup() { providerLookups.Add(1) }

// ObserveFailure counts a request that ended with the given error kind.
func ObserveFailure(kind string) {
	if kind == "" {
		kind = "internal"
	}
	failuresMu.Lock()
	failures[kind]++
	failuresMu.Unlock()
}

func ObserveMetered()          { meteredSearches.Add(1) }
func ObserveMeteringFailure()  { meteringFailures.Add(1) }
func ObserveUsagePublished()   { usageEventsPublished.Add(1) }
func ObserveUsageRelayed()     { usageEventsRelayed.Add(1) }
func ObserveUsageRelayFailed() { usageRelayFailures.Add(1) }
func ObserveRateLimited()      { rateLimited.Add(1) }

// MeteringFailures is exposed for tests.
func MeteringFailures() int64 { return meteringFailures.Load() }

func Failures(kind string) int64 {
	failuresMu.Lock()
	defer failuresMu.Unlock()
	return failures[kind]
}

func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	counter(w, "rxlocator_searches_total", "Number of successful provider searches.", searchesTotal.Load())
	counter(w, "rxlocator_search_results_total", "Number of provider rows returned by searches.", searchResultsTotal.Load())
	counter(w, "rxlocator_provider_lookups_total", "Number of provider detail lookups.", providerLookups.Load())
	counter(w, "rxlocator_metered_searches_total", "Number of searches recorded by the usage meter.", meteredSearches.Load())
	counter(w, "rxlocator_metering_failures_total", "Number of usage reports or audit inserts that failed.", meteringFailures.Load())
	counter(w, "rxlocator_usage_events_published_total", "Number of usage events published to Kafka.", usageEventsPublished.Load())
	counter(w, "rxlocator_usage_events_relayed_total", "Number of usage events forwarded to the billing API.", usageEventsRelayed.Load())
	counter(w, "rxlocator_usage_relay_failures_total", "Number of usage events the relay could not forward.", usageRelayFailures.Load())
	counter(w, "rxlocator_rate_limited_total", "Number of requests rejected by the rate limiter.", rateLimited.Load())

	failuresMu.Lock()
	kinds := make([]string, 0, len(failures))
	for k := range failures {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	fmt.Fprintf(w, "# HELP rxlocator_request_failures_total Number of failed requests by error kind.\n")
	fmt.Fprintf(w, "# TYPE rxlocator_request_failures_total counter\n")
	for _, k := range kinds {
		fmt.Fprintf(w, "rxlocator_request_failures_total{kind=%q} %d\n", k, failures[k])
	}
	failuresMu.Unlock()
}

func counter(w http.ResponseWriter, name, help string, v int64) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s counter\n", name)
	fmt.Fprintf(w, "%s %d\n", name, v)
}
