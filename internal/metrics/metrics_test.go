package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	if m == nil {
		t.Fatal("New() returned nil")
	}

	// Verify all metric fields are initialized
	if m.ProviderRequestsTotal == nil {
		t.Error("ProviderRequestsTotal is nil")
	}
	if m.ProviderDurationSeconds == nil {
		t.Error("ProviderDurationSeconds is nil")
	}
	if m.ReportsTotal == nil {
		t.Error("ReportsTotal is nil")
	}
	if m.WebhookRequestsTotal == nil {
		t.Error("WebhookRequestsTotal is nil")
	}
	if m.WebhookDurationSeconds == nil {
		t.Error("WebhookDurationSeconds is nil")
	}
	if m.DeliveriesTotal == nil {
		t.Error("DeliveriesTotal is nil")
	}
	if m.CacheHitsTotal == nil || m.CacheMissesTotal == nil || m.CacheSize == nil {
		t.Error("cache metrics are nil")
	}
	if m.RateLimiterDropped == nil || m.RateLimiterUsers == nil || m.RateLimiterWaitDuration == nil {
		t.Error("rate limiter metrics are nil")
	}
	if m.SingleflightDedupTotal == nil {
		t.Error("SingleflightDedupTotal is nil")
	}
	if m.JobDurationSeconds == nil {
		t.Error("JobDurationSeconds is nil")
	}
}

func TestRecordProviderRequest(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.RecordProviderRequest("nominatim", "success", 0.3)
	m.RecordProviderRequest("nominatim", "success", 0.2)
	m.RecordProviderRequest("openweather_forecast", "payload_error", 0.1)

	if got := testutil.ToFloat64(m.ProviderRequestsTotal.WithLabelValues("nominatim", "success")); got != 2 {
		t.Errorf("nominatim success = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ProviderRequestsTotal.WithLabelValues("openweather_forecast", "payload_error")); got != 1 {
		t.Errorf("forecast payload_error = %v, want 1", got)
	}
}

func TestRecordReport(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.RecordReport("location", "complete")
	m.RecordReport("location", "degraded")
	m.RecordReport("location", "degraded")

	if got := testutil.ToFloat64(m.ReportsTotal.WithLabelValues("location", "degraded")); got != 2 {
		t.Errorf("degraded reports = %v, want 2", got)
	}
}

func TestGauges(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.SetCacheSize("last_location", 12)
	m.SetCacheSize("last_location", 7)
	m.SetRateLimiterUsers("user", 3)

	if got := testutil.ToFloat64(m.CacheSize.WithLabelValues("last_location")); got != 7 {
		t.Errorf("cache size = %v, want 7", got)
	}
	if got := testutil.ToFloat64(m.RateLimiterUsers.WithLabelValues("user")); got != 3 {
		t.Errorf("limiter users = %v, want 3", got)
	}
}

func TestRecorders_NoPanic(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	// Should not panic
	m.RecordWebhook("line", "message", "success", 0.5)
	m.RecordWebhook("telegram", "location", "error", 1.0)
	m.RecordDelivery("telegram", "operator", "error")
	m.RecordHTTPError("invalid_signature", "line")
	m.RecordCacheHit("last_location")
	m.RecordCacheMiss("last_location")
	m.RecordRateLimiterWait("geocoder", 0.8)
	m.RecordRateLimiterDrop("user")
	m.RecordSingleflightDedup("openweather_current")
	m.RecordJob("location_cleanup", 0.02)
}

func TestMetrics_Names(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.RecordProviderRequest("nominatim", "success", 1.0)
	m.RecordCacheHit("last_location")
	m.RecordWebhook("line", "message", "success", 0.5)
	m.RecordReport("forecast", "complete")

	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	expectedMetrics := map[string]bool{
		"wxbot_provider_requests_total":   false,
		"wxbot_provider_duration_seconds": false,
		"wxbot_cache_hits_total":          false,
		"wxbot_webhook_requests_total":    false,
		"wxbot_webhook_duration_seconds":  false,
		"wxbot_reports_total":             false,
	}

	for _, mf := range metricFamilies {
		if _, ok := expectedMetrics[mf.GetName()]; ok {
			expectedMetrics[mf.GetName()] = true
		}
	}

	for name, found := range expectedMetrics {
		if !found {
			t.Errorf("Expected metric %q not found", name)
		}
	}
}
