package internaldefs

import (
	goSession "github.com/MrEthical07/goSession"
)

// CounterDef names one session counter.
type CounterDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// HistogramDef names one session histogram.
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: goSession.MetricRehydrateAuthenticated, Name: "gosession_rehydrate_authenticated_total", Help: "Startups that restored an authenticated session."},
	{ID: goSession.MetricRehydrateAnonymous, Name: "gosession_rehydrate_anonymous_total", Help: "Startups without a stored credential."},
	{ID: goSession.MetricRehydrateFailed, Name: "gosession_rehydrate_failed_total", Help: "Startups whose stored credential could not be verified."},
	{ID: goSession.MetricLoginSuccess, Name: "gosession_login_success_total", Help: "Successful logins."},
	{ID: goSession.MetricLoginFailure, Name: "gosession_login_failure_total", Help: "Failed logins."},
	{ID: goSession.MetricRegisterSuccess, Name: "gosession_register_success_total", Help: "Successful registrations."},
	{ID: goSession.MetricRegisterFailure, Name: "gosession_register_failure_total", Help: "Failed registrations."},
	{ID: goSession.MetricLogout, Name: "gosession_logout_total", Help: "Logout operations."},
	{ID: goSession.MetricRequestStamped, Name: "gosession_request_stamped_total", Help: "Upstream requests sent with the credential."},
	{ID: goSession.MetricRequestUnstamped, Name: "gosession_request_unstamped_total", Help: "Upstream requests sent without a credential."},
	{ID: goSession.MetricTransportFailure, Name: "gosession_transport_failure_total", Help: "Upstream requests that produced no response."},
	{ID: goSession.MetricAuthorizationRejected, Name: "gosession_authorization_rejected_total", Help: "Upstream responses that refused the credential."},
	{ID: goSession.MetricInvalidation, Name: "gosession_invalidation_total", Help: "Sessions ended by an authorization rejection."},
	{ID: goSession.MetricRejectionIgnored, Name: "gosession_rejection_ignored_total", Help: "Rejections that did not end a session."},
}

var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricRequestLatency, Name: "gosession_request_latency_seconds", Help: "Upstream request latency histogram."},
}

// HistogramBounds are the upper bounds in seconds, matching the core
// histogram buckets.
var HistogramBounds = []string{
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"2.5",
	"+Inf",
}

// HistogramBoundSuffix renders HistogramBounds as instrument name suffixes.
var HistogramBoundSuffix = []string{
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"2_5",
	"inf",
}

func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
