package internaldefs

import (
	"github.com/MrEthical07/authflow"
)

// CounterDef names one authflow counter for export.
type CounterDef struct {
	ID   authflow.MetricID
	Name string
	Help string
}

// HistogramDef names one authflow histogram for export.
type HistogramDef struct {
	ID   authflow.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: authflow.MetricSignInSuccess, Name: "authflow_sign_in_success_total", Help: "Sign-ins that established a session."},
	{ID: authflow.MetricSignInFailure, Name: "authflow_sign_in_failure_total", Help: "Sign-ins rejected by checks or the provider."},
	{ID: authflow.MetricSignUpSuccess, Name: "authflow_sign_up_success_total", Help: "Registrations that established a session."},
	{ID: authflow.MetricSignUpFailure, Name: "authflow_sign_up_failure_total", Help: "Rejected registrations."},
	{ID: authflow.MetricOTPRequested, Name: "authflow_otp_requested_total", Help: "One-time codes the provider accepted to send."},
	{ID: authflow.MetricOTPRequestFailure, Name: "authflow_otp_request_failure_total", Help: "Failed one-time code requests."},
	{ID: authflow.MetricRateLimited, Name: "authflow_rate_limited_total", Help: "Actions denied by the sliding-window limiter."},
	{ID: authflow.MetricValidationRejected, Name: "authflow_validation_rejected_total", Help: "Actions rejected for input shape."},
	{ID: authflow.MetricOffline, Name: "authflow_offline_total", Help: "Actions rejected while the network was unavailable."},
	{ID: authflow.MetricProviderTimeout, Name: "authflow_provider_timeout_total", Help: "Provider calls cut off by the timeout."},
	{ID: authflow.MetricCancelled, Name: "authflow_cancelled_total", Help: "Actions abandoned by the caller."},
	{ID: authflow.MetricDuplicateCoalesced, Name: "authflow_duplicate_coalesced_total", Help: "Submissions that joined an identical in-flight action."},
	{ID: authflow.MetricBusyRejected, Name: "authflow_busy_rejected_total", Help: "Submissions refused while another action was in flight."},
	{ID: authflow.MetricSessionCreated, Name: "authflow_session_created_total", Help: "Session records written."},
	{ID: authflow.MetricSignOut, Name: "authflow_sign_out_total", Help: "Sign-outs."},
	{ID: authflow.MetricSignOutProviderFailure, Name: "authflow_sign_out_provider_failure_total", Help: "Provider sign-out failures that were ignored."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: authflow.MetricProviderLatency, Name: "authflow_provider_latency_seconds", Help: "Identity provider call latency."},
}

// HistogramBounds are the upper bounds, in seconds, of the eight latency
// buckets kept by authflow.Metrics.
var HistogramBounds = []string{
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"2.5",
	"5",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds spelled for use in instrument names.
var HistogramBoundSuffix = []string{
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"2_5",
	"5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to exactly eight buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into the running totals both
// exposition formats expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
