package prometheus

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/metrics/export/internaldefs"
)

const contentType = "text/plain; version=0.0.4; charset=utf-8"

type snapshotSource interface {
	MetricsSnapshot() authflow.MetricsSnapshot
	AuditDropped() uint64
}

// PrometheusExporter renders authflow metrics in the Prometheus text
// exposition format.
type PrometheusExporter struct {
	src snapshotSource
}

// NewPrometheusExporter reads from c on every scrape.
func NewPrometheusExporter(c *authflow.Coordinator) *PrometheusExporter {
	if c == nil {
		return &PrometheusExporter{}
	}
	return newExporter(c)
}

func newExporter(src snapshotSource) *PrometheusExporter {
	return &PrometheusExporter{src: src}
}

// Handler serves Render. Mount it on the metrics path.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = io.WriteString(w, p.Render())
	})
}

// Render returns the current snapshot as exposition text, or "" when metrics
// are disabled on the coordinator.
func (p *PrometheusExporter) Render() string {
	if p == nil || p.src == nil {
		return ""
	}

	snap := p.src.MetricsSnapshot()
	dropped := p.src.AuditDropped()
	if len(snap.Counters) == 0 && len(snap.Histograms) == 0 && dropped == 0 {
		return ""
	}

	var b strings.Builder
	for _, def := range internaldefs.CounterDefs {
		counter(&b, def.Name, def.Help, snap.Counters[def.ID])
	}
	for _, def := range internaldefs.HistogramDefs {
		latency(&b, def, snap.Histograms[def.ID])
	}
	counter(&b, "authflow_audit_dropped_total", "Audit events dropped because the dispatcher buffer was full.", dropped)
	return b.String()
}

func header(b *strings.Builder, name, help, kind string) {
	help = strings.NewReplacer(`\`, `\\`, "\n", `\n`).Replace(help)
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, kind)
}

func counter(b *strings.Builder, name, help string, v uint64) {
	header(b, name, help, "counter")
	fmt.Fprintf(b, "%s %d\n", name, v)
}

func latency(b *strings.Builder, def internaldefs.HistogramDef, raw []uint64) {
	buckets := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))

	header(b, def.Name, def.Help, "histogram")
	for i, le := range internaldefs.HistogramBounds {
		fmt.Fprintf(b, "%s_bucket{le=%q} %d\n", def.Name, le, buckets[i])
	}
	fmt.Fprintf(b, "%s_count %d\n", def.Name, buckets[len(buckets)-1])
	// Snapshots keep bucket counts only, so the sum is not known.
	fmt.Fprintf(b, "%s_sum 0\n", def.Name)
}
