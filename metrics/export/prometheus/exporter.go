package prometheus

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	blogAuth "github.com/MrEthical07/blogAuth"
	"github.com/MrEthical07/blogAuth/metrics/export/internaldefs"
)

const contentType = "text/plain; version=0.0.4; charset=utf-8"

// MetricsSource is satisfied by *blogAuth.Engine.
type MetricsSource interface {
	MetricsSnapshot() blogAuth.MetricsSnapshot
}

// Exporter renders engine metrics in Prometheus text exposition format.
type Exporter struct {
	source MetricsSource
}

// New returns an exporter reading from source, usually the Engine.
func New(source MetricsSource) *Exporter {
	return &Exporter{source: source}
}

// Handler serves [Exporter.Render] for a /metrics route.
func (p *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_ = p.Encode(w)
	})
}

// Render returns the current metrics. It is empty while metrics are disabled.
func (p *Exporter) Render() string {
	var buf bytes.Buffer
	_ = p.Encode(&buf)
	return buf.String()
}

// Encode writes one scrape to w in series order of internaldefs.
func (p *Exporter) Encode(w io.Writer) error {
	if p == nil || p.source == nil {
		return nil
	}
	snap := p.source.MetricsSnapshot()
	if len(snap.Counters) == 0 && len(snap.Histograms) == 0 {
		return nil
	}

	ew := &errWriter{w: w}
	for _, def := range internaldefs.CounterDefs {
		header(ew, def.Name, def.Help, "counter")
		ew.printf("%s %d\n", def.Name, snap.Counters[def.ID])
	}
	for _, def := range internaldefs.HistogramDefs {
		cum := internaldefs.Cumulative(snap.Histograms[def.ID])
		header(ew, def.Name, def.Help, "histogram")
		for i, b := range internaldefs.Buckets {
			ew.printf("%s_bucket{le=%q} %d\n", def.Name, b.Le, cum[i])
		}
		ew.printf("%s_sum %g\n", def.Name, snap.HistogramSums[def.ID].Seconds())
		ew.printf("%s_count %d\n", def.Name, cum[len(cum)-1])
	}
	return ew.err
}

func header(ew *errWriter, name, help, kind string) {
	help = strings.NewReplacer(`\`, `\\`, "\n", `\n`).Replace(help)
	ew.printf("# HELP %s %s\n# TYPE %s %s\n", name, help, name, kind)
}

// errWriter keeps the first write error and drops later writes.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
