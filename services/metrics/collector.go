package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rowflow/rowflow"
)

const namespace = "rowflow"

// PipelineSource lists the pipelines currently executing.
type PipelineSource interface {
	Running() []*rowflow.ExecutingPipeline
}

// Collector exposes the live counters of every running pipeline.
type Collector struct {
	source PipelineSource

	rowsRead     *prometheus.Desc
	rowsWritten  *prometheus.Desc
	rowsRejected *prometheus.Desc
	stepState    *prometheus.Desc
	edgeBuffered *prometheus.Desc
}

func NewCollector(source PipelineSource) *Collector {
	stepLabels := []string{"pipeline", "run_id", "step", "type"}
	return &Collector{
		source: source,
		rowsRead: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "step", "rows_read_total"),
			"Rows read by a step of a running pipeline.",
			stepLabels, nil,
		),
		rowsWritten: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "step", "rows_written_total"),
			"Rows written by a step of a running pipeline.",
			stepLabels, nil,
		),
		rowsRejected: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "step", "rows_rejected_total"),
			"Rows sent to the error hop by a step of a running pipeline.",
			stepLabels, nil,
		),
		stepState: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "step", "state"),
			"Lifecycle state of a step, 1 for the current state.",
			append(stepLabels, "state"), nil,
		),
		edgeBuffered: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "edge", "buffered_rows"),
			"Rows waiting on a hop of a running pipeline.",
			[]string{"pipeline", "run_id", "from", "to"}, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.rowsRead
	ch <- c.rowsWritten
	ch <- c.rowsRejected
	ch <- c.stepState
	ch <- c.edgeBuffered
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, pe := range c.source.Running() {
		for _, s := range pe.Stats() {
			labels := []string{pe.Name(), pe.ID(), s.Name, s.Type}
			ch <- prometheus.MustNewConstMetric(c.rowsRead, prometheus.CounterValue, float64(s.RowsRead), labels...)
			ch <- prometheus.MustNewConstMetric(c.rowsWritten, prometheus.CounterValue, float64(s.RowsWritten), labels...)
			ch <- prometheus.MustNewConstMetric(c.rowsRejected, prometheus.CounterValue, float64(s.RowsRejected), labels...)
			ch <- prometheus.MustNewConstMetric(c.stepState, prometheus.GaugeValue, 1, append(labels, s.State.String())...)
		}
		for _, e := range pe.EdgeStats() {
			ch <- prometheus.MustNewConstMetric(c.edgeBuffered, prometheus.GaugeValue, float64(e.Buffered()),
				pe.Name(), pe.ID(), e.Origin, e.Destination)
		}
	}
}
