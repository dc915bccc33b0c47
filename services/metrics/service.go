// Package metrics serves Prometheus metrics about running and finished pipelines.
package metrics

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rowflow/rowflow"
	"github.com/rowflow/rowflow/keyvalue"
)

type Diagnostic interface {
	Error(msg string, err error, ctx ...keyvalue.T)
	Listening(addr string)
}

// Service registers the live pipeline collector and the run counters,
// and serves them over HTTP when Open is called.
// It is a rowflow.Reporter: finished runs update the run counters.
type Service struct {
	c    Config
	diag Diagnostic

	Registry *prometheus.Registry

	runs        *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	rowsWritten *prometheus.CounterVec

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	wg       sync.WaitGroup
}

func NewService(c Config, source PipelineSource, d Diagnostic) *Service {
	s := &Service{
		c:        c,
		diag:     d,
		Registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished pipeline runs by outcome.",
		}, []string{"pipeline", "outcome"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of finished pipeline runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"pipeline"}),
		rowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Rows written by the steps of finished pipeline runs.",
		}, []string{"pipeline", "step"}),
	}
	s.Registry.MustRegister(s.runs, s.runDuration, s.rowsWritten)
	if source != nil {
		s.Registry.MustRegister(NewCollector(source))
	}
	return s
}

func outcome(r *rowflow.Result) string {
	switch {
	case r.Error != "":
		return "failed"
	case r.Stopped:
		return "stopped"
	}
	return "finished"
}

// Report records a finished run.
func (s *Service) Report(r *rowflow.Result) error {
	s.runs.WithLabelValues(r.Pipeline, outcome(r)).Inc()
	s.runDuration.WithLabelValues(r.Pipeline).Observe(r.Elapsed.Seconds())
	for _, step := range r.Steps {
		s.rowsWritten.WithLabelValues(r.Pipeline, step.Name).Add(float64(step.RowsWritten))
	}
	return nil
}

func (s *Service) Handler() http.Handler {
	return promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{})
}

func (s *Service) Open() error {
	if !s.c.Enabled {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := net.Listen("tcp", s.c.BindAddress)
	if err != nil {
		return errors.Wrapf(err, "listen on %q", s.c.BindAddress)
	}
	mux := http.NewServeMux()
	mux.Handle(s.c.Path, s.Handler())
	s.listener = l
	s.server = &http.Server{Handler: mux}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Serve(l); err != nil && err != http.ErrServerClosed {
			s.diag.Error("metrics server failed", err)
		}
	}()
	s.diag.Listening(l.Addr().String())
	return nil
}

// Addr is the address the service listens on, empty when not serving.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Service) Close() error {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := server.Shutdown(ctx)
	s.wg.Wait()
	return err
}
