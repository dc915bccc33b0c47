package main

import (
	"io"

	"github.com/pkg/errors"

	"github.com/rowflow/rowflow"
	"github.com/rowflow/rowflow/services/diagnostic"
	"github.com/rowflow/rowflow/services/logging"
	"github.com/rowflow/rowflow/services/metrics"
	"github.com/rowflow/rowflow/services/runlog"
)

// Server wires the pipeline master to the services enabled in the config.
type Server struct {
	Config *Config

	Logging        *logging.Service
	Diag           *diagnostic.Service
	PipelineMaster *rowflow.PipelineMaster
	RunLog         *runlog.Service
	Metrics        *metrics.Service

	closers []io.Closer
}

// NewServer opens the services of c in dependency order.
// On error every service already opened is closed.
func NewServer(c *Config, stdout, stderr io.Writer) (*Server, error) {
	s := &Server{Config: c}
	if err := s.open(stdout, stderr); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Server) open(stdout, stderr io.Writer) error {
	c := s.Config
	s.Logging = logging.NewService(c.Logging, stdout, stderr)
	if err := s.Logging.Open(); err != nil {
		return errors.Wrap(err, "open logging service")
	}
	s.closers = append(s.closers, s.Logging)

	s.Diag = diagnostic.NewService(s.Logging.Root())
	if err := s.Diag.Open(); err != nil {
		return errors.Wrap(err, "open diagnostic service")
	}
	s.closers = append(s.closers, s.Diag)

	s.PipelineMaster = rowflow.NewPipelineMaster("main", nil, s.Diag.NewEngineHandler())
	s.PipelineMaster.DefaultEdgeCapacity = c.Engine.DefaultEdgeCapacity

	if c.RunLog.Enabled {
		s.RunLog = runlog.NewService(c.RunLog, s.Diag.NewRunLogHandler())
		if err := s.RunLog.Open(); err != nil {
			return errors.Wrap(err, "open run log")
		}
		s.closers = append(s.closers, s.RunLog)
		s.PipelineMaster.Reporters = append(s.PipelineMaster.Reporters, s.RunLog)
	}

	s.Metrics = metrics.NewService(c.Metrics, s.PipelineMaster, s.Diag.NewMetricsHandler())
	if err := s.Metrics.Open(); err != nil {
		return errors.Wrap(err, "open metrics service")
	}
	s.closers = append(s.closers, s.Metrics)
	s.PipelineMaster.Reporters = append(s.PipelineMaster.Reporters, s.Metrics)

	if err := s.PipelineMaster.Open(); err != nil {
		return err
	}
	s.closers = append(s.closers, s.PipelineMaster)
	return nil
}

// Close closes the services in reverse order and returns the first error.
func (s *Server) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}
