// Package diagnostic implements the diagnostic interfaces of the engine
// and its services on top of a zap logger.
package diagnostic

import (
	"go.uber.org/zap"
)

type Service struct {
	Logger *zap.Logger
}

// NewService returns a service logging to l. A nil l discards everything.
func NewService(l *zap.Logger) *Service {
	if l == nil {
		l = zap.NewNop()
	}
	return &Service{
		Logger: l,
	}
}

func (s *Service) Open() error {
	return nil
}

func (s *Service) Close() error {
	// Sync errors on terminals are expected
	_ = s.Logger.Sync()
	return nil
}

func (s *Service) NewEngineHandler() *EngineHandler {
	return &EngineHandler{
		l: s.Logger.With(zap.String("service", "engine")),
	}
}

func (s *Service) NewRunLogHandler() *RunLogHandler {
	return &RunLogHandler{
		l: s.Logger.With(zap.String("service", "runlog")),
	}
}

func (s *Service) NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{
		l: s.Logger.With(zap.String("service", "metrics")),
	}
}
