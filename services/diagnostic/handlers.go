package diagnostic

import (
	"go.uber.org/zap"

	"github.com/rowflow/rowflow"
	"github.com/rowflow/rowflow/keyvalue"
)

func Err(l *zap.Logger, msg string, err error, ctx []keyvalue.T) {
	fields := make([]zap.Field, 0, len(ctx)+1)
	fields = append(fields, zap.Error(err))
	for _, kv := range ctx {
		fields = append(fields, zap.String(kv.Key, kv.Value))
	}
	l.Error(msg, fields...)
}

func pairs(ctx []keyvalue.T) []zap.Field {
	fields := make([]zap.Field, len(ctx))
	for i, kv := range ctx {
		fields[i] = zap.String(kv.Key, kv.Value)
	}
	return fields
}

// Engine Handler

type EngineHandler struct {
	l *zap.Logger
}

func (h *EngineHandler) WithPipelineContext(pipeline, runID string) rowflow.PipelineDiagnostic {
	return &EngineHandler{
		l: h.l.With(zap.String("pipeline", pipeline), zap.String("run_id", runID)),
	}
}

func (h *EngineHandler) WithStepContext(step string) rowflow.NodeDiagnostic {
	return &EngineHandler{
		l: h.l.With(zap.String("step", step)),
	}
}

func (h *EngineHandler) PipelineMasterOpened() {
	h.l.Info("opened pipeline master")
}

func (h *EngineHandler) PipelineMasterClosed() {
	h.l.Info("closed pipeline master")
}

func (h *EngineHandler) ReportFailed(reporter string, err error) {
	h.l.Error("failed to report result", zap.String("reporter", reporter), zap.Error(err))
}

func (h *EngineHandler) StartingPipeline() {
	h.l.Debug("starting pipeline")
}

func (h *EngineHandler) StartedPipeline(steps int) {
	h.l.Info("started pipeline", zap.Int("steps", steps))
}

func (h *EngineHandler) StoppingPipeline() {
	h.l.Info("stopping pipeline")
}

func (h *EngineHandler) FinishedPipeline(r *rowflow.Result) {
	var read, written, rejected int64
	for _, s := range r.Steps {
		read += s.RowsRead
		written += s.RowsWritten
		rejected += s.RowsRejected
	}
	fields := []zap.Field{
		zap.Duration("elapsed", r.Elapsed),
		zap.Int64("rows_read", read),
		zap.Int64("rows_written", written),
		zap.Int64("rows_rejected", rejected),
	}
	switch {
	case r.Err != nil:
		fields = append(fields, zap.String("failed_step", r.FailedStep), zap.Error(r.Err))
		h.l.Error("pipeline failed", fields...)
	case r.Stopped:
		h.l.Info("pipeline stopped", fields...)
	default:
		h.l.Info("pipeline finished", fields...)
	}
}

func (h *EngineHandler) StateChanged(from, to rowflow.State) {
	h.l.Debug("step state changed", zap.Stringer("from", from), zap.Stringer("to", to))
}

func (h *EngineHandler) RowRejected(err error) {
	h.l.Debug("row sent to error hop", zap.Error(err))
}

func (h *EngineHandler) Error(msg string, err error, ctx ...keyvalue.T) {
	Err(h.l, msg, err, ctx)
}

func (h *EngineHandler) Info(msg string, ctx ...keyvalue.T) {
	h.l.Info(msg, pairs(ctx)...)
}

func (h *EngineHandler) Debug(msg string, ctx ...keyvalue.T) {
	h.l.Debug(msg, pairs(ctx)...)
}

// Run log handler

type RunLogHandler struct {
	l *zap.Logger
}

func (h *RunLogHandler) Error(msg string, err error, ctx ...keyvalue.T) {
	Err(h.l, msg, err, ctx)
}

func (h *RunLogHandler) StoredRun(runID string) {
	h.l.Debug("stored run", zap.String("run_id", runID))
}

// Metrics handler

type MetricsHandler struct {
	l *zap.Logger
}

func (h *MetricsHandler) Error(msg string, err error, ctx ...keyvalue.T) {
	Err(h.l, msg, err, ctx)
}

func (h *MetricsHandler) Listening(addr string) {
	h.l.Info("serving metrics", zap.String("addr", addr))
}
