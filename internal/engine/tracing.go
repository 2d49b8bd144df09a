package engine

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "client-optimizer/engine"

// WithTracerProvider traces commits and sweeps through tp instead of the
// global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

func WithSchedulerTracer(tracer trace.Tracer) SchedulerOption {
	return func(s *SchedulerImpl) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

func defaultTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// endSpan marks span failed when err is set and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
