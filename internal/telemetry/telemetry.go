// Package telemetry records pipeline stages as OpenTelemetry spans.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/lirantal/devrel-cfp-committee/internal/pipeline"
)

// Config controls span export. Tracing is off unless Enabled is set.
type Config struct {
	Enabled     bool
	ServiceName string
	// TraceFile receives spans as JSON lines; empty means stdout.
	TraceFile string
}

// Setup builds a tracer provider exporting to the configured file. The
// returned shutdown function flushes pending spans and closes the file.
func Setup(ctx context.Context, cfg Config) (trace.TracerProvider, func(context.Context) error, error) {
	noopShutdown := func(context.Context) error { return nil }
	if !cfg.Enabled {
		return noop.NewTracerProvider(), noopShutdown, nil
	}

	var w io.Writer = os.Stdout
	var file *os.File
	if cfg.TraceFile != "" {
		f, err := os.OpenFile(cfg.TraceFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, noopShutdown, fmt.Errorf("opening trace file: %w", err)
		}
		file = f
		w = f
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, noopShutdown, fmt.Errorf("creating trace exporter: %w", err)
	}

	name := cfg.ServiceName
	if name == "" {
		name = "cfpeval"
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(name)))
	if err != nil {
		return nil, noopShutdown, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	shutdown := func(ctx context.Context) error {
		err := tp.Shutdown(ctx)
		if file != nil {
			if cerr := file.Close(); err == nil {
				err = cerr
			}
		}
		return err
	}
	return tp, shutdown, nil
}

type spanKey struct {
	runID     string
	speakerID string
	stage     pipeline.Stage
}

// SpanObserver turns stage-entered/completed/failed pairs into spans. All
// stages of one run share a root span, which ends with the aggregate stage
// or the first failure.
type SpanObserver struct {
	tracer trace.Tracer

	mu    sync.Mutex
	roots map[string]trace.Span
	spans map[spanKey]trace.Span
}

// NewSpanObserver creates an observer using the provider's tracer.
func NewSpanObserver(tp trace.TracerProvider) *SpanObserver {
	return &SpanObserver{
		tracer: tp.Tracer("github.com/lirantal/devrel-cfp-committee/internal/pipeline"),
		roots:  make(map[string]trace.Span),
		spans:  make(map[spanKey]trace.Span),
	}
}

// Observe implements pipeline.Observer.
func (o *SpanObserver) Observe(e pipeline.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()

	key := spanKey{runID: e.RunID, speakerID: e.SpeakerID, stage: e.Stage}
	rootKey := e.RunID + "/" + e.SpeakerID

	switch e.Kind {
	case pipeline.StageEntered:
		root, ok := o.roots[rootKey]
		if !ok {
			_, root = o.tracer.Start(context.Background(), "pipeline.run",
				trace.WithTimestamp(e.At),
				trace.WithAttributes(runAttributes(e)...),
			)
			o.roots[rootKey] = root
		}
		ctx := trace.ContextWithSpan(context.Background(), root)
		_, span := o.tracer.Start(ctx, string(e.Stage),
			trace.WithTimestamp(e.At),
			trace.WithAttributes(runAttributes(e)...),
		)
		o.spans[key] = span

	case pipeline.StageCompleted, pipeline.StageFailed:
		span, ok := o.spans[key]
		if !ok {
			return
		}
		delete(o.spans, key)
		span.SetAttributes(attribute.Int("cfp.fallbacks", e.Fallbacks))

		root := o.roots[rootKey]
		last := e.Stage == pipeline.StageAggregate || e.SpeakerID != ""
		if e.Kind == pipeline.StageFailed {
			span.RecordError(e.Err)
			span.SetStatus(codes.Error, errString(e.Err))
			if root != nil {
				root.SetStatus(codes.Error, string(e.Stage)+" failed")
			}
			last = true
		}
		span.End(trace.WithTimestamp(e.At))

		if last && root != nil {
			root.End(trace.WithTimestamp(e.At))
			delete(o.roots, rootKey)
		}
	}
}

func runAttributes(e pipeline.Event) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("cfp.run_id", e.RunID)}
	if e.SessionID != "" {
		attrs = append(attrs, attribute.String("cfp.session_id", e.SessionID))
	}
	if e.SpeakerID != "" {
		attrs = append(attrs, attribute.String("cfp.speaker_id", e.SpeakerID))
	}
	return attrs
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

var _ pipeline.Observer = (*SpanObserver)(nil)
