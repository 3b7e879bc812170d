package middleware

import (
	"context"
	"time"

	"github.com/vango-dev/campusdesk/pkg/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Default tracer name for campusdesk.
const defaultTracerName = "campusdesk"

// SpanName is the name of every dispatch span.
const SpanName = "campusdesk.dispatch"

// OTelConfig configures the OpenTelemetry middleware.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "campusdesk").
	TracerName string

	// TracerProvider overrides the global provider.
	TracerProvider trace.TracerProvider

	// Filter determines which actions to trace. If nil, all are traced.
	Filter func(action store.Action) bool

	// AttributeExtractor adds custom attributes for each traced action.
	AttributeExtractor func(action store.Action) []attribute.KeyValue

	tracer trace.Tracer
}

// OTelOption configures the OpenTelemetry middleware.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) OTelOption {
	return func(c *OTelConfig) {
		c.TracerProvider = tp
	}
}

// WithActionFilter sets a filter function for actions.
func WithActionFilter(filter func(action store.Action) bool) OTelOption {
	return func(c *OTelConfig) {
		c.Filter = filter
	}
}

// WithAttributeExtractor sets a custom attribute extractor.
func WithAttributeExtractor(extractor func(action store.Action) []attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) {
		c.AttributeExtractor = extractor
	}
}

// OpenTelemetry creates store middleware that wraps every dispatch in a
// span named campusdesk.dispatch with an action.type attribute. A parent
// span context found in the action's Meta (see InjectTrace) is honored.
//
// The tracer uses the global OpenTelemetry tracer provider unless
// WithTracerProvider is given.
func OpenTelemetry(opts ...OTelOption) store.Middleware {
	config := OTelConfig{TracerName: defaultTracerName}
	for _, opt := range opts {
		opt(&config)
	}
	if config.TracerProvider != nil {
		config.tracer = config.TracerProvider.Tracer(config.TracerName)
	} else {
		config.tracer = otel.Tracer(config.TracerName)
	}

	return func(api store.API) func(next store.Dispatcher) store.Dispatcher {
		return func(next store.Dispatcher) store.Dispatcher {
			return func(action store.Action) (store.Action, error) {
				if config.Filter != nil && !config.Filter(action) {
					return next(action)
				}

				attrs := []attribute.KeyValue{
					attribute.String("action.type", action.Type),
					attribute.Bool("action.has_payload", action.Payload != nil),
				}
				if config.AttributeExtractor != nil {
					attrs = append(attrs, config.AttributeExtractor(action)...)
				}

				_, span := config.tracer.Start(
					ExtractTrace(context.Background(), action.Meta),
					SpanName,
					trace.WithSpanKind(trace.SpanKindInternal),
					trace.WithAttributes(attrs...),
					trace.WithTimestamp(time.Now()),
				)
				defer span.End()

				out, err := next(action)
				if err != nil {
					span.RecordError(err)
					span.SetStatus(codes.Error, err.Error())
				} else {
					span.SetStatus(codes.Ok, "")
				}
				span.SetAttributes(attribute.Int("store.slices", len(api.GetState())))
				return out, err
			}
		}
	}
}

var traceContext = propagation.TraceContext{}

// InjectTrace copies the span context of ctx into meta under the W3C
// trace context keys. It returns meta, allocating it if needed. A context
// without a valid span leaves meta unchanged.
func InjectTrace(ctx context.Context, meta map[string]any) map[string]any {
	carrier := propagation.MapCarrier{}
	traceContext.Inject(ctx, carrier)
	if len(carrier) == 0 {
		return meta
	}
	if meta == nil {
		meta = make(map[string]any, len(carrier))
	}
	for k, v := range carrier {
		meta[k] = v
	}
	return meta
}

// ExtractTrace returns ctx with the remote span context found in meta.
func ExtractTrace(ctx context.Context, meta map[string]any) context.Context {
	if len(meta) == 0 {
		return ctx
	}
	carrier := propagation.MapCarrier{}
	for _, k := range traceContext.Fields() {
		if v, ok := meta[k].(string); ok {
			carrier[k] = v
		}
	}
	return traceContext.Extract(ctx, carrier)
}
