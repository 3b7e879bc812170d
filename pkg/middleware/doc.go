// Package middleware provides store middleware for observability.
//
// This package includes:
//   - Prometheus metrics for every dispatched action
//   - OpenTelemetry tracing with one span per dispatch
//   - Structured action logging with log/slog
//
// Middleware is installed when the store is configured. The
// serializability guard always runs first:
//
//	st, err := store.Configure(store.Options{
//	    Reducers: slices.Reducers(),
//	    Middleware: []store.Middleware{
//	        middleware.Logger(logger),
//	        middleware.OpenTelemetry(),
//	        middleware.Prometheus(middleware.WithRegistry(reg)),
//	    },
//	    OnViolation: middleware.RecordViolation,
//	})
//
// # Prometheus Metrics
//
//   - campusdesk_actions_total{type,status}: dispatched actions
//   - campusdesk_dispatch_duration_seconds: dispatch latency
//   - campusdesk_serializable_violations_total{kind}: guard findings
//   - campusdesk_toasts_active: visible toasts
//   - campusdesk_websocket_clients: connected live-feed clients
//   - campusdesk_websocket_errors_total{type}: live-feed failures
//
// Expose them with promhttp on the same registry.
//
// # Trace Propagation
//
// Dispatch has no context parameter, so the parent span travels in the
// action's Meta under the W3C "traceparent" key. InjectTrace writes it
// from a request context:
//
//	action.Meta = middleware.InjectTrace(r.Context(), action.Meta)
package middleware
