// Package server is the campusdesk application root: a chi HTTP API over
// the store and the toast notifier, and a WebSocket live feed.
//
// Routes:
//
//	GET    /healthz            liveness
//	GET    /metrics            Prometheus exposition
//	GET    /api/state          root state snapshot
//	POST   /api/dispatch       {type, payload, meta} -> dispatch
//	GET    /api/toasts         visible toasts
//	POST   /api/toasts         {type, message, durationMs} -> emit
//	DELETE /api/toasts/{id}    dismiss (idempotent)
//	GET    /ws                 live feed
//
// The live feed sends a "state" frame and a "campusdesk:toast" frame on
// connect, then one frame per store change and per toast list change.
//
// Every request runs inside the notifier's provider scope, so handlers
// reach the notifier with toast.FromContext.
package server
