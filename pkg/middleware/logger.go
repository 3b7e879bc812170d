package middleware

import (
	"log/slog"
	"time"

	"github.com/vango-dev/campusdesk/pkg/store"
)

// Logger creates store middleware that logs every dispatch at debug level
// and failed dispatches at error level.
func Logger(logger *slog.Logger) store.Middleware {
	if logger == nil {
		logger = slog.Default().With("component", "dispatch")
	}
	return func(store.API) func(next store.Dispatcher) store.Dispatcher {
		return func(next store.Dispatcher) store.Dispatcher {
			return func(action store.Action) (store.Action, error) {
				start := time.Now()
				out, err := next(action)
				if err != nil {
					logger.Error("dispatch failed",
						"action", action.Type,
						"error", err)
					return out, err
				}
				logger.Debug("action dispatched",
					"action", action.Type,
					"duration", time.Since(start))
				return out, nil
			}
		}
	}
}
