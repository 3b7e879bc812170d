package middleware

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/vango-dev/campusdesk/pkg/store"
)

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	reject := func(store.API) func(next store.Dispatcher) store.Dispatcher {
		return func(next store.Dispatcher) store.Dispatcher {
			return func(a store.Action) (store.Action, error) {
				if a.Type == "count/reject" {
					return a, errors.New("rejected")
				}
				return next(a)
			}
		}
	}
	st := counterStore(t, Logger(logger), reject)

	st.Dispatch(store.Action{Type: "count/inc"})
	st.Dispatch(store.Action{Type: "count/reject"})

	out := buf.String()
	if !strings.Contains(out, `level=DEBUG msg="action dispatched" action=count/inc`) {
		t.Errorf("missing debug line:\n%s", out)
	}
	if !strings.Contains(out, `level=ERROR msg="dispatch failed" action=count/reject error=rejected`) {
		t.Errorf("missing error line:\n%s", out)
	}
}
