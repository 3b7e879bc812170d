package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/vango-dev/campusdesk/internal/errors"
	"github.com/vango-dev/campusdesk/pkg/middleware"
	"github.com/vango-dev/campusdesk/pkg/store"
	"github.com/vango-dev/campusdesk/pkg/toast"
)

// ErrorBody is the JSON error response.
type ErrorBody struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// DispatchRequest is the body of POST /api/dispatch.
type DispatchRequest struct {
	Type    string         `json:"type"`
	Payload any            `json:"payload,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// DispatchResponse is the reply to POST /api/dispatch.
type DispatchResponse struct {
	Type  string      `json:"type"`
	State store.State `json:"state"`
}

// ToastRequest is the body of POST /api/toasts. DurationMs is optional;
// the notifier default applies when it is absent.
type ToastRequest struct {
	Type       toast.Type `json:"type"`
	Message    string     `json:"message"`
	DurationMs *int64     `json:"durationMs,omitempty"`
}

// ToastResponse is the reply to POST /api/toasts.
type ToastResponse struct {
	ID string `json:"id"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	body := ErrorBody{Message: err.Error()}
	if ce, ok := err.(*errors.CampusError); ok {
		body = ErrorBody{Code: ce.Code, Message: ce.Message, Detail: ce.Detail}
	}
	writeJSON(w, status, body)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return errors.New("E061").WithDetail(err.Error())
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"slices":  s.store.Keys(),
		"toasts":  s.notifier.Len(),
		"clients": s.hub.count(),
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.GetState())
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req DispatchRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Type) == "" {
		writeError(w, http.StatusBadRequest, errors.New("E012"))
		return
	}

	action := store.Action{
		Type:    req.Type,
		Payload: req.Payload,
		Meta:    middleware.InjectTrace(r.Context(), req.Meta),
	}
	out, err := s.store.Dispatch(action)
	if err != nil {
		s.logger.Error("dispatch failed", "action", req.Type, "error", err)
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, DispatchResponse{Type: out.Type, State: s.store.GetState()})
}

func (s *Server) handleListToasts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toastFrame(s.notifier.List()).Toasts)
}

func (s *Server) handleEmitToast(w http.ResponseWriter, r *http.Request) {
	var req ToastRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, errors.New("E061").WithDetail("message is required"))
		return
	}
	if req.Type == "" {
		req.Type = toast.TypeInfo
	}
	if !req.Type.Valid() {
		writeError(w, http.StatusBadRequest, errors.New("E061").WithDetail("type must be success, error or info"))
		return
	}

	var duration []time.Duration
	if req.DurationMs != nil {
		duration = append(duration, time.Duration(*req.DurationMs)*time.Millisecond)
	}

	ctx := r.Context()
	if _, err := toast.Use(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	var id string
	switch req.Type {
	case toast.TypeSuccess:
		id = toast.Success(ctx, req.Message, duration...)
	case toast.TypeError:
		id = toast.Error(ctx, req.Message, duration...)
	default:
		id = toast.Info(ctx, req.Message, duration...)
	}
	writeJSON(w, http.StatusCreated, ToastResponse{ID: id})
}

func (s *Server) handleDismissToast(w http.ResponseWriter, r *http.Request) {
	s.notifier.Remove(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("live-feed upgrade failed", "error", errors.New("E060").Wrap(err))
		middleware.RecordWebSocketError("upgrade")
		return
	}

	buffer := s.config.SendBuffer
	if buffer < 2 {
		buffer = 2
	}
	c := &client{
		conn: conn,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}

	joined := s.hub.join(c, func() [][]byte {
		return [][]byte{
			encodeFrame(s.stateFrame()),
			encodeFrame(toastFrame(s.notifier.List())),
		}
	})
	if !joined {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"),
			time.Now().Add(s.config.WriteWait))
		conn.Close()
		return
	}
	defer s.hub.leave(c)

	s.logger.Debug("live-feed client connected", "remote", r.RemoteAddr)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(c)
	}()
	s.readLoop(c)
	<-writerDone

	s.logger.Debug("live-feed client disconnected", "remote", r.RemoteAddr)
}
