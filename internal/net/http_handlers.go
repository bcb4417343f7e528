// Package net exposes the timeline over HTTP and WebSocket: status and
// preview reads, rewind and freeze commands, and a push feed for observers.
package net

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	nethttp "net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"rewind/server/internal/observability"
	"rewind/server/internal/plan"
	"rewind/server/internal/timeline"
)

// ProtocolVersion tags every WebSocket payload.
const ProtocolVersion = 1

// Timeline is the controller surface the handlers need.
type Timeline interface {
	Status() timeline.Status
	Preview(seconds int) (plan.Summary, error)
	Rewind(ctx context.Context, seconds int) (timeline.RewindResult, error)
	Freeze(ctx context.Context)
	Unfreeze(ctx context.Context)
	Clear(ctx context.Context)
}

type HTTPHandlerConfig struct {
	Logger        *log.Logger
	Observability observability.Config
}

type rewindRequest struct {
	Seconds int `json:"seconds"`
}

// NewHTTPHandler builds the full route table over the given timeline.
func NewHTTPHandler(tl Timeline, hub *Hub, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/status", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		payload := struct {
			ServerTime int64           `json:"serverTime"`
			Timeline   timeline.Status `json:"timeline"`
		}{
			ServerTime: time.Now().UnixMilli(),
			Timeline:   tl.Status(),
		}
		writeJSON(w, payload)
	})

	mux.HandleFunc("/preview", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		seconds, err := strconv.Atoi(r.URL.Query().Get("seconds"))
		if err != nil {
			httpError(w, "invalid seconds", nethttp.StatusBadRequest)
			return
		}
		summary, err := tl.Preview(seconds)
		if err != nil {
			httpError(w, err.Error(), previewStatusCode(err))
			return
		}
		writeJSON(w, summary)
	})

	mux.HandleFunc("/rewind", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		var req rewindRequest
		if r.Body != nil {
			defer r.Body.Close()
			decoder := json.NewDecoder(r.Body)
			if err := decoder.Decode(&req); err != nil && err != io.EOF {
				httpError(w, "invalid payload", nethttp.StatusBadRequest)
				return
			}
		}
		result, err := tl.Rewind(r.Context(), req.Seconds)
		if err != nil && !errors.Is(err, timeline.ErrApplyFault) {
			httpError(w, err.Error(), rewindStatusCode(err))
			return
		}
		writeJSON(w, result)
	})

	mux.HandleFunc("/freeze", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		tl.Freeze(r.Context())
		writeJSON(w, tl.Status())
	})

	mux.HandleFunc("/unfreeze", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		tl.Unfreeze(r.Context())
		writeJSON(w, tl.Status())
	})

	mux.HandleFunc("/clear", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		tl.Clear(r.Context())
		writeJSON(w, tl.Status())
	})

	if hub != nil {
		mux.HandleFunc("/ws", hub.HandleUpgrade(tl, logger))
	}

	if cfg.Observability.EnablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
		logger.Printf("pprof handlers enabled under /debug/pprof/")
	}

	return mux
}

func previewStatusCode(err error) int {
	switch {
	case errors.Is(err, timeline.ErrInvalidWindow), errors.Is(err, timeline.ErrWindowTooLarge):
		return nethttp.StatusBadRequest
	case errors.Is(err, timeline.ErrNoHistory):
		return nethttp.StatusNotFound
	case errors.Is(err, timeline.ErrRewindInProgress):
		return nethttp.StatusConflict
	default:
		return nethttp.StatusInternalServerError
	}
}

func rewindStatusCode(err error) int {
	switch {
	case errors.Is(err, timeline.ErrInvalidWindow), errors.Is(err, timeline.ErrWindowTooLarge):
		return nethttp.StatusBadRequest
	case errors.Is(err, timeline.ErrNoHistory):
		return nethttp.StatusNotFound
	case errors.Is(err, timeline.ErrRewindInProgress):
		return nethttp.StatusConflict
	case errors.Is(err, timeline.ErrClosed):
		return nethttp.StatusServiceUnavailable
	default:
		return nethttp.StatusInternalServerError
	}
}

func writeJSON(w nethttp.ResponseWriter, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		httpError(w, "failed to encode", nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}
