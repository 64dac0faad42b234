package rpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/sigp/eleel/internal/elog"
	"github.com/sigp/eleel/internal/enginetypes"
)

// maxBodyBytes bounds request size, mapped to ErrTooLargeRequest.
const maxBodyBytes = 8 << 20

// Server serves the two Engine-API HTTP surfaces: "/canonical" for the
// controller consensus client, "/" for every follower, plus "/health".
type Server struct {
	Dispatcher      *Dispatcher
	ControllerAuth  *ControllerAuth
	ClientAuth      *ClientAuth
	Logger          *elog.Logger
}

// Handler builds the root http.Handler for this server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/canonical", s.ControllerAuth.Middleware(s.logged(s.jsonRPCHandler(true))))

	clientHandler := s.ClientAuth.Middleware(s.logged(s.jsonRPCHandler(false)))
	mux.Handle("/", cors.Default().Handler(clientHandler))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func (s *Server) logged(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next(w, r)
		s.Logger.Debug("http request", "path", r.URL.Path, "duration", time.Since(start))
	}
}

func (s *Server) jsonRPCHandler(isController bool) http.HandlerFunc {
	endpoint := "client"
	if isController {
		endpoint = "controller"
	}

	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		w.Header().Set("Content-Type", "application/json")

		var raw json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeResponse(w, enginetypes.NewErrorResponse(nil, enginetypes.Code(enginetypes.ErrTooLargeRequest), enginetypes.ErrTooLargeRequest.Error()))
				return
			}
			writeResponse(w, enginetypes.NewErrorResponse(nil, enginetypes.ParseErrorCode, "parse error"))
			return
		}

		if isBatch(raw) {
			if isController {
				writeResponse(w, enginetypes.NewErrorResponse(nil, enginetypes.InvalidRequestCode, "batch requests are not supported on the controller endpoint"))
				return
			}
			var reqs []enginetypes.Request
			if err := json.Unmarshal(raw, &reqs); err != nil {
				writeResponse(w, enginetypes.NewErrorResponse(nil, enginetypes.ParseErrorCode, "parse error"))
				return
			}
			responses := make([]*enginetypes.Response, 0, len(reqs))
			for _, req := range reqs {
				responses = append(responses, s.handleOne(r.Context(), isController, endpoint, req))
			}
			writeResponse(w, responses)
			return
		}

		var req enginetypes.Request
		if err := json.Unmarshal(raw, &req); err != nil {
			writeResponse(w, enginetypes.NewErrorResponse(nil, enginetypes.ParseErrorCode, "parse error"))
			return
		}
		writeResponse(w, s.handleOne(r.Context(), isController, endpoint, req))
	}
}

func (s *Server) handleOne(ctx context.Context, isController bool, endpoint string, req enginetypes.Request) *enginetypes.Response {
	if req.JSONRPC != "2.0" || req.Method == "" {
		return enginetypes.NewErrorResponse(req.ID, enginetypes.InvalidRequestCode, "invalid request")
	}

	start := time.Now()
	result, err := s.Dispatcher.Dispatch(ctx, isController, req.Method, req.Params)
	if s.Dispatcher.Metrics != nil {
		s.Dispatcher.Metrics.DispatchTotal.WithLabelValues(req.Method, endpoint).Inc()
		s.Dispatcher.Metrics.DispatchTime.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
		if err != nil {
			s.Dispatcher.Metrics.DispatchErrors.WithLabelValues(req.Method, endpoint).Inc()
		}
	}
	if err != nil {
		if rpcErr, ok := err.(*enginetypes.RPCError); ok {
			return enginetypes.NewErrorResponse(req.ID, rpcErr.Code, rpcErr.Message)
		}
		return enginetypes.NewErrorResponse(req.ID, enginetypes.Code(err), err.Error())
	}
	return enginetypes.NewResultResponse(req.ID, result)
}

func isBatch(raw json.RawMessage) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '[':
			return true
		default:
			return false
		}
	}
	return false
}

func writeResponse(w http.ResponseWriter, v any) {
	_ = json.NewEncoder(w).Encode(v)
}
