package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/parkgate/internal/metrics"
	"github.com/BrandonDHaskell/parkgate/internal/parkgate/service"
	"github.com/BrandonDHaskell/parkgate/internal/parkgate/store"
	"github.com/BrandonDHaskell/parkgate/internal/parkgate/types"
	"github.com/BrandonDHaskell/parkgate/internal/ratelimit"
	"github.com/BrandonDHaskell/parkgate/internal/wire"
)

// Dependencies wires the gateway.  Metrics and Limiter are optional.
type Dependencies struct {
	Logger           *zap.Logger
	Addr             string
	GateService      *service.GateService
	HeartbeatService *service.HeartbeatService
	Pinger           store.Pinger
	Metrics          *metrics.Metrics
	Limiter          ratelimit.Limiter
}

type Server struct {
	httpServer       *http.Server
	logger           *zap.Logger
	gateService      *service.GateService
	heartbeatService *service.HeartbeatService
	pinger           store.Pinger
	metrics          *metrics.Metrics
	limiter          ratelimit.Limiter
}

func NewServer(d Dependencies) *Server {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		logger:           logger,
		gateService:      d.GateService,
		heartbeatService: d.HeartbeatService,
		pinger:           d.Pinger,
		metrics:          d.Metrics,
		limiter:          d.Limiter,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger, d.Metrics))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	r.Route("/v1/readers/{reader_id}", func(r chi.Router) {
		r.With(s.rateLimitMiddleware).Post("/events", s.handleEvent)
		r.With(s.rateLimitMiddleware).Post("/heartbeat", s.handleHeartbeat)
	})

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// decodeJSON reads a single JSON object and rejects unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	readerID := chi.URLParam(r, "reader_id")
	useProto := isProtobuf(r)

	var req types.EventRequest
	if useProto {
		body, err := readBody(r)
		if err == nil {
			req, err = wire.UnmarshalEventRequest(body)
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_proto", "invalid protobuf body")
			return
		}
	} else if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	action := store.Action(strings.TrimSpace(req.Action))
	d, _, err := s.gateService.Decide(r.Context(), readerID, req.CardUID, action)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidReaderID):
			writeError(w, http.StatusBadRequest, "invalid_reader_id", err.Error())
		case errors.Is(err, service.ErrInvalidCardUID):
			writeError(w, http.StatusBadRequest, "invalid_card_uid", err.Error())
		case errors.Is(err, service.ErrInvalidAction):
			writeError(w, http.StatusBadRequest, "invalid_action", err.Error())
		case errors.Is(err, service.ErrReaderNotFound):
			writeError(w, http.StatusNotFound, "reader_not_found", "reader is not registered")
		case errors.Is(err, service.ErrTransient):
			s.logger.Warn("event deferred", zap.String("reader_id", readerID), zap.Error(err))
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusServiceUnavailable, "store_unavailable", "try again")
		default:
			s.logger.Error("event error", zap.String("reader_id", readerID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		}
		return
	}

	resp := eventResponse(d)
	if useProto {
		writeProto(w, http.StatusOK, wire.MarshalEventResponse(resp))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	readerID := chi.URLParam(r, "reader_id")
	useProto := isProtobuf(r)

	var req types.HeartbeatRequest
	if useProto {
		body, err := readBody(r)
		if err == nil {
			req, err = wire.UnmarshalHeartbeatRequest(body)
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_proto", "invalid protobuf body")
			return
		}
	} else if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		// An empty body is a valid "still alive".
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}
	if req.IP == "" {
		req.IP = clientIP(r)
	}

	resp, err := s.heartbeatService.Record(r.Context(), readerID, req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidReaderID):
			writeError(w, http.StatusBadRequest, "invalid_reader_id", err.Error())
		case errors.Is(err, service.ErrReaderNotFound):
			writeError(w, http.StatusNotFound, "reader_not_found", "reader is not registered")
		default:
			s.logger.Error("heartbeat error", zap.String("reader_id", readerID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		}
		return
	}

	if useProto {
		writeProto(w, http.StatusOK, wire.MarshalHeartbeatResponse(resp))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not_ready", "store unreachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: code, Message: msg})
}
