package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/muurk/myhome/internal/engine"
	"github.com/muurk/myhome/internal/openwebnet"
)

const maxBodySize = 1 << 12

type errorResponse struct {
	Error  string `json:"error"`
	Result string `json:"result,omitempty"`
}

type zoneResponse struct {
	Zone   string             `json:"zone"`
	Record *engine.ZoneRecord `json:"record"`
	Result string             `json:"result"`
}

type setPointRequest struct {
	Celsius *float64 `json:"celsius"`
}

type modeRequest struct {
	Mode string `json:"mode"`
}

type rawRequest struct {
	Frame string `json:"frame"`
}

type rawResponse struct {
	Frames []string `json:"frames"`
	Result string   `json:"result"`
}

type scanResponse struct {
	Filter  string   `json:"filter"`
	Devices []uint64 `json:"devices"`
}

type healthResponse struct {
	Status     string     `json:"status"`
	Monitoring bool       `json:"monitoring"`
	LastEvent  *time.Time `json:"last_event,omitempty"`
	Clients    int        `json:"ws_clients"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps gateway and validation errors to HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadGateway
	resp := errorResponse{Error: err.Error()}

	switch {
	case errors.Is(err, engine.ErrInvalidZone),
		errors.Is(err, engine.ErrInvalidTemperature),
		errors.Is(err, engine.ErrUnknownMode):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrNack):
		status = http.StatusConflict
		resp.Result = engine.ResultNack.String()
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	if status >= http.StatusInternalServerError {
		s.log.Warn("Gateway request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, status, resp)
}

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.config.RequestTimeout)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	resp := healthResponse{Status: "ok", Monitoring: s.monitoring, Clients: s.hub.count()}
	if !s.lastEvent.IsZero() {
		t := s.lastEvent
		resp.LastEvent = &t
	}
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleZones(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	zones := s.zones.Clone()
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, zones)
}

func (s *Server) handleZoneStatus(w http.ResponseWriter, r *http.Request) {
	zone := chi.URLParam(r, "zone")
	ctx, cancel := s.requestContext(r)
	defer cancel()

	status, err := s.ctrl.Status(ctx, zone)
	result := engine.ResultAck
	if errors.Is(err, engine.ErrNack) {
		result = engine.ResultNack
	} else if err != nil {
		s.writeError(w, r, err)
		return
	}

	rec := status[zone]
	if rec == nil {
		rec = &engine.ZoneRecord{}
	}
	writeJSON(w, http.StatusOK, zoneResponse{Zone: zone, Record: rec, Result: result.String()})
}

func (s *Server) handleSetPoint(w http.ResponseWriter, r *http.Request) {
	var req setPointRequest
	if err := decodeBody(r, &req); err != nil || req.Celsius == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: `body must be {"celsius": <number>}`})
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	if err := s.ctrl.SetTemperature(ctx, chi.URLParam(r, "zone"), *req.Celsius); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := decodeBody(r, &req); err != nil || req.Mode == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: `body must be {"mode": "off"|"antifreeze"|"auto"}`})
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	if err := s.ctrl.SetMode(ctx, chi.URLParam(r, "zone"), req.Mode); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	filter, err := engine.ParseScanFilter(r.URL.Query().Get("filter"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	ids, err := s.ctrl.Scan(ctx, filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if ids == nil {
		ids = []uint64{}
	}
	writeJSON(w, http.StatusOK, scanResponse{Filter: filter.String(), Devices: ids})
}

func (s *Server) handleRaw(w http.ResponseWriter, r *http.Request) {
	var req rawRequest
	if err := decodeBody(r, &req); err != nil || !validFrame(req.Frame) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: `body must be {"frame": "*...##"}`})
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	frames, result, err := s.ctrl.Raw(ctx, req.Frame)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if frames == nil {
		frames = []string{}
	}
	writeJSON(w, http.StatusOK, rawResponse{Frames: frames, Result: result.String()})
}

// validFrame accepts exactly one complete frame.
func validFrame(s string) bool {
	frames, rest := openwebnet.SplitFrames(s)
	return len(frames) == 1 && frames[0] == s && rest == ""
}
