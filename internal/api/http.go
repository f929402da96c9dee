// Package api exposes the HTTP control surface: device pool, track library,
// simulation control and the WebSocket status stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/omnihq/omnilocation-go/internal/device"
	"github.com/omnihq/omnilocation-go/internal/history"
	"github.com/omnihq/omnilocation-go/internal/sim"
	"github.com/omnihq/omnilocation-go/internal/track"
	"github.com/omnihq/omnilocation-go/pkg/gpx"
)

// Server wires the engine, the device pool and the track library into an
// HTTP API.
type Server struct {
	session  *sim.Session
	devices  *device.Registry
	tracks   *track.Library
	history  history.Store
	streamer *StatusStreamer
	mux      *http.ServeMux
}

// NewServer creates the HTTP server with all handlers registered. The history
// store may be nil when recording is disabled.
func NewServer(session *sim.Session, devices *device.Registry, tracks *track.Library, hist history.Store, streamer *StatusStreamer) *Server {
	s := &Server{
		session:  session,
		devices:  devices,
		tracks:   tracks,
		history:  hist,
		streamer: streamer,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

// Handler returns the underlying mux, mainly for tests.
func (s *Server) Handler() http.Handler { return s.mux }

// Listen runs the server and blocks until the context is canceled.
func (s *Server) Listen(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	apiRoutes := []struct {
		path    string
		handler http.Handler
	}{
		{"/api/v1/devices", http.HandlerFunc(s.handleDevices)},
		{"/api/v1/devices/rename", http.HandlerFunc(s.handleDeviceRename)},
		{"/api/v1/tracks", http.HandlerFunc(s.handleTracks)},
		{"/api/v1/tracks/details", http.HandlerFunc(s.handleTrackDetails)},
		{"/api/v1/tracks/delete", http.HandlerFunc(s.handleTrackDelete)},
		{"/api/v1/sim/start", http.HandlerFunc(s.handleStart)},
		{"/api/v1/sim/pause", s.wrapSimpleWithLog("pause", s.session.Pause)},
		{"/api/v1/sim/resume", s.wrapSimpleWithLog("resume", s.session.Resume)},
		{"/api/v1/sim/reset", s.wrapSimpleWithLog("reset", s.session.Reset)},
		{"/api/v1/sim/status", http.HandlerFunc(s.handleStatus)},
		{"/api/v1/history", http.HandlerFunc(s.handleHistory)},
		{"/api/v1/ws/status", http.HandlerFunc(s.handleWSStatus)},
	}
	for _, route := range apiRoutes {
		s.mux.Handle(route.path, s.withCORS(route.handler))
	}
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": s.devices.List(),
	})
}

func (s *Server) handleDeviceRename(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req renameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.UDID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("udid is required"))
		return
	}
	log.Printf("[http] rename device %s -> %q", req.UDID, req.Name)
	dev, err := s.devices.Rename(r.Context(), req.UDID, req.Name)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

func (s *Server) handleTracks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		infos, err := s.tracks.List()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tracks": infos})
	case http.MethodPost:
		if err := r.ParseMultipartForm(8 << 20); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid multipart form: %w", err))
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("file field is required: %w", err))
			return
		}
		defer file.Close()
		name, err := s.tracks.Save(header.Filename, file)
		if err != nil {
			writeError(w, errorStatus(err), err)
			return
		}
		log.Printf("[http] uploaded track %s (%d bytes)", name, header.Size)
		writeJSON(w, http.StatusCreated, map[string]string{"name": name})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleTrackDetails(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("name query parameter is required"))
		return
	}
	det, err := s.tracks.Details(name)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, det)
}

func (s *Server) handleTrackDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req deleteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	log.Printf("[http] delete track %s", req.Name)
	if err := s.tracks.Delete(req.Name); err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req startRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Track == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("track is required"))
		return
	}

	route, err := s.tracks.Load(req.Track)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	sinks, err := s.devices.SinksFor(req.Devices)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	if s.history != nil {
		for id, sink := range sinks {
			sinks[id] = &history.RecordingSink{
				DeviceID: id,
				Inner:    sink,
				Store:    s.history,
				Session:  func() string { return s.session.Snapshot().SessionID },
			}
		}
	}

	target := time.Duration(req.TargetDurationS * float64(time.Second))
	log.Printf("[http] sim start track=%s devices=%d loop=%t speed=%.2f target=%s",
		req.Track, len(sinks), req.Loop, req.Speed, target)
	err = s.session.Start(sim.StartRequest{
		Route:          route,
		Sinks:          sinks,
		Loop:           req.Loop,
		Speed:          req.Speed,
		TargetDuration: target,
	})
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("history recording is disabled"))
		return
	}
	q := history.Query{
		SessionID: r.URL.Query().Get("session"),
		DeviceID:  r.URL.Query().Get("device"),
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid from: %w", err))
			return
		}
		q.From = ts
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid to: %w", err))
			return
		}
		q.To = ts
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit: %q", raw))
			return
		}
		q.Limit = n
	}

	fixes, err := s.history.Recent(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if fixes == nil {
		fixes = []history.Fix{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"fixes": fixes})
}

func (s *Server) handleWSStatus(w http.ResponseWriter, r *http.Request) {
	if s.streamer == nil {
		http.Error(w, "websocket streamer not configured", http.StatusServiceUnavailable)
		return
	}
	s.streamer.ServeWS(w, r)
}

func (s *Server) wrapSimpleWithLog(label string, fn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		log.Printf("[http] command %s", label)
		if err := fn(); err != nil {
			writeError(w, errorStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, s.session.Snapshot())
	}
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// errorStatus maps the control-surface error taxonomy to HTTP status codes:
// conflicts for wrong-state commands, 400 for validation, 404 for unknown
// resources.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, sim.ErrAlreadyRunning), errors.Is(err, sim.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, track.ErrNotFound), errors.Is(err, device.ErrUnknownDevice):
		return http.StatusNotFound
	case errors.Is(err, sim.ErrNoDevices),
		errors.Is(err, sim.ErrNoRoute),
		errors.Is(err, sim.ErrInvalidSpeed),
		errors.Is(err, sim.ErrInvalidDuration),
		errors.Is(err, track.ErrInvalidName),
		errors.Is(err, gpx.ErrEmptyRoute),
		errors.Is(err, gpx.ErrMissingCoordinate),
		errors.Is(err, gpx.ErrCoordinateRange):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

type startRequest struct {
	Track           string   `json:"track"`
	Devices         []string `json:"devices,omitempty"`
	Loop            bool     `json:"loop,omitempty"`
	Speed           float64  `json:"speed_multiplier,omitempty"`
	TargetDurationS float64  `json:"target_duration_s,omitempty"`
}

type renameRequest struct {
	UDID string `json:"udid"`
	Name string `json:"name"`
}

type deleteRequest struct {
	Name string `json:"name"`
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":   http.StatusText(code),
		"message": err.Error(),
		"status":  code,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
