// Package server exposes the engine over HTTP for headless use: a stats
// feed for overlays, playing controls and recording with .mid downloads.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"go-piano/debug"
	"go-piano/engine"
	"go-piano/keymap"
	"go-piano/performance"
	"go-piano/recorder"
	"go-piano/sound"
)

// MaxTakes is how many finished takes stay downloadable
const MaxTakes = 16

// StatusResponse is the body of GET /api/snapshot
type StatusResponse struct {
	Snapshot performance.Snapshot `json:"snapshot"`
	Stats    map[string]string    `json:"stats"`
	Layout   keymap.Layout        `json:"layout"`
	Program  sound.Program        `json:"program"`
	Volume   float64              `json:"volume"`
	Velocity int                  `json:"velocity"`
	Armed    bool                 `json:"armed"`
	Silent   bool                 `json:"silent"`

	// SustainHoldMS is 0 when sustained notes ring until the pedal lifts
	SustainHoldMS int64 `json:"sustain_hold_ms"`
}

// PerformanceRequest is the body of PUT /api/performance. Absent fields are
// left unchanged.
type PerformanceRequest struct {
	Velocity      *int           `json:"velocity,omitempty"`
	VelocityScale *float64       `json:"velocity_scale,omitempty"`
	Transpose     *int           `json:"transpose,omitempty"`
	Sustain       *bool          `json:"sustain,omitempty"`
	SustainHoldMS *int64         `json:"sustain_hold_ms,omitempty"`
	Volume        *float64       `json:"volume,omitempty"`
	Program       *sound.Program `json:"program,omitempty"`
}

// TakeResponse describes a finished take
type TakeResponse struct {
	ID         string    `json:"id"`
	Started    time.Time `json:"started"`
	DurationMS int64     `json:"duration_ms"`
	Notes      int       `json:"notes"`
	URL        string    `json:"url"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type Server struct {
	engine *engine.Engine
	log    *zap.Logger

	mu    sync.Mutex
	takes map[uuid.UUID]*recorder.Buffer
	order []uuid.UUID
}

func New(e *engine.Engine) *Server {
	return &Server{
		engine: e,
		log:    debug.L().Named("server"),
		takes:  make(map[uuid.UUID]*recorder.Buffer),
	}
}

// Handler returns the routes wrapped with CORS so browser overlays on other
// origins can poll the snapshot
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter().StrictSlash(true)
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/snapshot", s.handleSnapshot).Methods(http.MethodGet)
	api.HandleFunc("/recording", s.handleArm).Methods(http.MethodPost)
	api.HandleFunc("/recording", s.handleStop).Methods(http.MethodDelete)
	api.HandleFunc("/takes", s.handleTakes).Methods(http.MethodGet)
	api.HandleFunc("/takes/{id}.mid", s.handleExport).Methods(http.MethodGet)
	api.HandleFunc("/panic", s.handlePanic).Methods(http.MethodPost)
	api.HandleFunc("/performance", s.handlePerformance).Methods(http.MethodPut)

	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
	}).Handler(router)
}

// ListenAndServe serves until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info("listening", zap.String("addr", addr))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.statusResponse(s.engine.Status()))
}

func (s *Server) statusResponse(st engine.Status) StatusResponse {
	snap := s.engine.CurrentSnapshot()
	return StatusResponse{
		Snapshot:      snap,
		Stats:         snap.Stats(st.Volume),
		Layout:        st.Layout,
		Program:       st.Program,
		Volume:        st.Volume,
		Velocity:      st.Velocity,
		SustainHoldMS: st.SustainHold.Milliseconds(),
		Armed:         st.Armed,
		Silent:        st.Silent,
	}
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	var req PerformanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	change, err := req.change()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	st, err := s.engine.ApplyPerformance(r.Context(), change)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, s.statusResponse(st))
}

func (req PerformanceRequest) change() (engine.PerformanceChange, error) {
	c := engine.PerformanceChange{
		Velocity:      req.Velocity,
		VelocityScale: req.VelocityScale,
		Transpose:     req.Transpose,
		Sustain:       req.Sustain,
		Volume:        req.Volume,
		Program:       req.Program,
	}
	if v := req.Velocity; v != nil && (*v < 1 || *v > 127) {
		return c, fmt.Errorf("velocity %d out of range 1-127", *v)
	}
	if v := req.VelocityScale; v != nil && (*v <= 0 || *v > performance.MaxVelocityScale) {
		return c, fmt.Errorf("velocity_scale %g out of range (0, %g]", *v, performance.MaxVelocityScale)
	}
	if v := req.Volume; v != nil && (*v < 0 || *v > 1) {
		return c, fmt.Errorf("volume %g out of range 0-1", *v)
	}
	if ms := req.SustainHoldMS; ms != nil {
		if *ms < 0 {
			return c, fmt.Errorf("sustain_hold_ms %d is negative", *ms)
		}
		hold := time.Duration(*ms) * time.Millisecond
		c.SustainHold = &hold
	}
	return c, nil
}

func (s *Server) handleArm(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Arm(); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"armed": true})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	// a client hanging up must not throw the take away
	buf, err := s.engine.StopRecording(context.WithoutCancel(r.Context()))
	switch {
	case errors.Is(err, recorder.ErrNotArmed):
		writeError(w, http.StatusConflict, err)
		return
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	s.keep(buf)
	s.log.Info("take finished", zap.Stringer("id", buf.ID), zap.Int("notes", buf.Notes()))
	writeJSON(w, http.StatusOK, takeResponse(buf))
}

func (s *Server) handleTakes(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	res := make([]TakeResponse, 0, len(s.order))
	for _, id := range s.order {
		res = append(res, takeResponse(s.takes[id]))
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.mu.Lock()
	buf := s.takes[id]
	s.mu.Unlock()
	if buf == nil {
		writeError(w, http.StatusNotFound, errors.New("no such take"))
		return
	}

	w.Header().Set("Content-Type", "audio/midi")
	w.Header().Set("Content-Disposition", `attachment; filename="`+buf.FileName()+`"`)
	if err := s.engine.Export(buf, w); err != nil {
		// headers are out; the client sees a truncated body
		s.log.Error("export", zap.Stringer("id", id), zap.Error(err))
	}
}

func (s *Server) handlePanic(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.AllNotesOff(); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// keep stores a take, evicting the oldest past MaxTakes
func (s *Server) keep(buf *recorder.Buffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.takes[buf.ID] = buf
	s.order = append(s.order, buf.ID)
	for len(s.order) > MaxTakes {
		delete(s.takes, s.order[0])
		s.order = s.order[1:]
	}
}

func takeResponse(buf *recorder.Buffer) TakeResponse {
	return TakeResponse{
		ID:         buf.ID.String(),
		Started:    buf.Started,
		DurationMS: buf.Duration / 1000,
		Notes:      buf.Notes(),
		URL:        "/api/takes/" + buf.ID.String() + ".mid",
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorResponse{Error: err.Error()})
}
