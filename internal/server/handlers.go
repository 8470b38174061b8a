package server

import (
	"bytes"
	"errors"
	"net/http"
	"time"

	"github.com/chrissnell/phenology/internal/chart"
	"github.com/chrissnell/phenology/internal/export"
	"github.com/chrissnell/phenology/internal/log"
	"github.com/chrissnell/phenology/internal/observations"
	"github.com/chrissnell/phenology/internal/phenology"
	"github.com/chrissnell/phenology/internal/storage"
	"github.com/chrissnell/phenology/pkg/config"
	"github.com/chrissnell/phenology/pkg/responseformat"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// Handlers contains all HTTP handlers for the REST server
type Handlers struct {
	controller *Controller
	formatter  *responseformat.Formatter
}

// NewHandlers creates a new handlers instance
func NewHandlers(ctrl *Controller) *Handlers {
	return &Handlers{
		controller: ctrl,
		formatter:  responseformat.NewFormatter(),
	}
}

// current returns the published analysis or writes a 503
func (h *Handlers) current(w http.ResponseWriter, req *http.Request) *phenology.Analysis {
	a := h.controller.Analysis()
	if a == nil {
		h.writeError(w, req, http.StatusServiceUnavailable, "no analysis available yet")
	}
	return a
}

func (h *Handlers) write(w http.ResponseWriter, req *http.Request, data any) {
	if err := h.formatter.WriteResponse(w, req, data, nil); err != nil {
		log.Errorf("error encoding response: %v", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, req *http.Request, status int, message string) {
	if err := h.formatter.WriteError(w, req, status, message); err != nil {
		log.Errorf("error encoding error response: %v", err)
	}
}

// GetSeries returns the daily series, optionally limited by ?from= and ?to= dates
func (h *Handlers) GetSeries(w http.ResponseWriter, req *http.Request) {
	a := h.current(w, req)
	if a == nil {
		return
	}

	from, to, err := dateRange(req, a.Season)
	if err != nil {
		h.writeError(w, req, http.StatusBadRequest, err.Error())
		return
	}

	series := make([]phenology.DailyPoint, 0, len(a.Series))
	for _, p := range a.Series {
		if !p.Date.Before(from) && !p.Date.After(to) {
			series = append(series, p)
		}
	}
	h.write(w, req, series)
}

func dateRange(req *http.Request, season phenology.Season) (time.Time, time.Time, error) {
	from, to := season.Start, season.End
	q := req.URL.Query()
	if s := q.Get("from"); s != "" {
		t, err := config.ParseDate(s)
		if err != nil {
			return from, to, err
		}
		from = t
	}
	if s := q.Get("to"); s != "" {
		t, err := config.ParseDate(s)
		if err != nil {
			return from, to, err
		}
		to = t
	}
	return from, to, nil
}

type stagesResponse struct {
	Timeline   []export.StageEntry      `json:"timeline"`
	Statistics []phenology.StageSummary `json:"statistics"`
}

// GetStages returns the stage timeline and per-stage means
func (h *Handlers) GetStages(w http.ResponseWriter, req *http.Request) {
	a := h.current(w, req)
	if a == nil {
		return
	}
	h.write(w, req, stagesResponse{
		Timeline:   export.StageTimeline(a),
		Statistics: phenology.StageStatistics(a.Series),
	})
}

// GetParameters returns the normalization parameters, 404 when normalization is disabled
func (h *Handlers) GetParameters(w http.ResponseWriter, req *http.Request) {
	a := h.current(w, req)
	if a == nil {
		return
	}
	if a.Parameters == nil {
		h.writeError(w, req, http.StatusNotFound, "normalization is disabled for this analysis")
		return
	}
	h.write(w, req, a.Parameters)
}

// GetObservations returns the observations the analysis was built from, optionally
// limited by ?from= and ?to= dates
func (h *Handlers) GetObservations(w http.ResponseWriter, req *http.Request) {
	a := h.current(w, req)
	if a == nil {
		return
	}
	if req.URL.Query().Get("from") == "" && req.URL.Query().Get("to") == "" {
		h.write(w, req, a.Observations)
		return
	}

	from, to, err := dateRange(req, a.Season)
	if err != nil {
		h.writeError(w, req, http.StatusBadRequest, err.Error())
		return
	}
	obs := observations.Window(a.Observations, from, to)
	if obs == nil {
		obs = []phenology.Observation{}
	}
	h.write(w, req, obs)
}

// GetPeak returns the peak summary
func (h *Handlers) GetPeak(w http.ResponseWriter, req *http.Request) {
	a := h.current(w, req)
	if a == nil {
		return
	}
	h.write(w, req, export.NewDocument(a).Peak)
}

// GetChartPNG renders the static chart
func (h *Handlers) GetChartPNG(w http.ResponseWriter, req *http.Request) {
	a := h.current(w, req)
	if a == nil {
		return
	}
	var buf bytes.Buffer
	if err := chart.WritePNG(&buf, a); err != nil {
		h.writeError(w, req, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(buf.Bytes())
}

// GetChartHTML renders the interactive chart
func (h *Handlers) GetChartHTML(w http.ResponseWriter, req *http.Request) {
	a := h.current(w, req)
	if a == nil {
		return
	}
	var buf bytes.Buffer
	if err := chart.WriteHTML(&buf, a); err != nil {
		h.writeError(w, req, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

type healthResponse struct {
	Status   string                    `json:"status"`
	Analysis bool                      `json:"analysis_available"`
	Storage  map[string]storage.Health `json:"storage,omitempty"`
}

// GetHealth reports server and storage backend health
func (h *Handlers) GetHealth(w http.ResponseWriter, req *http.Request) {
	resp := healthResponse{Status: storage.StatusHealthy, Analysis: h.controller.Analysis() != nil}
	if h.controller.health != nil {
		resp.Storage = h.controller.health.GetAllHealth()
		for _, s := range resp.Storage {
			if s.Status != storage.StatusHealthy {
				resp.Status = storage.StatusUnhealthy
			}
		}
	}
	status := http.StatusOK
	if resp.Status != storage.StatusHealthy {
		status = http.StatusServiceUnavailable
	}
	if err := h.formatter.WriteStatus(w, req, status, resp); err != nil {
		log.Errorf("error encoding response: %v", err)
	}
}

// ListRuns returns the stored runs of a field, newest first
func (h *Handlers) ListRuns(w http.ResponseWriter, req *http.Request) {
	field := mux.Vars(req)["field"]
	runs, err := h.controller.store.ListRuns(req.Context(), field)
	if err != nil {
		log.Errorf("error listing runs for %s: %v", field, err)
		h.writeError(w, req, http.StatusInternalServerError, "could not list runs")
		return
	}
	if runs == nil {
		runs = []storage.Run{}
	}
	h.write(w, req, runs)
}

// GetRun returns one stored run with its daily series
func (h *Handlers) GetRun(w http.ResponseWriter, req *http.Request) {
	id, err := uuid.Parse(mux.Vars(req)["id"])
	if err != nil {
		h.writeError(w, req, http.StatusBadRequest, "invalid run id")
		return
	}
	run, err := h.controller.store.LoadRun(req.Context(), id)
	if errors.Is(err, storage.ErrRunNotFound) {
		h.writeError(w, req, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		log.Errorf("error loading run %s: %v", id, err)
		h.writeError(w, req, http.StatusInternalServerError, "could not load run")
		return
	}
	h.write(w, req, run)
}
