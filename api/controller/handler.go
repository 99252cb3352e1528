// Package controller exposes the running control loop over HTTP: status,
// recent decisions, the policy table and runtime mode changes.
package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kilianp07/bmsctl/core/control"
	"github.com/kilianp07/bmsctl/core/model"
)

// DefaultLimit is the number of decisions returned when no limit is given.
const DefaultLimit = 100

// Controller is the part of the loop the API reads and drives.
type Controller interface {
	Status() control.Status
	History(n int) []model.TickRecord
	SetMode(m model.Mode) error
}

// ModeTable lists the configured parameter rows.
type ModeTable interface {
	Modes() []model.Mode
	Get(m model.Mode) (model.ModeParams, error)
}

// ModeRow is one entry of GET /api/modes.
type ModeRow struct {
	Mode model.Mode `json:"mode"`
	model.ModeParams
	Active bool `json:"active"`
}

// ModeRequest is the body of POST /api/mode.
type ModeRequest struct {
	Mode string `json:"mode"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Handler serves the status API.
type Handler struct {
	ctrl     Controller
	table    ModeTable
	maxLimit int
}

// NewHandler returns a handler; maxLimit caps ?limit on /api/decisions, 0
// leaves it uncapped.
func NewHandler(ctrl Controller, table ModeTable, maxLimit int) *Handler {
	return &Handler{ctrl: ctrl, table: table, maxLimit: maxLimit}
}

// NewRouter registers every route, including /metrics.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.HandleFunc("/api/status", h.status).Methods(http.MethodGet)
	r.HandleFunc("/api/decisions", h.decisions).Methods(http.MethodGet)
	r.HandleFunc("/api/modes", h.modes).Methods(http.MethodGet)
	r.HandleFunc("/api/mode", h.setMode).Methods(http.MethodPost)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorBody{Error: msg})
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	st := h.ctrl.Status()
	body := map[string]string{"status": "ok", "state": st.State.String()}
	if st.State == control.StateStopped {
		body["status"] = "stopped"
		if st.LastError != "" {
			body["error"] = st.LastError
		}
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.Status())
}

func (h *Handler) decisions(w http.ResponseWriter, r *http.Request) {
	limit := DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if h.maxLimit > 0 && limit > h.maxLimit {
		limit = h.maxLimit
	}
	recs := h.ctrl.History(limit)
	if recs == nil {
		recs = []model.TickRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *Handler) modes(w http.ResponseWriter, _ *http.Request) {
	current := h.ctrl.Status().Mode
	rows := make([]ModeRow, 0, len(h.table.Modes()))
	for _, m := range h.table.Modes() {
		p, err := h.table.Get(m)
		if err != nil {
			continue
		}
		rows = append(rows, ModeRow{Mode: m, ModeParams: p, Active: m == current})
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *Handler) setMode(w http.ResponseWriter, r *http.Request) {
	var req ModeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	m, err := model.ParseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.ctrl.SetMode(m); err != nil {
		switch {
		case errors.Is(err, model.ErrInvalidState):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, model.ErrUnknownMode), errors.Is(err, model.ErrMissingCustomParams):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, h.ctrl.Status())
}
