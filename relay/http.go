package relay

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/sosrelay/delivery"
	"github.com/hazyhaar/sosrelay/journal"
	"github.com/hazyhaar/sosrelay/shield"
)

type alertRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type alertResponse struct {
	RequestID string `json:"request_id"`
}

// Routes mounts the relay API on r. tokenHash guards /v1 when non-empty.
func (s *Service) Routes(r chi.Router, tokenHash string) {
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "queued": len(s.queue)})
	})
	r.Route("/v1", func(r chi.Router) {
		r.Use(shield.BearerAuth(tokenHash))
		r.Post("/alerts", s.handleAlert)
		r.Post("/sos", s.handleSOS)
		r.Get("/alerts/{id}", s.handleStatus)
		r.Get("/alerts", s.handleRecent)
	})
}

func (s *Service) handleAlert(w http.ResponseWriter, r *http.Request) {
	var in alertRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req, err := delivery.NewRequest(in.Phone, in.Message)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.Enqueue(r.Context(), req); err != nil {
		s.writeEnqueueError(w, r, err)
		return
	}
	shield.GetLogger(r.Context()).Info("relay: alert queued", "request_id", req.ID)
	writeJSON(w, http.StatusAccepted, alertResponse{RequestID: req.ID})
}

func (s *Service) handleSOS(w http.ResponseWriter, r *http.Request) {
	var in SOS
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	receipt, err := s.RaiseSOS(r.Context(), in)
	switch {
	case err == nil:
		shield.GetLogger(r.Context()).Info("relay: sos queued", "contacts", len(receipt.RequestIDs))
		writeJSON(w, http.StatusAccepted, receipt)
	case receipt != nil:
		// Some contacts were queued before the queue filled up.
		w.Header().Set("Retry-After", "30")
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error":       err.Error(),
			"request_ids": receipt.RequestIDs,
		})
	default:
		s.writeEnqueueError(w, r, err)
	}
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	e, err := s.Status(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, journal.ErrNotFound):
		writeError(w, http.StatusNotFound, "unknown request id")
	case errors.Is(err, ErrNoJournal):
		writeError(w, http.StatusNotImplemented, err.Error())
	case err != nil:
		shield.GetLogger(r.Context()).Error("relay: status", "error", err)
		writeError(w, http.StatusInternalServerError, "journal unavailable")
	default:
		writeJSON(w, http.StatusOK, e)
	}
}

func (s *Service) handleRecent(w http.ResponseWriter, r *http.Request) {
	entries, err := s.Recent(r.Context(), queryInt(r, "limit", 50))
	switch {
	case errors.Is(err, ErrNoJournal):
		writeError(w, http.StatusNotImplemented, err.Error())
	case err != nil:
		shield.GetLogger(r.Context()).Error("relay: recent", "error", err)
		writeError(w, http.StatusInternalServerError, "journal unavailable")
	default:
		if entries == nil {
			entries = []*journal.Entry{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"alerts": entries})
	}
}

func (s *Service) writeEnqueueError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, delivery.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrQueueFull):
		w.Header().Set("Retry-After", "30")
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		shield.GetLogger(r.Context()).Error("relay: enqueue", "error", err)
		writeError(w, http.StatusInternalServerError, "enqueue failed")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	shield.WriteError(w, code, msg)
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return v
}
