package api

import (
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/avews-bridge/internal/bridges/avews"
)

// LightState is one entry of GET /lights.
type LightState struct {
	ID       int    `json:"id"`
	UniqueID string `json:"unique_id"`
	On       bool   `json:"on"`
}

// handleListDevices returns the registry snapshot.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.bridge.Devices()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetDevice returns one device by hub identifier.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	externalID := chi.URLParam(r, "externalID")
	d, ok := s.bridge.Device(externalID)
	if !ok {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleDeviceHistory returns journal entries for a device, newest first.
// GET /devices/{externalID}/history?limit=N
func (s *Server) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotImplemented, ErrCodeNotSupported, "state journal is disabled")
		return
	}

	externalID := chi.URLParam(r, "externalID")
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.history.History(r.Context(), externalID, limit)
	if err != nil {
		s.logger.Error("reading state history", "external_id", externalID, "error", err)
		writeInternalError(w, "failed to read history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"external_id": externalID,
		"entries":     entries,
		"count":       len(entries),
	})
}

// handleListLights returns the last reported state of every light.
func (s *Server) handleListLights(w http.ResponseWriter, _ *http.Request) {
	lights := s.bridge.Lights()
	out := make([]LightState, 0, len(lights))
	for id, on := range lights {
		out = append(out, LightState{ID: id, UniqueID: avews.LightUniqueID(id), On: on})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	writeJSON(w, http.StatusOK, map[string]any{
		"lights": out,
		"count":  len(out),
	})
}

// handleToggleLight sends a toggle for one light.
// POST /lights/{id}/toggle
func (s *Server) handleToggleLight(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < 0 {
		writeBadRequest(w, "light id must be a non-negative integer")
		return
	}

	if err := s.bridge.ToggleLight(id); err != nil {
		s.writeSendError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"light_id": id, "command": "toggle"})
}

// handleSync requests a status refresh for a device class.
// POST /sync/{class}
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	class, err := strconv.Atoi(chi.URLParam(r, "class"))
	if err != nil {
		writeBadRequest(w, "class must be an integer")
		return
	}
	switch class {
	case avews.ClassLighting, avews.ClassAntitheftArea, avews.ClassAntitheftSensor:
	default:
		writeBadRequest(w, "class must be 1, 7 or 12")
		return
	}

	if err := s.bridge.RequestStatus(class); err != nil {
		s.writeSendError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"class": class, "command": "GSF"})
}

func (s *Server) writeSendError(w http.ResponseWriter, err error) {
	if errors.Is(err, avews.ErrNotConnected) {
		writeUnavailable(w, "controller not connected")
		return
	}
	s.logger.Error("sending controller command", "error", err)
	writeInternalError(w, "failed to send command")
}
