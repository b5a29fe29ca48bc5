package api

import (
	"net/http"
	"strconv"

	"github.com/carbon-registry/internal/service"
	"github.com/gorilla/mux"
)

// handleRegisterDevice handles POST /api/devices - Register an IoT device
func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceID   string `json:"deviceId"`
		DeviceType string `json:"deviceType"`
	}

	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	caller := callerAddress(r)
	if caller == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Caller address required", nil)
		return
	}

	device, err := s.registryService.RegisterDevice(r.Context(), &service.RegisterDeviceInput{
		DeviceID:   req.DeviceID,
		DeviceType: req.DeviceType,
		Caller:     caller,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, device)
}

// handleGetDevice handles GET /api/devices/{id} - Look up a device
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["id"]

	device, err := s.registryService.GetDevice(r.Context(), deviceID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, device)
}

// handleDeviceCredits handles GET /api/devices/{id}/credits - Credits
// minted against a device
func (s *Server) handleDeviceCredits(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["id"]

	credits, err := s.registryService.DeviceCredits(r.Context(), deviceID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"deviceId": deviceID,
		"credits":  credits,
		"count":    len(credits),
	})
}

// handleDeviceEvents handles GET /api/devices/{id}/events - Archived
// events for a device, newest first
func (s *Server) handleDeviceEvents(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["id"]

	events, err := s.registryService.DeviceEvents(r.Context(), deviceID, queryLimit(r))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"deviceId": deviceID,
		"events":   events,
		"count":    len(events),
	})
}

// handleEventsByType handles GET /api/events?type=... - Archived events
// of one type, newest first
func (s *Server) handleEventsByType(w http.ResponseWriter, r *http.Request) {
	eventType := r.URL.Query().Get("type")
	if eventType == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Query parameter 'type' required", nil)
		return
	}

	events, err := s.registryService.EventsByType(r.Context(), eventType, queryLimit(r))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"type":   eventType,
		"events": events,
		"count":  len(events),
	})
}

// queryLimit parses the optional ?limit= parameter; zero means use the
// service default
func queryLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}
