package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Admin authorization happens in the ledger: the caller address must
// match the configured administrator or the operation fails with
// NOT_AUTHORIZED. The handlers only require that a caller is present.

// handleDeactivateDevice handles POST /api/admin/devices/{id}/deactivate
func (s *Server) handleDeactivateDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["id"]

	caller := callerAddress(r)
	if caller == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Caller address required", nil)
		return
	}

	if err := s.registryService.DeactivateDevice(r.Context(), deviceID, caller); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"deviceId":    deviceID,
		"deactivated": true,
	})
}

// handleVerifyProducer handles POST /api/admin/producers/{address}/verify
func (s *Server) handleVerifyProducer(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	caller := callerAddress(r)
	if caller == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Caller address required", nil)
		return
	}

	if err := s.registryService.VerifyProducer(r.Context(), address, caller); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"address":  address,
		"verified": true,
	})
}
