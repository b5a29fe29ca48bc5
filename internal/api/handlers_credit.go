package api

import (
	"net/http"
	"strconv"

	"github.com/carbon-registry/internal/service"
	"github.com/gorilla/mux"
)

// parseTokenID parses the {id} path variable as a token id
func parseTokenID(r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// handleMintCredit handles POST /api/credits - Mint a carbon credit
func (s *Server) handleMintCredit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CarbonReduced int64  `json:"carbonReduced"`
		ProjectType   string `json:"projectType"`
		DeviceID      string `json:"deviceId"`
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

	credit, err := s.registryService.MintCredit(r.Context(), &service.MintCreditInput{
		CarbonReduced: req.CarbonReduced,
		ProjectType:   req.ProjectType,
		DeviceID:      req.DeviceID,
		Caller:        caller,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, credit)
}

// handleGetCredit handles GET /api/credits/{id} - Look up a credit
func (s *Server) handleGetCredit(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := parseTokenID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid token id", nil)
		return
	}

	credit, err := s.registryService.GetCredit(r.Context(), tokenID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, credit)
}

// handleOwnerOf handles GET /api/credits/{id}/owner - Current token owner
func (s *Server) handleOwnerOf(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := parseTokenID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid token id", nil)
		return
	}

	owner, err := s.marketService.OwnerOf(r.Context(), tokenID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"tokenId": tokenID,
		"owner":   owner,
	})
}

// handleTotalSupply handles GET /api/credits/supply - Number of credits minted
func (s *Server) handleTotalSupply(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"totalSupply": s.registryService.TotalSupply(r.Context()),
	})
}
