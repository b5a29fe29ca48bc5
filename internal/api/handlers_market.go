package api

import (
	"net/http"

	"github.com/carbon-registry/internal/service"
	"github.com/gorilla/mux"
)

// handleListForSale handles POST /api/credits/{id}/list - List a credit
func (s *Server) handleListForSale(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := parseTokenID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid token id", nil)
		return
	}

	var req struct {
		Price int64 `json:"price"`
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

	credit, err := s.marketService.ListForSale(r.Context(), &service.ListForSaleInput{
		TokenID: tokenID,
		Price:   req.Price,
		Caller:  caller,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, credit)
}

// handlePurchase handles POST /api/credits/{id}/purchase - Buy a listed credit
func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := parseTokenID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid token id", nil)
		return
	}

	var req struct {
		Payment int64 `json:"payment"`
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

	receipt, err := s.marketService.Purchase(r.Context(), &service.PurchaseInput{
		TokenID: tokenID,
		Payment: req.Payment,
		Caller:  caller,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, receipt)
}

// handleDelist handles POST /api/credits/{id}/delist - Withdraw a listing
func (s *Server) handleDelist(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := parseTokenID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid token id", nil)
		return
	}

	caller := callerAddress(r)
	if caller == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Caller address required", nil)
		return
	}

	credit, err := s.marketService.Delist(r.Context(), &service.DelistInput{
		TokenID: tokenID,
		Caller:  caller,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, credit)
}

// handleListings handles GET /api/listings - All credits on the market
func (s *Server) handleListings(w http.ResponseWriter, r *http.Request) {
	listings := s.marketService.Listings(r.Context())

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"listings": listings,
		"count":    len(listings),
	})
}

// handleBalanceOf handles GET /api/accounts/{address}/balance - Sale proceeds
func (s *Server) handleBalanceOf(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	balance, err := s.marketService.BalanceOf(r.Context(), address)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"address": address,
		"balance": balance,
	})
}

// handleIsVerified handles GET /api/accounts/{address}/verified
func (s *Server) handleIsVerified(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	verified, err := s.registryService.IsVerifiedProducer(r.Context(), address)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"address":  address,
		"verified": verified,
	})
}
