package handler

import (
	"encoding/json"
	"net/http"

	"docuchain/internal/wallet/model"
	"docuchain/internal/wallet/service"
	"docuchain/middleware"
	"docuchain/pkg/apperr"
	"docuchain/pkg/logger"
)

const maxBodyBytes = 1 << 20

type WalletHandler struct {
	Service *service.WalletService
}

func NewWalletHandler(service *service.WalletService) *WalletHandler {
	return &WalletHandler{Service: service}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeWallet(w http.ResponseWriter, r *http.Request) (model.WalletRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req model.WalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, apperr.Malformed("Invalid request body")
	}
	return req, req.Validate()
}

func (h *WalletHandler) GetWallets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	list, err := h.Service.ListWallets(r.Context(), middleware.AccountID(r.Context()))
	if err != nil {
		logger.Sugar.Errorf("Error fetching wallets: %v", err)
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *WalletHandler) AddWallet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := decodeWallet(w, r)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	binding, err := h.Service.BindAddress(r.Context(), middleware.AccountFrom(r.Context()), req.WalletAddress)
	if err != nil {
		logger.Sugar.Warnf("Handler: Failed to bind %s: %v", req.WalletAddress, err)
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, binding)
}

func (h *WalletHandler) SwitchWallet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := decodeWallet(w, r)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	accountID := middleware.AccountID(r.Context())
	if err := h.Service.SetActive(r.Context(), accountID, req.WalletAddress); err != nil {
		apperr.Write(w, err)
		return
	}
	active, err := h.Service.ActiveAddress(r.Context(), accountID)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "activeWallet": active})
}

func (h *WalletHandler) RemoveWallet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := decodeWallet(w, r)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	if err := h.Service.Unbind(r.Context(), middleware.AccountID(r.Context()), req.WalletAddress); err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Wallet removed"})
}

// GetAccounts lists the accounts bound to an address.
func (h *WalletHandler) GetAccounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := decodeWallet(w, r)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	accounts, err := h.Service.ResolveAccountsForAddress(r.Context(), middleware.AccountID(r.Context()), req.WalletAddress)
	if err != nil {
		logger.Sugar.Errorf("Error resolving accounts for %s: %v", req.WalletAddress, err)
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.AccountsResponse{Accounts: accounts, Count: len(accounts)})
}
