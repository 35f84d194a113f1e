package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"docuchain/internal/contentstore"
	"docuchain/internal/document/model"
	"docuchain/internal/document/service"
	"docuchain/middleware"
	"docuchain/pkg/apperr"
	"docuchain/pkg/logger"
)

const (
	maxUploadBytes = 100 << 20
	maxBodyBytes   = 1 << 20
)

// AddressResolver picks the address an address-scoped request runs against.
type AddressResolver interface {
	ResolveAddress(ctx context.Context, accountID, requested string) (string, error)
}

type ContentStore interface {
	Pin(ctx context.Context, fileName, contentType string, body io.Reader) (*contentstore.PinResult, error)
	URI(contentHash string) string
}

type DocumentHandler struct {
	Service *service.DocumentService
	Wallets AddressResolver
	Content ContentStore
}

func NewDocumentHandler(service *service.DocumentService, wallets AddressResolver, content ContentStore) *DocumentHandler {
	return &DocumentHandler{Service: service, Wallets: wallets, Content: content}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Malformed("Invalid request body")
	}
	return nil
}

func (h *DocumentHandler) documentList(docs []model.DocumentRecord) model.DocumentListResponse {
	out := model.DocumentListResponse{Documents: make([]model.DocumentResponse, 0, len(docs)), Count: len(docs)}
	for _, d := range docs {
		out.Documents = append(out.Documents, model.NewDocumentResponse(d, h.Content.URI))
	}
	return out
}

// UploadContent pins a multipart "file" to the content store.
func (h *DocumentHandler) UploadContent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		apperr.Write(w, apperr.Malformed("No file provided"))
		return
	}
	defer file.Close()

	res, err := h.Content.Pin(r.Context(), header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to pin %s: %v", header.Filename, err)
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *DocumentHandler) ClaimUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req model.UploadClaimRequest
	if err := decode(w, r, &req); err != nil {
		apperr.Write(w, err)
		return
	}

	resp, err := h.Service.ClaimUpload(r.Context(), middleware.AccountID(r.Context()), req)
	if err != nil {
		logger.Sugar.Warnf("Handler: Upload claim for tx %s rejected: %v", req.TransactionHash, err)
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	address, err := h.Wallets.ResolveAddress(r.Context(), middleware.AccountID(r.Context()), r.URL.Query().Get("address"))
	if err != nil {
		apperr.Write(w, err)
		return
	}
	docs, err := h.Service.ListByOwner(r.Context(), address)
	if err != nil {
		logger.Sugar.Errorf("Error fetching documents: %v", err)
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.documentList(docs))
}

func (h *DocumentHandler) GetSharedDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	address, err := h.Wallets.ResolveAddress(r.Context(), middleware.AccountID(r.Context()), r.URL.Query().Get("address"))
	if err != nil {
		apperr.Write(w, err)
		return
	}
	docs, err := h.Service.SharedWith(r.Context(), address)
	if err != nil {
		logger.Sugar.Errorf("Error fetching shared documents: %v", err)
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.documentList(docs))
}

func (h *DocumentHandler) GetGrants(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	address, err := h.Wallets.ResolveAddress(r.Context(), middleware.AccountID(r.Context()), r.URL.Query().Get("address"))
	if err != nil {
		apperr.Write(w, err)
		return
	}
	grants, err := h.Service.GrantsFor(r.Context(), address)
	if err != nil {
		logger.Sugar.Errorf("Error fetching grants: %v", err)
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.GrantListResponse{Grants: grants, Count: len(grants)})
}

func (h *DocumentHandler) ShareDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req model.ShareRequest
	if err := decode(w, r, &req); err != nil {
		apperr.Write(w, err)
		return
	}

	grant, err := h.Service.Share(r.Context(), middleware.AccountID(r.Context()), req)
	if err != nil {
		logger.Sugar.Warnf("Handler: Share of %s rejected: %v", req.DocumentID, err)
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, grant)
}

func (h *DocumentHandler) ReassignDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req model.ReassignRequest
	if err := decode(w, r, &req); err != nil {
		apperr.Write(w, err)
		return
	}

	rec, err := h.Service.Reassign(r.Context(), middleware.AccountID(r.Context()), req)
	if err != nil {
		logger.Sugar.Warnf("Handler: Reassignment of %s rejected: %v", req.DocumentID, err)
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.NewDocumentResponse(*rec, h.Content.URI))
}

func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	docID := r.URL.Query().Get("docId")
	if docID == "" {
		apperr.Write(w, apperr.Malformed("Missing docId parameter"))
		return
	}

	accountID := middleware.AccountID(r.Context())
	address, err := h.Wallets.ResolveAddress(r.Context(), accountID, r.URL.Query().Get("address"))
	if err != nil {
		apperr.Write(w, err)
		return
	}
	if err := h.Service.Delete(r.Context(), accountID, docID, address); err != nil {
		logger.Sugar.Errorf("Handler: Failed to delete document %s: %v", docID, err)
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Document deleted successfully"})
}

func (h *DocumentHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	docID := r.URL.Query().Get("docId")
	if docID == "" {
		apperr.Write(w, apperr.Malformed("Missing docId parameter"))
		return
	}

	address, err := h.Wallets.ResolveAddress(r.Context(), middleware.AccountID(r.Context()), r.URL.Query().Get("address"))
	if err != nil {
		apperr.Write(w, err)
		return
	}
	changes, err := h.Service.History(r.Context(), docID, address)
	if err != nil {
		logger.Sugar.Errorf("Error fetching history for %s: %v", docID, err)
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.HistoryResponse{DocumentID: docID, Changes: changes})
}
