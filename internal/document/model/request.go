package model

import (
	"strings"

	"docuchain/internal/chain"
	"docuchain/pkg/apperr"
)

// UploadClaimRequest claims ownership of a pinned file through an
// uploadDocument transaction. DocumentID is optional; when present it must
// agree with the id the transaction emitted.
type UploadClaimRequest struct {
	OwnerAddress    string `json:"ownerAddress"`
	DocumentID      string `json:"documentId,omitempty"`
	ContentHash     string `json:"ipfsHash"`
	FileName        string `json:"fileName"`
	FileSize        int64  `json:"fileSize"`
	DocumentType    string `json:"documentType"`
	TransactionHash string `json:"transactionHash"`
	BlockNumber     uint64 `json:"blockNumber,omitempty"`
}

func (r *UploadClaimRequest) Validate() error {
	if !chain.ValidateAddress(r.OwnerAddress) {
		return apperr.Malformed("invalid owner address %q", r.OwnerAddress)
	}
	if r.DocumentID != "" && !chain.ValidateTxHash(r.DocumentID) {
		return apperr.Malformed("invalid document id %q", r.DocumentID)
	}
	if strings.TrimSpace(r.ContentHash) == "" {
		return apperr.Malformed("content hash is required")
	}
	if r.FileName == "" {
		return apperr.Malformed("file name is required")
	}
	if r.FileSize < 0 {
		return apperr.Malformed("file size must not be negative")
	}
	if !chain.ValidateTxHash(r.TransactionHash) {
		return apperr.Malformed("invalid transaction hash %q", r.TransactionHash)
	}
	return nil
}

type ShareRequest struct {
	DocumentID      string     `json:"documentId"`
	OwnerAddress    string     `json:"ownerAddress"`
	ShareWith       string     `json:"shareWith"`
	Permission      Permission `json:"permission"`
	TransactionHash string     `json:"transactionHash"`
	BlockNumber     uint64     `json:"blockNumber,omitempty"`
}

func (r *ShareRequest) Validate() error {
	if !chain.ValidateTxHash(r.DocumentID) {
		return apperr.Malformed("invalid document id %q", r.DocumentID)
	}
	if !chain.ValidateAddress(r.OwnerAddress) {
		return apperr.Malformed("invalid owner address %q", r.OwnerAddress)
	}
	if !chain.ValidateAddress(r.ShareWith) {
		return apperr.Malformed("invalid grantee address %q", r.ShareWith)
	}
	if !r.Permission.Valid() {
		return apperr.Malformed("permission must be read or write, got %q", r.Permission)
	}
	if !chain.ValidateTxHash(r.TransactionHash) {
		return apperr.Malformed("invalid transaction hash %q", r.TransactionHash)
	}
	return nil
}

// ReassignRequest moves a document to a new owner or a new id. OwnerAddress
// is the current owner, who must have sent TransactionHash.
type ReassignRequest struct {
	DocumentID      string `json:"documentId"`
	OwnerAddress    string `json:"ownerAddress"`
	TransactionHash string `json:"transactionHash"`
}

func (r *ReassignRequest) Validate() error {
	if !chain.ValidateTxHash(r.DocumentID) {
		return apperr.Malformed("invalid document id %q", r.DocumentID)
	}
	if !chain.ValidateAddress(r.OwnerAddress) {
		return apperr.Malformed("invalid owner address %q", r.OwnerAddress)
	}
	if !chain.ValidateTxHash(r.TransactionHash) {
		return apperr.Malformed("invalid transaction hash %q", r.TransactionHash)
	}
	return nil
}
