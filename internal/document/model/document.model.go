package model

import (
	"regexp"
	"strings"
)

type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
)

func (p Permission) Valid() bool {
	return p == PermissionRead || p == PermissionWrite
}

// DocumentRecord is one row of the ownership index. CreatedAt is unix seconds.
type DocumentRecord struct {
	DocumentID      string
	ContentHash     string
	OwnerAddress    string
	CreatedAt       int64
	DisplayName     string
	ByteSize        int64
	MediaType       string
	Active          bool
	TransactionHash string
	BlockNumber     uint64
}

type ShareGrant struct {
	DocumentID      string     `json:"documentId"`
	GranteeAddress  string     `json:"sharedWith"`
	Permission      Permission `json:"permission"`
	GrantedAt       int64      `json:"grantedAt"`
	TransactionHash string     `json:"transactionHash"`
	BlockNumber     uint64     `json:"blockNumber"`
}

type GrantSummary struct {
	DocumentID string     `json:"documentId"`
	Permission Permission `json:"permission"`
	GrantedAt  int64      `json:"grantedAt"`
}

// OwnershipChange is an entry of a document's reassignment history.
type OwnershipChange struct {
	ID                 int64  `json:"id"`
	DocumentID         string `json:"documentId"`
	PreviousDocumentID string `json:"previousDocumentId"`
	PreviousOwner      string `json:"previousOwner"`
	NewOwner           string `json:"newOwner"`
	TransactionHash    string `json:"transactionHash"`
	BlockNumber        uint64 `json:"blockNumber"`
	ChangedAt          int64  `json:"changedAt"`
}

// DocumentResponse is the client view of a DocumentRecord.
type DocumentResponse struct {
	DocumentID      string `json:"documentId"`
	ContentHash     string `json:"ipfsHash"`
	Owner           string `json:"owner"`
	Timestamp       int64  `json:"timestamp"`
	FileName        string `json:"fileName"`
	FileSize        int64  `json:"fileSize"`
	DocumentType    string `json:"documentType"`
	IsActive        bool   `json:"isActive"`
	TransactionHash string `json:"transactionHash"`
	BlockNumber     uint64 `json:"blockNumber"`
	URI             string `json:"ipfsUrl,omitempty"`
}

// NewDocumentResponse renders rec; uri maps a content hash to a retrieval URI
// and may be nil.
func NewDocumentResponse(rec DocumentRecord, uri func(string) string) DocumentResponse {
	resp := DocumentResponse{
		DocumentID:      rec.DocumentID,
		ContentHash:     rec.ContentHash,
		Owner:           rec.OwnerAddress,
		Timestamp:       rec.CreatedAt,
		FileName:        SanitizeDisplayName(rec.DisplayName),
		FileSize:        rec.ByteSize,
		DocumentType:    rec.MediaType,
		IsActive:        rec.Active,
		TransactionHash: rec.TransactionHash,
		BlockNumber:     rec.BlockNumber,
	}
	if uri != nil {
		resp.URI = uri(rec.ContentHash)
	}
	return resp
}

type DocumentListResponse struct {
	Documents []DocumentResponse `json:"documents"`
	Count     int                `json:"count"`
}

type GrantListResponse struct {
	Grants []GrantSummary `json:"grants"`
	Count  int            `json:"count"`
}

type HistoryResponse struct {
	DocumentID string            `json:"documentId"`
	Changes    []OwnershipChange `json:"changes"`
}

type ClaimResponse struct {
	DocumentID      string `json:"documentId"`
	TransactionHash string `json:"transactionHash"`
	BlockNumber     uint64 `json:"blockNumber"`
	Confirmations   uint64 `json:"confirmations"`
	Verified        bool   `json:"verified"`
}

const untitledLabel = "untitled_document"

var (
	mojibake    = regexp.MustCompile(`[âÿ"]+`)
	disallowed  = regexp.MustCompile(`[^\w\s\-.()]+`)
	runsOfSpace = regexp.MustCompile(`\s+`)
)

// SanitizeDisplayName strips characters that do not belong in a file name
// and collapses whitespace. Stored names are never rewritten.
func SanitizeDisplayName(name string) string {
	cleaned := mojibake.ReplaceAllString(name, "")
	cleaned = disallowed.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(runsOfSpace.ReplaceAllString(cleaned, " "))
	if cleaned == "" {
		return untitledLabel
	}
	return cleaned
}
