package model

import (
	"strings"
	"testing"

	"docuchain/pkg/apperr"

	"github.com/stretchr/testify/assert"
)

var (
	addr = "0x" + strings.Repeat("a", 40)
	hash = "0x" + strings.Repeat("b", 64)
)

func validUpload() UploadClaimRequest {
	return UploadClaimRequest{
		OwnerAddress:    addr,
		ContentHash:     "Qm123",
		FileName:        "report.pdf",
		FileSize:        42,
		DocumentType:    "application/pdf",
		TransactionHash: hash,
		BlockNumber:     100,
	}
}

func TestUploadClaimRequestValidate(t *testing.T) {
	ok := validUpload()
	assert.NoError(t, ok.Validate())

	tests := []struct {
		name   string
		mutate func(r *UploadClaimRequest)
	}{
		{"short owner", func(r *UploadClaimRequest) { r.OwnerAddress = "0xabc" }},
		{"bad document id", func(r *UploadClaimRequest) { r.DocumentID = "0x12" }},
		{"missing content hash", func(r *UploadClaimRequest) { r.ContentHash = " " }},
		{"missing file name", func(r *UploadClaimRequest) { r.FileName = "" }},
		{"negative size", func(r *UploadClaimRequest) { r.FileSize = -1 }},
		{"bad tx hash", func(r *UploadClaimRequest) { r.TransactionHash = addr }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validUpload()
			tt.mutate(&r)
			assert.ErrorIs(t, r.Validate(), apperr.ErrMalformedInput)
		})
	}
}

func TestShareRequestValidate(t *testing.T) {
	r := ShareRequest{DocumentID: hash, OwnerAddress: addr, ShareWith: addr, Permission: PermissionRead, TransactionHash: hash}
	assert.NoError(t, r.Validate())

	r.Permission = "admin"
	assert.ErrorIs(t, r.Validate(), apperr.ErrMalformedInput)

	r.Permission = PermissionWrite
	r.ShareWith = "someone"
	assert.ErrorIs(t, r.Validate(), apperr.ErrMalformedInput)
}

func TestReassignRequestValidate(t *testing.T) {
	r := ReassignRequest{DocumentID: hash, OwnerAddress: addr, TransactionHash: hash}
	assert.NoError(t, r.Validate())
	r.DocumentID = ""
	assert.ErrorIs(t, r.Validate(), apperr.ErrMalformedInput)
}

func TestSanitizeDisplayName(t *testing.T) {
	assert.Equal(t, "report (final).pdf", SanitizeDisplayName("  report   (final).pdf "))
	assert.Equal(t, "invoice.pdf", SanitizeDisplayName("âÿinvoice<>.pdf"))
	assert.Equal(t, "untitled_document", SanitizeDisplayName("%%%"))
	assert.Equal(t, "untitled_document", SanitizeDisplayName(""))
}
