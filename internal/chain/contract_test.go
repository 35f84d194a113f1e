package chain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var docID = "0x" + strings.Repeat("c", 64)

func TestShareCallRoundTrip(t *testing.T) {
	data, err := PackShare(docID, otherAddr, "read")
	require.NoError(t, err)

	call, err := DecodeCall(data)
	require.NoError(t, err)
	assert.Equal(t, MethodShare, call.Method)
	assert.Equal(t, docID, call.DocumentID)
	assert.Equal(t, otherAddr, call.Address)
	assert.Equal(t, "read", call.Permission)
}

func TestTransferCallRoundTrip(t *testing.T) {
	_, err := PackTransfer("0x1234", ownerAddr)
	require.Error(t, err, "malformed id must not pack")

	data, err := PackTransfer(docID, ownerAddr)
	require.NoError(t, err)
	call, err := DecodeCall(data)
	require.NoError(t, err)
	assert.Equal(t, MethodTransfer, call.Method)
	assert.Equal(t, docID, call.DocumentID)
	assert.Equal(t, ownerAddr, call.Address)
}

func TestUploadCallRoundTrip(t *testing.T) {
	data, err := PackUpload("Qm123", "report.pdf", 2048, "application/pdf")
	require.NoError(t, err)

	call, err := DecodeCall(data)
	require.NoError(t, err)
	assert.Equal(t, MethodUpload, call.Method)
	assert.Equal(t, "Qm123", call.ContentHash)
	assert.Equal(t, "report.pdf", call.FileName)
	assert.Equal(t, int64(2048), call.FileSize.Int64())
	assert.Equal(t, "application/pdf", call.DocumentType)
}

func TestDecodeCallRejectsUnknownData(t *testing.T) {
	_, err := DecodeCall([]byte{0x01})
	assert.Error(t, err)
	_, err = DecodeCall([]byte{0xde, 0xad, 0xbe, 0xef, 0x00})
	assert.Error(t, err)
}

func TestUploadedDocumentID(t *testing.T) {
	logs := []Log{
		{Address: otherAddr, Topics: []string{UploadedTopic(), "0x" + strings.Repeat("1", 64)}},
		{Address: strings.ToUpper(contractAddr), Topics: []string{"0x" + strings.Repeat("2", 64)}},
		{Address: contractAddr, Topics: []string{UploadedTopic(), "0x" + strings.Repeat("C", 64)}},
	}
	id, ok := UploadedDocumentID(logs, contractAddr)
	require.True(t, ok)
	assert.Equal(t, docID, id)

	_, ok = UploadedDocumentID(logs[:2], contractAddr)
	assert.False(t, ok)
}
