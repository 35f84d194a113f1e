// Package identity derives and checks document identifiers.
//
// A document id is a 32-byte value rendered as 0x-prefixed lowercase hex. When
// the verified transaction carries an id (the DocumentUploaded event of an
// upload, or the first argument of a share or transfer call) that value is
// authoritative. DeriveID is only used when the chain has no id to offer.
package identity

import (
	"encoding/binary"
	"strconv"

	"docuchain/internal/chain"
	"docuchain/pkg/apperr"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// DeriveID hashes a length-prefixed encoding of the inputs so that distinct
// field splits can never produce the same preimage.
func DeriveID(owner, contentHash string, timestamp int64, displayName string) string {
	var buf []byte
	for _, field := range []string{
		chain.Normalize(owner),
		contentHash,
		strconv.FormatInt(timestamp, 10),
		displayName,
	} {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(field)))
		buf = append(buf, field...)
	}
	return hexutil.Encode(crypto.Keccak256(buf))
}

// EncodedID returns the document id the verified transaction carries, if any.
func EncodedID(vtx *chain.VerifiedTransaction) (string, bool) {
	if vtx == nil {
		return "", false
	}
	if id, ok := chain.UploadedDocumentID(vtx.Logs, vtx.To); ok {
		return id, true
	}
	call, err := chain.DecodeCall(vtx.CallData)
	if err != nil || call.DocumentID == "" {
		return "", false
	}
	return call.DocumentID, true
}

// Validate checks claimed against the id encoded in vtx. The on-chain value
// wins; a transaction that encodes no id cannot vouch for any claimed id.
func Validate(claimed string, vtx *chain.VerifiedTransaction) error {
	if !chain.ValidateTxHash(claimed) {
		return apperr.Malformed("invalid document id %q", claimed)
	}
	encoded, ok := EncodedID(vtx)
	if !ok {
		return apperr.New(apperr.KindVerification, apperr.CodeIdentityMismatch,
			"transaction does not encode a document id")
	}
	if encoded != chain.Normalize(claimed) {
		return apperr.New(apperr.KindVerification, apperr.CodeIdentityMismatch,
			"document id %s does not match on-chain id %s", claimed, encoded)
	}
	return nil
}

// Resolve picks the id for a newly claimed upload: a claimed id must match
// the chain, otherwise the chain's id is used, otherwise one is derived.
func Resolve(claimed string, vtx *chain.VerifiedTransaction, contentHash string, timestamp int64, displayName string) (string, error) {
	if claimed != "" {
		if err := Validate(claimed, vtx); err != nil {
			return "", err
		}
		return chain.Normalize(claimed), nil
	}
	if id, ok := EncodedID(vtx); ok {
		return id, nil
	}
	return DeriveID(vtx.From, contentHash, timestamp, displayName), nil
}
