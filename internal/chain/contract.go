package chain

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const registryABIJSON = `[
  {"type":"function","name":"uploadDocument","stateMutability":"nonpayable",
   "inputs":[{"name":"_ipfsHash","type":"string"},{"name":"_fileName","type":"string"},
             {"name":"_fileSize","type":"uint256"},{"name":"_documentType","type":"string"}],
   "outputs":[{"name":"","type":"bytes32"}]},
  {"type":"function","name":"shareDocument","stateMutability":"nonpayable",
   "inputs":[{"name":"_documentId","type":"bytes32"},{"name":"_shareWith","type":"address"},
             {"name":"_permission","type":"string"}],
   "outputs":[]},
  {"type":"function","name":"transferDocument","stateMutability":"nonpayable",
   "inputs":[{"name":"_documentId","type":"bytes32"},{"name":"_newOwner","type":"address"}],
   "outputs":[]},
  {"type":"event","name":"DocumentUploaded","anonymous":false,
   "inputs":[{"indexed":true,"name":"documentId","type":"bytes32"},{"indexed":true,"name":"owner","type":"address"},
             {"indexed":false,"name":"ipfsHash","type":"string"},{"indexed":false,"name":"fileName","type":"string"}]},
  {"type":"event","name":"DocumentShared","anonymous":false,
   "inputs":[{"indexed":true,"name":"documentId","type":"bytes32"},{"indexed":true,"name":"owner","type":"address"},
             {"indexed":true,"name":"sharedWith","type":"address"},{"indexed":false,"name":"permission","type":"string"}]}
]`

const (
	MethodUpload   = "uploadDocument"
	MethodShare    = "shareDocument"
	MethodTransfer = "transferDocument"
)

var registryABI = mustParseABI(registryABIJSON)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("parse registry abi: %v", err))
	}
	return parsed
}

// Call is a decoded registry contract invocation.
type Call struct {
	Method     string
	DocumentID string // share and transfer
	Address    string // grantee for share, new owner for transfer
	Permission string

	ContentHash  string // upload
	FileName     string
	FileSize     *big.Int
	DocumentType string
}

func PackUpload(contentHash, fileName string, fileSize int64, documentType string) ([]byte, error) {
	return registryABI.Pack(MethodUpload, contentHash, fileName, big.NewInt(fileSize), documentType)
}

func PackShare(documentID, grantee, permission string) ([]byte, error) {
	id, err := bytes32(documentID)
	if err != nil {
		return nil, err
	}
	return registryABI.Pack(MethodShare, id, common.HexToAddress(grantee), permission)
}

func PackTransfer(documentID, newOwner string) ([]byte, error) {
	id, err := bytes32(documentID)
	if err != nil {
		return nil, err
	}
	return registryABI.Pack(MethodTransfer, id, common.HexToAddress(newOwner))
}

// DecodeCall decodes call data addressed to the registry contract.
func DecodeCall(data []byte) (*Call, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("call data too short: %d bytes", len(data))
	}
	method, err := registryABI.MethodById(data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method.Name, err)
	}

	call := &Call{Method: method.Name}
	switch method.Name {
	case MethodUpload:
		call.ContentHash, _ = args[0].(string)
		call.FileName, _ = args[1].(string)
		call.FileSize, _ = args[2].(*big.Int)
		call.DocumentType, _ = args[3].(string)
	case MethodShare, MethodTransfer:
		id, ok := args[0].([32]byte)
		if !ok {
			return nil, fmt.Errorf("%s: unexpected document id type %T", method.Name, args[0])
		}
		addr, ok := args[1].(common.Address)
		if !ok {
			return nil, fmt.Errorf("%s: unexpected address type %T", method.Name, args[1])
		}
		call.DocumentID = "0x" + hex.EncodeToString(id[:])
		call.Address = strings.ToLower(addr.Hex())
		if method.Name == MethodShare {
			call.Permission, _ = args[2].(string)
		}
	}
	return call, nil
}

// UploadedDocumentID returns the document id carried by a DocumentUploaded
// event emitted by contract, if any.
func UploadedDocumentID(logs []Log, contract string) (string, bool) {
	topic := registryABI.Events["DocumentUploaded"].ID.Hex()
	for _, lg := range logs {
		if !SameAddress(lg.Address, contract) || len(lg.Topics) < 2 {
			continue
		}
		if strings.EqualFold(lg.Topics[0], topic) {
			return Normalize(lg.Topics[1]), true
		}
	}
	return "", false
}

// UploadedTopic is the event signature hash of DocumentUploaded.
func UploadedTopic() string {
	return registryABI.Events["DocumentUploaded"].ID.Hex()
}

func bytes32(id string) ([32]byte, error) {
	var out [32]byte
	if !ValidateTxHash(id) {
		return out, fmt.Errorf("document id %q is not a 32-byte hex value", id)
	}
	b, err := hex.DecodeString(id[2:])
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}
