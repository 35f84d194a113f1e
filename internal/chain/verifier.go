package chain

import (
	"bytes"
	"context"
	"errors"
	"time"

	"docuchain/pkg/apperr"
	"docuchain/pkg/logger"

	"go.uber.org/zap"
)

// VerifyRequest names the facts a claimed transaction must match. CallData is
// optional; when set the on-chain input must equal it byte for byte.
type VerifyRequest struct {
	TxHash   string
	From     string
	Contract string
	CallData []byte
}

type VerifiedTransaction struct {
	TxHash        string
	From          string
	To            string
	BlockNumber   uint64
	Confirmations uint64
	CallData      []byte
	Logs          []Log
}

type VerifierConfig struct {
	MinConfirmations uint64
	Timeout          time.Duration
}

// Verifier checks claimed transactions against the ledger. It keeps no record
// of what it has verified; replay protection belongs to the stores.
type Verifier struct {
	ledger Ledger
	cfg    VerifierConfig
}

func NewVerifier(ledger Ledger, cfg VerifierConfig) *Verifier {
	if cfg.MinConfirmations == 0 {
		cfg.MinConfirmations = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Verifier{ledger: ledger, cfg: cfg}
}

func (v *Verifier) Verify(ctx context.Context, req VerifyRequest) (*VerifiedTransaction, error) {
	if !ValidateTxHash(req.TxHash) {
		return nil, apperr.Malformed("invalid transaction hash %q", req.TxHash)
	}
	if !ValidateAddress(req.From) {
		return nil, apperr.Malformed("invalid sender address %q", req.From)
	}
	if !ValidateAddress(req.Contract) {
		return nil, apperr.Malformed("invalid contract address %q", req.Contract)
	}

	ctx, cancel := context.WithTimeout(ctx, v.cfg.Timeout)
	defer cancel()

	tx, err := v.ledger.GetTransaction(ctx, Normalize(req.TxHash))
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.New(apperr.KindVerification, apperr.CodeTxNotFound, "transaction %s not found on chain", req.TxHash)
	}
	if err != nil {
		logger.Log.Warn("ledger query failed", zap.String("tx", req.TxHash), zap.Error(err))
		return nil, apperr.Wrap(err, apperr.KindUnavailable, apperr.CodeLedgerUnavailable, "ledger query failed")
	}

	if tx.Pending || tx.Confirmations < v.cfg.MinConfirmations {
		return nil, apperr.New(apperr.KindVerification, apperr.CodeUnconfirmed,
			"transaction %s has %d confirmations, %d required", req.TxHash, tx.Confirmations, v.cfg.MinConfirmations)
	}
	if !SameAddress(tx.From, req.From) {
		return nil, apperr.New(apperr.KindVerification, apperr.CodeAddressMismatch,
			"transaction %s was sent by %s, not %s", req.TxHash, tx.From, req.From)
	}
	if tx.To == "" || !SameAddress(tx.To, req.Contract) {
		return nil, apperr.New(apperr.KindVerification, apperr.CodeContractMismatch,
			"transaction %s does not call the registry contract", req.TxHash)
	}
	if req.CallData != nil && !bytes.Equal(tx.CallData, req.CallData) {
		return nil, apperr.New(apperr.KindVerification, apperr.CodeCallDataMismatch,
			"transaction %s call data does not match the claim", req.TxHash)
	}
	if !tx.Succeeded {
		return nil, apperr.New(apperr.KindVerification, apperr.CodeReverted, "transaction %s reverted", req.TxHash)
	}

	return &VerifiedTransaction{
		TxHash:        Normalize(req.TxHash),
		From:          Normalize(tx.From),
		To:            Normalize(tx.To),
		BlockNumber:   tx.BlockNumber,
		Confirmations: tx.Confirmations,
		CallData:      tx.CallData,
		Logs:          tx.Logs,
	}, nil
}
