package service

import (
	"context"
	"time"

	"docuchain/internal/chain"
	"docuchain/internal/document/identity"
	"docuchain/internal/document/model"
	"docuchain/internal/document/repository"
	"docuchain/pkg/apperr"
	"docuchain/pkg/logger"
	"docuchain/socket"

	"go.uber.org/zap"
)

const zeroAddress = "0x0000000000000000000000000000000000000000"

type DocumentStore interface {
	IsConsumed(ctx context.Context, txHash string) (bool, error)
	RecordUpload(ctx context.Context, rec model.DocumentRecord) (*model.DocumentRecord, error)
	Get(ctx context.Context, documentID string) (*model.DocumentRecord, error)
	ListByOwner(ctx context.Context, address string) ([]model.DocumentRecord, error)
	ReassignOwnerTransactionally(ctx context.Context, documentID string, change repository.Reassignment) (*model.DocumentRecord, error)
	SoftDelete(ctx context.Context, documentID, requester string) error
	History(ctx context.Context, documentID string) ([]model.OwnershipChange, error)
}

type ShareStore interface {
	Grant(ctx context.Context, grantor string, g model.ShareGrant) (*model.ShareGrant, error)
	ListGrantsFor(ctx context.Context, address string) ([]model.GrantSummary, error)
	ResolveSharedDocuments(ctx context.Context, address string) ([]model.DocumentRecord, error)
}

type Verifier interface {
	Verify(ctx context.Context, req chain.VerifyRequest) (*chain.VerifiedTransaction, error)
}

// BindingChecker confirms that an account controls an address.
type BindingChecker interface {
	RequireBound(ctx context.Context, accountID, address string) error
}

type Publisher interface {
	Publish(address, msgType, docID string, payload any)
}

// DocumentService runs every claim as verify then persist: the ledger is
// queried with no store transaction open, and the write that follows is one
// short transaction that either commits fully or leaves nothing behind.
type DocumentService struct {
	Docs     DocumentStore
	Shares   ShareStore
	Wallets  BindingChecker
	Verifier Verifier
	Hub      Publisher
	Contract string
	Now      func() time.Time
}

func NewDocumentService(docs DocumentStore, shares ShareStore, wallets BindingChecker, verifier Verifier, hub Publisher, contract string) *DocumentService {
	return &DocumentService{
		Docs:     docs,
		Shares:   shares,
		Wallets:  wallets,
		Verifier: verifier,
		Hub:      hub,
		Contract: chain.Normalize(contract),
		Now:      time.Now,
	}
}

// rejectConsumed fails fast on a replayed hash before the ledger is queried.
func (s *DocumentService) rejectConsumed(ctx context.Context, txHash string) error {
	consumed, err := s.Docs.IsConsumed(ctx, txHash)
	if err != nil {
		return err
	}
	if consumed {
		return apperr.New(apperr.KindConflict, apperr.CodeDuplicateTransaction,
			"transaction %s has already been used by another claim", chain.Normalize(txHash))
	}
	return nil
}

func warnBlockDrift(txHash string, claimed, verified uint64) {
	if claimed != 0 && claimed != verified {
		logger.Log.Warn("claimed block number differs from chain",
			zap.String("tx", txHash), zap.Uint64("claimed", claimed), zap.Uint64("verified", verified))
	}
}

// ClaimUpload records ownership of a pinned file. The owner is whoever sent
// the verified transaction; the request's owner field only has to agree.
func (s *DocumentService) ClaimUpload(ctx context.Context, accountID string, req model.UploadClaimRequest) (*model.ClaimResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.Wallets.RequireBound(ctx, accountID, req.OwnerAddress); err != nil {
		return nil, err
	}
	if err := s.rejectConsumed(ctx, req.TransactionHash); err != nil {
		return nil, err
	}
	callData, err := chain.PackUpload(req.ContentHash, req.FileName, req.FileSize, req.DocumentType)
	if err != nil {
		return nil, apperr.Malformed("cannot encode upload call: %v", err)
	}

	vtx, err := s.Verifier.Verify(ctx, chain.VerifyRequest{
		TxHash:   req.TransactionHash,
		From:     req.OwnerAddress,
		Contract: s.Contract,
		CallData: callData,
	})
	if err != nil {
		return nil, err
	}
	warnBlockDrift(vtx.TxHash, req.BlockNumber, vtx.BlockNumber)

	now := s.Now().Unix()
	documentID, err := identity.Resolve(req.DocumentID, vtx, req.ContentHash, now, req.FileName)
	if err != nil {
		return nil, err
	}

	rec, err := s.Docs.RecordUpload(ctx, model.DocumentRecord{
		DocumentID:      documentID,
		ContentHash:     req.ContentHash,
		OwnerAddress:    vtx.From,
		CreatedAt:       now,
		DisplayName:     req.FileName,
		ByteSize:        req.FileSize,
		MediaType:       req.DocumentType,
		TransactionHash: vtx.TxHash,
		BlockNumber:     vtx.BlockNumber,
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("upload claim recorded",
		zap.String("document", rec.DocumentID),
		zap.String("owner", rec.OwnerAddress),
		zap.String("tx", rec.TransactionHash),
		zap.Uint64("block", rec.BlockNumber))
	s.Hub.Publish(rec.OwnerAddress, socket.DocumentUploadedType, rec.DocumentID, model.NewDocumentResponse(*rec, nil))

	return &model.ClaimResponse{
		DocumentID:      rec.DocumentID,
		TransactionHash: rec.TransactionHash,
		BlockNumber:     rec.BlockNumber,
		Confirmations:   vtx.Confirmations,
		Verified:        true,
	}, nil
}

// ownedActive is a cheap pre-check so that obvious refusals never reach the
// ledger. The store repeats the check under the row lock.
func (s *DocumentService) ownedActive(ctx context.Context, documentID, owner string) (*model.DocumentRecord, error) {
	rec, err := s.Docs.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !rec.Active {
		return nil, apperr.New(apperr.KindNotFound, apperr.CodeUnknownDocument, "document %s is inactive", documentID)
	}
	if !chain.SameAddress(rec.OwnerAddress, owner) {
		return nil, apperr.New(apperr.KindAuthorization, apperr.CodeNotOwner,
			"%s is not the owner of document %s", chain.Normalize(owner), documentID)
	}
	return rec, nil
}

// Share grants access to a document through a verified shareDocument call.
func (s *DocumentService) Share(ctx context.Context, accountID string, req model.ShareRequest) (*model.ShareGrant, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.Wallets.RequireBound(ctx, accountID, req.OwnerAddress); err != nil {
		return nil, err
	}
	if _, err := s.ownedActive(ctx, req.DocumentID, req.OwnerAddress); err != nil {
		return nil, err
	}
	if err := s.rejectConsumed(ctx, req.TransactionHash); err != nil {
		return nil, err
	}
	callData, err := chain.PackShare(req.DocumentID, req.ShareWith, string(req.Permission))
	if err != nil {
		return nil, apperr.Malformed("cannot encode share call: %v", err)
	}

	vtx, err := s.Verifier.Verify(ctx, chain.VerifyRequest{
		TxHash:   req.TransactionHash,
		From:     req.OwnerAddress,
		Contract: s.Contract,
		CallData: callData,
	})
	if err != nil {
		return nil, err
	}
	warnBlockDrift(vtx.TxHash, req.BlockNumber, vtx.BlockNumber)

	grant, err := s.Shares.Grant(ctx, vtx.From, model.ShareGrant{
		DocumentID:      req.DocumentID,
		GranteeAddress:  req.ShareWith,
		Permission:      req.Permission,
		GrantedAt:       s.Now().Unix(),
		TransactionHash: vtx.TxHash,
		BlockNumber:     vtx.BlockNumber,
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("share recorded",
		zap.String("document", grant.DocumentID),
		zap.String("grantee", grant.GranteeAddress),
		zap.String("permission", string(grant.Permission)),
		zap.String("tx", grant.TransactionHash))
	summary := model.GrantSummary{DocumentID: grant.DocumentID, Permission: grant.Permission, GrantedAt: grant.GrantedAt}
	s.Hub.Publish(grant.GranteeAddress, socket.DocumentSharedType, grant.DocumentID, summary)
	s.Hub.Publish(vtx.From, socket.DocumentSharedType, grant.DocumentID, summary)
	return grant, nil
}

// Reassign applies a verified transfer or id migration sent by the current
// owner. A transferDocument call names the new owner; an uploadDocument call
// moves the record to the id its DocumentUploaded event carries.
func (s *DocumentService) Reassign(ctx context.Context, accountID string, req model.ReassignRequest) (*model.DocumentRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.Wallets.RequireBound(ctx, accountID, req.OwnerAddress); err != nil {
		return nil, err
	}
	current, err := s.ownedActive(ctx, req.DocumentID, req.OwnerAddress)
	if err != nil {
		return nil, err
	}
	if err := s.rejectConsumed(ctx, req.TransactionHash); err != nil {
		return nil, err
	}

	vtx, err := s.Verifier.Verify(ctx, chain.VerifyRequest{
		TxHash:   req.TransactionHash,
		From:     req.OwnerAddress,
		Contract: s.Contract,
	})
	if err != nil {
		return nil, err
	}
	change, err := s.reassignmentFrom(vtx, current)
	if err != nil {
		return nil, err
	}
	change.ChangedAt = s.Now().Unix()

	rec, err := s.Docs.ReassignOwnerTransactionally(ctx, current.DocumentID, change)
	if err != nil {
		return nil, err
	}

	logger.Log.Info("document reassigned",
		zap.String("document", current.DocumentID),
		zap.String("new_document", rec.DocumentID),
		zap.String("previous_owner", current.OwnerAddress),
		zap.String("new_owner", rec.OwnerAddress),
		zap.String("tx", rec.TransactionHash))
	view := model.NewDocumentResponse(*rec, nil)
	s.Hub.Publish(current.OwnerAddress, socket.DocumentReassignedType, rec.DocumentID, view)
	if rec.OwnerAddress != current.OwnerAddress {
		s.Hub.Publish(rec.OwnerAddress, socket.DocumentReassignedType, rec.DocumentID, view)
	}
	return rec, nil
}

func (s *DocumentService) reassignmentFrom(vtx *chain.VerifiedTransaction, current *model.DocumentRecord) (repository.Reassignment, error) {
	documentID := current.DocumentID
	change := repository.Reassignment{
		Sender:          vtx.From,
		NewOwner:        vtx.From,
		TransactionHash: vtx.TxHash,
		BlockNumber:     vtx.BlockNumber,
	}
	call, err := chain.DecodeCall(vtx.CallData)
	if err != nil {
		return change, apperr.New(apperr.KindVerification, apperr.CodeCallDataMismatch,
			"transaction %s is not a registry call", vtx.TxHash)
	}

	switch call.Method {
	case chain.MethodTransfer:
		if call.DocumentID != documentID {
			return change, apperr.New(apperr.KindVerification, apperr.CodeIdentityMismatch,
				"transaction %s transfers %s, not %s", vtx.TxHash, call.DocumentID, documentID)
		}
		if call.Address == zeroAddress {
			return change, apperr.New(apperr.KindVerification, apperr.CodeCallDataMismatch,
				"transaction %s names no new owner", vtx.TxHash)
		}
		change.NewOwner = call.Address
	case chain.MethodUpload:
		newID, ok := identity.EncodedID(vtx)
		if !ok || newID == documentID {
			return change, apperr.New(apperr.KindVerification, apperr.CodeIdentityMismatch,
				"transaction %s does not emit a new document id", vtx.TxHash)
		}
		if !sameUpload(call, current) {
			return change, apperr.New(apperr.KindVerification, apperr.CodeCallDataMismatch,
				"transaction %s uploads different content than %s", vtx.TxHash, documentID)
		}
		change.NewDocumentID = newID
	default:
		return change, apperr.New(apperr.KindVerification, apperr.CodeCallDataMismatch,
			"transaction %s calls %s, which does not reassign documents", vtx.TxHash, call.Method)
	}
	return change, nil
}

// sameUpload reports whether an uploadDocument call describes rec exactly.
func sameUpload(call *chain.Call, rec *model.DocumentRecord) bool {
	return call.ContentHash == rec.ContentHash &&
		call.FileName == rec.DisplayName &&
		call.FileSize != nil && call.FileSize.IsInt64() && call.FileSize.Int64() == rec.ByteSize &&
		call.DocumentType == rec.MediaType
}

// Delete soft-deletes a document owned by address.
func (s *DocumentService) Delete(ctx context.Context, accountID, documentID, address string) error {
	if !chain.ValidateTxHash(documentID) {
		return apperr.Malformed("invalid document id %q", documentID)
	}
	if err := s.Wallets.RequireBound(ctx, accountID, address); err != nil {
		return err
	}
	if err := s.Docs.SoftDelete(ctx, documentID, address); err != nil {
		return err
	}
	logger.Log.Info("document deleted", zap.String("document", chain.Normalize(documentID)), zap.String("owner", chain.Normalize(address)))
	s.Hub.Publish(address, socket.DocumentDeletedType, chain.Normalize(documentID), nil)
	return nil
}

func (s *DocumentService) ListByOwner(ctx context.Context, address string) ([]model.DocumentRecord, error) {
	return s.Docs.ListByOwner(ctx, address)
}

func (s *DocumentService) SharedWith(ctx context.Context, address string) ([]model.DocumentRecord, error) {
	return s.Shares.ResolveSharedDocuments(ctx, address)
}

func (s *DocumentService) GrantsFor(ctx context.Context, address string) ([]model.GrantSummary, error) {
	return s.Shares.ListGrantsFor(ctx, address)
}

// History lists a document's reassignments. Only the owner, a previous owner
// or a grantee of the document may read it.
func (s *DocumentService) History(ctx context.Context, documentID, viewer string) ([]model.OwnershipChange, error) {
	if !chain.ValidateTxHash(documentID) {
		return nil, apperr.Malformed("invalid document id %q", documentID)
	}
	rec, err := s.Docs.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	changes, err := s.Docs.History(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if chain.SameAddress(rec.OwnerAddress, viewer) {
		return changes, nil
	}
	for _, c := range changes {
		if chain.SameAddress(c.PreviousOwner, viewer) || chain.SameAddress(c.NewOwner, viewer) {
			return changes, nil
		}
	}
	grants, err := s.Shares.ListGrantsFor(ctx, viewer)
	if err != nil {
		return nil, err
	}
	for _, g := range grants {
		if g.DocumentID == rec.DocumentID {
			return changes, nil
		}
	}
	return nil, apperr.New(apperr.KindAuthorization, apperr.CodeNotOwner,
		"%s has no stake in document %s", viewer, rec.DocumentID)
}
