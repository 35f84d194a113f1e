package repository

import (
	"context"
	"database/sql"
	"errors"

	"docuchain/config/database"
	"docuchain/internal/chain"
	"docuchain/internal/document/model"
	"docuchain/pkg/apperr"
	"docuchain/pkg/logger"
)

// Purposes recorded next to each consumed transaction hash.
const (
	PurposeUpload   = "upload"
	PurposeShare    = "share"
	PurposeReassign = "reassign"
)

const documentColumns = `document_id, content_hash, owner_address, created_at, display_name,
	byte_size, media_type, is_active, transaction_hash, block_number`

// DocumentRepository is the ownership index. Every write runs in one short
// transaction and consumes the verified transaction hash inside it, so a hash
// can back at most one upload, grant or reassignment.
type DocumentRepository struct {
	DB *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{DB: db}
}

// Reassignment describes a verified change of owner and/or id.
type Reassignment struct {
	Sender          string
	NewOwner        string
	NewDocumentID   string
	TransactionHash string
	BlockNumber     uint64
	ChangedAt       int64
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*model.DocumentRecord, error) {
	var rec model.DocumentRecord
	var block int64
	err := row.Scan(&rec.DocumentID, &rec.ContentHash, &rec.OwnerAddress, &rec.CreatedAt, &rec.DisplayName,
		&rec.ByteSize, &rec.MediaType, &rec.Active, &rec.TransactionHash, &block)
	if err != nil {
		return nil, err
	}
	rec.BlockNumber = uint64(block)
	return &rec, nil
}

// consume claims txHash for purpose. A second claim of the same hash fails on
// the primary key even when both transactions are in flight.
func consume(ctx context.Context, tx *sql.Tx, txHash, purpose string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO consumed_transactions (transaction_hash, purpose) VALUES ($1, $2)`,
		chain.Normalize(txHash), purpose)
	return err
}

// classify maps a failed statement onto the registry error taxonomy.
func classify(err error, op string) error {
	if constraint, ok := database.UniqueViolation(err); ok {
		switch constraint {
		case "consumed_transactions_pkey", "documents_transaction_hash_key", "document_shares_transaction_hash_key":
			logger.Sugar.Warnf("Rejected %s: transaction hash already consumed", op)
			return apperr.Wrap(err, apperr.KindConflict, apperr.CodeDuplicateTransaction,
				"transaction hash has already been used by another claim")
		case "documents_pkey":
			logger.Sugar.Warnf("Rejected %s: document id already exists", op)
			return apperr.Wrap(err, apperr.KindConflict, apperr.CodeDuplicateDocumentID,
				"document id already exists")
		}
	}
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		logger.Sugar.Errorf("Failed to %s: %v", op, err)
	}
	return apperr.Store(err, op)
}

func unknownDocument(id string) error {
	return apperr.New(apperr.KindNotFound, apperr.CodeUnknownDocument, "document %s does not exist or is inactive", id)
}

func notOwner(id, address string) error {
	return apperr.New(apperr.KindAuthorization, apperr.CodeNotOwner, "%s is not the owner of document %s", address, id)
}

// RecordUpload inserts rec after consuming its transaction hash.
func (r *DocumentRepository) RecordUpload(ctx context.Context, rec model.DocumentRecord) (*model.DocumentRecord, error) {
	rec.DocumentID = chain.Normalize(rec.DocumentID)
	rec.OwnerAddress = chain.Normalize(rec.OwnerAddress)
	rec.TransactionHash = chain.Normalize(rec.TransactionHash)
	rec.Active = true

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(err, "begin upload claim")
	}
	defer tx.Rollback()

	if err := consume(ctx, tx, rec.TransactionHash, PurposeUpload); err != nil {
		return nil, classify(err, "record upload")
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO documents (`+documentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8, $9)`,
		rec.DocumentID, rec.ContentHash, rec.OwnerAddress, rec.CreatedAt, rec.DisplayName,
		rec.ByteSize, rec.MediaType, rec.TransactionHash, int64(rec.BlockNumber))
	if err != nil {
		return nil, classify(err, "record upload")
	}
	if err := tx.Commit(); err != nil {
		return nil, classify(err, "commit upload claim")
	}
	return &rec, nil
}

// IsConsumed reports whether txHash already backs a claim. It is advisory;
// the insert in consume is what enforces uniqueness.
func (r *DocumentRepository) IsConsumed(ctx context.Context, txHash string) (bool, error) {
	var consumed bool
	err := r.DB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM consumed_transactions WHERE transaction_hash = $1)`,
		chain.Normalize(txHash)).Scan(&consumed)
	if err != nil {
		return false, classify(err, "check consumed transaction")
	}
	return consumed, nil
}

// Get returns the record whether or not it is active.
func (r *DocumentRepository) Get(ctx context.Context, documentID string) (*model.DocumentRecord, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE document_id = $1`,
		chain.Normalize(documentID))
	rec, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, unknownDocument(documentID)
	}
	if err != nil {
		return nil, classify(err, "get document")
	}
	return rec, nil
}

func (r *DocumentRepository) ListByOwner(ctx context.Context, address string) ([]model.DocumentRecord, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents
		WHERE owner_address = $1 AND is_active ORDER BY created_at DESC, document_id`,
		chain.Normalize(address))
	if err != nil {
		return nil, classify(err, "list documents by owner")
	}
	defer rows.Close()
	return collectDocuments(rows)
}

func collectDocuments(rows *sql.Rows) ([]model.DocumentRecord, error) {
	docs := []model.DocumentRecord{}
	for rows.Next() {
		rec, err := scanDocument(rows)
		if err != nil {
			return nil, classify(err, "scan document")
		}
		docs = append(docs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "iterate documents")
	}
	return docs, nil
}

// lockActive locks the document row for the rest of tx and checks that
// requester owns it.
func lockActive(ctx context.Context, tx *sql.Tx, documentID, requester string) (*model.DocumentRecord, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE document_id = $1 FOR UPDATE`,
		chain.Normalize(documentID))
	rec, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, unknownDocument(documentID)
	}
	if err != nil {
		return nil, classify(err, "lock document")
	}
	if !rec.Active {
		return nil, unknownDocument(documentID)
	}
	if !chain.SameAddress(rec.OwnerAddress, requester) {
		return nil, notOwner(documentID, requester)
	}
	return rec, nil
}

// ReassignOwnerTransactionally moves documentID to change.NewOwner and, for
// an id migration, to change.NewDocumentID. The sender of the verified
// transaction must be the current owner.
func (r *DocumentRepository) ReassignOwnerTransactionally(ctx context.Context, documentID string, change Reassignment) (*model.DocumentRecord, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(err, "begin reassignment")
	}
	defer tx.Rollback()

	rec, err := lockActive(ctx, tx, documentID, change.Sender)
	if err != nil {
		return nil, err
	}
	if err := consume(ctx, tx, change.TransactionHash, PurposeReassign); err != nil {
		return nil, classify(err, "reassign document")
	}

	prevID, prevOwner := rec.DocumentID, rec.OwnerAddress
	rec.OwnerAddress = chain.Normalize(change.NewOwner)
	if change.NewDocumentID != "" {
		rec.DocumentID = chain.Normalize(change.NewDocumentID)
	}
	rec.TransactionHash = chain.Normalize(change.TransactionHash)
	rec.BlockNumber = change.BlockNumber

	_, err = tx.ExecContext(ctx, `UPDATE documents
		SET document_id = $1, owner_address = $2, transaction_hash = $3, block_number = $4
		WHERE document_id = $5`,
		rec.DocumentID, rec.OwnerAddress, rec.TransactionHash, int64(rec.BlockNumber), prevID)
	if err != nil {
		return nil, classify(err, "reassign document")
	}
	if rec.DocumentID != prevID {
		_, err = tx.ExecContext(ctx, `UPDATE document_ownership_history SET document_id = $1 WHERE document_id = $2`,
			rec.DocumentID, prevID)
		if err != nil {
			return nil, classify(err, "carry ownership history")
		}
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO document_ownership_history
		(document_id, previous_document_id, previous_owner, new_owner, transaction_hash, block_number, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.DocumentID, prevID, prevOwner, rec.OwnerAddress, rec.TransactionHash, int64(rec.BlockNumber), change.ChangedAt)
	if err != nil {
		return nil, classify(err, "append ownership history")
	}
	if err := tx.Commit(); err != nil {
		return nil, classify(err, "commit reassignment")
	}
	return rec, nil
}

// SoftDelete marks the document inactive. Grants are kept and simply stop
// resolving.
func (r *DocumentRepository) SoftDelete(ctx context.Context, documentID, requester string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return classify(err, "begin delete")
	}
	defer tx.Rollback()

	rec, err := lockActive(ctx, tx, documentID, requester)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE documents SET is_active = FALSE WHERE document_id = $1`, rec.DocumentID); err != nil {
		return classify(err, "delete document")
	}
	if err := tx.Commit(); err != nil {
		return classify(err, "commit delete")
	}
	return nil
}

func (r *DocumentRepository) History(ctx context.Context, documentID string) ([]model.OwnershipChange, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, document_id, previous_document_id, previous_owner, new_owner,
		transaction_hash, block_number, changed_at
		FROM document_ownership_history WHERE document_id = $1 ORDER BY id`,
		chain.Normalize(documentID))
	if err != nil {
		return nil, classify(err, "list ownership history")
	}
	defer rows.Close()

	changes := []model.OwnershipChange{}
	for rows.Next() {
		var c model.OwnershipChange
		var block int64
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.PreviousDocumentID, &c.PreviousOwner, &c.NewOwner,
			&c.TransactionHash, &block, &c.ChangedAt); err != nil {
			return nil, classify(err, "scan ownership history")
		}
		c.BlockNumber = uint64(block)
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "iterate ownership history")
	}
	return changes, nil
}
