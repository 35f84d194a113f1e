package repository

import (
	"context"
	"database/sql"

	"docuchain/internal/chain"
	"docuchain/internal/document/model"
)

// ShareRepository is the share ledger. Grants are keyed by
// (document, grantee); a newer verified grant replaces the permission.
type ShareRepository struct {
	DB *sql.DB
}

func NewShareRepository(db *sql.DB) *ShareRepository {
	return &ShareRepository{DB: db}
}

// Grant records g on behalf of grantor, who must own the active document at
// the time the row lock is taken.
func (r *ShareRepository) Grant(ctx context.Context, grantor string, g model.ShareGrant) (*model.ShareGrant, error) {
	g.DocumentID = chain.Normalize(g.DocumentID)
	g.GranteeAddress = chain.Normalize(g.GranteeAddress)
	g.TransactionHash = chain.Normalize(g.TransactionHash)

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(err, "begin grant")
	}
	defer tx.Rollback()

	if _, err := lockActive(ctx, tx, g.DocumentID, grantor); err != nil {
		return nil, err
	}
	if err := consume(ctx, tx, g.TransactionHash, PurposeShare); err != nil {
		return nil, classify(err, "grant access")
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO document_shares
		(document_id, grantee_address, permission, granted_at, transaction_hash, block_number)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (document_id, grantee_address) DO UPDATE
		SET permission = $3, granted_at = $4, transaction_hash = $5, block_number = $6`,
		g.DocumentID, g.GranteeAddress, string(g.Permission), g.GrantedAt, g.TransactionHash, int64(g.BlockNumber))
	if err != nil {
		return nil, classify(err, "grant access")
	}
	if err := tx.Commit(); err != nil {
		return nil, classify(err, "commit grant")
	}
	return &g, nil
}

// ListGrantsFor lists every grant held by address, including grants on
// documents that were later deleted.
func (r *ShareRepository) ListGrantsFor(ctx context.Context, address string) ([]model.GrantSummary, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT document_id, permission, granted_at
		FROM document_shares WHERE grantee_address = $1 ORDER BY granted_at DESC, document_id`,
		chain.Normalize(address))
	if err != nil {
		return nil, classify(err, "list grants")
	}
	defer rows.Close()

	grants := []model.GrantSummary{}
	for rows.Next() {
		var g model.GrantSummary
		if err := rows.Scan(&g.DocumentID, &g.Permission, &g.GrantedAt); err != nil {
			return nil, classify(err, "scan grant")
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "iterate grants")
	}
	return grants, nil
}

// ResolveSharedDocuments returns the active documents shared with address.
// Grants on inactive documents are skipped.
func (r *ShareRepository) ResolveSharedDocuments(ctx context.Context, address string) ([]model.DocumentRecord, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT d.document_id, d.content_hash, d.owner_address, d.created_at,
		d.display_name, d.byte_size, d.media_type, d.is_active, d.transaction_hash, d.block_number
		FROM document_shares s JOIN documents d ON d.document_id = s.document_id
		WHERE s.grantee_address = $1 AND d.is_active
		ORDER BY s.granted_at DESC, d.document_id`,
		chain.Normalize(address))
	if err != nil {
		return nil, classify(err, "resolve shared documents")
	}
	defer rows.Close()
	return collectDocuments(rows)
}
