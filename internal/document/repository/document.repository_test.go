package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"
	"testing"

	"docuchain/internal/document/model"
	"docuchain/pkg/apperr"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner    = "0x" + strings.Repeat("a", 40)
	stranger = "0x" + strings.Repeat("d", 40)
	grantee  = "0x" + strings.Repeat("c", 40)
	txHash   = "0x" + strings.Repeat("b", 64)
	txHash2  = "0x" + strings.Repeat("f", 64)
	docID    = "0x" + strings.Repeat("1", 64)
	newDocID = "0x" + strings.Repeat("2", 64)
)

var documentCols = []string{"document_id", "content_hash", "owner_address", "created_at", "display_name",
	"byte_size", "media_type", "is_active", "transaction_hash", "block_number"}

func sampleRecord() model.DocumentRecord {
	return model.DocumentRecord{
		DocumentID:      docID,
		ContentHash:     "Qm123",
		OwnerAddress:    owner,
		CreatedAt:       1700000000,
		DisplayName:     "report.pdf",
		ByteSize:        2048,
		MediaType:       "application/pdf",
		TransactionHash: txHash,
		BlockNumber:     100,
	}
}

func documentRow(active bool, ownerAddr string) *sqlmock.Rows {
	return sqlmock.NewRows(documentCols).
		AddRow(docID, "Qm123", ownerAddr, int64(1700000000), "report.pdf", int64(2048), "application/pdf", active, txHash, int64(100))
}

func newRepo(t *testing.T) (*DocumentRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewDocumentRepository(db), mock
}

func uploadArgs(rec model.DocumentRecord) []driver.Value {
	return []driver.Value{rec.DocumentID, rec.ContentHash, rec.OwnerAddress, rec.CreatedAt, rec.DisplayName,
		rec.ByteSize, rec.MediaType, rec.TransactionHash, int64(rec.BlockNumber)}
}

func TestRecordUpload(t *testing.T) {
	repo, mock := newRepo(t)
	rec := sampleRecord()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO consumed_transactions").
		WithArgs(txHash, PurposeUpload).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO documents").
		WithArgs(uploadArgs(rec)...).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	upper := rec
	upper.OwnerAddress = "0x" + strings.Repeat("A", 40)
	got, err := repo.RecordUpload(context.Background(), upper)
	require.NoError(t, err)
	assert.Equal(t, owner, got.OwnerAddress)
	assert.True(t, got.Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordUploadReplayedTransaction(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO consumed_transactions").
		WithArgs(txHash, PurposeUpload).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "consumed_transactions_pkey"})
	mock.ExpectRollback()

	_, err := repo.RecordUpload(context.Background(), sampleRecord())
	assert.ErrorIs(t, err, apperr.ErrDuplicateTransaction)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordUploadDuplicateDocumentID(t *testing.T) {
	repo, mock := newRepo(t)
	rec := sampleRecord()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO consumed_transactions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO documents").
		WithArgs(uploadArgs(rec)...).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "documents_pkey"})
	mock.ExpectRollback()

	_, err := repo.RecordUpload(context.Background(), rec)
	assert.ErrorIs(t, err, apperr.ErrDuplicateDocumentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordUploadStoreFailure(t *testing.T) {
	repo, mock := newRepo(t)
	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	_, err := repo.RecordUpload(context.Background(), sampleRecord())
	assert.ErrorIs(t, err, apperr.ErrStoreUnavailable)
	assert.Equal(t, 503, apperr.HTTPStatus(err))
}

func TestListByOwner(t *testing.T) {
	repo, mock := newRepo(t)
	mock.ExpectQuery("SELECT (.+) FROM documents\\s+WHERE owner_address = \\$1 AND is_active").
		WithArgs(owner).
		WillReturnRows(documentRow(true, owner))

	docs, err := repo.ListByOwner(context.Background(), "0x"+strings.Repeat("A", 40))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Qm123", docs[0].ContentHash)
	assert.Equal(t, uint64(100), docs[0].BlockNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUnknownDocument(t *testing.T) {
	repo, mock := newRepo(t)
	mock.ExpectQuery("SELECT (.+) FROM documents WHERE document_id = \\$1").
		WithArgs(docID).
		WillReturnRows(sqlmock.NewRows(documentCols))

	_, err := repo.Get(context.Background(), docID)
	assert.ErrorIs(t, err, apperr.ErrUnknownDocument)
}

func TestReassignTransfersOwner(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM documents WHERE document_id = \\$1 FOR UPDATE").
		WithArgs(docID).
		WillReturnRows(documentRow(true, owner))
	mock.ExpectExec("INSERT INTO consumed_transactions").
		WithArgs(txHash2, PurposeReassign).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE documents\\s+SET document_id = \\$1, owner_address = \\$2").
		WithArgs(docID, grantee, txHash2, int64(140), docID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO document_ownership_history").
		WithArgs(docID, docID, owner, grantee, txHash2, int64(140), int64(1700000500)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	rec, err := repo.ReassignOwnerTransactionally(context.Background(), docID, Reassignment{
		Sender:          owner,
		NewOwner:        grantee,
		TransactionHash: txHash2,
		BlockNumber:     140,
		ChangedAt:       1700000500,
	})
	require.NoError(t, err)
	assert.Equal(t, grantee, rec.OwnerAddress)
	assert.Equal(t, txHash2, rec.TransactionHash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReassignMigratesID(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(docID).WillReturnRows(documentRow(true, owner))
	mock.ExpectExec("INSERT INTO consumed_transactions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE documents").
		WithArgs(newDocID, owner, txHash2, int64(150), docID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE document_ownership_history SET document_id = \\$1").
		WithArgs(newDocID, docID).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO document_ownership_history").
		WithArgs(newDocID, docID, owner, owner, txHash2, int64(150), int64(1)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	rec, err := repo.ReassignOwnerTransactionally(context.Background(), docID, Reassignment{
		Sender:          owner,
		NewOwner:        owner,
		NewDocumentID:   newDocID,
		TransactionHash: txHash2,
		BlockNumber:     150,
		ChangedAt:       1,
	})
	require.NoError(t, err)
	assert.Equal(t, newDocID, rec.DocumentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReassignRejectsNonOwner(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(docID).WillReturnRows(documentRow(true, owner))
	mock.ExpectRollback()

	_, err := repo.ReassignOwnerTransactionally(context.Background(), docID, Reassignment{
		Sender:          stranger,
		NewOwner:        stranger,
		TransactionHash: txHash2,
	})
	assert.ErrorIs(t, err, apperr.ErrNotOwner)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSoftDelete(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(docID).WillReturnRows(documentRow(true, owner))
	mock.ExpectExec("UPDATE documents SET is_active = FALSE WHERE document_id = \\$1").
		WithArgs(docID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.SoftDelete(context.Background(), docID, owner))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSoftDeleteRejections(t *testing.T) {
	tests := []struct {
		name      string
		active    bool
		requester string
		want      error
	}{
		{"not owner", true, stranger, apperr.ErrNotOwner},
		{"already deleted", false, owner, apperr.ErrUnknownDocument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newRepo(t)
			mock.ExpectBegin()
			mock.ExpectQuery("FOR UPDATE").WithArgs(docID).WillReturnRows(documentRow(tt.active, owner))
			mock.ExpectRollback()

			err := repo.SoftDelete(context.Background(), docID, tt.requester)
			assert.ErrorIs(t, err, tt.want)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestHistory(t *testing.T) {
	repo, mock := newRepo(t)
	mock.ExpectQuery("FROM document_ownership_history WHERE document_id = \\$1 ORDER BY id").
		WithArgs(docID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "document_id", "previous_document_id", "previous_owner",
			"new_owner", "transaction_hash", "block_number", "changed_at"}).
			AddRow(int64(1), docID, docID, owner, grantee, txHash2, int64(140), int64(1700000500)))

	changes, err := repo.History(context.Background(), docID)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, grantee, changes[0].NewOwner)
	assert.Equal(t, uint64(140), changes[0].BlockNumber)
}

func TestIsConsumed(t *testing.T) {
	repo, mock := newRepo(t)
	mock.ExpectQuery("SELECT EXISTS \\(SELECT 1 FROM consumed_transactions WHERE transaction_hash = \\$1\\)").
		WithArgs(txHash).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	consumed, err := repo.IsConsumed(context.Background(), "0x"+strings.Repeat("B", 64))
	require.NoError(t, err)
	assert.True(t, consumed)
}
