package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"docuchain/internal/wallet/model"
	"docuchain/pkg/apperr"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	addrA = "0x" + strings.Repeat("a", 40)
	addrB = "0x" + strings.Repeat("b", 40)
	addrC = "0x" + strings.Repeat("c", 40)
	alice = model.Account{ID: "acct-alice", Username: "alice", Email: "alice@example.com"}
	added = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
)

var bindingCols = []string{"account_id", "address", "is_primary", "is_active", "added_at"}

func newRepo(t *testing.T) (*WalletRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewWalletRepository(db), mock
}

func expectAccountUpsert(mock sqlmock.Sqlmock, acct model.Account) {
	mock.ExpectExec("INSERT INTO accounts(.+)ON CONFLICT \\(id\\) DO UPDATE").
		WithArgs(acct.ID, acct.Username, acct.Email).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func TestBindFirstWalletBecomesPrimary(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectBegin()
	expectAccountUpsert(mock, alice)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM wallet_bindings WHERE account_id = \\$1").
		WithArgs(alice.ID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("INSERT INTO wallet_bindings").
		WithArgs(alice.ID, addrA, true, true).
		WillReturnRows(sqlmock.NewRows([]string{"added_at"}).AddRow(added))
	mock.ExpectCommit()

	b, err := repo.Bind(context.Background(), alice, "0x"+strings.Repeat("A", 40))
	require.NoError(t, err)
	assert.Equal(t, addrA, b.Address)
	assert.True(t, b.IsPrimary)
	assert.True(t, b.IsActive)
	assert.Equal(t, added, b.AddedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBindSecondWalletIsSecondary(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectBegin()
	expectAccountUpsert(mock, alice)
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("INSERT INTO wallet_bindings").
		WithArgs(alice.ID, addrB, false, false).
		WillReturnRows(sqlmock.NewRows([]string{"added_at"}).AddRow(added))
	mock.ExpectCommit()

	b, err := repo.Bind(context.Background(), alice, addrB)
	require.NoError(t, err)
	assert.False(t, b.IsPrimary)
	assert.False(t, b.IsActive)
}

func TestBindAddressHeldByAnotherAccount(t *testing.T) {
	repo, mock := newRepo(t)
	bob := model.Account{ID: "acct-bob", Username: "bob"}

	mock.ExpectBegin()
	expectAccountUpsert(mock, bob)
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("INSERT INTO wallet_bindings").
		WithArgs(bob.ID, addrA, true, true).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "wallet_bindings_address_key"})
	mock.ExpectRollback()
	mock.ExpectQuery("SELECT a.id, a.username FROM wallet_bindings w").
		WithArgs(addrA).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username"}).AddRow(alice.ID, alice.Username))

	_, err := repo.Bind(context.Background(), bob, addrA)
	require.ErrorIs(t, err, apperr.ErrAddressAlreadyBound)

	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	require.NotNil(t, ae.Conflict)
	assert.Equal(t, alice.ID, ae.Conflict.AccountID)
	assert.Equal(t, "alice", ae.Conflict.Username)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func lockedBindings(rows ...model.WalletBinding) *sqlmock.Rows {
	out := sqlmock.NewRows(bindingCols)
	for _, b := range rows {
		out.AddRow(b.AccountID, b.Address, b.IsPrimary, b.IsActive, added)
	}
	return out
}

func TestSetActive(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM wallet_bindings WHERE account_id = \\$1 ORDER BY address FOR UPDATE").
		WithArgs(alice.ID).
		WillReturnRows(lockedBindings(
			model.WalletBinding{AccountID: alice.ID, Address: addrA, IsPrimary: true, IsActive: true},
			model.WalletBinding{AccountID: alice.ID, Address: addrB},
		))
	mock.ExpectExec("UPDATE wallet_bindings SET is_active = FALSE WHERE account_id = \\$1 AND is_active").
		WithArgs(alice.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE wallet_bindings SET is_active = TRUE WHERE account_id = \\$1 AND address = \\$2").
		WithArgs(alice.ID, addrB).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.SetActive(context.Background(), alice.ID, addrB))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetActiveNotBound(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(alice.ID).
		WillReturnRows(lockedBindings(model.WalletBinding{AccountID: alice.ID, Address: addrA, IsPrimary: true, IsActive: true}))
	mock.ExpectRollback()

	err := repo.SetActive(context.Background(), alice.ID, addrC)
	assert.ErrorIs(t, err, apperr.ErrNotBound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnbindLastWallet(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(alice.ID).
		WillReturnRows(lockedBindings(model.WalletBinding{AccountID: alice.ID, Address: addrA, IsPrimary: true, IsActive: true}))
	mock.ExpectRollback()

	err := repo.Unbind(context.Background(), alice.ID, addrA)
	assert.ErrorIs(t, err, apperr.ErrLastWallet)
	assert.Equal(t, apperr.KindInvariant, apperr.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnbindPrimaryPromotesLowestAddress(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(alice.ID).
		WillReturnRows(lockedBindings(
			model.WalletBinding{AccountID: alice.ID, Address: addrA, IsPrimary: true, IsActive: true},
			model.WalletBinding{AccountID: alice.ID, Address: addrB},
			model.WalletBinding{AccountID: alice.ID, Address: addrC},
		))
	mock.ExpectExec("DELETE FROM wallet_bindings WHERE account_id = \\$1 AND address = \\$2").
		WithArgs(alice.ID, addrA).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE wallet_bindings SET is_primary = TRUE").
		WithArgs(alice.ID, addrB).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE wallet_bindings SET is_active = TRUE").
		WithArgs(alice.ID, addrB).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Unbind(context.Background(), alice.ID, addrA))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnbindActiveSecondaryActivatesPrimary(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(alice.ID).
		WillReturnRows(lockedBindings(
			model.WalletBinding{AccountID: alice.ID, Address: addrA},
			model.WalletBinding{AccountID: alice.ID, Address: addrB, IsActive: true},
			model.WalletBinding{AccountID: alice.ID, Address: addrC, IsPrimary: true},
		))
	mock.ExpectExec("DELETE FROM wallet_bindings").
		WithArgs(alice.ID, addrB).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE wallet_bindings SET is_active = TRUE").
		WithArgs(alice.ID, addrC).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Unbind(context.Background(), alice.ID, addrB))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActiveAddressNone(t *testing.T) {
	repo, mock := newRepo(t)
	mock.ExpectQuery("SELECT address FROM wallet_bindings WHERE account_id = \\$1 AND is_active").
		WithArgs(alice.ID).
		WillReturnRows(sqlmock.NewRows([]string{"address"}))

	addr, err := repo.ActiveAddress(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Empty(t, addr)
}

func TestResolveAccounts(t *testing.T) {
	repo, mock := newRepo(t)
	mock.ExpectQuery("FROM wallet_bindings w JOIN accounts a ON a.id = w.account_id").
		WithArgs(addrA).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "email", "address", "is_primary", "is_active", "count"}).
			AddRow(alice.ID, "alice", alice.Email, addrA, true, true, 3))

	accounts, err := repo.ResolveAccounts(context.Background(), addrA)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, 3, accounts[0].DocumentCount)
	assert.True(t, accounts[0].IsPrimary)
	assert.NoError(t, mock.ExpectationsWereMet())
}
