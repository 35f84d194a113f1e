package repository

import (
	"context"
	"database/sql"
	"errors"

	"docuchain/config/database"
	"docuchain/internal/chain"
	"docuchain/internal/wallet/model"
	"docuchain/pkg/apperr"
	"docuchain/pkg/logger"
)

type WalletRepository struct {
	DB *sql.DB
}

func NewWalletRepository(db *sql.DB) *WalletRepository {
	return &WalletRepository{DB: db}
}

func storeErr(err error, op string) error {
	logger.Sugar.Errorf("Failed to %s: %v", op, err)
	return apperr.Store(err, op)
}

func notBound(accountID, address string) error {
	return apperr.New(apperr.KindAuthorization, apperr.CodeNotBound, "address %s is not bound to account %s", address, accountID)
}

// lockAccount upserts the account row and holds its lock for the rest of tx,
// which serializes every binding change of that account.
func lockAccount(ctx context.Context, tx *sql.Tx, acct model.Account) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO accounts (id, username, email) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			username = CASE WHEN EXCLUDED.username <> '' THEN EXCLUDED.username ELSE accounts.username END,
			email = CASE WHEN EXCLUDED.email <> '' THEN EXCLUDED.email ELSE accounts.email END`,
		acct.ID, acct.Username, acct.Email)
	return err
}

func lockBindings(ctx context.Context, tx *sql.Tx, accountID string) ([]model.WalletBinding, error) {
	rows, err := tx.QueryContext(ctx, `SELECT account_id, address, is_primary, is_active, added_at
		FROM wallet_bindings WHERE account_id = $1 ORDER BY address FOR UPDATE`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBindings(rows)
}

func scanBindings(rows *sql.Rows) ([]model.WalletBinding, error) {
	bindings := []model.WalletBinding{}
	for rows.Next() {
		var b model.WalletBinding
		if err := rows.Scan(&b.AccountID, &b.Address, &b.IsPrimary, &b.IsActive, &b.AddedAt); err != nil {
			return nil, err
		}
		bindings = append(bindings, b)
	}
	return bindings, rows.Err()
}

// Bind attaches address to acct. The first address of an account becomes its
// primary and active address. An address already bound anywhere fails with
// the holder's identity attached.
func (r *WalletRepository) Bind(ctx context.Context, acct model.Account, address string) (*model.WalletBinding, error) {
	address = chain.Normalize(address)

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr(err, "begin wallet binding")
	}
	defer tx.Rollback()

	if err := lockAccount(ctx, tx, acct); err != nil {
		return nil, storeErr(err, "upsert account")
	}
	var existing int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM wallet_bindings WHERE account_id = $1`, acct.ID).Scan(&existing); err != nil {
		return nil, storeErr(err, "count wallet bindings")
	}

	b := model.WalletBinding{AccountID: acct.ID, Address: address, IsPrimary: existing == 0, IsActive: existing == 0}
	err = tx.QueryRowContext(ctx, `INSERT INTO wallet_bindings (account_id, address, is_primary, is_active)
		VALUES ($1, $2, $3, $4) RETURNING added_at`,
		b.AccountID, b.Address, b.IsPrimary, b.IsActive).Scan(&b.AddedAt)
	if constraint, ok := database.UniqueViolation(err); ok && constraint == "wallet_bindings_address_key" {
		tx.Rollback()
		return nil, r.alreadyBound(ctx, address, err)
	}
	if err != nil {
		return nil, storeErr(err, "insert wallet binding")
	}
	if err := tx.Commit(); err != nil {
		return nil, storeErr(err, "commit wallet binding")
	}
	return &b, nil
}

func (r *WalletRepository) alreadyBound(ctx context.Context, address string, cause error) error {
	e := apperr.Wrap(cause, apperr.KindConflict, apperr.CodeAddressAlreadyBound,
		"address "+address+" is already bound to an account")
	var holder apperr.Conflict
	err := r.DB.QueryRowContext(ctx, `SELECT a.id, a.username FROM wallet_bindings w
		JOIN accounts a ON a.id = w.account_id WHERE w.address = $1`, address).Scan(&holder.AccountID, &holder.Username)
	if err != nil {
		logger.Sugar.Warnf("Could not resolve holder of %s: %v", address, err)
		return e
	}
	e.Conflict = &holder
	return e
}

// SetActive makes address the only active binding of accountID.
func (r *WalletRepository) SetActive(ctx context.Context, accountID, address string) error {
	address = chain.Normalize(address)

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return storeErr(err, "begin wallet switch")
	}
	defer tx.Rollback()

	bindings, err := lockBindings(ctx, tx, accountID)
	if err != nil {
		return storeErr(err, "lock wallet bindings")
	}
	if find(bindings, address) < 0 {
		return notBound(accountID, address)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE wallet_bindings SET is_active = FALSE WHERE account_id = $1 AND is_active`, accountID); err != nil {
		return storeErr(err, "deactivate wallets")
	}
	if _, err := tx.ExecContext(ctx, `UPDATE wallet_bindings SET is_active = TRUE WHERE account_id = $1 AND address = $2`, accountID, address); err != nil {
		return storeErr(err, "activate wallet")
	}
	if err := tx.Commit(); err != nil {
		return storeErr(err, "commit wallet switch")
	}
	return nil
}

// Unbind removes address from accountID. Removing the primary promotes the
// lowest remaining address; removing the active address activates the
// primary.
func (r *WalletRepository) Unbind(ctx context.Context, accountID, address string) error {
	address = chain.Normalize(address)

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return storeErr(err, "begin wallet removal")
	}
	defer tx.Rollback()

	bindings, err := lockBindings(ctx, tx, accountID)
	if err != nil {
		return storeErr(err, "lock wallet bindings")
	}
	i := find(bindings, address)
	if i < 0 {
		return notBound(accountID, address)
	}
	if len(bindings) == 1 {
		return apperr.New(apperr.KindInvariant, apperr.CodeLastWallet, "cannot remove the only wallet of an account")
	}
	target := bindings[i]
	remaining := append(append([]model.WalletBinding{}, bindings[:i]...), bindings[i+1:]...)

	if _, err := tx.ExecContext(ctx, `DELETE FROM wallet_bindings WHERE account_id = $1 AND address = $2`, accountID, address); err != nil {
		return storeErr(err, "delete wallet binding")
	}

	primary := ""
	for _, b := range remaining {
		if b.IsPrimary {
			primary = b.Address
		}
	}
	if target.IsPrimary {
		// remaining is ordered by address
		primary = remaining[0].Address
		if _, err := tx.ExecContext(ctx, `UPDATE wallet_bindings SET is_primary = TRUE WHERE account_id = $1 AND address = $2`, accountID, primary); err != nil {
			return storeErr(err, "promote primary wallet")
		}
	}
	if target.IsActive {
		if _, err := tx.ExecContext(ctx, `UPDATE wallet_bindings SET is_active = TRUE WHERE account_id = $1 AND address = $2`, accountID, primary); err != nil {
			return storeErr(err, "activate primary wallet")
		}
	}
	if err := tx.Commit(); err != nil {
		return storeErr(err, "commit wallet removal")
	}
	return nil
}

func find(bindings []model.WalletBinding, address string) int {
	for i, b := range bindings {
		if b.Address == address {
			return i
		}
	}
	return -1
}

// List returns the bindings of accountID, primary first.
func (r *WalletRepository) List(ctx context.Context, accountID string) ([]model.WalletBinding, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT account_id, address, is_primary, is_active, added_at
		FROM wallet_bindings WHERE account_id = $1 ORDER BY is_primary DESC, address`, accountID)
	if err != nil {
		return nil, storeErr(err, "list wallets")
	}
	defer rows.Close()
	bindings, err := scanBindings(rows)
	if err != nil {
		return nil, storeErr(err, "scan wallets")
	}
	return bindings, nil
}

// ActiveAddress returns "" with a nil error when the account has no binding.
func (r *WalletRepository) ActiveAddress(ctx context.Context, accountID string) (string, error) {
	var address string
	err := r.DB.QueryRowContext(ctx, `SELECT address FROM wallet_bindings WHERE account_id = $1 AND is_active`, accountID).Scan(&address)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", storeErr(err, "get active wallet")
	}
	return address, nil
}

func (r *WalletRepository) IsBound(ctx context.Context, accountID, address string) (bool, error) {
	var bound bool
	err := r.DB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM wallet_bindings WHERE account_id = $1 AND address = $2)`,
		accountID, chain.Normalize(address)).Scan(&bound)
	if err != nil {
		return false, storeErr(err, "check wallet binding")
	}
	return bound, nil
}

// ResolveAccounts lists the accounts bound to address with their active
// document count. It never writes.
func (r *WalletRepository) ResolveAccounts(ctx context.Context, address string) ([]model.AccountSummary, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT a.id, a.username, a.email, w.address, w.is_primary, w.is_active,
		(SELECT COUNT(*) FROM documents d WHERE d.owner_address = w.address AND d.is_active)
		FROM wallet_bindings w JOIN accounts a ON a.id = w.account_id
		WHERE w.address = $1 ORDER BY a.id`, chain.Normalize(address))
	if err != nil {
		return nil, storeErr(err, "resolve accounts")
	}
	defer rows.Close()

	accounts := []model.AccountSummary{}
	for rows.Next() {
		var s model.AccountSummary
		if err := rows.Scan(&s.AccountID, &s.Username, &s.Email, &s.Address, &s.IsPrimary, &s.IsActive, &s.DocumentCount); err != nil {
			return nil, storeErr(err, "scan account summary")
		}
		accounts = append(accounts, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err, "iterate account summaries")
	}
	return accounts, nil
}
