package model

import (
	"time"

	"docuchain/internal/chain"
	"docuchain/pkg/apperr"
)

// Account is the public identity of an authenticated caller. Credentials
// live with the auth provider.
type Account struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

type WalletBinding struct {
	AccountID string    `json:"accountId"`
	Address   string    `json:"address"`
	IsPrimary bool      `json:"isPrimary"`
	IsActive  bool      `json:"isActive"`
	AddedAt   time.Time `json:"addedAt"`
}

// AccountSummary describes an account bound to an address.
type AccountSummary struct {
	AccountID     string `json:"id"`
	Username      string `json:"username"`
	Email         string `json:"email,omitempty"`
	Address       string `json:"walletAddress"`
	IsPrimary     bool   `json:"isPrimary"`
	IsActive      bool   `json:"isActive"`
	DocumentCount int    `json:"documentCount"`
}

type WalletList struct {
	Wallets      []WalletBinding `json:"wallets"`
	ActiveWallet string          `json:"activeWallet"`
}

type WalletRequest struct {
	WalletAddress string `json:"walletAddress"`
}

func (r *WalletRequest) Validate() error {
	if !chain.ValidateAddress(r.WalletAddress) {
		return apperr.Malformed("invalid wallet address %q", r.WalletAddress)
	}
	return nil
}

type AccountsResponse struct {
	Accounts []AccountSummary `json:"accounts"`
	Count    int              `json:"count"`
}
