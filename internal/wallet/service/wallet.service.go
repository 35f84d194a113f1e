package service

import (
	"context"

	"docuchain/internal/chain"
	"docuchain/internal/wallet/model"
	"docuchain/pkg/apperr"
	"docuchain/pkg/logger"
	"docuchain/socket"

	"go.uber.org/zap"
)

// Store is the persistence the wallet registry needs.
type Store interface {
	Bind(ctx context.Context, acct model.Account, address string) (*model.WalletBinding, error)
	SetActive(ctx context.Context, accountID, address string) error
	Unbind(ctx context.Context, accountID, address string) error
	List(ctx context.Context, accountID string) ([]model.WalletBinding, error)
	ActiveAddress(ctx context.Context, accountID string) (string, error)
	IsBound(ctx context.Context, accountID, address string) (bool, error)
	ResolveAccounts(ctx context.Context, address string) ([]model.AccountSummary, error)
}

type Publisher interface {
	Publish(address, msgType, docID string, payload any)
}

// WalletService is the account/address registry. It is the only writer of
// wallet bindings.
type WalletService struct {
	Store Store
	Hub   Publisher
}

func NewWalletService(store Store, hub Publisher) *WalletService {
	return &WalletService{Store: store, Hub: hub}
}

func validAddress(address string) error {
	if !chain.ValidateAddress(address) {
		return apperr.Malformed("invalid wallet address %q", address)
	}
	return nil
}

func (s *WalletService) BindAddress(ctx context.Context, acct model.Account, address string) (*model.WalletBinding, error) {
	if err := validAddress(address); err != nil {
		return nil, err
	}
	b, err := s.Store.Bind(ctx, acct, address)
	if err != nil {
		return nil, err
	}
	logger.Log.Info("wallet bound",
		zap.String("account", acct.ID),
		zap.String("address", b.Address),
		zap.Bool("primary", b.IsPrimary))
	return b, nil
}

func (s *WalletService) SetActive(ctx context.Context, accountID, address string) error {
	if err := validAddress(address); err != nil {
		return err
	}
	if err := s.Store.SetActive(ctx, accountID, address); err != nil {
		return err
	}
	s.Hub.Publish(address, socket.WalletSwitchedType, "", map[string]string{"accountId": accountID})
	return nil
}

func (s *WalletService) Unbind(ctx context.Context, accountID, address string) error {
	if err := validAddress(address); err != nil {
		return err
	}
	if err := s.Store.Unbind(ctx, accountID, address); err != nil {
		return err
	}
	logger.Log.Info("wallet removed", zap.String("account", accountID), zap.String("address", chain.Normalize(address)))
	return nil
}

func (s *WalletService) ListWallets(ctx context.Context, accountID string) (*model.WalletList, error) {
	wallets, err := s.Store.List(ctx, accountID)
	if err != nil {
		return nil, err
	}
	list := &model.WalletList{Wallets: wallets}
	for _, w := range wallets {
		if w.IsActive {
			list.ActiveWallet = w.Address
		}
	}
	return list, nil
}

// ActiveAddress fails with NOT_BOUND when the account has no wallet yet.
func (s *WalletService) ActiveAddress(ctx context.Context, accountID string) (string, error) {
	address, err := s.Store.ActiveAddress(ctx, accountID)
	if err != nil {
		return "", err
	}
	if address == "" {
		return "", apperr.New(apperr.KindAuthorization, apperr.CodeNotBound, "account %s has no bound wallet", accountID)
	}
	return address, nil
}

func (s *WalletService) RequireBound(ctx context.Context, accountID, address string) error {
	if err := validAddress(address); err != nil {
		return err
	}
	bound, err := s.Store.IsBound(ctx, accountID, address)
	if err != nil {
		return err
	}
	if !bound {
		return apperr.New(apperr.KindAuthorization, apperr.CodeNotBound,
			"address %s is not bound to account %s", chain.Normalize(address), accountID)
	}
	return nil
}

// ResolveAddress picks the address an address-scoped query runs against:
// requested when given, otherwise the active wallet. Either way the caller
// must control it.
func (s *WalletService) ResolveAddress(ctx context.Context, accountID, requested string) (string, error) {
	if requested == "" {
		return s.ActiveAddress(ctx, accountID)
	}
	if err := s.RequireBound(ctx, accountID, requested); err != nil {
		return "", err
	}
	return chain.Normalize(requested), nil
}

// ResolveAccountsForAddress lists the accounts bound to address. Emails are
// only shown to the account they belong to.
func (s *WalletService) ResolveAccountsForAddress(ctx context.Context, viewerID, address string) ([]model.AccountSummary, error) {
	if err := validAddress(address); err != nil {
		return nil, err
	}
	accounts, err := s.Store.ResolveAccounts(ctx, address)
	if err != nil {
		return nil, err
	}
	for i := range accounts {
		if accounts[i].AccountID != viewerID {
			accounts[i].Email = ""
		}
	}
	return accounts, nil
}
