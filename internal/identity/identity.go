// Package identity resolves the custodial wallet address a session signs with.
package identity

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/earn-alliance/smartwallet/internal/custody"
	"github.com/earn-alliance/smartwallet/internal/errs"
	"github.com/earn-alliance/smartwallet/internal/log"
)

// Directory is the read side of the key-management provider.
type Directory interface {
	Authenticated() bool
	CurrentUser(ctx context.Context) (*custody.User, error)
	Wallets(ctx context.Context, organizationID string) ([]custody.Wallet, error)
	WalletAccounts(ctx context.Context, organizationID, walletID string) ([]custody.WalletAccount, error)
}

// WalletIdentity is the custodial key a session acts as. It does not change
// for the lifetime of a session.
type WalletIdentity struct {
	OrganizationID   string
	WalletID         string
	CustodialAddress common.Address
}

// Binding is the signer binding for this identity.
func (w WalletIdentity) Binding() custody.SignerBinding {
	return custody.SignerBinding{OrganizationID: w.OrganizationID, SignWith: w.CustodialAddress}
}

// SelectionPolicy picks one wallet and one account when the provider returns
// several. Empty fields select the first entry in provider order.
type SelectionPolicy struct {
	WalletID       string
	AccountAddress string
}

func (p SelectionPolicy) wallet(wallets []custody.Wallet) (custody.Wallet, bool) {
	for _, w := range wallets {
		if p.WalletID == "" || w.WalletID == p.WalletID {
			return w, true
		}
	}
	return custody.Wallet{}, false
}

func (p SelectionPolicy) account(accounts []custody.WalletAccount) (custody.WalletAccount, bool) {
	for _, a := range accounts {
		if p.AccountAddress == "" || strings.EqualFold(a.Address, p.AccountAddress) {
			return a, true
		}
	}
	return custody.WalletAccount{}, false
}

type Resolver struct {
	directory Directory
	policy    SelectionPolicy
	logger    *logrus.Entry
}

func NewResolver(directory Directory, policy SelectionPolicy) *Resolver {
	return &Resolver{
		directory: directory,
		policy:    policy,
		logger:    log.Component("identity"),
	}
}

// Resolve walks user -> organization -> wallet -> account. Every failure is
// ErrIdentityUnavailable; callers send the user back to sign in instead of
// retrying.
func (r *Resolver) Resolve(ctx context.Context) (*WalletIdentity, error) {
	if !r.directory.Authenticated() {
		return nil, errs.Wrap(errs.ErrIdentityUnavailable, custody.ErrNotAuthenticated, "")
	}

	user, err := r.directory.CurrentUser(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.ErrIdentityUnavailable, err, "fetch current user")
	}
	if user == nil || user.Validate() != nil {
		return nil, errs.New(errs.ErrIdentityUnavailable, "no organization for current user")
	}

	wallets, err := r.directory.Wallets(ctx, user.OrganizationID)
	if err != nil {
		return nil, errs.Wrap(errs.ErrIdentityUnavailable, err, "list wallets")
	}
	if len(wallets) > 1 {
		r.logger.WithField("wallets", len(wallets)).Warn("organization has several wallets, applying selection policy")
	}
	wallet, ok := r.policy.wallet(wallets)
	if !ok || wallet.Validate() != nil {
		return nil, errs.New(errs.ErrIdentityUnavailable, "no wallet found")
	}

	accounts, err := r.directory.WalletAccounts(ctx, user.OrganizationID, wallet.WalletID)
	if err != nil {
		return nil, errs.Wrap(errs.ErrIdentityUnavailable, err, "list wallet accounts")
	}
	account, ok := r.policy.account(accounts)
	if !ok {
		return nil, errs.New(errs.ErrIdentityUnavailable, "no account found")
	}
	if err := account.Validate(); err != nil {
		return nil, errs.Wrap(errs.ErrIdentityUnavailable, err, "malformed account")
	}

	identity := &WalletIdentity{
		OrganizationID:   user.OrganizationID,
		WalletID:         wallet.WalletID,
		CustodialAddress: common.HexToAddress(account.Address),
	}
	r.logger.WithFields(logrus.Fields{
		"organization": identity.OrganizationID,
		"address":      identity.CustodialAddress.Hex(),
	}).Info("resolved custodial identity")
	return identity, nil
}
