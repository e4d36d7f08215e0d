// Package session ties identity resolution, account provisioning, balance
// polling and transfers together for one signed-in user.
package session

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/earn-alliance/smartwallet/internal/account"
	"github.com/earn-alliance/smartwallet/internal/amount"
	"github.com/earn-alliance/smartwallet/internal/balance"
	"github.com/earn-alliance/smartwallet/internal/errs"
	"github.com/earn-alliance/smartwallet/internal/identity"
	"github.com/earn-alliance/smartwallet/internal/log"
	"github.com/earn-alliance/smartwallet/internal/metrics"
	"github.com/earn-alliance/smartwallet/internal/transfer"
	"github.com/earn-alliance/smartwallet/pkg/constants"
)

var ErrSessionClosed = errors.New("session is closed")

type Resolver interface {
	Resolve(ctx context.Context) (*identity.WalletIdentity, error)
}

type Provisioner interface {
	Provision(ctx context.Context, owner common.Address) (*account.SmartAccount, *big.Int, error)
}

type Pipeline interface {
	Run(ctx context.Context, id identity.WalletIdentity, acct account.SmartAccount, req transfer.Request) (*transfer.Attempt, error)
	IsTransferring() bool
}

// Session drives one user's wallet: set up once with Start, then any number
// of Transfer calls until Close.
type Session struct {
	resolver    Resolver
	provisioner Provisioner
	pipeline    Pipeline
	poller      *balance.Poller
	logger      *logrus.Entry

	state State
}

// New creates a session. The poller refreshes the balance from fetcher every
// interval once a smart account exists.
func New(resolver Resolver, provisioner Provisioner, fetcher balance.Fetcher, pipeline Pipeline, interval time.Duration, m *metrics.Metrics) *Session {
	s := &Session{
		resolver:    resolver,
		provisioner: provisioner,
		pipeline:    pipeline,
		logger:      log.Component("session"),
	}
	s.poller = balance.NewPoller(fetcher, interval, s.state.setBalance, m)
	return s
}

// Start resolves the identity and provisions the smart account, then starts
// balance polling under ctx. Steps that already succeeded are not repeated,
// so a failed provisioning can be retried by calling Start again.
func (s *Session) Start(ctx context.Context) error {
	snap := s.state.Snapshot()
	if snap.Closed {
		return ErrSessionClosed
	}

	id := snap.Identity
	if id == nil {
		resolved, err := s.resolver.Resolve(ctx)
		if err != nil {
			return errs.Ensure(errs.ErrIdentityUnavailable, err)
		}
		id = resolved

		s.state.mu.Lock()
		s.state.identity = id
		s.state.mu.Unlock()
	}

	acct := snap.Account
	if acct == nil {
		provisioned, seed, err := s.provisioner.Provision(ctx, id.CustodialAddress)
		if err != nil {
			return errs.Ensure(errs.ErrProvisioningFailed, err)
		}
		acct = provisioned

		s.state.mu.Lock()
		if s.state.closed {
			s.state.mu.Unlock()
			return ErrSessionClosed
		}
		s.state.account = acct
		s.state.mu.Unlock()
		s.state.setBalance(seed)
	}

	// Close must not miss a poller started concurrently with it.
	s.state.mu.Lock()
	if s.state.closed {
		s.state.mu.Unlock()
		return ErrSessionClosed
	}
	s.poller.Start(ctx, acct.Address)
	s.state.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"custodial_address": id.CustodialAddress.Hex(),
		"smart_account":     acct.Address.Hex(),
	}).Info("session started")
	return nil
}

// SetRecipient and SetAmount hold the transfer form input.
func (s *Session) SetRecipient(recipient string) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	s.state.recipient = recipient
}

func (s *Session) SetAmount(value string) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	s.state.amount = value
}

// CanSubmit reports whether the form holds a valid transfer and nothing is
// in flight.
func (s *Session) CanSubmit() bool {
	snap := s.state.Snapshot()
	return snap.Account != nil && !s.pipeline.IsTransferring() &&
		transfer.IsValidTransfer(snap.Recipient, snap.Amount)
}

func (s *Session) IsTransferring() bool {
	return s.pipeline.IsTransferring()
}

// Transfer sends the amount in the form to the recipient in the form. On
// success the form is cleared and the result recorded. If the session closes
// while the transfer runs, the result is dropped and ErrSessionClosed is
// returned with the attempt.
func (s *Session) Transfer(ctx context.Context) (*transfer.Attempt, error) {
	snap := s.state.Snapshot()
	switch {
	case snap.Closed:
		return nil, ErrSessionClosed
	case snap.Identity == nil:
		return nil, errs.New(errs.ErrIdentityUnavailable, "identity not resolved")
	case snap.Account == nil:
		return nil, errs.New(errs.ErrProvisioningFailed, "no smart account")
	}

	req := transfer.Request{Recipient: snap.Recipient, Amount: snap.Amount}
	attempt, err := s.pipeline.Run(ctx, *snap.Identity, *snap.Account, req)

	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if s.state.closed {
		s.logger.Warn("session closed during transfer, discarding result")
		return attempt, ErrSessionClosed
	}
	if err != nil {
		return attempt, err
	}

	result := *attempt.Result
	s.state.last = &result
	s.state.recipient = ""
	s.state.amount = ""
	return attempt, nil
}

// Balance is the display form of the last known balance, amount.Unknown
// before the first successful fetch.
func (s *Session) Balance() string {
	return amount.Format(s.state.Snapshot().Balance, constants.USDC_DECIMALS)
}

func (s *Session) Snapshot() Snapshot {
	return s.state.Snapshot()
}

// Close stops polling and waits for the poller to exit. It is safe to call
// more than once.
func (s *Session) Close() {
	s.state.mu.Lock()
	s.state.closed = true
	s.state.mu.Unlock()

	s.poller.Stop()
}
