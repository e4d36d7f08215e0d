package session

import (
	"math/big"
	"sync"

	"github.com/earn-alliance/smartwallet/internal/account"
	"github.com/earn-alliance/smartwallet/internal/identity"
	"github.com/earn-alliance/smartwallet/internal/transfer"
)

// State is what a session knows so far. The balance poller and the transfer
// flow run on different goroutines and both write to it.
type State struct {
	mu sync.Mutex

	identity *identity.WalletIdentity
	account  *account.SmartAccount
	balance  *big.Int

	recipient string
	amount    string

	last   *transfer.Result
	closed bool
}

// Snapshot is a point-in-time copy of State.
type Snapshot struct {
	Identity     *identity.WalletIdentity
	Account      *account.SmartAccount
	Balance      *big.Int
	Recipient    string
	Amount       string
	LastTransfer *transfer.Result
	Closed       bool
}

func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Recipient: s.recipient,
		Amount:    s.amount,
		Closed:    s.closed,
	}
	if s.identity != nil {
		id := *s.identity
		snap.Identity = &id
	}
	if s.account != nil {
		acct := *s.account
		snap.Account = &acct
	}
	if s.balance != nil {
		snap.Balance = new(big.Int).Set(s.balance)
	}
	if s.last != nil {
		last := *s.last
		snap.LastTransfer = &last
	}
	return snap
}

// setBalance stores b unless the session is closed.
func (s *State) setBalance(b *big.Int) {
	if b == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.balance = new(big.Int).Set(b)
}
