package account

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/earn-alliance/smartwallet/internal/errs"
	"github.com/earn-alliance/smartwallet/internal/log"
)

// Relay is the part of the account-abstraction relay the provisioner needs.
type Relay interface {
	CreateSmartAccount(ctx context.Context, owner common.Address) (common.Address, error)
	Balance(ctx context.Context, account common.Address) (*big.Int, error)
}

// SmartAccount is the contract account bound to a custodial owner key.
type SmartAccount struct {
	Owner     common.Address
	Address   common.Address
	NetworkID uint64
}

// Provisioner creates or fetches smart accounts. Addresses are a function
// of (owner, network), so the provisioner remembers what the relay answered
// and refuses an answer that contradicts it.
type Provisioner struct {
	relay     Relay
	networkID uint64
	logger    *logrus.Entry

	mu    sync.Mutex
	known map[common.Address]common.Address
}

func NewProvisioner(relay Relay, networkID uint64) *Provisioner {
	return &Provisioner{
		relay:     relay,
		networkID: networkID,
		logger:    log.Component("account"),
		known:     make(map[common.Address]common.Address),
	}
}

// Provision returns the smart account of owner and its current balance.
// The balance is nil when the seed fetch failed; the account is still usable
// and the poller fills the balance in later.
func (p *Provisioner) Provision(ctx context.Context, owner common.Address) (*SmartAccount, *big.Int, error) {
	if owner == (common.Address{}) {
		return nil, nil, errs.New(errs.ErrProvisioningFailed, "owner address is empty")
	}

	address, err := p.relay.CreateSmartAccount(ctx, owner)
	if err != nil {
		return nil, nil, errs.Wrap(errs.ErrProvisioningFailed, err, "create or fetch smart account")
	}
	if address == (common.Address{}) {
		return nil, nil, errs.New(errs.ErrProvisioningFailed, "relay returned an empty smart account address")
	}

	p.mu.Lock()
	previous, seen := p.known[owner]
	if !seen {
		p.known[owner] = address
	}
	p.mu.Unlock()
	if seen && previous != address {
		return nil, nil, errs.New(errs.ErrProvisioningFailed,
			fmt.Sprintf("relay returned %s for owner %s, previously %s", address.Hex(), owner.Hex(), previous.Hex()))
	}

	account := &SmartAccount{Owner: owner, Address: address, NetworkID: p.networkID}
	logger := p.logger.WithFields(logrus.Fields{"owner": owner.Hex(), "smart_account": address.Hex()})
	logger.Info("smart account provisioned")

	balance, err := p.relay.Balance(ctx, address)
	if err != nil {
		logger.WithError(errs.Wrap(errs.ErrPollFailed, err, "seed balance")).Warn("initial balance fetch failed")
		return account, nil, nil
	}
	return account, balance, nil
}
