package transfer

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/earn-alliance/smartwallet/internal/errs"
	"github.com/earn-alliance/smartwallet/internal/log"
	"github.com/earn-alliance/smartwallet/internal/relay"
	"github.com/earn-alliance/smartwallet/pkg/constants"
)

// OperationBuilder is the relay endpoint that builds unsigned operations.
type OperationBuilder interface {
	BuildOperation(ctx context.Context, req relay.BuildRequest) (*relay.UnsignedOperation, error)
}

// Builder turns validated transfer requests into unsigned operations for a
// single token on a single network.
type Builder struct {
	relay     OperationBuilder
	token     common.Address
	networkID uint64
	logger    *logrus.Entry
}

func NewBuilder(builder OperationBuilder, token common.Address, networkID uint64) *Builder {
	return &Builder{
		relay:     builder,
		token:     token,
		networkID: networkID,
		logger:    log.Component("transfer"),
	}
}

// Build validates req and asks the relay to build the transfer from account.
// Invalid input fails with ErrValidation before any relay call; a relay
// rejection fails with ErrBuildFailed.
func (b *Builder) Build(ctx context.Context, account common.Address, req Request) (*relay.UnsignedOperation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	minor, err := req.MinorUnits()
	if err != nil {
		return nil, errs.Wrap(errs.ErrValidation, err, "")
	}
	return b.build(ctx, account, common.HexToAddress(req.Recipient), minor)
}

func (b *Builder) build(ctx context.Context, account, recipient common.Address, minor *big.Int) (*relay.UnsignedOperation, error) {
	data, err := EncodeTransfer(recipient, minor)
	if err != nil {
		return nil, errs.Wrap(errs.ErrBuildFailed, err, "")
	}

	op, err := b.relay.BuildOperation(ctx, relay.BuildRequest{
		Calls:     []relay.Call{{Target: b.token, Data: data, Value: new(big.Int)}},
		NetworkID: b.networkID,
		Account:   account,
		Order: relay.OrderData{
			Amount: minor.String(),
			Type:   constants.ORDER_TYPE_AMOUNT_OUT,
		},
		SignMode: constants.SIGN_MODE_ECDSA,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrBuildFailed, err, "build transfer")
	}

	b.logger.WithFields(logrus.Fields{
		"smart_account": account.Hex(),
		"recipient":     recipient.Hex(),
		"amount":        minor.String(),
	}).Debug("built transfer operation")
	return op, nil
}
