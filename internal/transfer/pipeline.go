package transfer

import (
	"context"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/earn-alliance/smartwallet/internal/account"
	"github.com/earn-alliance/smartwallet/internal/errs"
	"github.com/earn-alliance/smartwallet/internal/identity"
	"github.com/earn-alliance/smartwallet/internal/log"
	"github.com/earn-alliance/smartwallet/internal/metrics"
	"github.com/earn-alliance/smartwallet/internal/relay"
	"github.com/earn-alliance/smartwallet/internal/signer"
)

var ErrTransferInProgress = errors.New("a transfer is already in progress")

// Signer obtains a verified owner signature for an operation.
type Signer interface {
	Sign(ctx context.Context, id identity.WalletIdentity, op *relay.UnsignedOperation) (*signer.SignedOperation, error)
}

// Attempt records one run of the pipeline.
type Attempt struct {
	Request Request
	Machine *Machine
	Result  *Result
}

// Pipeline runs build, sign and submit strictly in order, one attempt at a
// time.
type Pipeline struct {
	builder *Builder
	signer  Signer
	tracker *Tracker
	metrics *metrics.Metrics
	logger  *logrus.Entry

	inFlight atomic.Bool
}

func NewPipeline(builder *Builder, s Signer, tracker *Tracker, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		builder: builder,
		signer:  s,
		tracker: tracker,
		metrics: m,
		logger:  log.Component("transfer"),
	}
}

// IsTransferring reports whether an attempt is running.
func (p *Pipeline) IsTransferring() bool {
	return p.inFlight.Load()
}

// Run executes one transfer attempt. Invalid input returns ErrValidation
// with the machine still Idle and no collaborator called. Build, sign and
// submit failures leave the machine Failed. The returned Attempt is non-nil
// unless another attempt is already running.
func (p *Pipeline) Run(ctx context.Context, id identity.WalletIdentity, acct account.SmartAccount, req Request) (*Attempt, error) {
	if !p.inFlight.CompareAndSwap(false, true) {
		return nil, ErrTransferInProgress
	}
	defer p.inFlight.Store(false)

	attempt := &Attempt{Request: req, Machine: NewMachine()}
	if err := req.Validate(); err != nil {
		return attempt, err
	}

	logger := p.logger.WithFields(logrus.Fields{
		"smart_account": acct.Address.Hex(),
		"recipient":     req.Recipient,
		"amount":        req.Amount,
	})

	result, err := p.run(ctx, attempt.Machine, id, acct, req)
	if err != nil {
		if terr := attempt.Machine.Transition(Failed); terr != nil {
			logger.WithError(terr).Error("could not mark transfer failed")
		}
		p.metrics.RecordTransfer(Failed.String())
		logger.WithError(err).WithField("state", attempt.Machine.History()).Error("transfer failed")
		return attempt, err
	}

	attempt.Result = result
	p.metrics.RecordTransfer(Completed.String())
	logger.WithField("tx_hash", result.TransactionHash.Hex()).Info("transfer completed")
	return attempt, nil
}

func (p *Pipeline) run(ctx context.Context, m *Machine, id identity.WalletIdentity, acct account.SmartAccount, req Request) (*Result, error) {
	if err := m.Transition(Validating); err != nil {
		return nil, err
	}
	minor, err := req.MinorUnits()
	if err != nil {
		return nil, errs.Wrap(errs.ErrValidation, err, "")
	}

	if err := m.Transition(Building); err != nil {
		return nil, err
	}
	op, err := p.builder.build(ctx, acct.Address, common.HexToAddress(req.Recipient), minor)
	if err != nil {
		return nil, err
	}

	if err := m.Transition(AwaitingSignature); err != nil {
		return nil, err
	}
	signed, err := p.signer.Sign(ctx, id, op)
	if err != nil {
		return nil, errs.Ensure(errs.ErrSigningFailed, err)
	}

	if err := m.Transition(Submitting); err != nil {
		return nil, err
	}
	result, err := p.tracker.Submit(ctx, acct, signed)
	if err != nil {
		return nil, err
	}

	if err := m.Transition(Completed); err != nil {
		return nil, err
	}
	return result, nil
}
