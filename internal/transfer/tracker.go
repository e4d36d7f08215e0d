package transfer

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/earn-alliance/smartwallet/internal/account"
	"github.com/earn-alliance/smartwallet/internal/errs"
	"github.com/earn-alliance/smartwallet/internal/log"
	"github.com/earn-alliance/smartwallet/internal/relay"
	"github.com/earn-alliance/smartwallet/internal/signer"
)

var ErrAlreadySubmitted = errors.New("signed operation was already submitted")

type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusConfirmed Status = "confirmed"
	StatusReverted  Status = "reverted"
)

// Result is the outcome of a completed transfer.
type Result struct {
	TransactionHash common.Hash
	Status          Status
}

// OperationSubmitter is the relay endpoint that executes signed operations.
type OperationSubmitter interface {
	SubmitOperation(ctx context.Context, req relay.SubmitRequest) (common.Hash, error)
}

// ReceiptReader looks up transaction receipts; *ethclient.Client satisfies it.
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

type Tracker struct {
	relay    OperationSubmitter
	receipts ReceiptReader
	timeout  time.Duration
	interval time.Duration
	logger   *logrus.Entry
}

func NewTracker(submitter OperationSubmitter) *Tracker {
	return &Tracker{
		relay:  submitter,
		logger: log.Component("transfer"),
	}
}

// WithReceipts makes Submit wait up to timeout for the transaction receipt,
// checking every interval.
func (t *Tracker) WithReceipts(receipts ReceiptReader, timeout, interval time.Duration) *Tracker {
	t.receipts = receipts
	t.timeout = timeout
	t.interval = interval
	return t
}

// Submit sends signed to the relay once. It is never retried; a failure is
// ErrSubmissionFailed and the user has to start a new transfer.
func (t *Tracker) Submit(ctx context.Context, acct account.SmartAccount, signed *signer.SignedOperation) (*Result, error) {
	if signed == nil || signed.Operation == nil {
		return nil, errs.New(errs.ErrSubmissionFailed, "nothing to submit")
	}
	if !signed.MarkSubmitted() {
		return nil, errs.Wrap(errs.ErrSubmissionFailed, ErrAlreadySubmitted, "")
	}

	op := signed.Operation
	hash, err := t.relay.SubmitOperation(ctx, relay.SubmitRequest{
		Signature: signed.Signature,
		Envelope:  op.Envelope(),
		NetworkID: acct.NetworkID,
		Account:   acct.Address,
		SignMode:  op.SignMode(),
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrSubmissionFailed, err, "submit operation")
	}

	result := &Result{TransactionHash: hash, Status: StatusSubmitted}
	logger := t.logger.WithField("tx_hash", hash.Hex())
	logger.Info("transfer submitted")

	if t.receipts != nil {
		result.Status = t.confirm(ctx, hash)
		logger.WithField("status", result.Status).Info("transfer receipt checked")
	}
	return result, nil
}

// confirm polls for the receipt. Running out of time leaves the transfer
// as submitted; it is not a failure.
func (t *Tracker) confirm(ctx context.Context, hash common.Hash) Status {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		receipt, err := t.receipts.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && receipt.Status == types.ReceiptStatusSuccessful:
			return StatusConfirmed
		case err == nil:
			return StatusReverted
		case !errors.Is(err, ethereum.NotFound):
			t.logger.WithError(err).WithField("tx_hash", hash.Hex()).Warn("receipt lookup failed")
		}

		select {
		case <-ctx.Done():
			return StatusSubmitted
		case <-ticker.C:
		}
	}
}
