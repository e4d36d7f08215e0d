package transfer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/earn-alliance/smartwallet/internal/account"
	"github.com/earn-alliance/smartwallet/internal/errs"
	"github.com/earn-alliance/smartwallet/internal/relay"
	"github.com/earn-alliance/smartwallet/internal/signer"
)

type fakeReceipts struct {
	mu      sync.Mutex
	pending int
	receipt *types.Receipt
	lookups int
}

func (f *fakeReceipts) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.receipt == nil || f.lookups <= f.pending {
		return nil, ethereum.NotFound
	}
	return f.receipt, nil
}

func signedOperation() *signer.SignedOperation {
	op := relay.NewUnsignedOperation(relay.BuildRequest{SignMode: "ECDSA"}, make([]byte, 32), []byte(`{}`))
	return &signer.SignedOperation{Signature: make([]byte, 65), Operation: op}
}

var trackedAccount = account.SmartAccount{Address: common.HexToAddress("0x5C1"), NetworkID: 8453}

func TestSubmit_OnlyOnce(t *testing.T) {
	r := &fakeRelay{}
	tracker := NewTracker(r)
	signed := signedOperation()

	result, err := tracker.Submit(context.Background(), trackedAccount, signed)
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0xfeed"), result.TransactionHash)
	assert.Equal(t, StatusSubmitted, result.Status)
	assert.Equal(t, uint64(8453), r.submits[0].NetworkID)
	assert.Equal(t, "ECDSA", r.submits[0].SignMode)

	_, err = tracker.Submit(context.Background(), trackedAccount, signed)
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
	assert.ErrorIs(t, err, errs.ErrSubmissionFailed)
	assert.Len(t, r.submits, 1)
}

func TestSubmit_RelayRejectionIsNotRetried(t *testing.T) {
	r := &fakeRelay{submitErr: errors.New("AA21 didn't pay prefund")}
	signed := signedOperation()

	_, err := NewTracker(r).Submit(context.Background(), trackedAccount, signed)
	assert.ErrorIs(t, err, errs.ErrSubmissionFailed)
	assert.Len(t, r.submits, 1)
	assert.False(t, signed.MarkSubmitted())
}

func TestSubmit_NothingToSubmit(t *testing.T) {
	r := &fakeRelay{}
	_, err := NewTracker(r).Submit(context.Background(), trackedAccount, nil)
	assert.ErrorIs(t, err, errs.ErrSubmissionFailed)
	assert.Empty(t, r.submits)
}

func TestSubmit_WaitsForReceipt(t *testing.T) {
	tests := []struct {
		name     string
		receipts *fakeReceipts
		want     Status
	}{
		{
			name:     "confirmed after pending",
			receipts: &fakeReceipts{pending: 2, receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful}},
			want:     StatusConfirmed,
		},
		{
			name:     "reverted",
			receipts: &fakeReceipts{receipt: &types.Receipt{Status: types.ReceiptStatusFailed}},
			want:     StatusReverted,
		},
		{
			name:     "never mined",
			receipts: &fakeReceipts{},
			want:     StatusSubmitted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewTracker(&fakeRelay{}).WithReceipts(tt.receipts, 50*time.Millisecond, time.Millisecond)

			result, err := tracker.Submit(context.Background(), trackedAccount, signedOperation())
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Status)
		})
	}
}
