package transfer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/earn-alliance/smartwallet/internal/account"
	"github.com/earn-alliance/smartwallet/internal/custody"
	"github.com/earn-alliance/smartwallet/internal/errs"
	"github.com/earn-alliance/smartwallet/internal/identity"
	"github.com/earn-alliance/smartwallet/internal/relay"
	"github.com/earn-alliance/smartwallet/internal/signer"
	"github.com/earn-alliance/smartwallet/pkg/constants"
)

// fakeRelay builds and submits operations, recording the order of calls.
type fakeRelay struct {
	mu        sync.Mutex
	calls     []string
	builds    []relay.BuildRequest
	submits   []relay.SubmitRequest
	buildErr  error
	submitErr error
	block     chan struct{}
}

func (f *fakeRelay) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeRelay) BuildOperation(ctx context.Context, req relay.BuildRequest) (*relay.UnsignedOperation, error) {
	f.record("build")
	if f.block != nil {
		<-f.block
	}
	f.builds = append(f.builds, req)
	if f.buildErr != nil {
		return nil, f.buildErr
	}
	return relay.NewUnsignedOperation(req, crypto.Keccak256([]byte("userop")), []byte(`{"sender":"sc"}`)), nil
}

func (f *fakeRelay) SubmitOperation(ctx context.Context, req relay.SubmitRequest) (common.Hash, error) {
	f.record("submit")
	f.submits = append(f.submits, req)
	if f.submitErr != nil {
		return common.Hash{}, f.submitErr
	}
	return common.HexToHash("0xfeed"), nil
}

// keyBackend signs like the custody service and records each request.
type keyBackend struct {
	relay *fakeRelay
	key   *ecdsa.PrivateKey
	err   error
}

func (b *keyBackend) SignMessage(ctx context.Context, binding custody.SignerBinding, message []byte) ([]byte, error) {
	b.relay.record("sign")
	if b.err != nil {
		return nil, b.err
	}
	sig, err := crypto.Sign(accounts.TextHash(message), b.key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

type fixture struct {
	relay    *fakeRelay
	backend  *keyBackend
	pipeline *Pipeline
	id       identity.WalletIdentity
	acct     account.SmartAccount
}

func newFixture(t *testing.T) *fixture {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	r := &fakeRelay{}
	backend := &keyBackend{relay: r, key: key}
	owner := crypto.PubkeyToAddress(key.PublicKey)

	builder := NewBuilder(r, common.HexToAddress(constants.BASE_USDC_ADDRESS), constants.BASE_NETWORK_ID)
	return &fixture{
		relay:    r,
		backend:  backend,
		pipeline: NewPipeline(builder, signer.New(backend), NewTracker(r), nil),
		id:       identity.WalletIdentity{OrganizationID: "org-1", CustodialAddress: owner},
		acct: account.SmartAccount{
			Owner:     owner,
			Address:   common.HexToAddress("0x5C1"),
			NetworkID: constants.BASE_NETWORK_ID,
		},
	}
}

func TestRun_HappyPath(t *testing.T) {
	f := newFixture(t)

	attempt, err := f.pipeline.Run(context.Background(), f.id, f.acct, Request{Recipient: lowercase, Amount: "10.50"})
	require.NoError(t, err)

	require.NotNil(t, attempt.Result)
	assert.Equal(t, common.HexToHash("0xfeed"), attempt.Result.TransactionHash)
	assert.Equal(t, StatusSubmitted, attempt.Result.Status)
	assert.Equal(t, []State{Idle, Validating, Building, AwaitingSignature, Submitting, Completed}, attempt.Machine.History())
	assert.Equal(t, []string{"build", "sign", "submit"}, f.relay.calls)
	assert.False(t, f.pipeline.IsTransferring())

	build := f.relay.builds[0]
	assert.Equal(t, constants.BASE_NETWORK_ID, build.NetworkID)
	assert.Equal(t, f.acct.Address, build.Account)
	assert.Equal(t, relay.OrderData{Amount: "10500000", Type: "AMOUNT_OUT"}, build.Order)
	assert.Equal(t, "ECDSA", build.SignMode)
	require.Len(t, build.Calls, 1)
	assert.Equal(t, common.HexToAddress(constants.BASE_USDC_ADDRESS), build.Calls[0].Target)

	submit := f.relay.submits[0]
	assert.JSONEq(t, `{"sender":"sc"}`, string(submit.Envelope))
	assert.Len(t, submit.Signature, 65)
	assert.Equal(t, f.acct.Address, submit.Account)
}

func TestRun_InvalidInputMakesNoCall(t *testing.T) {
	f := newFixture(t)

	attempt, err := f.pipeline.Run(context.Background(), f.id, f.acct, Request{Recipient: "not-an-address", Amount: "5"})
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.Equal(t, Idle, attempt.Machine.State())
	assert.Empty(t, f.relay.calls)
	assert.False(t, f.pipeline.IsTransferring())
}

func TestRun_BuildFailureSkipsSigner(t *testing.T) {
	f := newFixture(t)
	f.relay.buildErr = errors.New("insufficient balance")

	attempt, err := f.pipeline.Run(context.Background(), f.id, f.acct, Request{Recipient: lowercase, Amount: "5"})
	assert.ErrorIs(t, err, errs.ErrBuildFailed)
	assert.Equal(t, Failed, attempt.Machine.State())
	assert.Equal(t, []string{"build"}, f.relay.calls)
	assert.Nil(t, attempt.Result)
	assert.False(t, f.pipeline.IsTransferring())
}

func TestRun_SigningFailureSkipsSubmit(t *testing.T) {
	f := newFixture(t)
	f.backend.err = errors.New("session expired")

	attempt, err := f.pipeline.Run(context.Background(), f.id, f.acct, Request{Recipient: lowercase, Amount: "5"})
	assert.ErrorIs(t, err, errs.ErrSigningFailed)
	assert.Equal(t, []State{Idle, Validating, Building, AwaitingSignature, Failed}, attempt.Machine.History())
	assert.Equal(t, []string{"build", "sign"}, f.relay.calls)
}

func TestRun_UnverifiedSignatureNeverSubmits(t *testing.T) {
	f := newFixture(t)
	other, _ := crypto.GenerateKey()
	f.backend.key = other

	attempt, err := f.pipeline.Run(context.Background(), f.id, f.acct, Request{Recipient: lowercase, Amount: "5"})
	assert.ErrorIs(t, err, errs.ErrSigningFailed)
	assert.NotContains(t, attempt.Machine.History(), Submitting)
	assert.NotContains(t, f.relay.calls, "submit")
}

func TestRun_SubmissionFailure(t *testing.T) {
	f := newFixture(t)
	f.relay.submitErr = errors.New("execution reverted")

	attempt, err := f.pipeline.Run(context.Background(), f.id, f.acct, Request{Recipient: lowercase, Amount: "5"})
	assert.ErrorIs(t, err, errs.ErrSubmissionFailed)
	assert.Equal(t, Failed, attempt.Machine.State())
	assert.Len(t, f.relay.submits, 1)
}

func TestRun_RejectsConcurrentAttempt(t *testing.T) {
	f := newFixture(t)
	f.relay.block = make(chan struct{})

	done := make(chan error)
	go func() {
		_, err := f.pipeline.Run(context.Background(), f.id, f.acct, Request{Recipient: lowercase, Amount: "5"})
		done <- err
	}()

	require.Eventually(t, f.pipeline.IsTransferring, time.Second, time.Millisecond)
	_, err := f.pipeline.Run(context.Background(), f.id, f.acct, Request{Recipient: lowercase, Amount: "1"})
	assert.ErrorIs(t, err, ErrTransferInProgress)

	close(f.relay.block)
	assert.NoError(t, <-done)
	assert.False(t, f.pipeline.IsTransferring())
}

func TestBuild(t *testing.T) {
	r := &fakeRelay{}
	builder := NewBuilder(r, common.HexToAddress(constants.BASE_USDC_ADDRESS), constants.BASE_NETWORK_ID)
	from := common.HexToAddress("0x5C1")

	_, err := builder.Build(context.Background(), from, Request{Recipient: lowercase, Amount: "0"})
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.Empty(t, r.calls)

	op, err := builder.Build(context.Background(), from, Request{Recipient: checksummed, Amount: "1.000000"})
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(constants.BASE_USDC_ADDRESS), op.Target())
	assert.Equal(t, "1000000", op.Order().Amount)
	assert.Equal(t, from, op.Account())
	assert.Len(t, op.Digest(), 32)
}
