package walletservice

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/lambda"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/earn-alliance/smartwallet/internal/config"
	"github.com/earn-alliance/smartwallet/internal/custody"
)

type fakeInvoker struct {
	requests []WalletServiceSignMessageRequest
	response interface{}
	err      error
}

func (f *fakeInvoker) InvokeWithContext(ctx aws.Context, input *lambda.InvokeInput, opts ...request.Option) (*lambda.InvokeOutput, error) {
	var req WalletServiceSignMessageRequest
	if err := json.Unmarshal(input.Payload, &req); err != nil {
		return nil, err
	}
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	payload, _ := json.Marshal(f.response)
	return &lambda.InvokeOutput{Payload: payload}, nil
}

type fakeDirectory map[common.Address]*CustodyAccount

func (d fakeDirectory) Account(ctx context.Context, address common.Address) (*CustodyAccount, error) {
	if a, ok := d[address]; ok {
		return a, nil
	}
	return nil, errors.Wrap(ErrUnknownAccount, address.Hex())
}

var custodial = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func newVault(invoker *fakeInvoker) *WalletServiceVault {
	return &WalletServiceVault{
		LambdaARN:  "arn:aws:lambda:eu-west-1:1:function:wallet",
		ClientType: "app",
		ClientID:   "smartwallet",
		Lambda:     invoker,
		Accounts: fakeDirectory{
			custodial: {ID: "acct-1", Address: custodial.Hex(), IsActivated: true},
		},
	}
}

func signResponse(status int, signature string) WalletServiceSignMessageResponse {
	var r WalletServiceSignMessageResponse
	r.StatusCode = status
	r.Payload.Signature = signature
	return r
}

func TestSignMessage(t *testing.T) {
	invoker := &fakeInvoker{response: signResponse(200, "0xbeef")}

	sig, err := newVault(invoker).SignMessage(context.Background(),
		custody.SignerBinding{SignWith: custodial}, []byte{0x01, 0x02})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xbe, 0xef}, sig)

	require.Len(t, invoker.requests, 1)
	req := invoker.requests[0]
	assert.Equal(t, "wallet:sign_msg", req.Action)
	assert.Equal(t, "app", req.FromType)
	assert.Equal(t, "smartwallet", req.FromID)
	assert.Equal(t, "acct-1", req.TargetID)
	assert.Equal(t, "0x0102", req.Payload.Message)
}

func TestSignMessage_StatusError(t *testing.T) {
	resp := signResponse(403, "")
	resp.Error = "policy denied"
	invoker := &fakeInvoker{response: resp}

	_, err := newVault(invoker).SignMessage(context.Background(),
		custody.SignerBinding{SignWith: custodial}, []byte{0x01})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "StatusCode: 403, policy denied")
}

func TestSignMessage_InvokeError(t *testing.T) {
	invoker := &fakeInvoker{err: errors.New("throttled")}

	_, err := newVault(invoker).SignMessage(context.Background(),
		custody.SignerBinding{SignWith: custodial}, []byte{0x01})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

func TestSignMessage_UnknownOrInactiveAccount(t *testing.T) {
	invoker := &fakeInvoker{response: signResponse(200, "0x01")}
	vault := newVault(invoker)

	_, err := vault.SignMessage(context.Background(),
		custody.SignerBinding{SignWith: common.HexToAddress("0xbb")}, []byte{0x01})
	assert.ErrorIs(t, err, ErrUnknownAccount)

	vault.Accounts.(fakeDirectory)[custodial].IsActivated = false
	_, err = vault.SignMessage(context.Background(),
		custody.SignerBinding{SignWith: custodial}, []byte{0x01})
	assert.ErrorIs(t, err, ErrInactiveAccount)
	assert.Empty(t, invoker.requests)
}

func TestNew_RequiresLambdaParameters(t *testing.T) {
	_, err := New(config.WalletServiceConfig{LambdaARN: "arn"})
	assert.Error(t, err)
}
