package walletservice

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/lambda"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/guregu/dynamo"
	"github.com/pkg/errors"

	"github.com/earn-alliance/smartwallet/internal/config"
	"github.com/earn-alliance/smartwallet/internal/custody"
	"github.com/earn-alliance/smartwallet/internal/log"
)

var (
	ErrUnknownAccount  = errors.New("[WalletService] no custody account for address")
	ErrInactiveAccount = errors.New("[WalletService] custody account is not activated")
)

type WalletService interface {
	SignMessage(ctx context.Context, binding custody.SignerBinding, message []byte) ([]byte, error)
}

// Invoker is the subset of the Lambda API the vault calls.
type Invoker interface {
	InvokeWithContext(ctx aws.Context, input *lambda.InvokeInput, opts ...request.Option) (*lambda.InvokeOutput, error)
}

// AccountDirectory finds the custody account behind a custodial address.
type AccountDirectory interface {
	Account(ctx context.Context, address common.Address) (*CustodyAccount, error)
}

type WalletServiceVault struct {
	LambdaARN  string
	ClientType string
	ClientID   string
	Lambda     Invoker
	Accounts   AccountDirectory
}

var _ WalletService = (*WalletServiceVault)(nil)

type dynamoDirectory struct {
	table dynamo.Table
}

func (d dynamoDirectory) Account(ctx context.Context, address common.Address) (*CustodyAccount, error) {
	var result CustodyAccount
	err := d.table.Get("address", address.Hex()).OneWithContext(ctx, &result)
	if err == dynamo.ErrNotFound {
		return nil, errors.Wrap(ErrUnknownAccount, address.Hex())
	}
	if err != nil {
		return nil, errors.Wrap(err, "[WalletService] account lookup")
	}
	return &result, nil
}

// New builds a vault on the shared AWS config for the configured region.
func New(cfg config.WalletServiceConfig) (*WalletServiceVault, error) {
	if cfg.LambdaARN == "" || cfg.ClientType == "" || cfg.ClientID == "" || cfg.AWSRegion == "" {
		log.Logger().Errorln("[WalletService] Fail to load lambda parameters")
		return nil, errors.New("[WalletService] Fail to load lambda parameters")
	}

	sess, err := session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[WalletService] aws session")
	}

	awsConfig := &aws.Config{Region: aws.String(cfg.AWSRegion)}
	db := dynamo.New(sess, awsConfig)

	log.Logger().Infof("[WalletService] Successfully loaded lambda parameters")

	return &WalletServiceVault{
		LambdaARN:  cfg.LambdaARN,
		ClientType: cfg.ClientType,
		ClientID:   cfg.ClientID,
		Lambda:     lambda.New(sess, awsConfig),
		Accounts:   dynamoDirectory{table: db.Table(cfg.AccountTable)},
	}, nil
}

// SignMessage asks the wallet service to sign message as a personal message
// with the custody account bound to binding.SignWith.
func (w *WalletServiceVault) SignMessage(ctx context.Context, binding custody.SignerBinding, message []byte) ([]byte, error) {
	account, err := w.Accounts.Account(ctx, binding.SignWith)
	if err != nil {
		return nil, err
	}
	if !account.IsActivated {
		return nil, errors.Wrap(ErrInactiveAccount, account.ID)
	}

	req := WalletServiceSignMessageRequest{
		Action:   "wallet:sign_msg",
		FromType: w.ClientType,
		FromID:   w.ClientID,
		TargetID: account.ID,
	}
	req.Payload.Message = hexutil.Encode(message)
	req.Payload.Encoding = "hex"

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "[WalletService] marshal sign_msg request")
	}

	output, err := w.Lambda.InvokeWithContext(ctx, &lambda.InvokeInput{
		FunctionName: aws.String(w.LambdaARN),
		Payload:      payload,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[WalletService] invoke sign_msg")
	}
	if output.FunctionError != nil {
		return nil, errors.Errorf("[WalletService] sign_msg function error: %s", aws.StringValue(output.FunctionError))
	}

	var response WalletServiceSignMessageResponse
	if err := json.Unmarshal(output.Payload, &response); err != nil {
		return nil, errors.Wrap(err, "[WalletService] unmarshal sign_msg response")
	}

	// If the status code is NOT 200, the call failed
	if response.StatusCode != 200 {
		msg := "StatusCode: " + strconv.Itoa(response.StatusCode)
		if response.Error != "" {
			msg += ", " + response.Error
		}
		log.Logger().Errorln("[WalletService] sign_msg failed, " + msg)
		return nil, errors.New("[WalletService] sign_msg failed, " + msg)
	}

	signature, err := hexutil.Decode(strings.TrimSpace(response.Payload.Signature))
	if err != nil {
		return nil, errors.Wrap(err, "[WalletService] decode signature")
	}
	return signature, nil
}
