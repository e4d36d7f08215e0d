package relay

import (
	"bytes"
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Call is one contract invocation executed by the smart account.
type Call struct {
	Target common.Address
	Data   []byte
	Value  *big.Int
}

// OrderData tells the relay how much of the token the operation moves.
type OrderData struct {
	Amount string `json:"amount"`
	Type   string `json:"type"`
}

// BuildRequest asks the relay for an unsigned operation.
type BuildRequest struct {
	Calls     []Call
	NetworkID uint64
	Account   common.Address
	Order     OrderData
	SignMode  string
}

// UnsignedOperation is the relay's answer to a BuildRequest. It cannot be
// changed once built; accessors return copies.
type UnsignedOperation struct {
	calls     []Call
	networkID uint64
	account   common.Address
	order     OrderData
	signMode  string
	digest    []byte
	envelope  json.RawMessage
}

// NewUnsignedOperation freezes a build request together with the relay's
// digest and envelope.
func NewUnsignedOperation(req BuildRequest, digest []byte, envelope json.RawMessage) *UnsignedOperation {
	calls := make([]Call, len(req.Calls))
	for i, call := range req.Calls {
		calls[i] = Call{Target: call.Target, Data: common.CopyBytes(call.Data)}
		if call.Value != nil {
			calls[i].Value = new(big.Int).Set(call.Value)
		}
	}
	return &UnsignedOperation{
		calls:     calls,
		networkID: req.NetworkID,
		account:   req.Account,
		order:     req.Order,
		signMode:  req.SignMode,
		digest:    common.CopyBytes(digest),
		envelope:  json.RawMessage(common.CopyBytes(envelope)),
	}
}

// CallData is the encoded data of the first call.
func (op *UnsignedOperation) CallData() []byte {
	if len(op.calls) == 0 {
		return nil
	}
	return common.CopyBytes(op.calls[0].Data)
}

// Target is the contract the first call invokes.
func (op *UnsignedOperation) Target() common.Address {
	if len(op.calls) == 0 {
		return common.Address{}
	}
	return op.calls[0].Target
}

func (op *UnsignedOperation) NetworkID() uint64 { return op.networkID }

func (op *UnsignedOperation) Account() common.Address { return op.account }

func (op *UnsignedOperation) Order() OrderData { return op.order }

func (op *UnsignedOperation) SignMode() string { return op.signMode }

// Digest is the hash the owner key must sign.
func (op *UnsignedOperation) Digest() []byte { return common.CopyBytes(op.digest) }

// Envelope is the relay's opaque user operation, passed back on submit.
func (op *UnsignedOperation) Envelope() json.RawMessage {
	return json.RawMessage(common.CopyBytes(op.envelope))
}

// SubmitRequest carries a signed operation back to the relay.
type SubmitRequest struct {
	Signature []byte
	Envelope  json.RawMessage
	NetworkID uint64
	Account   common.Address
	SignMode  string
}

type wireCall struct {
	EncodedData           string `json:"encodedData"`
	TargetContractAddress string `json:"targetContractAddress"`
	Value                 string `json:"value"`
}

type createAccountRequest struct {
	EOAAddress string `json:"eoaAddress"`
}

type createAccountResponse struct {
	Wallet struct {
		ScwAddress string `json:"scw_address"`
	} `json:"wallet"`
}

func (r createAccountResponse) Validate() error {
	return validation.Validate(r.Wallet.ScwAddress, validation.Required, validation.By(hexAddress))
}

type balanceResponse struct {
	Balance json.Number `json:"balance"`
}

type buildRequestBody struct {
	TransactionDetails []wireCall `json:"transactionDetails"`
	Network            uint64     `json:"network"`
	WalletAddress      string     `json:"walletAddress"`
	OrderData          OrderData  `json:"orderData"`
	SignMode           string     `json:"signMode"`
}

type buildResponse struct {
	MessageToSign string          `json:"messageToSign"`
	UserOp        json.RawMessage `json:"userOp"`
}

func (r buildResponse) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.MessageToSign, validation.Required, validation.By(hexBytes(32))),
		validation.Field(&r.UserOp, validation.Required, validation.By(jsonObject)),
	)
}

func jsonObject(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	}
	if !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
		return validation.NewError("validation_json_object", "must be a JSON object")
	}
	return nil
}

type submitRequestBody struct {
	Signature     string          `json:"signature"`
	UserOp        json.RawMessage `json:"userOp"`
	Network       uint64          `json:"network"`
	WalletAddress string          `json:"walletAddress"`
	SignMode      string          `json:"signMode"`
}

type submitResponse struct {
	TxnHash string `json:"txnHash"`
}

func (r submitResponse) Validate() error {
	return validation.Validate(r.TxnHash, validation.Required, validation.By(hexBytes(common.HashLength)))
}

func hexAddress(value interface{}) error {
	s, _ := value.(string)
	if !common.IsHexAddress(s) {
		return validation.NewError("validation_is_hex_address", "must be a hex account address")
	}
	return nil
}

func hexBytes(length int) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		b, err := hexutil.Decode(s)
		if err != nil || len(b) != length {
			return validation.NewError("validation_hex_bytes", "must be 0x-prefixed hex of the expected length")
		}
		return nil
	}
}
