package transfer

import (
	"math/big"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/pkg/errors"

	"github.com/earn-alliance/smartwallet/internal/amount"
	"github.com/earn-alliance/smartwallet/internal/errs"
	"github.com/earn-alliance/smartwallet/pkg/constants"
)

const erc20TransferABI = `[{"type":"function","name":"transfer","stateMutability":"nonpayable",
"inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],
"outputs":[{"name":"","type":"bool"}]}]`

var (
	erc20      = mustParseABI(erc20TransferABI)
	hexAddress = regexp.MustCompile(`^(0x)?[0-9a-fA-F]{40}$`)
	mixedCase  = regexp.MustCompile(`([A-F].*[a-f])|([a-f].*[A-F])`)
)

func mustParseABI(definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Request is what the user typed into the transfer form.
type Request struct {
	Recipient string
	Amount    string
}

// Validate checks the request without any network call. The error is of
// kind ErrValidation.
func (r Request) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.Recipient, validation.Required, validation.By(addressRule)),
		validation.Field(&r.Amount, validation.Required, validation.By(amountRule)),
	)
	if err != nil {
		return errs.Wrap(errs.ErrValidation, err, "")
	}
	return nil
}

// MinorUnits is the amount in token minor units.
func (r Request) MinorUnits() (*big.Int, error) {
	return amount.PositiveMinorUnits(r.Amount, constants.USDC_DECIMALS)
}

// IsValidTransfer reports whether recipient is a well-formed account address
// and amountMajorUnits converts to a strictly positive number of minor units.
func IsValidTransfer(recipient, amountMajorUnits string) bool {
	return Request{Recipient: recipient, Amount: amountMajorUnits}.Validate() == nil
}

// IsValidAddress accepts 40 hex digits with an optional 0x prefix. Mixed
// case input must carry a correct EIP-55 checksum.
func IsValidAddress(s string) bool {
	if !hexAddress.MatchString(s) {
		return false
	}
	digits := strings.TrimPrefix(s, "0x")
	if !mixedCase.MatchString(digits) {
		return true
	}
	return common.HexToAddress(digits).Hex() == "0x"+digits
}

// EncodeTransfer ABI-encodes an ERC-20 transfer(to, amount) call.
func EncodeTransfer(to common.Address, minor *big.Int) ([]byte, error) {
	data, err := erc20.Pack("transfer", to, minor)
	if err != nil {
		return nil, errors.Wrap(err, "encode transfer")
	}
	return data, nil
}

func addressRule(value interface{}) error {
	s, _ := value.(string)
	if !IsValidAddress(s) {
		return validation.NewError("validation_address", "must be a valid account address")
	}
	return nil
}

func amountRule(value interface{}) error {
	s, _ := value.(string)
	if _, err := amount.PositiveMinorUnits(s, constants.USDC_DECIMALS); err != nil {
		return validation.NewError("validation_amount", errors.Cause(err).Error())
	}
	return nil
}
