package custody

import (
	"github.com/ethereum/go-ethereum/common"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

type User struct {
	UserID         string
	OrganizationID string
}

func (u User) Validate() error {
	return validation.ValidateStruct(&u,
		validation.Field(&u.OrganizationID, validation.Required),
	)
}

type Wallet struct {
	WalletID string
	Name     string
}

func (w Wallet) Validate() error {
	return validation.ValidateStruct(&w,
		validation.Field(&w.WalletID, validation.Required),
	)
}

type WalletAccount struct {
	Address string
	Path    string
}

func (a WalletAccount) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Address, validation.Required, validation.By(hexAddress)),
	)
}

// SignerBinding names the custodial key a signature is requested from.
type SignerBinding struct {
	OrganizationID string
	SignWith       common.Address
}

func hexAddress(value interface{}) error {
	s, _ := value.(string)
	if !common.IsHexAddress(s) {
		return validation.NewError("validation_is_hex_address", "must be a hex account address")
	}
	return nil
}
