// Package amount converts between decimal token amounts typed by users and
// integer minor units.
package amount

import (
	"math/big"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrMalformed   = errors.New("malformed decimal amount")
	ErrTooPrecise  = errors.New("too many decimals for token")
	ErrOutOfRange  = errors.New("amount does not fit in uint256")
	ErrNotPositive = errors.New("amount must be greater than zero")
)

var (
	decimalPattern = regexp.MustCompile(`^(-?)([0-9]*)\.?([0-9]*)$`)
	maxUint256     = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

// ToMinorUnits parses a decimal string such as "10.50" into minor units.
// Fractional digits beyond decimals are accepted only when they are zeros.
func ToMinorUnits(value string, decimals uint8) (*big.Int, error) {
	match := decimalPattern.FindStringSubmatch(value)
	if match == nil || len(match[2])+len(match[3]) == 0 {
		return nil, errors.Wrapf(ErrMalformed, "%q", value)
	}

	whole, frac := match[2], match[3]
	if len(frac) > int(decimals) {
		if strings.Trim(frac[decimals:], "0") != "" {
			return nil, errors.Wrapf(ErrTooPrecise, "%q has more than %d decimals", value, decimals)
		}
		frac = frac[:decimals]
	}
	frac += strings.Repeat("0", int(decimals)-len(frac))

	digits := strings.TrimLeft(whole+frac, "0")
	if digits == "" {
		digits = "0"
	}
	out, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, errors.Wrapf(ErrMalformed, "%q", value)
	}
	if match[1] == "-" {
		out.Neg(out)
	}
	if out.CmpAbs(maxUint256) > 0 {
		return nil, errors.Wrapf(ErrOutOfRange, "%q", value)
	}
	return out, nil
}

// PositiveMinorUnits is ToMinorUnits restricted to strictly positive amounts.
func PositiveMinorUnits(value string, decimals uint8) (*big.Int, error) {
	out, err := ToMinorUnits(value, decimals)
	if err != nil {
		return nil, err
	}
	if out.Sign() <= 0 {
		return nil, errors.Wrapf(ErrNotPositive, "%q", value)
	}
	return out, nil
}

// Unknown is shown for a balance that has not been fetched or could not be
// read.
const Unknown = "0.00"

// Format renders minor units as a decimal string. Trailing fractional zeros
// are dropped but at least one fractional digit is kept, so 10500000 with 6
// decimals is "10.5" and 0 is "0.0". A nil amount is Unknown.
func Format(minor *big.Int, decimals uint8) string {
	if minor == nil {
		return Unknown
	}
	sign := ""
	abs := new(big.Int).Abs(minor)
	if minor.Sign() < 0 {
		sign = "-"
	}

	digits := abs.String()
	if len(digits) <= int(decimals) {
		digits = strings.Repeat("0", int(decimals)-len(digits)+1) + digits
	}
	cut := len(digits) - int(decimals)
	whole, frac := digits[:cut], strings.TrimRight(digits[cut:], "0")
	if frac == "" {
		frac = "0"
	}
	return sign + whole + "." + frac
}

// FormatString formats a base-10 minor unit string, falling back to Unknown
// when it cannot be parsed.
func FormatString(minor string, decimals uint8) string {
	v, ok := new(big.Int).SetString(minor, 10)
	if !ok {
		return Unknown
	}
	return Format(v, decimals)
}
