package wallet

import (
	"math/big"
	"strconv"
	"strings"
	"unicode"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
)

// MaxAmountETH is the largest amount a single send may move.
const MaxAmountETH = 1000

var weiPerEther = big.NewInt(params.Ether)

// IsValidAmount reports whether amount is a decimal ETH value in (0, 1000]
// that converts to a whole number of wei.
func IsValidAmount(amount string) bool {
	amount = strings.TrimSpace(amount)
	if !isDecimal(amount) {
		return false
	}
	v, err := strconv.ParseFloat(amount, 64)
	if err != nil || !(v > 0 && v <= MaxAmountETH) {
		return false
	}
	_, err = ParseEther(amount)
	return err == nil
}

// ParseEther converts a decimal ETH string to wei. Amounts with more than 18
// decimals are rejected.
func ParseEther(amount string) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if !isDecimal(amount) {
		return nil, ErrInvalidAmount
	}
	r, ok := new(big.Rat).SetString(amount)
	if !ok {
		return nil, ErrInvalidAmount
	}
	r.Mul(r, new(big.Rat).SetInt(weiPerEther))
	if !r.IsInt() {
		return nil, ErrInvalidAmount
	}
	return new(big.Int).Set(r.Num()), nil
}

// isDecimal accepts plain decimal notation with an optional exponent. Hex
// floats, fractions, infinities and digit separators are refused.
func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	digits := false
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits = true
		case r == '.' || r == 'e' || r == 'E':
		case (r == '+' || r == '-') && (i == 0 || s[i-1] == 'e' || s[i-1] == 'E'):
		default:
			return false
		}
	}
	return digits
}

// FormatEther renders wei as a decimal ETH string with at least one
// fractional digit ("1.0", "0.25").
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0.0"
	}
	neg := wei.Sign() < 0
	abs := new(big.Int).Abs(wei)

	whole, frac := new(big.Int).QuoRem(abs, weiPerEther, new(big.Int))
	fracStr := strings.TrimRight(leftPad(frac.String(), 18), "0")
	if fracStr == "" {
		fracStr = "0"
	}

	s := whole.String() + "." + fracStr
	if neg {
		s = "-" + s
	}
	return s
}

// FormatBalance renders wei as "1.2345 ETH".
func FormatBalance(wei *big.Int) string {
	if wei == nil {
		wei = new(big.Int)
	}
	f := new(big.Float).Quo(new(big.Float).SetInt(wei), new(big.Float).SetInt(weiPerEther))
	return f.Text('f', 4) + " ETH"
}

// FormatAddress shortens an address to 0x1234...abcd.
func FormatAddress(address string) string {
	if len(address) < 10 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}

// IsHexAddress reports whether s is a 40 hex character address, with or
// without the 0x prefix. The checksum is not enforced.
func IsHexAddress(s string) bool {
	return common.IsHexAddress(strings.TrimSpace(s))
}

// IsValidENSName reports whether s looks like an ENS name: two or more
// dot-separated labels of letters, digits and hyphens.
func IsValidENSName(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || IsHexAddress(s) {
		return false
	}
	labels := strings.Split(s, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if label == "" || strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return false
		}
		for _, r := range label {
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' {
				return false
			}
		}
	}
	return true
}

func leftPad(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return strings.Repeat("0", n-len(s)) + s
}
