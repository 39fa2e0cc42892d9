package near

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// NominationExp is the number of yoctoNEAR decimal places in one NEAR.
const NominationExp = 24

// ErrInvalidAmount is returned when an amount cannot be converted.
var ErrInvalidAmount = errors.New("invalid amount")

var (
	nomination = new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(NominationExp))
	maxUint128 = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))
)

// FormatNearAmount converts a yoctoNEAR integer string into a NEAR decimal
// string with every significant fractional digit, e.g. "2000000000000000000000"
// becomes "0.002". The whole part is grouped with commas.
func FormatNearAmount(yocto string) (string, error) {
	return FormatNearAmountDigits(yocto, NominationExp)
}

// FormatNearAmountDigits is FormatNearAmount rounded half-up to at most
// digits fractional digits.
func FormatNearAmountDigits(yocto string, digits int) (string, error) {
	if digits < 0 || digits > NominationExp {
		return "", fmt.Errorf("%w: fractional digits must be between 0 and %d, got %d", ErrInvalidAmount, NominationExp, digits)
	}

	amount, err := ParseYocto(yocto)
	if err != nil {
		return "", err
	}

	if digits < NominationExp {
		offset := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(NominationExp-digits-1)))
		offset.Mul(offset, uint256.NewInt(5))
		if _, overflow := amount.AddOverflow(amount, offset); overflow {
			return "", fmt.Errorf("%w: %q overflows while rounding", ErrInvalidAmount, yocto)
		}
	}

	whole, frac := new(uint256.Int).DivMod(amount, nomination, new(uint256.Int))

	fracStr := frac.Dec()
	fracStr = strings.Repeat("0", NominationExp-len(fracStr)) + fracStr
	fracStr = strings.TrimRight(fracStr[:digits], "0")

	out := groupThousands(whole.Dec())
	if fracStr != "" {
		out += "." + fracStr
	}
	return out, nil
}

// ParseNearAmount converts a human NEAR amount such as "1.5" or "1,000" into
// a yoctoNEAR integer string. Signs, exponents and more than NominationExp
// fractional digits are rejected.
func ParseNearAmount(amount string) (string, error) {
	cleaned := strings.TrimSpace(strings.ReplaceAll(amount, ",", ""))
	if cleaned == "" {
		return "", fmt.Errorf("%w: empty amount", ErrInvalidAmount)
	}

	parts := strings.Split(cleaned, ".")
	if len(parts) > 2 {
		return "", fmt.Errorf("%w: %q has more than one decimal point", ErrInvalidAmount, amount)
	}

	whole := parts[0]
	frac := ""
	if len(parts) == 2 {
		frac = parts[1]
	}

	if whole == "" && frac == "" {
		return "", fmt.Errorf("%w: %q has no digits", ErrInvalidAmount, amount)
	}
	if !isDigits(whole) || !isDigits(frac) {
		return "", fmt.Errorf("%w: %q is not a non-negative decimal number", ErrInvalidAmount, amount)
	}
	if len(frac) > NominationExp {
		return "", fmt.Errorf("%w: %q has more than %d fractional digits", ErrInvalidAmount, amount, NominationExp)
	}

	yocto := strings.TrimLeft(whole+frac+strings.Repeat("0", NominationExp-len(frac)), "0")
	if yocto == "" {
		yocto = "0"
	}

	if _, err := ParseYocto(yocto); err != nil {
		return "", err
	}
	return yocto, nil
}

// ParseYocto parses a yoctoNEAR integer string.
func ParseYocto(yocto string) (*uint256.Int, error) {
	if yocto == "" || !isDigits(yocto) {
		return nil, fmt.Errorf("%w: %q is not a yoctoNEAR integer", ErrInvalidAmount, yocto)
	}
	amount, err := uint256.FromDecimal(yocto)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidAmount, yocto, err)
	}
	return amount, nil
}

// ParseDeposit parses a yoctoNEAR integer string that must fit in a u128,
// the width of attached deposits on chain.
func ParseDeposit(yocto string) (*uint256.Int, error) {
	amount, err := ParseYocto(yocto)
	if err != nil {
		return nil, err
	}
	if amount.Gt(maxUint128) {
		return nil, fmt.Errorf("%w: deposit %s exceeds u128", ErrInvalidAmount, yocto)
	}
	return amount, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}

	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
