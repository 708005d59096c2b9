package chain

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

var (
	ErrInvalidAmount = errors.New("invalid amount")

	unsignedDecimalPattern = regexp.MustCompile(`^[0-9]*(\.[0-9]*)?$`)
)

// FormatUnits renders amount divided by 10^decimals without rounding, with
// trailing fractional zeros removed.
func FormatUnits(amount *big.Int, decimals int) string {
	if amount == nil {
		return "0"
	}

	negative := amount.Sign() < 0
	digits := new(big.Int).Abs(amount).String()

	if decimals > 0 {
		if len(digits) <= decimals {
			digits = strings.Repeat("0", decimals-len(digits)+1) + digits
		}

		whole := digits[:len(digits)-decimals]
		fraction := strings.TrimRight(digits[len(digits)-decimals:], "0")

		digits = whole
		if fraction != "" {
			digits += "." + fraction
		}
	}

	if negative {
		return "-" + digits
	}

	return digits
}

// ParseUnits is the inverse of FormatUnits for unsigned values. It rejects
// signs and values with more fractional digits than decimals.
func ParseUnits(value string, decimals int) (*big.Int, error) {
	value = strings.TrimSpace(value)

	if !unsignedDecimalPattern.MatchString(value) {
		return nil, fmt.Errorf("%w: %q is not an unsigned decimal", ErrInvalidAmount, value)
	}

	whole, fraction, _ := strings.Cut(value, ".")
	if len(fraction) > decimals {
		return nil, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, value, decimals)
	}

	if whole == "" {
		whole = "0"
	}

	result, ok := new(big.Int).SetString(whole+fraction+strings.Repeat("0", decimals-len(fraction)), 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}

	return result, nil
}
