package token

import "strconv"

const (
	BrandVisa       = "visa"
	BrandMastercard = "mastercard"
	BrandAmex       = "amex"
	BrandDiscover   = "discover"
	BrandTroy       = "troy"
	BrandUnknown    = "unknown"
)

// DetectBrand resolves the card brand from the number's IIN range.
func DetectBrand(number string) string {
	if len(number) < 6 {
		return BrandUnknown
	}

	switch {
	case number[0] == '4':
		return BrandVisa
	case hasPrefix(number, "34", "37"):
		return BrandAmex
	case hasPrefix(number, "6011", "65", "644", "645", "646", "647", "648", "649"):
		return BrandDiscover
	case hasPrefix(number, "9792"):
		return BrandTroy
	case number[0] == '5' && number[1] >= '1' && number[1] <= '5':
		return BrandMastercard
	}

	// Mastercard 2-series range 222100-272099.
	if iin, err := strconv.Atoi(number[:6]); err == nil && iin >= 222100 && iin <= 272099 {
		return BrandMastercard
	}

	return BrandUnknown
}

func hasPrefix(number string, prefixes ...string) bool {
	for _, p := range prefixes {
		if len(number) >= len(p) && number[:len(p)] == p {
			return true
		}
	}
	return false
}

// ValidLuhn reports whether the number passes the Luhn checksum.
func ValidLuhn(number string) bool {
	if len(number) < 12 || len(number) > 19 {
		return false
	}

	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		c := number[i]
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
