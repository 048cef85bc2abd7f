// Package openpass computes the response token for the OpenWebNet "OPEN"
// challenge-response login.
//
// The gateway sends a decimal nonce; each digit selects a fixed 32-bit
// rotation/shuffle applied to the running value, seeded with the numeric
// password at the first non-zero digit. The result is sent back as a decimal
// string.
package openpass

import (
	"fmt"
	"strconv"
)

// Calculate returns the response token for password and nonce.
// The password must be a decimal number that fits in 32 bits and the nonce
// must contain digits only.
func Calculate(password, nonce string) (string, error) {
	pass, err := strconv.ParseUint(password, 10, 32)
	if err != nil {
		return "", fmt.Errorf("invalid password: %w", err)
	}

	var num1, num2 uint32
	seeded := false

	for _, c := range nonce {
		if c < '0' || c > '9' {
			return "", fmt.Errorf("invalid nonce %q: non-digit %q", nonce, c)
		}
		if c != '0' && !seeded {
			num2 = uint32(pass)
			seeded = true
		}

		switch c {
		case '1':
			num1 = (num2&0xFFFFFF80)>>7 + num2<<25
		case '2':
			num1 = (num2&0xFFFFFFF0)>>4 + num2<<28
		case '3':
			num1 = (num2&0xFFFFFFF8)>>3 + num2<<29
		case '4':
			num1 = num2<<1 + num2>>31
		case '5':
			num1 = num2<<5 + num2>>27
		case '6':
			num1 = num2<<12 + num2>>20
		case '7':
			num1 = num2&0x0000FF00 +
				(num2&0x000000FF)<<24 +
				(num2&0x00FF0000)>>16 +
				(num2&0xFF000000)>>8
		case '8':
			num1 = (num2&0x0000FFFF)<<16 +
				num2>>24 +
				(num2&0x00FF0000)>>8
		case '9':
			num1 = ^num2
		case '0':
			num1 = num2
		}
		num2 = num1
	}

	return strconv.FormatUint(uint64(num1), 10), nil
}
