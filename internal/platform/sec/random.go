// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// GenerateSecureToken returns byteLength random bytes, hex encoded.
func GenerateSecureToken(byteLength int) (string, error) {
	buffer := make([]byte, byteLength)
	if _, err := rand.Read(buffer); err != nil {
		return "", fmt.Errorf("sec: failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buffer), nil
}

// GenerateSalt returns byteLength random bytes for salted hashes.
func GenerateSalt(byteLength int) ([]byte, error) {
	salt := make([]byte, byteLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("sec: failed to read salt: %w", err)
	}
	return salt, nil
}

// GenerateNumericCode returns a uniformly random decimal string of the given length.
// Each digit is drawn independently so leading zeros are as likely as any other digit.
func GenerateNumericCode(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", fmt.Errorf("sec: invalid code length %d", digits)
	}

	var builder strings.Builder
	builder.Grow(digits)

	ten := big.NewInt(10)
	for range digits {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("sec: failed to draw digit: %w", err)
		}
		builder.WriteByte(byte('0' + n.Int64()))
	}

	return builder.String(), nil
}

// GenerateRecoveryCodes returns count single-use codes formatted XXXX-XXXX-XXXX.
func GenerateRecoveryCodes(count int) ([]string, error) {
	codes := make([]string, count)
	for i := range codes {
		buffer := make([]byte, 6)
		if _, err := rand.Read(buffer); err != nil {
			return nil, fmt.Errorf("sec: failed to generate recovery code: %w", err)
		}
		raw := strings.ToUpper(hex.EncodeToString(buffer))
		codes[i] = raw[:4] + "-" + raw[4:8] + "-" + raw[8:12]
	}
	return codes, nil
}

// NormalizeRecoveryCode strips dashes and whitespace and upper-cases a code
// before it is hashed, so "abcd-ef01-2345" and "ABCDEF012345" match.
func NormalizeRecoveryCode(code string) string {
	code = strings.ReplaceAll(strings.TrimSpace(code), "-", "")
	return strings.ToUpper(code)
}
